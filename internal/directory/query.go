package directory

import (
	"strings"

	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/search"
)

// Query filters the live list for the public listing. Empty fields match
// everything. When Q is set, results follow search relevance; otherwise the
// live list order is kept.
type Query struct {
	Category string
	Platform string
	JoinType domain.JoinType
	Q        string
}

// Filter applies q to list and returns a new slice.
func Filter(list []domain.LiveCommunity, q Query) []domain.LiveCommunity {
	out := make([]domain.LiveCommunity, 0, len(list))
	for _, c := range list {
		if q.Category != "" && !strings.EqualFold(c.Category, q.Category) {
			continue
		}
		if q.Platform != "" && !strings.EqualFold(c.Platform, q.Platform) {
			continue
		}
		if q.JoinType != "" && c.JoinType != q.JoinType {
			continue
		}
		out = append(out, c)
	}
	if strings.TrimSpace(q.Q) == "" {
		return out
	}

	hits := search.NewCommunityIndex(out).TopK(q.Q, 0)
	byID := make(map[string]domain.LiveCommunity, len(out))
	for _, c := range out {
		byID[c.ID] = c
	}
	ranked := make([]domain.LiveCommunity, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, byID[h.ID])
	}
	return ranked
}

// Categories returns the distinct categories in list, in first-seen order.
func Categories(list []domain.LiveCommunity) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, c := range list {
		key := strings.ToLower(c.Category)
		if c.Category == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.Category)
	}
	return out
}
