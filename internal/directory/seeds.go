package directory

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tbourn/go-community-directory/internal/domain"
)

//go:embed seeds.json
var defaultSeeds []byte

// LoadSeeds returns the static example communities. An empty path selects the
// embedded list; otherwise the JSON file at path replaces it. Every seed is
// marked Seed=true and passed through the public-safe transform.
func LoadSeeds(path string) ([]domain.LiveCommunity, error) {
	raw := defaultSeeds
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seeds: %w", err)
		}
		raw = b
	}
	return ParseSeeds(raw)
}

// ParseSeeds decodes a JSON array of communities. Ids must be present and
// unique, names non-empty, and join types valid.
func ParseSeeds(raw []byte) ([]domain.LiveCommunity, error) {
	var list []domain.LiveCommunity
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode seeds: %w", err)
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]domain.LiveCommunity, 0, len(list))
	for i, c := range list {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("seed %d: missing id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("seed %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("seed %q: missing name", c.ID)
		}
		if !c.JoinType.Valid() {
			return nil, fmt.Errorf("seed %q: invalid join_type %q", c.ID, c.JoinType)
		}
		c.Seed = true
		out = append(out, c.Sanitized())
	}
	return out, nil
}

// MustDefaultSeeds returns the embedded seed list and panics if it is broken.
func MustDefaultSeeds() []domain.LiveCommunity {
	s, err := ParseSeeds(defaultSeeds)
	if err != nil {
		panic(err)
	}
	return s
}
