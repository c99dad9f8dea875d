// Package search provides a small, deterministic, concurrency-safe in-memory
// token index over directory communities. It backs the free-text "q" filter
// of the public listing:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for stop words, prefix matching and caps
//   - Unicode case folding (golang.org/x/text/cases) before tokenizing
//   - Immutable after construction, so one index may serve many readers
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. With prefix matching on,
// a query token also hits any document token it prefixes ("gam" -> "gaming").
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// Document is one searchable record.
type Document struct {
	ID   string
	Text string
}

// Result is a matched document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	// TopK returns up to k best matches; k <= 0 returns every match.
	TopK(query string, k int) []Result
	// Len reports the number of indexed documents.
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	minPrefix int
	maxDocs   int
}

func defaultConfig() config {
	return config{
		stopwords: nil,
		minPrefix: 3,
		maxDocs:   0,
	}
}

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithPrefixMatch sets the shortest query token that may match by prefix.
// Zero disables prefix matching.
func WithPrefixMatch(minRunes int) Option {
	return func(c *config) {
		if minRunes >= 0 {
			c.minPrefix = minRunes
		}
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	order  int
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Documents without any token are skipped.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for i, d := range docs {
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, order: i, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

// NewCommunityIndex indexes the public text of each community: name,
// category, platform, descriptions and founder name.
func NewCommunityIndex(list []domain.LiveCommunity, opts ...Option) Index {
	docs := make([]Document, 0, len(list))
	for _, c := range list {
		docs = append(docs, Document{ID: c.ID, Text: CommunityText(c)})
	}
	return NewIndex(docs, opts...)
}

// CommunityText joins the searchable fields of c.
func CommunityText(c domain.LiveCommunity) string {
	return strings.Join([]string{
		c.Name, c.Category, c.Platform, c.ShortDescription, c.LongDescription, c.FounderName,
	}, " ")
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching documents by Jaccard similarity.
// Ties keep document insertion order.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id    string
		score float64
		order int
	}

	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := i.overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{id: d.id, score: float64(over) / union, order: d.order})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].order < buf[b].order
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{ID: buf[n].id, Score: buf[n].score}
	}
	return out
}

// overlap counts query tokens present in d, exactly or (when enabled) as a
// prefix of some document token.
func (i *index) overlap(q, d map[string]struct{}) int {
	n := 0
	for t := range q {
		if _, ok := d[t]; ok {
			n++
			continue
		}
		if i.cfg.minPrefix == 0 || len([]rune(t)) < i.cfg.minPrefix {
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, t) {
				n++
				break
			}
		}
	}
	return n
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func fold(s string) string { return cases.Fold().String(s) }

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}
