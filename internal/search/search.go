package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bdougie/relife/internal/embeddings"
	"github.com/bdougie/relife/internal/models"
	"github.com/bdougie/relife/internal/storage"
)

// ErrEmptyQuery is returned for blank queries; callers render it as no results.
var ErrEmptyQuery = errors.New("no query")

const (
	exactPhraseBoost = 0.5
	wordMatchWeight  = 0.3
	snippetLength    = 200
)

// QueryEmbedder is satisfied by *embeddings.Service.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher ranks stored entries against a natural-language query.
type Searcher struct {
	store    storage.Store
	embedder QueryEmbedder
}

func NewSearcher(store storage.Store, embedder QueryEmbedder) *Searcher {
	return &Searcher{store: store, embedder: embedder}
}

type scored struct {
	entry models.Entry
	score float32
	boost float32
}

// Search scores every entry as cosine similarity plus a keyword boost and
// returns entries with any keyword match ahead of those without.
// limit <= 0 returns all entries.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	entries := s.store.GetAll(ctx, storage.ListOptions{})
	ranked := Rank(query, queryVec, entries)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Rank orders entries for query. entries are expected newest first; ties
// keep that order.
func Rank(query string, queryVec []float32, entries []models.Entry) []models.SearchResult {
	hits := make([]scored, len(entries))
	for i, e := range entries {
		boost := KeywordBoost(query, e.Text)
		hits[i] = scored{
			entry: e,
			score: embeddings.CosineSimilarity(queryVec, e.Embedding) + boost,
			boost: boost,
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		mi, mj := hits[i].boost > 0, hits[j].boost > 0
		if mi != mj {
			return mi
		}
		return hits[i].score > hits[j].score
	})

	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{
			Timestamp:    h.entry.Timestamp,
			Text:         snippet(h.entry.Text),
			Score:        h.score,
			KeywordBoost: h.boost,
		}
	}
	return results
}

// KeywordBoost is 0.5 when the whole query occurs in text, otherwise 0.3
// scaled by the share of query words that occur in it. Matching is
// case-insensitive substring matching.
func KeywordBoost(query, text string) float32 {
	q := strings.ToLower(query)
	t := strings.ToLower(text)
	if strings.Contains(t, q) {
		return exactPhraseBoost
	}

	words := strings.Fields(q)
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(t, w) {
			matched++
		}
	}
	return wordMatchWeight * float32(matched) / float32(len(words))
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetLength {
		return text
	}
	return string(r[:snippetLength])
}
