package usecase

import (
	"cyberbook/internal/search"
)

// SearchUseCase runs queries for the CLI and the HTTP API.
type SearchUseCase struct {
	engine            *search.Engine
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
}

// NewSearchUseCase creates a new search use case.
func NewSearchUseCase(engine *search.Engine, minScoreThreshold float64) *SearchUseCase {
	return &SearchUseCase{
		engine:            engine,
		minScoreThreshold: minScoreThreshold,
	}
}

// SearchResult is a flattened hit for CLI and JSON output.
type SearchResult struct {
	Slug     string  `json:"slug"`
	Title    string  `json:"title"`
	Path     string  `json:"path,omitempty"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

// SearchResponse is one page of results.
type SearchResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Cached  bool           `json:"cached"`
	Results []SearchResult `json:"results"`
}

// Search queries the engine and flattens the hits.
func (u *SearchUseCase) Search(query string, opts ...search.SearchOption) SearchResponse {
	res := u.engine.Search(query, opts...)

	out := SearchResponse{
		Query:   res.Query,
		Total:   res.Total,
		Cached:  res.Cached,
		Results: make([]SearchResult, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		if u.minScoreThreshold > 0 && h.Score < u.minScoreThreshold {
			continue
		}
		r := SearchResult{
			Slug:    h.ID,
			Title:   h.Title,
			Score:   h.Score,
			Snippet: h.Snippet,
		}
		r.Path, _ = h.Metadata["path"].(string)
		r.Category, _ = h.Metadata["category"].(string)
		if r.Title == "" {
			r.Title = h.ID
		}
		out.Results = append(out.Results, r)
	}
	return out
}

// Suggest returns autocomplete candidates for prefix.
func (u *SearchUseCase) Suggest(prefix string, limit int) []string {
	return u.engine.GetSuggestions(prefix, limit)
}

// Analytics returns the engine's query analytics.
func (u *SearchUseCase) Analytics() search.AnalyticsSnapshot {
	return u.engine.Analytics()
}
