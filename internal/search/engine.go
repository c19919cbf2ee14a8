package search

import (
	"errors"
	"log/slog"
	"maps"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"cyberbook/config"
	"cyberbook/internal/adapter/cache"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
)

// fuzzyWeight scales the contribution of a near-miss token. It must stay
// below 1 so a fuzzy match scores under the weakest exact match.
const fuzzyWeight = 0.1

// ErrEmptyID is returned when indexing a document without an id.
var ErrEmptyID = errors.New("search: document id is empty")

// Document is an indexed document as stored by the engine.
type Document struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TokenCount int            `json:"tokenCount"`
}

type document struct {
	Document
	tf       map[string]int // stem -> count
	surfaces map[string]int // folded word -> count
}

// Hit is one ranked search result.
type Hit struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Score    float64        `json:"score"`
	Snippet  string         `json:"snippet"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is one page of hits. Total counts every hit before pagination.
type Result struct {
	Query  string `json:"query"`
	Hits   []Hit  `json:"hits"`
	Total  int    `json:"total"`
	Cached bool   `json:"cached"`
}

// Stats describes the size of the index.
type Stats struct {
	Documents  int `json:"documents"`
	Tokens     int `json:"tokens"`
	Vocabulary int `json:"vocabulary"`
	CacheSize  int `json:"cacheSize"`
}

// Engine is an in-memory inverted index with TF-IDF ranking, fuzzy
// matching, metadata filters, suggestions and a query result cache.
// It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	analyzer  port.Analyzer
	cfg       config.SearchConfig
	docs      map[string]*document
	postings  map[string]map[string]int // stem -> doc id -> term frequency
	docFreq   map[string]int            // stem -> number of documents containing it
	vocab     map[string]int            // folded word -> occurrences across the corpus
	cache     *cache.QueryCache[Result]
	analytics *Analytics
	snippets  snippeter
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(a port.Analyzer, cfg config.SearchConfig, opts ...Option) *Engine {
	defaults := config.DefaultConfig().Search
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = defaults.MaxContentLength
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = defaults.SuggestionLimit
	}
	if cfg.SnippetBefore <= 0 {
		cfg.SnippetBefore = defaults.SnippetBefore
	}
	if cfg.SnippetAfter <= 0 {
		cfg.SnippetAfter = defaults.SnippetAfter
	}

	e := &Engine{
		analyzer:  a,
		cfg:       cfg,
		docs:      make(map[string]*document),
		postings:  make(map[string]map[string]int),
		docFreq:   make(map[string]int),
		vocab:     make(map[string]int),
		cache:     cache.NewQueryCache[Result](cfg.CacheSize, 0),
		analytics: newAnalytics(cfg.AnalyticsCapacity),
		snippets:  snippeter{before: cfg.SnippetBefore, after: cfg.SnippetAfter},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	return e
}

// IndexDocument adds a document, replacing any previous version with the
// same id. Every call empties the result cache.
func (e *Engine) IndexDocument(id, content string, metadata map[string]any) error {
	if id == "" {
		return ErrEmptyID
	}
	terms := e.analyzer.Analyze(content)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeLocked(id)

	doc := &document{
		Document: Document{
			ID:         id,
			Content:    truncateRunes(content, e.cfg.MaxContentLength),
			Metadata:   maps.Clone(metadata),
			TokenCount: len(terms),
		},
		tf:       make(map[string]int),
		surfaces: make(map[string]int),
	}
	for _, t := range terms {
		doc.tf[t.Stem]++
		doc.surfaces[t.Surface]++
	}

	for stem, n := range doc.tf {
		posting, ok := e.postings[stem]
		if !ok {
			posting = make(map[string]int)
			e.postings[stem] = posting
		}
		posting[id] = n
		e.docFreq[stem]++
	}
	for surface, n := range doc.surfaces {
		e.vocab[surface] += n
	}
	e.docs[id] = doc

	e.cache.Invalidate()
	e.logger.Debug("indexed document", "id", id, "tokens", doc.TokenCount, "unique", len(doc.tf))
	return nil
}

// RemoveDocument drops a document from the index. It reports whether the
// document was present.
func (e *Engine) RemoveDocument(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.removeLocked(id)
	if removed {
		e.cache.Invalidate()
	}
	return removed
}

func (e *Engine) removeLocked(id string) bool {
	doc, ok := e.docs[id]
	if !ok {
		return false
	}
	for stem := range doc.tf {
		if posting, ok := e.postings[stem]; ok {
			delete(posting, id)
			if len(posting) == 0 {
				delete(e.postings, stem)
			}
		}
		if e.docFreq[stem] <= 1 {
			delete(e.docFreq, stem)
		} else {
			e.docFreq[stem]--
		}
	}
	for surface, n := range doc.surfaces {
		if e.vocab[surface] <= n {
			delete(e.vocab, surface)
		} else {
			e.vocab[surface] -= n
		}
	}
	delete(e.docs, id)
	return true
}

// Search ranks documents against query. Queries shorter than two
// characters return an empty result and are not recorded.
func (e *Engine) Search(query string, opts ...SearchOption) Result {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < 2 {
		return Result{Query: q, Hits: []Hit{}}
	}

	o := searchOptions{limit: e.cfg.DefaultLimit, fuzzy: true}
	for _, opt := range opts {
		opt(&o)
	}
	key := cache.Key("search", q, o.key())

	if cached, ok := e.cache.Get(key); ok {
		e.analytics.record(q, cached.Total)
		cached = cached.clone()
		cached.Cached = true
		return cached
	}

	// Results are computed and cached under the read lock so a concurrent
	// IndexDocument cannot slip between ranking and caching.
	e.mu.RLock()
	result := e.searchLocked(q, o)
	e.cache.Put(key, result.clone())
	e.mu.RUnlock()

	e.analytics.record(q, result.Total)
	e.logger.Debug("search", "query", q, "total", result.Total)
	return result
}

func (e *Engine) searchLocked(q string, o searchOptions) Result {
	terms := dedupeTerms(e.analyzer.Analyze(q))
	scores := make(map[string]float64)

	for _, t := range terms {
		posting, ok := e.postings[t.Stem]
		if !ok {
			continue
		}
		idf := e.idf(t.Stem)
		for id, tf := range posting {
			doc := e.docs[id]
			scores[id] += float64(tf) / float64(doc.TokenCount) * idf
		}
	}

	if o.fuzzy && len(terms) > 0 && e.cfg.FuzzyMaxDistance > 0 {
		for _, t := range terms {
			for id, score := range e.fuzzyMatches(t.Stem) {
				scores[id] += score
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		doc := e.docs[id]
		if !matchAll(doc.Metadata, o.filters) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Metadata: maps.Clone(doc.Metadata)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	total := len(hits)
	start := min(o.offset, total)
	end := min(start+o.limit, total)
	page := hits[start:end]

	needles := make([]string, 0, len(terms)*2)
	for _, t := range terms {
		needles = append(needles, t.Surface, t.Stem)
	}
	for i := range page {
		doc := e.docs[page[i].ID]
		page[i].Snippet = e.snippets.make(doc.Content, needles)
		if title, ok := doc.Metadata["title"].(string); ok {
			page[i].Title = title
		}
	}

	return Result{Query: q, Hits: append([]Hit{}, page...), Total: total}
}

// idf is the smoothed inverse document frequency of stem.
func (e *Engine) idf(stem string) float64 {
	n := float64(len(e.docs))
	return math.Log((n+1)/(1+float64(e.docFreq[stem]))) + 1
}

// fuzzyMatches scores, per document lacking stem, its best token within the
// configured edit distance. A neighbour scores like an exact match on
// itself, scaled by fuzzyWeight/(distance+1), and never above fuzzyWeight
// times the weakest exact match of stem, so documents holding stem verbatim
// always rank above documents that only hold a neighbour.
func (e *Engine) fuzzyMatches(stem string) map[string]float64 {
	maxDist := e.cfg.FuzzyMaxDistance
	length := utf8.RuneCountInString(stem)
	if length < e.cfg.MinFuzzyTokenLength {
		return nil
	}
	exact := e.postings[stem]

	ceiling := math.Inf(1)
	if len(exact) > 0 {
		idf := e.idf(stem)
		for id, tf := range exact {
			ceiling = min(ceiling, float64(tf)/float64(e.docs[id].TokenCount)*idf)
		}
	}

	best := make(map[string]float64)
	for token, posting := range e.postings {
		if token == stem {
			continue
		}
		if diff := utf8.RuneCountInString(token) - length; diff > maxDist || -diff > maxDist {
			continue
		}
		d := levenshtein.ComputeDistance(stem, token)
		if d > maxDist {
			continue
		}
		idf := e.idf(token)
		for id, tf := range posting {
			if _, ok := exact[id]; ok {
				continue
			}
			base := min(float64(tf)/float64(e.docs[id].TokenCount)*idf, ceiling)
			score := fuzzyWeight / float64(d+1) * base
			if score > best[id] {
				best[id] = score
			}
		}
	}
	return best
}

// Suggestion is a completion candidate for a partial query.
type Suggestion struct {
	Term      string `json:"term"`
	Frequency int    `json:"frequency"`
}

// Suggest returns indexed words starting with prefix or within one edit of
// it, most frequent first. A non-positive limit uses the configured default.
func (e *Engine) Suggest(prefix string, limit int) []Suggestion {
	p := e.analyzer.Fold(strings.TrimSpace(prefix))
	if p == "" {
		return []Suggestion{}
	}
	if limit <= 0 {
		limit = e.cfg.SuggestionLimit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Suggestion, 0)
	for word, freq := range e.vocab {
		if strings.HasPrefix(word, p) || levenshtein.ComputeDistance(word, p) <= 1 {
			out = append(out, Suggestion{Term: word, Frequency: freq})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetSuggestions is Suggest reduced to the suggested words.
func (e *Engine) GetSuggestions(prefix string, limit int) []string {
	suggestions := e.Suggest(prefix, limit)
	words := make([]string, len(suggestions))
	for i, s := range suggestions {
		words[i] = s.Term
	}
	return words
}

// Document returns the stored copy of an indexed document.
func (e *Engine) Document(id string) (Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[id]
	if !ok {
		return Document{}, false
	}
	out := doc.Document
	out.Metadata = maps.Clone(out.Metadata)
	return out, true
}

// DocumentFrequency returns how many documents contain the stem of token.
func (e *Engine) DocumentFrequency(token string) int {
	terms := e.analyzer.Analyze(token)
	if len(terms) == 0 {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docFreq[terms[0].Stem]
}

func (e *Engine) CacheSize() int {
	return e.cache.Size()
}

func (e *Engine) Analytics() AnalyticsSnapshot {
	return e.analytics.Snapshot()
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Documents:  len(e.docs),
		Tokens:     len(e.postings),
		Vocabulary: len(e.vocab),
		CacheSize:  e.cache.Size(),
	}
}

// clone copies the hits and their metadata so cached results are never
// shared with callers.
func (r Result) clone() Result {
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		h.Metadata = maps.Clone(h.Metadata)
		hits[i] = h
	}
	r.Hits = hits
	return r
}

func dedupeTerms(terms []domain.Term) []domain.Term {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if seen[t.Stem] {
			continue
		}
		seen[t.Stem] = true
		out = append(out, t)
	}
	return out
}
