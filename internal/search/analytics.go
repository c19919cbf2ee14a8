package search

import (
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const topQueriesLimit = 10

// Analytics counts queries. Zero-result queries are kept apart because
// they point at content the book is missing.
type Analytics struct {
	mu         sync.Mutex
	total      int
	successful int
	zeroResult int
	recentZero []string
	capacity   int
	counts     *lru.Cache[string, int]
}

// QueryCount is how often a normalized query was run.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// AnalyticsSnapshot is a copy of the counters at one point in time.
type AnalyticsSnapshot struct {
	TotalQueries      int          `json:"totalQueries"`
	SuccessfulQueries int          `json:"successfulQueries"`
	ZeroResultQueries int          `json:"zeroResultQueries"`
	RecentZeroResult  []string     `json:"recentZeroResult"`
	TopQueries        []QueryCount `json:"topQueries"`
}

func newAnalytics(capacity int) *Analytics {
	if capacity <= 0 {
		capacity = 100
	}
	counts, _ := lru.New[string, int](capacity)
	return &Analytics{capacity: capacity, counts: counts}
}

func (a *Analytics) record(query string, results int) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if results > 0 {
		a.successful++
	} else {
		a.zeroResult++
		a.recentZero = append(a.recentZero, q)
		if len(a.recentZero) > a.capacity {
			a.recentZero = a.recentZero[len(a.recentZero)-a.capacity:]
		}
	}

	n, _ := a.counts.Get(q)
	a.counts.Add(q, n+1)
}

func (a *Analytics) Snapshot() AnalyticsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	top := make([]QueryCount, 0, a.counts.Len())
	for _, q := range a.counts.Keys() {
		if n, ok := a.counts.Peek(q); ok {
			top = append(top, QueryCount{Query: q, Count: n})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Query < top[j].Query
	})
	if len(top) > topQueriesLimit {
		top = top[:topQueriesLimit]
	}

	return AnalyticsSnapshot{
		TotalQueries:      a.total,
		SuccessfulQueries: a.successful,
		ZeroResultQueries: a.zeroResult,
		RecentZeroResult:  append([]string(nil), a.recentZero...),
		TopQueries:        top,
	}
}
