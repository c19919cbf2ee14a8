package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"cyberbook/config"
	"cyberbook/internal/adapter/analyzer"
	"cyberbook/internal/adapter/fetch"
	"cyberbook/internal/adapter/fs"
	"cyberbook/internal/logging"
	"cyberbook/internal/search"
	"cyberbook/internal/usecase"
)

func main() {
	bookDir := flag.String("dir", ".", "Book root directory")
	query := flag.String("q", "", "Query to test")
	runs := flag.Int("n", 200, "Number of timed runs per mode")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir ./book -q \"query\"")
		fmt.Println("\nMeasures:")
		fmt.Println("  1. Indexing time for the whole book")
		fmt.Println("  2. Query latency with and without fuzzy matching (cache bypassed)")
		fmt.Println("  3. Query latency served from the result cache")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*bookDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Discard()
	source := cfg.ContentSource(*bookDir)
	fetcher := fetch.New(source, cfg.Content.FetchTimeout)
	walker := fs.NewWalker(cfg.Content.Includes, cfg.Content.Excludes)
	engine := search.NewEngine(analyzer.NewTokenizer(cfg.Search.Stemming), cfg.Search, search.WithLogger(logger))
	indexer := usecase.NewIndexUseCase(engine, fetcher, walker, cfg.Content, logger)

	ctx := context.Background()
	start := time.Now()
	entries, err := indexer.Entries(ctx, source, path.Join("/", cfg.Content.Manifest))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	result := indexer.IndexEntries(ctx, entries, nil)
	indexTime := time.Since(start)

	stats := engine.Stats()
	fmt.Println("SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Source:      %s\n", source)
	fmt.Printf("Documents:   %d indexed, %d failed\n", result.Indexed, result.Failed)
	fmt.Printf("Vocabulary:  %d terms, %d tokens\n", stats.Vocabulary, stats.Tokens)
	fmt.Printf("Index time:  %s\n", indexTime)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	exact := measure(*runs, func(i int) {
		// a distinct page size per run keeps the result cache cold
		engine.Search(*query, search.WithFuzzy(false), search.WithLimit(1000+i))
	})
	fuzzy := measure(*runs, func(i int) {
		engine.Search(*query, search.WithFuzzy(true), search.WithLimit(1000+i))
	})
	engine.Search(*query)
	cached := measure(*runs, func(int) {
		engine.Search(*query)
	})

	report("exact", exact)
	report("fuzzy", fuzzy)
	report("cached", cached)
	fmt.Println()

	res := engine.Search(*query)
	fmt.Printf("Top %d of %d matches:\n\n", len(res.Hits), res.Total)
	for i, h := range res.Hits {
		snippet := strings.ReplaceAll(h.Snippet, "\n", " ")
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, h.Score, h.Title, h.ID)
		fmt.Printf("   %s\n\n", snippet)
	}
}

func measure(runs int, fn func(i int)) []time.Duration {
	out := make([]time.Duration, runs)
	for i := range runs {
		start := time.Now()
		fn(i)
		out[i] = time.Since(start)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func report(name string, samples []time.Duration) {
	if len(samples) == 0 {
		return
	}
	pct := func(p float64) time.Duration {
		return samples[int(p*float64(len(samples)-1))]
	}
	fmt.Printf("  %-7s p50 %-10s p95 %-10s max %s\n", name, pct(0.5), pct(0.95), samples[len(samples)-1])
}
