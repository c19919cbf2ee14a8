package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cyberbook/internal/search"
	"cyberbook/internal/usecase"
)

var (
	searchText     string
	searchLimit    int
	searchOffset   int
	searchNoFuzzy  bool
	searchCategory string
	searchFilters  []string
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the book",
	Long: `Index the book and run a ranked full-text query against it. Exact term
matches are scored by TF-IDF; near misses add a smaller fuzzy contribution.

Examples:
  cyberbook search -q "sql injection"
  cyberbook search -q "xss" --category web --limit 5 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "number of results (default from config)")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "skip the first results")
	searchCmd.Flags().BoolVar(&searchNoFuzzy, "no-fuzzy", false, "disable fuzzy matching")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "only return chapters of this category")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter as key=value (repeatable)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

// searchOptions builds engine options from the command flags.
func searchOptions() ([]search.SearchOption, error) {
	var opts []search.SearchOption
	if searchLimit > 0 {
		opts = append(opts, search.WithLimit(searchLimit))
	}
	if searchOffset > 0 {
		opts = append(opts, search.WithOffset(searchOffset))
	}
	if searchNoFuzzy {
		opts = append(opts, search.WithFuzzy(false))
	}
	filters, err := parseFilters(searchFilters)
	if err != nil {
		return nil, err
	}
	if searchCategory != "" {
		filters["category"] = searchCategory
	}
	if len(filters) > 0 {
		opts = append(opts, search.WithFilters(filters))
	}
	return opts, nil
}

func parseFilters(raw []string) (map[string]any, error) {
	filters := make(map[string]any, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", f)
		}
		filters[key] = value
	}
	return filters, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts, err := searchOptions()
	if err != nil {
		return err
	}

	a := commandApp()
	defer a.Close()

	var progress usecase.Progress
	if !searchJSON {
		progress = progressBar("Loading")
	}
	if _, err := a.loadCorpus(cmd.Context(), progress); err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}

	resp := a.search.Search(searchText, opts...)

	if searchJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	printSearchResponse(resp)
	return nil
}

func printSearchResponse(resp usecase.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return
	}
	fmt.Printf("Found %d results for: %s\n\n", resp.Total, resp.Query)
	for i, r := range resp.Results {
		fmt.Printf("--- [%d] %s (%s, score: %.2f) ---\n", i+1, r.Title, r.Slug, r.Score)
		if r.Category != "" {
			fmt.Printf("category: %s\n", r.Category)
		}
		fmt.Println(r.Snippet)
		fmt.Println()
	}
}
