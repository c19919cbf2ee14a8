package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	suggestLimit int
	suggestJSON  bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest PREFIX",
	Short: "Suggest completions for a search prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)
	suggestCmd.Flags().IntVarP(&suggestLimit, "limit", "n", 0, "number of suggestions (default from config)")
	suggestCmd.Flags().BoolVar(&suggestJSON, "json", false, "output as JSON")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	a := commandApp()
	defer a.Close()

	if _, err := a.loadCorpus(cmd.Context(), nil); err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}

	limit := suggestLimit
	if limit <= 0 {
		limit = a.cfg.Search.SuggestionLimit
	}
	words := a.search.Suggest(args[0], limit)

	if suggestJSON {
		output, _ := json.Marshal(words)
		fmt.Println(string(output))
		return nil
	}
	for _, w := range words {
		fmt.Println(w)
	}
	return nil
}
