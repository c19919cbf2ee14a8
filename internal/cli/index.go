package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	indexQuiet bool
	indexJSON  bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load and index every chapter of the book",
	Long: `Resolve the manifest (or discover chapters when the source directory has
none), fetch every document and add it to the search index. Documents that
fail to load are reported and do not stop the others.

Examples:
  cyberbook index
  cyberbook index -d ./book --json`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexQuiet, "quiet", false, "disable progress bar")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output summary as JSON")
}

type indexSummary struct {
	Source     string   `json:"source"`
	Indexed    int      `json:"indexed"`
	Failed     int      `json:"failed"`
	Documents  int      `json:"documents"`
	Vocabulary int      `json:"vocabulary"`
	Errors     []string `json:"errors,omitempty"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	a := commandApp()
	defer a.Close()

	fmt.Fprintf(os.Stderr, "Indexing %s...\n", a.source)

	progress := progressBar("Indexing")
	if indexQuiet || indexJSON {
		progress = nil
	}

	result, err := a.loadCorpus(cmd.Context(), progress)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	stats := a.engine.Stats()
	summary := indexSummary{
		Source:     a.source,
		Indexed:    result.Indexed,
		Failed:     result.Failed,
		Documents:  stats.Documents,
		Vocabulary: stats.Vocabulary,
	}
	for _, e := range result.Errors {
		summary.Errors = append(summary.Errors, e.Error())
	}

	if indexJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Documents indexed: %d\n", summary.Indexed)
	fmt.Printf("  Documents failed:  %d\n", summary.Failed)
	fmt.Printf("  Vocabulary:        %d terms\n", summary.Vocabulary)

	if len(summary.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range summary.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}
