package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cyberbook/internal/router"
)

var (
	navigateFullHTML bool
	navigateHistory  bool
)

var navigateCmd = &cobra.Command{
	Use:   "navigate TARGET...",
	Short: "Render portal routes without a browser",
	Long: `Mount the portal on an in-memory router and navigate to each target in
order, printing the rendered content of the last one. Targets are route
paths with an optional query string.

Examples:
  cyberbook navigate /chapters/xss
  cyberbook navigate "/search?q=csrf" --html
  cyberbook navigate / /stats --history`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNavigate,
}

func init() {
	rootCmd.AddCommand(navigateCmd)
	navigateCmd.Flags().BoolVar(&navigateFullHTML, "html", false, "print the whole document instead of the content area")
	navigateCmd.Flags().BoolVar(&navigateHistory, "history", false, "print the navigation history afterwards")
}

func runNavigate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := commandApp()
	defer a.Close()

	if _, err := a.openStore(ctx); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := a.loadCorpus(ctx, nil); err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}

	view := router.NewDOMView("Cyberbook", router.WithViewLogger(a.logger))
	r, _, err := a.newRouter(a.cfg.Router, view, nil)
	if err != nil {
		return err
	}

	var navErr error
	for _, target := range args {
		navErr = r.Navigate(ctx, target, nil, true)
		if navErr != nil && !errors.Is(navErr, router.ErrNotFound) {
			a.logger.Warn("navigation failed", "target", target, "error", navErr)
		}
	}

	if navigateFullHTML {
		if err := view.WriteHTML(os.Stdout); err != nil {
			return err
		}
	} else {
		fmt.Printf("# %s (%s)\n", view.Title(), r.Current())
		if err := view.WriteContentHTML(os.Stdout); err != nil {
			return err
		}
	}
	fmt.Println()

	if navigateHistory {
		fmt.Println("\nHistory:")
		for i, h := range r.History() {
			fmt.Printf("  %2d. %s  %s\n", i+1, h.Timestamp.Format("15:04:05.000"), h.Path)
		}
	}

	if r.State() == router.StateError {
		return navErr
	}
	return nil
}
