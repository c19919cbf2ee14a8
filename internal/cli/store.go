package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"cyberbook/internal/docstore"
)

var (
	cleanDays      int
	syncQueueClear bool
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the local document store",
}

var storeInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the engine in use and table sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Engine:  %s (atomic: %v)\n", st.Mode(), st.Atomic())
		fmt.Printf("Schema:  v%d\n", st.Schema().Version)
		fmt.Printf("Tables:\n")
		for _, t := range st.Tables() {
			n, err := st.Count(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Printf("  %-12s %d\n", t, n)
		}
		return nil
	},
}

var storeExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Export every table as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		data, err := st.ExportData(cmd.Context())
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

var storeImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the store contents with an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var data docstore.Export
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("invalid export file: %w", err)
		}

		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := st.ImportData(cmd.Context(), &data); err != nil {
			return err
		}
		fmt.Printf("Imported %d tables\n", len(data.Tables))
		return nil
	},
}

var storeCleanCmd = &cobra.Command{
	Use:   "clean TABLE",
	Short: "Delete records not updated in the last --days days",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		n, err := st.CleanOldData(cmd.Context(), args[0], cleanDays)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d records from %s\n", n, args[0])
		return nil
	},
}

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the database file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		return st.CompactDatabase(cmd.Context())
	},
}

var storeSyncQueueCmd = &cobra.Command{
	Use:   "sync-queue",
	Short: "List records pending synchronization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		if syncQueueClear {
			return st.ClearSyncQueue(cmd.Context())
		}
		entries, err := st.GetSyncQueue(cmd.Context())
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%v  %s  %s/%v\n", e.ID, e.Timestamp, e.Store, e.Key)
		}
		return nil
	},
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reading counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-16s %d\n", name, stats[name])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInfoCmd, storeExportCmd, storeImportCmd, storeCleanCmd,
		storeCompactCmd, storeSyncQueueCmd, storeStatsCmd)
	storeCleanCmd.Flags().IntVar(&cleanDays, "days", 30, "retention in days")
	storeSyncQueueCmd.Flags().BoolVar(&syncQueueClear, "clear", false, "empty the queue instead of listing it")
}
