package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var notesChapter string

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage reading notes",
}

var notesAddCmd = &cobra.Command{
	Use:   "add CHAPTER TEXT...",
	Short: "Add a note to a chapter",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		n, err := p.Notes().Add(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("failed to add note: %w", err)
		}
		fmt.Println(n.ID)
		return nil
	},
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, optionally for one chapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		notes, err := p.Notes().List(cmd.Context(), notesChapter)
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Println("No notes.")
			return nil
		}
		for _, n := range notes {
			fmt.Printf("%s  [%s] %s  %s\n", n.ID, n.Chapter, n.CreatedAt, n.Text)
		}
		return nil
	},
}

var notesRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		return p.Notes().Remove(cmd.Context(), args[0])
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Export notes as markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return p.Notes().ExportMarkdown(cmd.Context(), out)
	},
}

var sessionTTL time.Duration

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the local reader session",
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login USER",
	Short: "Start a session, unlocking protected routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		if err := p.Auth().Login(cmd.Context(), args[0], sessionTTL); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s for %s\n", args[0], sessionTTL)
		return nil
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		return p.Auth().Logout(cmd.Context())
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := commandApp()
		defer a.Close()
		p, err := openPortal(cmd, a)
		if err != nil {
			return err
		}
		user, err := p.Auth().User(cmd.Context())
		if err != nil {
			return err
		}
		if user == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Logged in as %s\n", user)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notesCmd, sessionCmd)
	notesCmd.AddCommand(notesAddCmd, notesListCmd, notesRmCmd, notesExportCmd)
	notesListCmd.Flags().StringVar(&notesChapter, "chapter", "", "only list notes of this chapter")

	sessionCmd.AddCommand(sessionLoginCmd, sessionLogoutCmd, sessionStatusCmd)
	sessionLoginCmd.Flags().DurationVar(&sessionTTL, "ttl", 24*time.Hour, "session lifetime")
}
