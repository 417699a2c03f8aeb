// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/statement-review/internal/archive"
	"github.com/pdiddy/statement-review/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived review runs",
	Long: `History lists runs recorded with "review --archive", newest first.
Use "history show <id>" to print a stored report; any unique prefix of the
ID is accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return formatHistory(os.Stdout, runs)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(rec)
		}
		return formatRecord(os.Stdout, rec)
	},
}

func openArchive() (*archive.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return archive.Open(cfg.Archive)
}

func formatHistory(w io.Writer, runs []archive.Summary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No archived runs.")
		return err
	}

	fmt.Fprintf(w, "%-12s  %-20s  %-5s  %-9s  %s\n", "ID", "Finished", "Pages", "Reviewers", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, r := range runs {
		reviewers := fmt.Sprintf("%d", r.Reviewers)
		if len(r.Missing) > 0 {
			reviewers += "*"
		}
		fmt.Fprintf(w, "%-12s  %-20s  %-5d  %-9s  %s\n",
			r.ID, r.FinishedAt.Format("2006-01-02 15:04:05"), r.PageCount, reviewers, shortenPath(r.Source, 26))
	}
	_, err := fmt.Fprintf(w, "\n%d runs\n", len(runs))
	return err
}

// shortenPath trims p from the left to width runes, marking the cut with "...".
func shortenPath(p string, width int) string {
	runes := []rune(p)
	if len(runes) <= width {
		return p
	}
	return "..." + string(runes[len(runes)-(width-3):])
}

func formatRecord(w io.Writer, rec types.RunRecord) error {
	fmt.Fprintf(w, "Run:      %s\n", rec.ID)
	fmt.Fprintf(w, "Source:   %s (%d pages)\n", rec.Source, rec.PageCount)
	fmt.Fprintf(w, "Finished: %s\n", rec.Report.FinishedAt.Format("2006-01-02 15:04:05"))
	if len(rec.Report.Missing) > 0 {
		fmt.Fprintf(w, "Missing:  %s\n", strings.Join(rec.Report.Missing, ", "))
	}
	fmt.Fprintf(w, "\n%s (%s):\n%s\n", rec.Report.Final.Label, rec.Report.Final.Model, rec.Report.Final.Text)
	for _, r := range rec.Report.Specialists {
		fmt.Fprintf(w, "\n%s (%s):\n%s\n", r.Label, r.Model, r.Text)
	}
	return nil
}

func init() {
	historyCmd.PersistentFlags().String("archive-dir", "", "directory holding history.db")
	historyCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return bindFlags(cmd, map[string]string{"archive-dir": "archive.dir"})
	}
	historyCmd.Flags().Int("limit", archive.DefaultLimit, "maximum runs to list")
	historyShowCmd.Flags().Bool("yaml", false, "print the full record as YAML")

	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
