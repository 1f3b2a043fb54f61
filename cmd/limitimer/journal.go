package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/journal"
)

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var filter journal.Filter
	var kind string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent journal entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Kind = journal.Kind(kind)
			return runJournal(cmd.Context(), cmd.OutOrStdout(), opts.configPath, filter)
		},
	}

	cmd.Flags().StringVarP(&filter.DeviceKey, "device", "d", "", "Only entries for this device")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", `Only "action" or "status" entries`)
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "Number of entries")

	return cmd
}

func runJournal(ctx context.Context, out io.Writer, configPath string, filter journal.Filter) error {
	if filter.Kind != "" && filter.Kind != journal.KindAction && filter.Kind != journal.KindStatus {
		return fmt.Errorf("kind must be %q or %q", journal.KindAction, journal.KindStatus)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("the journal is disabled in %s", configPath)
	}

	db, err := openDatabase(ctx, cfg.Database, cliLogger(cfg.Logging.Level))
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := journal.NewSQLiteRepository(db.DB).List(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderJournal(res))
	return nil
}

var (
	journalHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	journalCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	journalErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

// renderJournal formats a page of entries as a table.
func renderJournal(res *journal.ListResult) string {
	if len(res.Entries) == 0 {
		return "no journal entries"
	}

	rows := make([][]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.DeviceKey,
			string(e.Kind),
			entryDetail(e),
			e.Source,
			e.Error,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("TIME", "DEVICE", "KIND", "DETAIL", "SOURCE", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return journalHeaderStyle
			case col == 5:
				return journalErrorStyle
			default:
				return journalCellStyle
			}
		})

	return fmt.Sprintf("%s\n%d of %d entries", t.String(), len(res.Entries), res.Total)
}

func entryDetail(e journal.Entry) string {
	switch {
	case e.Kind == journal.KindStatus:
		return e.Status
	case e.Text != "":
		return fmt.Sprintf("text %q", e.Text)
	default:
		return e.Action
	}
}
