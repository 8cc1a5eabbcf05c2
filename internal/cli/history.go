package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scbrown/cwhy/internal/model"
	"github.com/scbrown/cwhy/internal/store"
)

// errHistoryDisabled is returned by the history commands when no database
// is configured.
var errHistoryDisabled = errors.New("history is disabled; pass --history-db <path> or run: cwhy config history_db default")

type historyFlags struct {
	limit      int
	since      string
	subcommand string
	model      string
	json       bool
}

func (a *app) newHistoryCmd() *cobra.Command {
	var hf historyFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded explanations",
		Long: `List explanations recorded in the history database, newest first.

History is off by default. Enable it for one run with --history-db <path>,
or for every run with: cwhy config history_db default`,
		Example: `  cwhy history
  cwhy history --limit 5 --subcommand fix
  cwhy history --since 2026-01-01 --json
  cwhy history show 3f2a`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.ListOpts{Limit: hf.limit, Model: hf.model}
			if hf.subcommand != "" {
				sub := model.Subcommand(hf.subcommand)
				if !slices.Contains(model.Subcommands(), sub) || !sub.NeedsModel() {
					return usageErrorf("--subcommand must be one of explain, fix, diff, got %q", hf.subcommand)
				}
				opts.Subcommand = sub
			}
			if hf.since != "" {
				t, err := parseSince(hf.since)
				if err != nil {
					return usageErrorf("invalid --since value %q: %v", hf.since, err)
				}
				opts.Since = t
			}

			st, err := a.openHistory(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListEntries(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			if hf.json {
				return writeJSON(a.env.Stdout, entries)
			}
			return printHistoryTable(a.env.Stdout, entries, time.Now())
		},
	}
	cmd.Flags().IntVarP(&hf.limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&hf.since, "since", "", "only entries after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&hf.subcommand, "subcommand", "", "only entries for this subcommand")
	cmd.Flags().StringVar(&hf.model, "model", "", "only entries answered by this model")
	cmd.Flags().BoolVar(&hf.json, "json", false, "output in JSON format")

	cmd.AddCommand(a.newHistoryShowCmd(), a.newHistoryStatsCmd())
	return cmd
}

func (a *app) newHistoryShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded explanation",
		Long:  "Show the prompt and reply of one history entry. Any unique prefix of the id works.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("show takes exactly one id, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openHistory(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			e, err := st.GetEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("no history entry with id %q", args[0])
			}
			if jsonOutput {
				return writeJSON(a.env.Stdout, e)
			}
			printHistoryEntry(a.env.Stdout, *e)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func (a *app) newHistoryStatsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded explanations",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openHistory(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("history stats: %w", err)
			}
			if jsonOutput {
				return writeJSON(a.env.Stdout, stats)
			}
			printHistoryStats(a.env.Stdout, stats, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// openHistory opens the configured history database.
func (a *app) openHistory(cmd *cobra.Command) (store.Store, error) {
	s, err := a.settings(cmd)
	if err != nil {
		return nil, err
	}
	if s.HistoryDB == "" {
		return nil, errHistoryDisabled
	}
	st, err := store.New(s.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return st, nil
}

// shortID returns the first 8 characters of an entry id, enough to pass to
// history show.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseSince parses an RFC3339 timestamp or a plain date.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 (e.g. 2026-01-01T00:00:00Z) or date (e.g. 2026-01-01)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHistoryTable(w io.Writer, entries []model.HistoryEntry, now time.Time) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history entries.")
		return nil
	}
	tbl := NewTable(w, "ID", "WHEN", "SUBCOMMAND", "EXIT", "COMMAND")
	// ID, WHEN, SUBCOMMAND and EXIT take roughly 45 columns.
	cmdWidth := max(tbl.Width()-45, 20)
	for _, e := range entries {
		tbl.Row(
			shortID(e.ID),
			humanize.RelTime(e.Timestamp, now, "ago", "from now"),
			string(e.Subcommand),
			fmt.Sprintf("%d", e.ExitCode),
			truncate(e.Command, cmdWidth),
		)
	}
	return tbl.Flush()
}

func printHistoryEntry(w io.Writer, e model.HistoryEntry) {
	fmt.Fprintf(w, "ID:         %s\n", e.ID)
	fmt.Fprintf(w, "When:       %s (%s)\n", e.Timestamp.Local().Format(time.RFC3339), humanize.Time(e.Timestamp))
	fmt.Fprintf(w, "Subcommand: %s\n", e.Subcommand)
	fmt.Fprintf(w, "Model:      %s\n", e.Model)
	fmt.Fprintf(w, "Command:    %s\n", e.Command)
	fmt.Fprintf(w, "Exit code:  %d\n", e.ExitCode)
	if e.CWD != "" {
		fmt.Fprintf(w, "Directory:  %s\n", e.CWD)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, banner(w, "prompt"))
	fmt.Fprintln(w, e.Prompt)
	fmt.Fprintln(w, banner(w, "reply"))
	fmt.Fprintln(w, e.Response)
}

func printHistoryStats(w io.Writer, st store.Stats, now time.Time) {
	fmt.Fprintf(w, "Total explanations: %s\n", humanize.Comma(int64(st.Total)))
	if st.Total == 0 {
		return
	}
	fmt.Fprintf(w, "First:              %s\n", humanize.RelTime(st.Earliest, now, "ago", "from now"))
	fmt.Fprintf(w, "Latest:             %s\n", humanize.RelTime(st.Latest, now, "ago", "from now"))

	fmt.Fprintln(w)
	tbl := NewTable(w, "SUBCOMMAND", "COUNT")
	for _, nc := range st.BySubcommand {
		tbl.Row(nc.Name, humanize.Comma(int64(nc.Count)))
	}
	tbl.Flush()

	if len(st.TopModels) > 0 {
		fmt.Fprintln(w)
		tbl = NewTable(w, "MODEL", "COUNT")
		for _, nc := range st.TopModels {
			tbl.Row(nc.Name, humanize.Comma(int64(nc.Count)))
		}
		tbl.Flush()
	}
}
