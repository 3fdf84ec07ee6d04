package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ormsql/internal/ir"
	"github.com/roach88/ormsql/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database    string
	Fingerprint string
}

// HistoryEntry is one run log record as printed.
type HistoryEntry struct {
	Seq          int64  `json:"seq"`
	Fingerprint  string `json:"fingerprint"`
	Kind         string `json:"kind"`
	SQL          string `json:"sql"`
	Bindings     string `json:"bindings"`
	RowsAffected int64  `json:"rows_affected"`
	RowCount     int    `json:"row_count"`
}

// History lists run log entries in seq order.
type History []HistoryEntry

func (h History) String() string {
	if len(h) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tKIND\tROWS\tBINDINGS\tSQL")
	for _, e := range h {
		rows := e.RowCount
		if e.Kind != "select" {
			rows = int(e.RowsAffected)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", e.Seq, e.Kind, rows, e.Bindings, e.SQL)
	}
	_ = tw.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the statements executed against a database",
		Long: `List the run log kept by ormsql run: one entry per distinct statement
shape and parameter values, in execution order.

Example:
  ormsql history --db ./shop.db
  ormsql history --db ./shop.db --fingerprint 3f2a...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "only list runs of this statement shape")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, logger, err := settings(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return report(formatter, stage(ErrCodeDatabase, ExitCommandError, errors.New("no database given (use --db or set db in ormsql.yaml)")))
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return report(formatter, stage(ErrCodeDatabase, ExitCommandError, err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var runs []store.Run
	if opts.Fingerprint != "" {
		runs, err = st.ReadRunsFor(ctx, opts.Fingerprint)
	} else {
		runs, err = st.ReadRuns(ctx)
	}
	if err != nil {
		return report(formatter, stage(ErrCodeDatabase, ExitCommandError, err))
	}

	history := make(History, 0, len(runs))
	for _, r := range runs {
		bindings, err := ir.MarshalCanonical(r.Bindings)
		if err != nil {
			return report(formatter, err)
		}
		history = append(history, HistoryEntry{
			Seq:          r.Seq,
			Fingerprint:  r.Fingerprint,
			Kind:         r.Kind,
			SQL:          r.SQL,
			Bindings:     string(bindings),
			RowsAffected: r.RowsAffected,
			RowCount:     r.RowCount,
		})
	}
	return formatter.Success(history)
}
