package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Model         string
	Query         string
	Database      string
	Dialect       string
	Profiles      []string
	MaxFetchDepth int
	Params        map[string]string
	Init          bool   // create the model's tables first
	Fixtures      string // YAML file of rows to insert before running
}

// RunResult is a translation together with what executing it produced.
type RunResult struct {
	Translation  *Translation `json:"translation"`
	Columns      []string     `json:"columns,omitempty"`
	Rows         [][]any      `json:"rows,omitempty"`
	RowsAffected int64        `json:"rows_affected"`
	RunSeq       int64        `json:"run_seq"`
	FirstRun     bool         `json:"first_run"`
}

// String renders query rows as a table and DML as a row count.
func (r *RunResult) String() string {
	var b strings.Builder
	if r.Translation.Kind != "select" {
		fmt.Fprintf(&b, "%d row(s) affected", r.RowsAffected)
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	fmt.Fprintf(&b, "(%d row(s))", len(r.Rows))
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate a query and execute it against a SQLite database",
		Long: `Translate a domain query, execute the SQL against a SQLite database and
print the result rows (or the number of rows changed).

Every execution is recorded in the database's run log, keyed by the
statement fingerprint and a hash of the parameter values.

Example:
  ormsql run --db ./shop.db --model ./model --query orders.yaml --param name=ACME
  ormsql run --db ./shop.db --model ./model --query orders.yaml --init --fixtures rows.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	addTranslatorFlags(cmd, &opts.Model, &opts.Dialect, &opts.Profiles, &opts.MaxFetchDepth)
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query file (- for stdin)")
	cmd.Flags().StringToStringVarP(&opts.Params, "param", "p", nil, "parameter value name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Init, "init", false, "create the model's tables if missing")
	cmd.Flags().StringVar(&opts.Fixtures, "fixtures", "", "YAML file of rows to insert, keyed by table")

	return cmd
}

func runQuery(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, logger, err := settings(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return report(formatter, stage(ErrCodeDatabase, ExitCommandError, errors.New("no database given (use --db or set db in ormsql.yaml)")))
	}
	if d, err := mm.DialectByName(cfg.Translator.Dialect); err == nil && d.Name() != mm.SQLite().Name() {
		return report(formatter, stage(ErrCodeDatabase, ExitCommandError, fmt.Errorf("run executes SQLite only, dialect is %s", d.Name())))
	}

	model, err := loadModel(cfg.Model)
	if err != nil {
		return report(formatter, err)
	}
	qf, err := loadQuery(opts.Query, cmd.InOrStdin())
	if err != nil {
		return report(formatter, err)
	}
	if err := qf.applyParams(opts.Params); err != nil {
		return report(formatter, err)
	}

	tr, err := translate(model, qf, cfg, logger)
	if err != nil {
		return report(formatter, err)
	}
	if tr.Args == nil {
		return report(formatter, stage(ErrCodeBindings, ExitFailure, fmt.Errorf("unbound parameters: %s", strings.Join(namedParams(tr.Params), ", "))))
	}

	logger.Info("opening database", "path", cfg.Database)
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
	if opts.Init {
		if err := st.CreateSchema(ctx, model); err != nil {
			return report(formatter, stage(ErrCodeDatabase, ExitCommandError, err))
		}
	}
	if opts.Fixtures != "" {
		if err := insertFixtureFile(ctx, st, opts.Fixtures, logger); err != nil {
			return report(formatter, stage(ErrCodeDatabase, ExitCommandError, err))
		}
	}

	result, err := execute(ctx, st, tr, qf)
	if err != nil {
		return report(formatter, stage(ErrCodeExecute, ExitFailure, err))
	}
	logger.Info("statement executed",
		"translation_id", tr.TranslationID,
		"kind", tr.Kind,
		"run_seq", result.RunSeq,
		"first_run", result.FirstRun,
		"rows", len(result.Rows),
		"rows_affected", result.RowsAffected,
	)

	if formatter.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, TranslationID: tr.TranslationID})
	}
	return formatter.Success(result)
}

// execute runs the statement and appends it to the run log.
func execute(ctx context.Context, st *store.Store, tr *Translation, qf *QueryFile) (*RunResult, error) {
	result := &RunResult{Translation: tr}
	run := store.Run{
		Fingerprint: tr.Fingerprint,
		Kind:        tr.Kind,
		SQL:         tr.SQL,
		Bindings:    qf.Bindings,
	}
	if tr.Kind == "select" {
		rs, err := st.QueryAll(ctx, tr.SQL, tr.Args...)
		if err != nil {
			return nil, err
		}
		result.Columns, result.Rows = rs.Columns, rs.Rows
		run.RowCount = len(rs.Rows)
	} else {
		n, err := st.Exec(ctx, tr.SQL, tr.Args...)
		if err != nil {
			return nil, err
		}
		result.RowsAffected = n
		run.RowsAffected = n
	}

	seq, inserted, err := st.RecordRun(ctx, run)
	if err != nil {
		return nil, err
	}
	result.RunSeq, result.FirstRun = seq, inserted
	return result, nil
}

// insertFixtureFile inserts rows from a YAML map of table name to rows,
// tables in name order.
func insertFixtureFile(ctx context.Context, st *store.Store, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures map[string][]store.Row
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("parse fixtures: %w", err)
	}

	tables := make([]string, 0, len(fixtures))
	for t := range fixtures {
		tables = append(tables, t)
	}
	slices.Sort(tables)
	for _, table := range tables {
		n, err := st.InsertRows(ctx, table, fixtures[table])
		if err != nil {
			return err
		}
		logger.Info("fixtures inserted", "table", table, "rows", n)
	}
	return nil
}

func namedParams(labels []string) []string {
	var names []string
	for _, l := range labels {
		if strings.HasPrefix(l, ":") && !slices.Contains(names, l) {
			names = append(names, l)
		}
	}
	return names
}
