package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/querysql"
	"github.com/roach88/ormsql/internal/sqlast"
	"github.com/roach88/ormsql/internal/sqlrender"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Model         string
	Query         string
	Dialect       string
	Profiles      []string
	MaxFetchDepth int
	Params        map[string]string
}

// Translation is the rendered outcome of one query.
type Translation struct {
	TranslationID string   `json:"translation_id"`
	Kind          string   `json:"kind"`
	Dialect       string   `json:"dialect"`
	SQL           string   `json:"sql"`
	Params        []string `json:"params"`         // per placeholder: ":name" or "literal"
	Args          []any    `json:"args,omitempty"` // present once every parameter is bound
	Fingerprint   string   `json:"fingerprint"`
	Dump          string   `json:"dump"`
	TableGroups   int      `json:"table_groups"`
	Pruned        []string `json:"pruned,omitempty"`
}

// String renders the text output: the SQL, then its bind arguments.
func (t *Translation) String() string {
	var b strings.Builder
	b.WriteString(t.SQL)
	if len(t.Params) > 0 {
		fmt.Fprintf(&b, "\n-- params: %s", strings.Join(t.Params, ", "))
	}
	if t.Args != nil {
		fmt.Fprintf(&b, "\n-- args: %v", t.Args)
	}
	return b.String()
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a domain query to SQL",
		Long: `Translate a YAML domain query against a CUE model and print the SQL.

The query file holds a statement (select, insert, update or delete), or a
query key with the statement and a bindings key with parameter values.
Bind arguments are printed once every parameter has a value.

Example:
  ormsql translate --model ./model --query orders.yaml
  ormsql translate --model ./model --query orders.yaml --dialect postgresql --param name=ACME
  ormsql translate --model ./model --query - --format json < orders.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, cmd)
		},
	}

	addTranslatorFlags(cmd, &opts.Model, &opts.Dialect, &opts.Profiles, &opts.MaxFetchDepth)
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query file (- for stdin)")
	cmd.Flags().StringToStringVarP(&opts.Params, "param", "p", nil, "parameter value name=value (repeatable)")

	return cmd
}

// addTranslatorFlags declares the flags that override translator settings
// from the config file.
func addTranslatorFlags(cmd *cobra.Command, model, dialect *string, profiles *[]string, depth *int) {
	cmd.Flags().StringVarP(model, "model", "m", "", "model directory holding the CUE files")
	cmd.Flags().StringVar(dialect, "dialect", "", "SQL dialect (sqlite|postgresql)")
	cmd.Flags().StringSliceVar(profiles, "profile", nil, "fetch profile to enable (repeatable)")
	cmd.Flags().IntVar(depth, "max-fetch-depth", 0, "maximum join fetch depth (-1 for unlimited)")
}

func runTranslate(opts *TranslateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, logger, err := settings(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	model, err := loadModel(cfg.Model)
	if err != nil {
		return report(formatter, err)
	}
	formatter.VerboseLog("Loaded model %s (%d entities)", cfg.Model, len(model.Entities()))

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
	formatter.VerboseLog("Translation %s: %s", tr.TranslationID, tr.Dump)
	formatter.VerboseLog("Fingerprint: %s", tr.Fingerprint)

	if formatter.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: tr, TranslationID: tr.TranslationID})
	}
	return formatter.Success(tr)
}

// translate lowers and renders one query file.
func translate(model *mm.Model, qf *QueryFile, cfg *Config, logger *slog.Logger) (*Translation, error) {
	dialect, err := mm.DialectByName(cfg.Translator.Dialect)
	if err != nil {
		return nil, stage(ErrCodeGeneric, ExitCommandError, err)
	}
	translator := querysql.New(model,
		querysql.WithConfig(cfg.Translator),
		querysql.WithDialect(dialect),
		querysql.WithLogger(logger),
	)

	res, err := translator.Translate(qf.Statement)
	if err != nil {
		return nil, stage(ErrCodeTranslate, ExitFailure, err)
	}
	fingerprint, err := res.Fingerprint()
	if err != nil {
		return nil, stage(ErrCodeTranslate, ExitFailure, fmt.Errorf("fingerprint: %w", err))
	}
	out, err := sqlrender.Render(res.Statement, dialect)
	if err != nil {
		return nil, stage(ErrCodeRender, ExitFailure, err)
	}

	t := &Translation{
		TranslationID: res.ID,
		Kind:          res.Kind,
		Dialect:       dialect.Name(),
		SQL:           out.SQL,
		Params:        placeholderLabels(out.Params),
		Fingerprint:   fingerprint,
		Dump:          sqlast.Dump(res.Statement),
		TableGroups:   res.TableGroups,
		Pruned:        res.Pruned,
	}

	args, err := out.Args(qf.Bindings)
	switch {
	case err == nil:
		t.Args = args
	case len(qf.Bindings) > 0:
		return nil, stage(ErrCodeBindings, ExitFailure, err)
	default:
		// Nothing bound: print the statement without arguments.
	}
	return t, nil
}

func placeholderLabels(params []*sqlast.JdbcParameter) []string {
	labels := make([]string, len(params))
	for i, p := range params {
		if p == nil {
			labels[i] = "literal"
			continue
		}
		label := ":" + p.Param
		if p.ValueIndex >= 0 {
			label += fmt.Sprintf("[%d]", p.ValueIndex)
		}
		if p.ComponentPath != "" {
			label += "." + p.ComponentPath
		}
		labels[i] = label
	}
	return labels
}
