package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ormsql/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Model         string
	Dialect       string
	Profiles      []string
	MaxFetchDepth int
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Entities int                        `json:"entities"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
	Queries  []QueryCheck               `json:"queries,omitempty"`
}

// QueryCheck is the outcome of translating one query file.
type QueryCheck struct {
	File  string    `json:"file"`
	Valid bool      `json:"valid"`
	Kind  string    `json:"kind,omitempty"`
	Error *CLIError `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [query-file...]",
		Short: "Validate a model and, optionally, queries against it",
		Long: `Validate a CUE domain model without translating anything.

Reports mapping errors (duplicate columns, bad discriminators, missing
version attributes, unknown fetch profile targets) and warns about cycles of
eagerly fetched associations. Query files given as arguments are decoded and
translated, so semantic errors surface without a database.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	addTranslatorFlags(cmd, &opts.Model, &opts.Dialect, &opts.Profiles, &opts.MaxFetchDepth)

	return cmd
}

func runValidate(opts *ValidateOptions, queryFiles []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, logger, err := settings(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	result := ValidationResult{}
	model, err := loadModel(cfg.Model)
	if err != nil {
		ce, exit := describe(err)
		if exit == ExitCommandError {
			return report(formatter, err)
		}
		// The model was read but does not compile.
		result.Errors = []compiler.ValidationError{{Field: ce.Position, Message: ce.Message, Code: ce.Code}}
		return outputValidation(formatter, result)
	}

	result.Entities = len(model.Entities())
	formatter.VerboseLog("Loaded model %s (%d entities)", cfg.Model, result.Entities)
	result.Errors = compiler.ValidateModel(model)
	result.Warnings = compiler.AnalyzeFetchCycles(model)

	for _, file := range queryFiles {
		formatter.VerboseLog("Validating query: %s", file)
		check := QueryCheck{File: file}
		qf, err := loadQuery(file, cmd.InOrStdin())
		if err == nil {
			var tr *Translation
			if tr, err = translate(model, qf, cfg, logger); err == nil {
				check.Kind = tr.Kind
			}
		}
		if err != nil {
			check.Error, _ = describe(err)
		} else {
			check.Valid = true
		}
		result.Queries = append(result.Queries, check)
	}

	return outputValidation(formatter, result)
}

// outputValidation writes the result and decides the exit code: errors in
// the model or any query fail the command, warnings do not.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	failed := len(result.Errors)
	for _, q := range result.Queries {
		if !q.Valid {
			failed++
		}
	}
	result.Valid = failed == 0

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = firstValidationError(result)
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		outputValidationText(formatter, result)
	}

	if !result.Valid {
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", failed))
	}
	return nil
}

func firstValidationError(result ValidationResult) *CLIError {
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return &CLIError{Code: e.Code, Message: e.Message, Position: e.Field}
	}
	for _, q := range result.Queries {
		if q.Error != nil {
			return q.Error
		}
	}
	return nil
}

func outputValidationText(formatter *OutputFormatter, result ValidationResult) {
	w := formatter.Writer
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "✗ Model validation failed")
		fmt.Fprintln(w)
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "✓ Model valid (%d entities)\n", result.Entities)
	}

	for _, q := range result.Queries {
		if q.Valid {
			fmt.Fprintf(w, "✓ %s (%s)\n", q.File, q.Kind)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", q.File)
		if q.Error.Position != "" {
			fmt.Fprintf(w, "  %s at %s: %s\n", q.Error.Code, q.Error.Position, q.Error.Message)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", q.Error.Code, q.Error.Message)
		}
	}
}
