package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or scenario failure (semantic error, failed assertions, invalid model)
	ExitCommandError = 2 // Command error (missing model, unreadable query file, database not found)
)

// Error codes reported in CLI responses. Model loading codes come from the
// compiler (E003 to E006); semantic errors report their own category names.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeQueryRead    = "E101" // query file missing or unreadable
	ErrCodeQueryDecode  = "E102" // query document malformed
	ErrCodeQueryInvalid = "E103" // query fails structural validation
	ErrCodeBindings     = "E104" // parameter values malformed or missing
	ErrCodeTranslate    = "E201" // translation failed without a semantic category
	ErrCodeRender       = "E301" // statement cannot be spelled in the dialect
	ErrCodeDatabase     = "E401" // database could not be opened or prepared
	ErrCodeExecute      = "E402" // statement execution failed
	ErrCodeTestFailed   = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// newFormatter builds the formatter for one command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status        string    `json:"status"`                   // "ok" or "error"
	Data          any       `json:"data,omitempty"`           // success payload
	Error         *CLIError `json:"error,omitempty"`          // error details
	TranslationID string    `json:"translation_id,omitempty"` // correlates with translator log lines
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`               // "E005", "MISSING_JOIN_CONDITION", etc.
	Message  string `json:"message"`            // human-readable message
	Position string `json:"position,omitempty"` // offending query node, if known
	Details  any    `json:"details,omitempty"`  // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.Fail(&CLIError{Code: code, Message: message, Details: details})
}

// Fail outputs a prepared error in the configured format.
func (f *OutputFormatter) Fail(e *CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  e,
		})
	}

	// Human-readable error
	if e.Position != "" {
		fmt.Fprintf(f.Writer, "Error [%s] at %s: %s\n", e.Code, e.Position, e.Message)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

// encode writes one indented JSON response.
func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
