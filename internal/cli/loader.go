package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ormsql/internal/compiler"
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/querysql"
	"github.com/roach88/ormsql/internal/queryir"
)

// ErrCodeModelInvalid reports a model that loads but does not compile or
// validate.
const ErrCodeModelInvalid = "E010"

// stageError tags a failure with the response code and exit code of the
// stage that produced it.
type stageError struct {
	Code string
	Exit int
	Err  error
}

func (e *stageError) Error() string { return e.Err.Error() }

func (e *stageError) Unwrap() error { return e.Err }

func stage(code string, exit int, err error) error {
	return &stageError{Code: code, Exit: exit, Err: err}
}

// QueryFile is a query document together with the parameter values to run
// it with. A file without a query key is read as a bare statement.
type QueryFile struct {
	Statement queryir.Statement
	Bindings  ir.IRObject
}

// loadModel compiles the CUE model in dir.
func loadModel(dir string) (*mm.Model, error) {
	if dir == "" {
		return nil, stage(compiler.ErrCodeNotFound, ExitCommandError, errors.New("no model directory given (use --model or set model in ormsql.yaml)"))
	}
	m, err := compiler.LoadModel(dir)
	if err != nil {
		var le *compiler.LoadError
		if errors.As(err, &le) {
			return nil, stage(le.Code, ExitCommandError, err)
		}
		return nil, stage(ErrCodeModelInvalid, ExitFailure, err)
	}
	return m, nil
}

// loadQuery reads and decodes a query file; "-" reads from in.
func loadQuery(path string, in io.Reader) (*QueryFile, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return nil, stage(ErrCodeQueryRead, ExitCommandError, errors.New("no query file given (use --query)"))
	case "-":
		data, err = io.ReadAll(in)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, stage(ErrCodeQueryRead, ExitCommandError, fmt.Errorf("read query: %w", err))
	}
	return decodeQueryFile(data)
}

func decodeQueryFile(data []byte) (*QueryFile, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, stage(ErrCodeQueryDecode, ExitFailure, fmt.Errorf("parse query document: %w", err))
	}

	qf := &QueryFile{Bindings: ir.IRObject{}}
	stmtDoc := doc
	if q, ok := doc["query"]; ok {
		m, ok := q.(map[string]any)
		if !ok {
			return nil, stage(ErrCodeQueryDecode, ExitFailure, &queryir.DecodeError{Field: "query", Message: "must be a map"})
		}
		stmtDoc = m
		if raw, ok := doc["bindings"]; ok && raw != nil {
			bm, ok := raw.(map[string]any)
			if !ok {
				return nil, stage(ErrCodeBindings, ExitFailure, errors.New("bindings: must be a map"))
			}
			for name, v := range bm {
				if err := qf.bind(name, v); err != nil {
					return nil, err
				}
			}
		}
		for k := range doc {
			if k != "query" && k != "bindings" {
				return nil, stage(ErrCodeQueryDecode, ExitFailure, &queryir.DecodeError{Field: k, Message: "unknown key next to query"})
			}
		}
	}

	stmt, err := queryir.DecodeStatementMap(stmtDoc)
	if err != nil {
		return nil, stage(ErrCodeQueryDecode, ExitFailure, err)
	}
	if err := queryir.Validate(stmt).Err(); err != nil {
		return nil, stage(ErrCodeQueryInvalid, ExitFailure, err)
	}
	qf.Statement = stmt
	return qf, nil
}

func (qf *QueryFile) bind(name string, raw any) error {
	v, err := ir.FromAny(raw)
	if err != nil {
		return stage(ErrCodeBindings, ExitFailure, fmt.Errorf("parameter %q: %w", name, err))
	}
	qf.Bindings[name] = v
	return nil
}

// applyParams overrides file bindings with --param values. Each value is
// read as a YAML scalar or flow collection, so 42 binds an integer and
// [1, 2] a list.
func (qf *QueryFile) applyParams(params map[string]string) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		var raw any
		if err := yaml.Unmarshal([]byte(params[name]), &raw); err != nil {
			return stage(ErrCodeBindings, ExitFailure, fmt.Errorf("parameter %q: %w", name, err))
		}
		if err := qf.bind(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// report writes err through the formatter and returns the exit error for
// the command.
func report(f *OutputFormatter, err error) error {
	ce, exit := describe(err)
	_ = f.Fail(ce)
	return WrapExitError(exit, ce.Code, err)
}

// describe maps an error from any stage to its response and exit code.
func describe(err error) (*CLIError, int) {
	ce := &CLIError{Code: ErrCodeGeneric, Message: err.Error()}
	exit := ExitFailure

	var (
		se  *stageError
		le  *compiler.LoadError
		cpe *compiler.CompileError
		sem *querysql.SemanticError
		ie  *querysql.InterpretationError
		de  *queryir.DecodeError
		ve  *queryir.ValidationError
	)
	if errors.As(err, &se) {
		ce.Code, exit = se.Code, se.Exit
	}
	switch {
	case errors.As(err, &le):
		ce.Message = le.Message
	case errors.As(err, &cpe):
		ce.Message, ce.Position = cpe.Message, cpe.Field
	case errors.As(err, &sem):
		ce.Code, ce.Message, ce.Position = string(sem.Code), sem.Message, sem.Position
	case errors.As(err, &ie):
		ce.Code, ce.Position = "INTERPRETATION", ie.Path
	case errors.As(err, &de):
		ce.Message, ce.Position = de.Message, de.Field
	case errors.As(err, &ve):
		ce.Details = ve.Problems
	}
	return ce, exit
}
