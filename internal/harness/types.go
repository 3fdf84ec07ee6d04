package harness

// StepResult is what one step produced.
type StepResult struct {
	Name string `json:"name"`

	// Kind is the translated statement kind; empty when translation failed.
	Kind string `json:"kind,omitempty"`

	// Fingerprint identifies the statement shape (see querysql.Result).
	Fingerprint string `json:"fingerprint,omitempty"`

	// Dump is the statement in sqlast.Dump form.
	Dump string `json:"dump,omitempty"`

	// SQL and Args are the rendered statement and its bind arguments.
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`

	// Executed is false for dialects the harness cannot run.
	Executed bool `json:"executed"`

	// Columns and Rows hold the result of an executed query.
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// RowsAffected is set for executed DML.
	RowsAffected int64 `json:"rows_affected,omitempty"`

	// RunSeq is the run log sequence number of the execution.
	RunSeq int64 `json:"run_seq,omitempty"`

	// Error is the semantic error code when translation failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step met its expect clause and
	// every assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}
