package querysql

import (
	"github.com/roach88/ormsql/internal/ir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// Result is the outcome of one translation.
type Result struct {
	// ID correlates the translation with its log lines.
	ID string
	// Kind is select, insert, update or delete.
	Kind      string
	Statement sqlast.Statement
	// ParameterBindings lists, per domain parameter, the placeholder
	// groups of its occurrences in the order they were produced.
	ParameterBindings map[string][][]*sqlast.JdbcParameter
	// Results are the entities selected by the statement, with their
	// fetch plans. Set operations report the results of their first part.
	Results []*EntityResult

	TableGroups  int
	Restrictions int
	// Pruned lists the subtypes excluded from a group as alias:Entity.
	Pruned []string
}

func (t *translation) result(kind string, out sqlast.Statement) *Result {
	return &Result{
		ID:                t.tr.ids.NewID(),
		Kind:              kind,
		Statement:         out,
		ParameterBindings: t.paramGroups,
		Results:           t.results,
		TableGroups:       len(t.allGroups),
		Restrictions:      t.restrictions,
		Pruned:            t.pruned,
	}
}

// Fingerprint identifies the shape of the translated statement. Equal
// fingerprints mean equal SQL once rendered; the values bound to the
// parameters do not take part.
func (r *Result) Fingerprint() (string, error) {
	return ir.PlanFingerprint(ir.IRObject{
		"kind":      ir.IRString(r.Kind),
		"statement": ir.IRString(sqlast.Dump(r.Statement)),
	})
}
