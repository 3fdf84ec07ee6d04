package querysql

import (
	"fmt"
	"log/slog"
	"strings"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/queryir"
	"github.com/roach88/ormsql/internal/sqlast"
)

// Translator lowers domain query trees to relational ASTs.
//
// A Translator only holds configuration. Every call to Translate builds a
// fresh translation context (path indexes, entity-name uses, inference
// stack, alias counters) and discards it when done, so one Translator may
// serve concurrent translations as long as the catalog and the bind
// registry are safe for concurrent readers.
type Translator struct {
	catalog  mm.Catalog
	cfg      Config
	dialect  mm.Dialect
	graph    *queryir.EntityGraph
	logger   *slog.Logger
	bindings BindRegistry
	ids      IDGenerator
}

// New creates a Translator over a catalog.
//
// Options can be passed to configure the translator (e.g., WithDialect,
// WithMaxFetchDepth).
func New(catalog mm.Catalog, opts ...Option) *Translator {
	tr := &Translator{
		catalog: catalog,
		cfg:     DefaultConfig(),
		dialect: mm.SQLite(),
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Dialect returns the capability object the translator consults.
func (tr *Translator) Dialect() mm.Dialect { return tr.dialect }

// Translate lowers one statement.
//
// The statement is expected to be structurally valid (see queryir.Validate);
// the translator reports what it finds wrong with the query's meaning:
//   - *SemanticError for relationally ill-formed queries
//   - *InterpretationError when a resolution step finds nothing for a path
//
// Assertion failures are not returned: they panic with *AssertionFailure.
// On error no partial result is returned.
func (tr *Translator) Translate(stmt queryir.Statement) (res *Result, err error) {
	if stmt == nil {
		return nil, fmt.Errorf("cannot translate nil statement")
	}
	t := tr.newTranslation()
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			res, err = nil, b.err
		}
	}()

	res = t.statement(stmt)
	tr.logger.Debug("translated statement",
		"id", res.ID,
		"kind", res.Kind,
		"table_groups", res.TableGroups,
		"restrictions", res.Restrictions,
		"pruned", strings.Join(res.Pruned, ","),
	)
	return res, nil
}

// clause identifies the part of a query being translated.
type clause int

const (
	clauseNone clause = iota
	clauseFrom
	clauseSelect
	clauseWhere
	clauseOn
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseLimit
	clauseSet
	clauseValues
)

// translation is the mutable context of one Translate call.
type translation struct {
	tr       *Translator
	catalog  mm.Catalog
	dialect  mm.Dialect
	cfg      Config
	bindings BindRegistry

	aliases *aliasGenerator
	tables  map[*sqlast.TableGroup]*tableAliases
	uses    *useTracker
	infer   inferenceStack
	tmp     temporalState

	// Clause and position stacks, restored on every exit path.
	clause    clause
	positions []string
	negations int

	scope   *queryScope
	ctes    *cteScope
	cteRoot *sqlast.CteContainer
	dml     *dmlTarget

	// Group bookkeeping across scopes.
	edges      map[*sqlast.TableGroup]*sqlast.TableGroupJoin
	joinAttrs  map[*sqlast.TableGroupJoin]*mm.Attribute
	groupScope map[*sqlast.TableGroup]*queryScope
	narrowed   map[*sqlast.TableGroup][]*mm.Entity
	allGroups  []*sqlast.TableGroup

	projections  []*projection
	results      []*EntityResult
	haveResults  bool
	fetches      *fetchPlanner
	occurrences  map[string]int
	paramGroups  map[string][][]*sqlast.JdbcParameter
	restrictions int
	pruned       []string
}

func (tr *Translator) newTranslation() *translation {
	bindings := tr.bindings
	if bindings == nil {
		bindings = NewMemoryRegistry()
	}
	t := &translation{
		tr:          tr,
		catalog:     tr.catalog,
		dialect:     tr.dialect,
		cfg:         tr.cfg,
		bindings:    bindings,
		aliases:     newAliasGenerator(),
		tables:      make(map[*sqlast.TableGroup]*tableAliases),
		uses:        newUseTracker(),
		edges:       make(map[*sqlast.TableGroup]*sqlast.TableGroupJoin),
		joinAttrs:   make(map[*sqlast.TableGroupJoin]*mm.Attribute),
		groupScope:  make(map[*sqlast.TableGroup]*queryScope),
		narrowed:    make(map[*sqlast.TableGroup][]*mm.Entity),
		occurrences: make(map[string]int),
		paramGroups: make(map[string][][]*sqlast.JdbcParameter),
	}
	t.fetches = newFetchPlanner(t)
	return t
}

// position returns the dotted location of the node being translated.
func (t *translation) position() string {
	return strings.Join(t.positions, ".")
}

// at runs fn with pos pushed on the position stack.
func (t *translation) at(pos string, fn func()) {
	t.positions = append(t.positions, pos)
	defer func() { t.positions = t.positions[:len(t.positions)-1] }()
	fn()
}

// in runs fn in clause c.
func (t *translation) in(c clause, fn func()) {
	saved := t.clause
	t.clause = c
	defer func() { t.clause = saved }()
	fn()
}

// statement dispatches on the statement kind, then runs the post-passes:
// pruning, projection expansion, result assembly.
func (t *translation) statement(stmt queryir.Statement) *Result {
	var out sqlast.Statement
	var kind string
	switch s := stmt.(type) {
	case *queryir.SelectStatement:
		kind = "select"
		out = t.selectStatement(s)
	case *queryir.InsertValuesStatement:
		kind = "insert"
		out = t.insertValues(s)
	case *queryir.InsertSelectStatement:
		kind = "insert"
		out = t.insertSelect(s)
	case *queryir.UpdateStatement:
		kind = "update"
		out = t.update(s)
	case *queryir.DeleteStatement:
		kind = "delete"
		out = t.delete(s)
	default:
		t.fail(ErrCodeUnsupported, "unsupported statement type %T", stmt)
	}
	assertf(t.uses.depth() == 0, "entity-name use frames left open: %d", t.uses.depth())
	assertf(t.infer.depth() == 0, "inference stack left open: %d", t.infer.depth())

	t.prune()
	t.expandProjections()
	t.finishDML(out)

	return t.result(kind, out)
}

func (t *translation) selectStatement(s *queryir.SelectStatement) sqlast.Statement {
	var q sqlast.QueryPart
	ctes := t.withCtes(s.With, func() {
		q, _ = t.queryPart(s.Query, partOptions{top: true})
	})
	return &sqlast.SelectStatement{Ctes: ctes, Query: q}
}

// partOptions says how a query part relates to its surroundings.
type partOptions struct {
	// top parts produce the statement result: entity selections expand to
	// all columns and fetches are planned.
	top bool
	// correlated parts see the aliases of the enclosing scope.
	correlated bool
	// names overrides the output column names (CTE column lists).
	names []string
}

// partInfo describes the output of a translated query part.
type partInfo struct {
	outputs []virtualColumn
	types   []mm.Type
	fetches []string
}

// queryScope is the translation state of one query specification.
type queryScope struct {
	parent *queryScope
	index  *fromClauseIndex
	spec   *sqlast.QuerySpec
	opts   partOptions

	// restrictions are ANDed into the WHERE clause when the scope closes:
	// base restrictions of roots, correlation predicates of implicit joins
	// on outer groups.
	restrictions []sqlast.Predicate

	// The join whose ON predicate is being translated and the group that
	// holds it.
	onJoin   *sqlast.TableGroupJoin
	onParent *sqlast.TableGroup

	outputs []virtualColumn
	results []*EntityResult
}

func (t *translation) queryPart(q queryir.QueryPart, opts partOptions) (sqlast.QueryPart, *partInfo) {
	switch p := q.(type) {
	case *queryir.QuerySpec:
		return t.querySpec(p, opts)
	case *queryir.QueryGroup:
		return t.queryGroup(p, opts)
	case nil:
		t.fail(ErrCodeUnsupported, "missing query")
	}
	panic(newAssertionFailure("unknown query part %T", q))
}

func (t *translation) enterScope(opts partOptions) *queryScope {
	var parentIndex *fromClauseIndex
	if t.scope != nil {
		parentIndex = t.scope.index
	}
	s := &queryScope{
		parent: t.scope,
		index:  newFromClauseIndex(parentIndex, opts.correlated),
		spec:   &sqlast.QuerySpec{},
		opts:   opts,
	}
	t.scope = s
	t.uses.pushScope(s)
	return s
}

func (t *translation) leaveScope(s *queryScope) {
	t.uses.popScope(s)
	t.scope = s.parent
}

func (t *translation) querySpec(q *queryir.QuerySpec, opts partOptions) (*sqlast.QuerySpec, *partInfo) {
	s := t.enterScope(opts)
	spec := s.spec
	spec.Distinct = q.Distinct

	t.in(clauseFrom, func() {
		for i, f := range q.From {
			t.at(fmt.Sprintf("from[%d]", i), func() { t.fromRoot(f, s) })
		}
	})
	if len(q.Select) == 0 {
		t.fail(ErrCodeUnsupported, "query without select list")
	}
	t.in(clauseSelect, func() {
		for i, sel := range q.Select {
			t.at(fmt.Sprintf("select[%d]", i), func() { t.selection(sel, i, s) })
		}
	})
	if q.Where != nil {
		t.at("where", func() {
			t.in(clauseWhere, func() { spec.Where = t.conjunct(q.Where) })
		})
	}
	t.in(clauseGroupBy, func() {
		for i, e := range q.GroupBy {
			t.at(fmt.Sprintf("groupBy[%d]", i), func() {
				spec.GroupBy = append(spec.GroupBy, sqlast.Flatten(t.expression(e))...)
			})
		}
	})
	if q.Having != nil {
		t.at("having", func() {
			t.in(clauseHaving, func() { spec.Having = t.conjunct(q.Having) })
		})
	}
	spec.OrderBy = t.orderBy(q.OrderBy)
	spec.Offset, spec.Fetch = t.limits(q.Offset, q.Fetch)

	if opts.top {
		t.fetches.plan(s)
		if !t.haveResults {
			t.results, t.haveResults = s.results, true
		}
	}
	spec.Where = sqlast.Conjoin(append([]sqlast.Predicate{spec.Where}, s.restrictions...)...)
	t.leaveScope(s)

	info := &partInfo{outputs: s.outputs}
	for _, sel := range s.outputs {
		info.types = append(info.types, sel.Type)
	}
	for _, r := range s.results {
		info.fetches = append(info.fetches, r.fetchSignature()...)
	}
	return spec, info
}

func (t *translation) orderBy(items []queryir.SortItem) []sqlast.SortSpec {
	var out []sqlast.SortSpec
	t.in(clauseOrderBy, func() {
		for i, item := range items {
			t.at(fmt.Sprintf("orderBy[%d]", i), func() {
				for _, e := range sqlast.Flatten(t.expression(item.Expr)) {
					out = append(out, sqlast.SortSpec{Expr: e, Descending: item.Descending})
				}
			})
		}
	})
	return out
}

func (t *translation) limits(offset, fetch queryir.Expression) (sqlast.Expression, sqlast.Expression) {
	var o, f sqlast.Expression
	t.in(clauseLimit, func() {
		t.infer.with(fixedType(mm.IntegerType), func() {
			if offset != nil {
				t.at("offset", func() { o = t.expression(offset) })
			}
			if fetch != nil {
				t.at("fetch", func() { f = t.expression(fetch) })
			}
		})
	})
	return o, f
}

// conjunct translates a top-level conjunct and ANDs in the type
// restrictions its treats require.
func (t *translation) conjunct(p queryir.Predicate) sqlast.Predicate {
	t.uses.pushConjunct()
	pred := t.predicate(p)
	treats := t.uses.popConjunct()
	return sqlast.Conjoin(append([]sqlast.Predicate{pred}, t.treatRestrictions(treats)...)...)
}

// entity looks an entity up in the catalog.
func (t *translation) entity(name string) *mm.Entity {
	e, ok := t.catalog.Entity(name)
	if !ok {
		t.fail(ErrCodeUnknownReference, "unknown entity %q", name)
	}
	return e
}
