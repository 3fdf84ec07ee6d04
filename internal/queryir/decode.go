package queryir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// DecodeError reports a malformed query document. Field is the dotted
// location of the offending node, e.g. "select.where.and[1]".
type DecodeError struct {
	Field   string
	Message string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DecodeStatement parses a YAML query document into a statement.
//
// The document is a map with exactly one of the keys select, insert,
// update or delete, plus an optional with list of common table
// expressions. In expression position a bare string is a path and any
// other scalar is an untyped literal:
//
//	with:
//	  - name: recent
//	    query: {from: [{entity: Order, as: o}], select: [o.id]}
//	select:
//	  from:
//	    - entity: Contact
//	      as: c
//	      joins: [{join: alternativeContact, as: a, type: left}]
//	  select: [c.id, {expr: a.name.first, as: first}]
//	  where: {eq: [c.name.last, {param: last}]}
func DecodeStatement(data []byte) (Statement, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse query document: %w", err)
	}
	return DecodeStatementMap(doc)
}

// DecodeStatementMap is DecodeStatement for an already parsed document,
// such as a query embedded in a scenario file.
func DecodeStatementMap(doc map[string]any) (Statement, error) {
	if doc == nil {
		return nil, &DecodeError{Message: "empty query document"}
	}
	d := &decoder{}
	return d.statement(doc)
}

type decoder struct {
	field []string
}

func (d *decoder) errorf(format string, args ...any) error {
	return &DecodeError{Field: strings.Join(d.field, "."), Message: fmt.Sprintf(format, args...)}
}

// in runs fn with name appended to the error location.
func in[T any](d *decoder, name string, fn func() (T, error)) (T, error) {
	d.field = append(d.field, name)
	defer func() { d.field = d.field[:len(d.field)-1] }()
	return fn()
}

func (d *decoder) statement(doc map[string]any) (Statement, error) {
	ctes, err := in(d, "with", func() ([]*CteDefinition, error) { return d.ctes(doc["with"]) })
	if err != nil {
		return nil, err
	}
	var found []string
	for _, k := range []string{"select", "insert", "update", "delete"} {
		if _, ok := doc[k]; ok {
			found = append(found, k)
		}
	}
	if len(found) != 1 {
		return nil, d.errorf("document needs exactly one of select, insert, update, delete; found %v", found)
	}
	kind := found[0]
	body, ok := doc[kind].(map[string]any)
	if !ok {
		return nil, d.errorf("%s must be a map", kind)
	}
	return in(d, kind, func() (Statement, error) {
		switch kind {
		case "select":
			q, err := d.queryPart(body)
			if err != nil {
				return nil, err
			}
			return &SelectStatement{With: ctes, Query: q}, nil
		case "insert":
			return d.insert(body, ctes)
		case "update":
			return d.update(body, ctes)
		default:
			target, err := d.target(body)
			if err != nil {
				return nil, err
			}
			where, err := d.optionalPredicate(body, "where")
			if err != nil {
				return nil, err
			}
			return &DeleteStatement{With: ctes, Target: target, Where: where}, nil
		}
	})
}

func (d *decoder) target(body map[string]any) (*EntityRoot, error) {
	name, _ := body["entity"].(string)
	if name == "" {
		return nil, d.errorf("entity is required")
	}
	alias, _ := body["as"].(string)
	return &EntityRoot{FromBase: FromBase{Alias: alias}, Entity: name}, nil
}

func (d *decoder) insert(body map[string]any, ctes []*CteDefinition) (Statement, error) {
	target, err := d.target(body)
	if err != nil {
		return nil, err
	}
	columns, err := d.strings(body["columns"], "columns")
	if err != nil {
		return nil, err
	}
	if q, ok := body["query"]; ok {
		m, ok := q.(map[string]any)
		if !ok {
			return nil, d.errorf("query must be a map")
		}
		part, err := in(d, "query", func() (QueryPart, error) { return d.queryPart(m) })
		if err != nil {
			return nil, err
		}
		return &InsertSelectStatement{With: ctes, Target: target, Columns: columns, Query: part}, nil
	}
	rawRows, ok := body["values"].([]any)
	if !ok {
		return nil, d.errorf("insert needs values or query")
	}
	rows := make([][]Expression, 0, len(rawRows))
	for i, raw := range rawRows {
		rawRow, ok := raw.([]any)
		if !ok {
			return nil, d.errorf("values[%d] must be a list", i)
		}
		row, err := in(d, fmt.Sprintf("values[%d]", i), func() ([]Expression, error) { return d.expressions(rawRow) })
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return &InsertValuesStatement{With: ctes, Target: target, Columns: columns, Rows: rows}, nil
}

func (d *decoder) update(body map[string]any, ctes []*CteDefinition) (Statement, error) {
	target, err := d.target(body)
	if err != nil {
		return nil, err
	}
	versioned, _ := body["versioned"].(bool)
	stmt := &UpdateStatement{With: ctes, Target: target, Versioned: versioned}
	rawSet, _ := body["set"].([]any)
	for i, raw := range rawSet {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, d.errorf("set[%d] must be a map with path and value", i)
		}
		a, err := in(d, fmt.Sprintf("set[%d]", i), func() (Assignment, error) {
			ps, _ := m["path"].(string)
			p, err := ParsePath(ps)
			if err != nil {
				return Assignment{}, d.errorf("%v", err)
			}
			v, err := d.expression(m["value"])
			if err != nil {
				return Assignment{}, err
			}
			return Assignment{Path: p, Value: v}, nil
		})
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, a)
	}
	stmt.Where, err = d.optionalPredicate(body, "where")
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (d *decoder) ctes(raw any) ([]*CteDefinition, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, d.errorf("must be a list")
	}
	out := make([]*CteDefinition, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, d.errorf("[%d] must be a map", i)
		}
		cte, err := in(d, fmt.Sprintf("[%d]", i), func() (*CteDefinition, error) {
			name, _ := m["name"].(string)
			if name == "" {
				return nil, d.errorf("name is required")
			}
			cols, err := d.strings(m["columns"], "columns")
			if err != nil {
				return nil, err
			}
			qm, ok := m["query"].(map[string]any)
			if !ok {
				return nil, d.errorf("query must be a map")
			}
			q, err := in(d, "query", func() (QueryPart, error) { return d.queryPart(qm) })
			if err != nil {
				return nil, err
			}
			return &CteDefinition{Name: name, Columns: cols, Query: q}, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, cte)
	}
	return out, nil
}

var setOperators = map[string]SetOperator{
	"union":        SetUnion,
	"unionAll":     SetUnionAll,
	"intersect":    SetIntersect,
	"intersectAll": SetIntersectAll,
	"except":       SetExcept,
	"exceptAll":    SetExceptAll,
}

func (d *decoder) queryPart(m map[string]any) (QueryPart, error) {
	for key, op := range setOperators {
		raw, ok := m[key]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, d.errorf("%s must be a list of queries", key)
		}
		group := &QueryGroup{Operator: op}
		for i, item := range list {
			pm, ok := item.(map[string]any)
			if !ok {
				return nil, d.errorf("%s[%d] must be a map", key, i)
			}
			part, err := in(d, fmt.Sprintf("%s[%d]", key, i), func() (QueryPart, error) { return d.queryPart(pm) })
			if err != nil {
				return nil, err
			}
			group.Parts = append(group.Parts, part)
		}
		var err error
		if group.OrderBy, err = d.orderBy(m["orderBy"]); err != nil {
			return nil, err
		}
		if group.Offset, err = d.optionalExpression(m, "offset"); err != nil {
			return nil, err
		}
		if group.Fetch, err = d.optionalExpression(m, "fetch"); err != nil {
			return nil, err
		}
		return group, nil
	}
	return d.querySpec(m)
}

func (d *decoder) querySpec(m map[string]any) (*QuerySpec, error) {
	spec := &QuerySpec{}
	spec.Distinct, _ = m["distinct"].(bool)

	rawFrom, ok := m["from"].([]any)
	if !ok {
		return nil, d.errorf("from must be a list")
	}
	for i, item := range rawFrom {
		fm, ok := item.(map[string]any)
		if !ok {
			return nil, d.errorf("from[%d] must be a map", i)
		}
		f, err := in(d, fmt.Sprintf("from[%d]", i), func() (From, error) { return d.root(fm) })
		if err != nil {
			return nil, err
		}
		spec.From = append(spec.From, f)
	}

	rawSelect, ok := m["select"].([]any)
	if !ok {
		return nil, d.errorf("select must be a list")
	}
	for i, item := range rawSelect {
		sel, err := in(d, fmt.Sprintf("select[%d]", i), func() (Selection, error) { return d.selection(item) })
		if err != nil {
			return nil, err
		}
		spec.Select = append(spec.Select, sel)
	}

	var err error
	if spec.Where, err = d.optionalPredicate(m, "where"); err != nil {
		return nil, err
	}
	if raw, ok := m["groupBy"].([]any); ok {
		if spec.GroupBy, err = in(d, "groupBy", func() ([]Expression, error) { return d.expressions(raw) }); err != nil {
			return nil, err
		}
	}
	if spec.Having, err = d.optionalPredicate(m, "having"); err != nil {
		return nil, err
	}
	if spec.OrderBy, err = d.orderBy(m["orderBy"]); err != nil {
		return nil, err
	}
	if spec.Offset, err = d.optionalExpression(m, "offset"); err != nil {
		return nil, err
	}
	if spec.Fetch, err = d.optionalExpression(m, "fetch"); err != nil {
		return nil, err
	}
	return spec, nil
}

func (d *decoder) selection(item any) (Selection, error) {
	if m, ok := item.(map[string]any); ok {
		if raw, ok := m["expr"]; ok {
			e, err := d.expression(raw)
			if err != nil {
				return Selection{}, err
			}
			alias, _ := m["as"].(string)
			return Selection{Expr: e, Alias: alias}, nil
		}
	}
	e, err := d.expression(item)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Expr: e}, nil
}

func (d *decoder) orderBy(raw any) ([]SortItem, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, d.errorf("orderBy must be a list")
	}
	return in(d, "orderBy", func() ([]SortItem, error) {
		out := make([]SortItem, 0, len(list))
		for i, item := range list {
			if m, ok := item.(map[string]any); ok {
				if raw, ok := m["expr"]; ok {
					e, err := d.expression(raw)
					if err != nil {
						return nil, err
					}
					desc, _ := m["desc"].(bool)
					out = append(out, SortItem{Expr: e, Descending: desc})
					continue
				}
			}
			e, err := in(d, fmt.Sprintf("[%d]", i), func() (Expression, error) { return d.expression(item) })
			if err != nil {
				return nil, err
			}
			out = append(out, SortItem{Expr: e})
		}
		return out, nil
	})
}

func (d *decoder) root(m map[string]any) (From, error) {
	alias, _ := m["as"].(string)
	joins, err := d.joins(m["joins"])
	if err != nil {
		return nil, err
	}
	base := FromBase{Alias: alias, Joins: joins}
	lateral, _ := m["lateral"].(bool)

	switch {
	case m["entity"] != nil:
		name, _ := m["entity"].(string)
		return &EntityRoot{FromBase: base, Entity: name}, nil
	case m["derived"] != nil:
		q, err := d.subqueryPart(m["derived"], "derived")
		if err != nil {
			return nil, err
		}
		return &DerivedRoot{FromBase: base, Query: q, Lateral: lateral}, nil
	case m["function"] != nil:
		name, args, cols, err := d.function(m)
		if err != nil {
			return nil, err
		}
		return &FunctionRoot{FromBase: base, Function: name, Args: args, Columns: cols, Lateral: lateral}, nil
	case m["cte"] != nil:
		name, _ := m["cte"].(string)
		return &CteRoot{FromBase: base, Name: name}, nil
	}
	return nil, d.errorf("from node needs one of entity, derived, function, cte")
}

func (d *decoder) joins(raw any) ([]Join, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, d.errorf("joins must be a list")
	}
	out := make([]Join, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, d.errorf("joins[%d] must be a map", i)
		}
		j, err := in(d, fmt.Sprintf("joins[%d]", i), func() (Join, error) { return d.join(m) })
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

var joinTypes = map[string]JoinType{
	"inner": JoinInner,
	"left":  JoinLeft,
	"right": JoinRight,
	"full":  JoinFull,
	"cross": JoinCross,
}

func (d *decoder) join(m map[string]any) (Join, error) {
	alias, _ := m["as"].(string)
	nested, err := d.joins(m["joins"])
	if err != nil {
		return nil, err
	}
	base := FromBase{Alias: alias, Joins: nested}
	var jt JoinType
	if s, ok := m["type"].(string); ok {
		if jt, ok = joinTypes[s]; !ok {
			return nil, d.errorf("unknown join type %q", s)
		}
	}
	on, err := d.optionalPredicate(m, "on")
	if err != nil {
		return nil, err
	}
	lateral, _ := m["lateral"].(bool)

	switch {
	case m["join"] != nil:
		attr, _ := m["join"].(string)
		treat, _ := m["treat"].(string)
		fetch, _ := m["fetch"].(bool)
		return &AttributeJoin{FromBase: base, Attribute: attr, Type: jt, Treat: treat, Fetch: fetch, On: on}, nil
	case m["entity"] != nil:
		name, _ := m["entity"].(string)
		return &EntityJoin{FromBase: base, Entity: name, Type: jt, On: on}, nil
	case m["cross"] != nil:
		name, _ := m["cross"].(string)
		return &CrossJoin{FromBase: base, Entity: name}, nil
	case m["derived"] != nil:
		q, err := d.subqueryPart(m["derived"], "derived")
		if err != nil {
			return nil, err
		}
		return &DerivedJoin{FromBase: base, Query: q, Lateral: lateral, Type: jt, On: on}, nil
	case m["function"] != nil:
		name, args, cols, err := d.function(m)
		if err != nil {
			return nil, err
		}
		return &FunctionJoin{FromBase: base, Function: name, Args: args, Columns: cols, Lateral: lateral, Type: jt, On: on}, nil
	case m["cte"] != nil:
		name, _ := m["cte"].(string)
		return &CteJoin{FromBase: base, Name: name, Type: jt, On: on}, nil
	case m["part"] != nil:
		s, _ := m["part"].(string)
		var part PluralPart
		switch s {
		case "index", "key":
			part = PartIndex
		case "value", "element":
			part = PartElement
		default:
			return nil, d.errorf("unknown plural part %q", s)
		}
		return &PluralPartJoin{FromBase: base, Part: part, Type: jt}, nil
	}
	return nil, d.errorf("join needs one of join, entity, cross, derived, function, cte, part")
}

func (d *decoder) function(m map[string]any) (string, []Expression, []ColumnDef, error) {
	name, _ := m["function"].(string)
	var args []Expression
	if raw, ok := m["args"].([]any); ok {
		var err error
		if args, err = in(d, "args", func() ([]Expression, error) { return d.expressions(raw) }); err != nil {
			return "", nil, nil, err
		}
	}
	var cols []ColumnDef
	rawCols, _ := m["columns"].([]any)
	for i, raw := range rawCols {
		cm, ok := raw.(map[string]any)
		if !ok {
			return "", nil, nil, d.errorf("columns[%d] must be a map with name and kind", i)
		}
		cname, _ := cm["name"].(string)
		kname, _ := cm["kind"].(string)
		kind, err := mm.ParseKind(kname)
		if err != nil {
			return "", nil, nil, d.errorf("columns[%d]: %v", i, err)
		}
		cols = append(cols, ColumnDef{Name: cname, Kind: kind})
	}
	return name, args, cols, nil
}

func (d *decoder) subqueryPart(raw any, field string) (QueryPart, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, d.errorf("%s must be a query map", field)
	}
	return in(d, field, func() (QueryPart, error) { return d.queryPart(m) })
}

func (d *decoder) optionalExpression(m map[string]any, key string) (Expression, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	return in(d, key, func() (Expression, error) { return d.expression(raw) })
}

func (d *decoder) optionalPredicate(m map[string]any, key string) (Predicate, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}
	return in(d, key, func() (Predicate, error) { return d.predicate(raw) })
}

func (d *decoder) expressions(list []any) ([]Expression, error) {
	out := make([]Expression, 0, len(list))
	for i, item := range list {
		e, err := in(d, fmt.Sprintf("[%d]", i), func() (Expression, error) { return d.expression(item) })
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) strings(raw any, field string) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, d.errorf("%s must be a list of names", field)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, d.errorf("%s[%d] must be a string", field, i)
		}
		out = append(out, s)
	}
	return out, nil
}

var arithmeticKeys = map[string]ArithmeticOp{
	"add": OpAdd,
	"sub": OpSubtract,
	"mul": OpMultiply,
	"div": OpDivide,
	"mod": OpModulo,
}

var comparisonKeys = map[string]CompareOp{
	"eq": OpEq,
	"ne": OpNe,
	"lt": OpLt,
	"le": OpLe,
	"gt": OpGt,
	"ge": OpGe,
}

func (d *decoder) expression(raw any) (Expression, error) {
	switch v := raw.(type) {
	case string:
		p, err := ParsePath(v)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return p, nil
	case map[string]any:
		return d.expressionMap(v)
	case []any:
		return nil, d.errorf("a list is not an expression; use tuple")
	default:
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return &Literal{Value: val}, nil
	}
}

func (d *decoder) pair(raw any, key string) (Expression, Expression, error) {
	list, ok := raw.([]any)
	if !ok || len(list) != 2 {
		return nil, nil, d.errorf("%s needs exactly two operands", key)
	}
	ops, err := in(d, key, func() ([]Expression, error) { return d.expressions(list) })
	if err != nil {
		return nil, nil, err
	}
	return ops[0], ops[1], nil
}

func (d *decoder) expressionMap(m map[string]any) (Expression, error) {
	for key, op := range arithmeticKeys {
		if raw, ok := m[key]; ok {
			l, r, err := d.pair(raw, key)
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, Left: l, Right: r}, nil
		}
	}

	switch {
	case m["path"] != nil:
		s, _ := m["path"].(string)
		p, err := ParsePath(s)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return p, nil

	case hasKey(m, "lit"):
		var kind mm.Kind
		if s, ok := m["kind"].(string); ok {
			k, err := mm.ParseKind(s)
			if err != nil {
				return nil, d.errorf("%v", err)
			}
			kind = k
		}
		val, err := CoerceLiteral(m["lit"], kind)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return &Literal{Value: val, Kind: kind}, nil

	case m["param"] != nil:
		name, _ := m["param"].(string)
		if name == "" {
			return nil, d.errorf("param needs a name")
		}
		return &Parameter{Name: name}, nil

	case m["neg"] != nil:
		e, err := in(d, "neg", func() (Expression, error) { return d.expression(m["neg"]) })
		if err != nil {
			return nil, err
		}
		return &Negate{Operand: e}, nil

	case m["duration"] != nil:
		dm, ok := m["duration"].(map[string]any)
		if !ok {
			return nil, d.errorf("duration must be a map with magnitude and unit")
		}
		mag, err := in(d, "duration.magnitude", func() (Expression, error) { return d.expression(dm["magnitude"]) })
		if err != nil {
			return nil, err
		}
		us, _ := dm["unit"].(string)
		unit, err := mm.ParseTemporalUnit(us)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return &Duration{Magnitude: mag, Unit: unit}, nil

	case m["dur"] != nil:
		s, _ := m["dur"].(string)
		dur, err := parseDurationLiteral(s)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return dur, nil

	case m["by"] != nil:
		bm, ok := m["by"].(map[string]any)
		if !ok {
			return nil, d.errorf("by must be a map with duration and unit")
		}
		e, err := in(d, "by.duration", func() (Expression, error) { return d.expression(bm["duration"]) })
		if err != nil {
			return nil, err
		}
		us, _ := bm["unit"].(string)
		unit, err := mm.ParseTemporalUnit(us)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return &DurationBy{Duration: e, Unit: unit}, nil

	case m["case"] != nil:
		return in(d, "case", func() (Expression, error) { return d.searchedCase(m["case"]) })

	case m["simplecase"] != nil:
		return in(d, "simplecase", func() (Expression, error) { return d.simpleCase(m["simplecase"]) })

	case m["coalesce"] != nil:
		list, ok := m["coalesce"].([]any)
		if !ok || len(list) == 0 {
			return nil, d.errorf("coalesce needs a list of arguments")
		}
		args, err := in(d, "coalesce", func() ([]Expression, error) { return d.expressions(list) })
		if err != nil {
			return nil, err
		}
		return &Coalesce{Args: args}, nil

	case m["fn"] != nil:
		name, _ := m["fn"].(string)
		f := &Function{Name: name}
		if list, ok := m["args"].([]any); ok {
			args, err := in(d, "args", func() ([]Expression, error) { return d.expressions(list) })
			if err != nil {
				return nil, err
			}
			f.Args = args
		}
		if s, ok := m["returns"].(string); ok {
			k, err := mm.ParseKind(s)
			if err != nil {
				return nil, d.errorf("%v", err)
			}
			f.ReturnKind = k
		}
		return f, nil

	case m["tuple"] != nil:
		list, ok := m["tuple"].([]any)
		if !ok {
			return nil, d.errorf("tuple must be a list")
		}
		els, err := in(d, "tuple", func() ([]Expression, error) { return d.expressions(list) })
		if err != nil {
			return nil, err
		}
		return &Tuple{Elements: els}, nil

	case m["subquery"] != nil:
		sm, ok := m["subquery"].(map[string]any)
		if !ok {
			return nil, d.errorf("subquery must be a query map")
		}
		ctes, err := in(d, "subquery.with", func() ([]*CteDefinition, error) { return d.ctes(sm["with"]) })
		if err != nil {
			return nil, err
		}
		q, err := d.subqueryPart(sm, "subquery")
		if err != nil {
			return nil, err
		}
		return &Subquery{With: ctes, Query: q}, nil

	case m["type"] != nil:
		s, _ := m["type"].(string)
		p, err := ParsePath(s)
		if err != nil {
			return nil, d.errorf("%v", err)
		}
		return &EntityTypeOf{Path: p}, nil

	case m["entityType"] != nil:
		name, _ := m["entityType"].(string)
		return &EntityTypeLiteral{Entity: name}, nil
	}
	return nil, d.errorf("unrecognized expression %v", keys(m))
}

func (d *decoder) searchedCase(raw any) (Expression, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, d.errorf("case must be a map with whens")
	}
	whens, _ := m["whens"].([]any)
	if len(whens) == 0 {
		return nil, d.errorf("case needs at least one when")
	}
	c := &CaseSearched{}
	for i, w := range whens {
		wm, ok := w.(map[string]any)
		if !ok {
			return nil, d.errorf("whens[%d] must be a map", i)
		}
		sw, err := in(d, fmt.Sprintf("whens[%d]", i), func() (SearchedWhen, error) {
			p, err := d.predicate(wm["when"])
			if err != nil {
				return SearchedWhen{}, err
			}
			t, err := d.expression(wm["then"])
			if err != nil {
				return SearchedWhen{}, err
			}
			return SearchedWhen{When: p, Then: t}, nil
		})
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, sw)
	}
	var err error
	c.Else, err = d.optionalExpression(m, "else")
	return c, err
}

func (d *decoder) simpleCase(raw any) (Expression, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, d.errorf("simplecase must be a map with operand and whens")
	}
	operand, err := in(d, "operand", func() (Expression, error) { return d.expression(m["operand"]) })
	if err != nil {
		return nil, err
	}
	whens, _ := m["whens"].([]any)
	if len(whens) == 0 {
		return nil, d.errorf("simplecase needs at least one when")
	}
	c := &CaseSimple{Operand: operand}
	for i, w := range whens {
		wm, ok := w.(map[string]any)
		if !ok {
			return nil, d.errorf("whens[%d] must be a map", i)
		}
		sw, err := in(d, fmt.Sprintf("whens[%d]", i), func() (SimpleWhen, error) {
			v, err := d.expression(wm["when"])
			if err != nil {
				return SimpleWhen{}, err
			}
			t, err := d.expression(wm["then"])
			if err != nil {
				return SimpleWhen{}, err
			}
			return SimpleWhen{When: v, Then: t}, nil
		})
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, sw)
	}
	c.Else, err = d.optionalExpression(m, "else")
	return c, err
}

func (d *decoder) predicate(raw any) (Predicate, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, d.errorf("predicate must be a map")
	}
	for key, op := range comparisonKeys {
		if raw, ok := m[key]; ok {
			l, r, err := d.pair(raw, key)
			if err != nil {
				return nil, err
			}
			return &Comparison{Left: l, Op: op, Right: r}, nil
		}
	}
	switch {
	case m["and"] != nil || m["or"] != nil:
		kind, key := JunctionAnd, "and"
		if m["or"] != nil {
			kind, key = JunctionOr, "or"
		}
		list, ok := m[key].([]any)
		if !ok || len(list) == 0 {
			return nil, d.errorf("%s needs a non-empty list", key)
		}
		j := &Junction{Kind: kind}
		for i, item := range list {
			p, err := in(d, fmt.Sprintf("%s[%d]", key, i), func() (Predicate, error) { return d.predicate(item) })
			if err != nil {
				return nil, err
			}
			j.Predicates = append(j.Predicates, p)
		}
		return j, nil

	case m["not"] != nil:
		p, err := in(d, "not", func() (Predicate, error) { return d.predicate(m["not"]) })
		if err != nil {
			return nil, err
		}
		return &Not{Predicate: p}, nil

	case m["in"] != nil:
		im, ok := m["in"].(map[string]any)
		if !ok {
			return nil, d.errorf("in must be a map with test and list or query")
		}
		return in(d, "in", func() (Predicate, error) {
			test, err := d.expression(im["test"])
			if err != nil {
				return nil, err
			}
			neg, _ := im["negated"].(bool)
			if im["query"] != nil {
				q, err := d.subqueryPart(im["query"], "query")
				if err != nil {
					return nil, err
				}
				return &InSubquery{Test: test, Query: q, Negated: neg}, nil
			}
			list, ok := im["list"].([]any)
			if !ok {
				return nil, d.errorf("in needs list or query")
			}
			els, err := in(d, "list", func() ([]Expression, error) { return d.expressions(list) })
			if err != nil {
				return nil, err
			}
			return &InList{Test: test, List: els, Negated: neg}, nil
		})

	case m["between"] != nil:
		bm, ok := m["between"].(map[string]any)
		if !ok {
			return nil, d.errorf("between must be a map with expr, low and high")
		}
		return in(d, "between", func() (Predicate, error) {
			e, err := d.expression(bm["expr"])
			if err != nil {
				return nil, err
			}
			lo, err := d.expression(bm["low"])
			if err != nil {
				return nil, err
			}
			hi, err := d.expression(bm["high"])
			if err != nil {
				return nil, err
			}
			neg, _ := bm["negated"].(bool)
			return &Between{Expr: e, Low: lo, High: hi, Negated: neg}, nil
		})

	case m["like"] != nil:
		lm, ok := m["like"].(map[string]any)
		if !ok {
			return nil, d.errorf("like must be a map with expr and pattern")
		}
		return in(d, "like", func() (Predicate, error) {
			e, err := d.expression(lm["expr"])
			if err != nil {
				return nil, err
			}
			pat, err := d.expression(lm["pattern"])
			if err != nil {
				return nil, err
			}
			esc, err := d.optionalExpression(lm, "escape")
			if err != nil {
				return nil, err
			}
			neg, _ := lm["negated"].(bool)
			ci, _ := lm["ci"].(bool)
			return &Like{Expr: e, Pattern: pat, Escape: esc, Negated: neg, CaseInsensitive: ci}, nil
		})

	case m["isNull"] != nil || m["isNotNull"] != nil:
		key, neg := "isNull", false
		if m["isNotNull"] != nil {
			key, neg = "isNotNull", true
		}
		e, err := in(d, key, func() (Expression, error) { return d.expression(m[key]) })
		if err != nil {
			return nil, err
		}
		return &Nullness{Expr: e, Negated: neg}, nil

	case m["exists"] != nil || m["notExists"] != nil:
		key, neg := "exists", false
		if m["notExists"] != nil {
			key, neg = "notExists", true
		}
		q, err := d.subqueryPart(m[key], key)
		if err != nil {
			return nil, err
		}
		return &Exists{Query: q, Negated: neg}, nil

	case m["bool"] != nil:
		e, err := in(d, "bool", func() (Expression, error) { return d.expression(m["bool"]) })
		if err != nil {
			return nil, err
		}
		return &BooleanExpr{Expr: e}, nil
	}
	return nil, d.errorf("unrecognized predicate %v", keys(m))
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// durationUnits lists fixed-length units from coarsest to finest.
var durationUnits = []mm.TemporalUnit{
	mm.UnitWeek, mm.UnitDay, mm.UnitHour, mm.UnitMinute,
	mm.UnitSecond, mm.UnitMillisecond, mm.UnitMicrosecond, mm.UnitNanosecond,
}

// parseDurationLiteral turns "1h30m" or "2d" into a duration of the
// coarsest unit that represents it exactly.
func parseDurationLiteral(s string) (*Duration, error) {
	td, err := str2duration.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return DurationOf(td), nil
}

// DurationOf expresses a Go duration in the coarsest exact unit.
func DurationOf(td time.Duration) *Duration {
	n := int64(td)
	for _, u := range durationUnits {
		if n%u.Nanos() == 0 {
			return &Duration{Magnitude: &Literal{Value: ir.IRInt(n / u.Nanos()), Kind: mm.KindLong}, Unit: u}
		}
	}
	return Dur(n, mm.UnitNanosecond)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceLiteral converts a decoded scalar to an IRValue of the given kind.
// A zero kind keeps the natural conversion of the scalar. Nil is always
// the null value.
func CoerceLiteral(v any, kind mm.Kind) (ir.IRValue, error) {
	if v == nil {
		return ir.IRNull{}, nil
	}
	switch kind {
	case 0:
		return ir.FromAny(v)
	case mm.KindString, mm.KindUUID:
		if s, ok := v.(string); ok {
			return ir.IRString(s), nil
		}
	case mm.KindInteger, mm.KindLong:
		switch n := v.(type) {
		case int:
			return ir.IRInt(n), nil
		case int64:
			return ir.IRInt(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s literal %q", kind, n)
			}
			return ir.IRInt(i), nil
		}
	case mm.KindDecimal, mm.KindDouble:
		switch n := v.(type) {
		case int:
			return ir.IRDecimal{Value: decimal.NewFromInt(int64(n))}, nil
		case int64:
			return ir.IRDecimal{Value: decimal.NewFromInt(n)}, nil
		case float64:
			return ir.IRDecimal{Value: decimal.NewFromFloat(n)}, nil
		case string:
			return ir.NewIRDecimal(n)
		}
	case mm.KindBoolean:
		if b, ok := v.(bool); ok {
			return ir.IRBool(b), nil
		}
	case mm.KindDate, mm.KindTime, mm.KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return ir.NewIRTimestamp(t), nil
		case string:
			layouts := timestampLayouts
			if kind == mm.KindTime {
				layouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}
			}
			for _, layout := range layouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return ir.NewIRTimestamp(parsed), nil
				}
			}
			return nil, fmt.Errorf("invalid %s literal %q", kind, t)
		}
	case mm.KindDuration:
		switch dv := v.(type) {
		case int:
			return ir.IRDuration(time.Duration(dv)), nil
		case string:
			td, err := str2duration.ParseDuration(dv)
			if err != nil {
				return nil, fmt.Errorf("invalid duration literal %q: %w", dv, err)
			}
			return ir.IRDuration(td), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T value %v as %s", v, v, kind)
}
