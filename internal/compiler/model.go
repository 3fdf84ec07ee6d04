package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// CompileModel builds a resolved metamodel from a CUE value.
//
// The value holds up to three top-level structs, each keyed by name:
//
//	embeddable: Name: {
//		first: {type: "string", column: "firstname"}
//	}
//	entity: Order: {
//		table:   "orders"
//		version: "version"
//		attributes: {
//			id:       {type: "long"}
//			customer: {toOne: "Customer", joinColumn: "customer_id", eager: true, fetch: "join"}
//			items:    {many: "LineItem", mappedBy: "order", collection: "bag"}
//			tags:     {elements: "string", collection: "bag", collectionTable: "order_tags"}
//		}
//	}
//	fetchProfile: "with-items": [{entity: "Order", association: "items", style: "join"}]
//
// Attributes keep their declaration order, which is the order columns are
// selected in.
func CompileModel(v cue.Value) (*mm.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	m := mm.NewModel()

	err := eachField(v, "embeddable", func(name string, ev cue.Value) error {
		emb := &mm.Embeddable{Name: name}
		attrs, err := parseAttributes(ev, "embeddable."+name)
		if err != nil {
			return err
		}
		emb.Attributes = attrs
		if err := m.AddEmbeddable(emb); err != nil {
			return &CompileError{Field: "embeddable." + name, Message: err.Error(), Pos: ev.Pos()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "entity", func(name string, ev cue.Value) error {
		e, err := parseEntity(name, ev)
		if err != nil {
			return err
		}
		if err := m.AddEntity(e); err != nil {
			return &CompileError{Field: "entity." + name, Message: err.Error(), Pos: ev.Pos()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "fetchProfile", func(name string, pv cue.Value) error {
		p, err := parseFetchProfile(name, pv)
		if err != nil {
			return err
		}
		m.AddFetchProfile(p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(m.Entities()) == 0 {
		return nil, &CompileError{Field: "entity", Message: "at least one entity is required", Pos: v.Pos()}
	}
	if err := m.Resolve(); err != nil {
		return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: v.Pos()}
	}
	return m, nil
}

// lookup finds a single label. Keys such as "null" are labels here, not
// CUE literals, so the path is built with cue.Str.
func lookup(v cue.Value, key string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(key)))
}

// eachField calls fn for every field of the struct at path. A missing
// struct is not an error.
func eachField(v cue.Value, path string, fn func(name string, v cue.Value) error) error {
	sv := lookup(v, path)
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func parseEntity(name string, v cue.Value) (*mm.Entity, error) {
	field := "entity." + name
	e := &mm.Entity{Name: name}
	var err error
	str := func(key string, dst *string) {
		if err == nil {
			*dst, err = optionalString(v, key, field)
		}
	}
	flag := func(key string, dst *bool) {
		if err == nil {
			*dst, err = optionalBool(v, key, field)
		}
	}
	str("table", &e.Table)
	str("extends", &e.Extends)
	str("id", &e.IDAttribute)
	str("version", &e.Version)
	flag("abstract", &e.Abstract)
	flag("customVersion", &e.CustomVersion)
	if err != nil {
		return nil, err
	}

	var strategy string
	if strategy, err = optionalString(v, "inheritance", field); err != nil {
		return nil, err
	}
	switch strategy {
	case "":
	case "single_table":
		e.Inheritance = mm.InheritanceSingleTable
	case "joined":
		e.Inheritance = mm.InheritanceJoined
	default:
		return nil, &CompileError{
			Field:   field + ".inheritance",
			Message: fmt.Sprintf("unknown inheritance strategy %q, must be \"single_table\" or \"joined\"", strategy),
			Pos:     lookup(v, "inheritance").Pos(),
		}
	}

	if dv := lookup(v, "discriminator"); dv.Exists() {
		if e.DiscriminatorColumn, err = optionalString(dv, "column", field+".discriminator"); err != nil {
			return nil, err
		}
		if e.DiscriminatorValue, err = optionalString(dv, "value", field+".discriminator"); err != nil {
			return nil, err
		}
	}

	err = eachList(v, "secondaryTables", func(i int, sv cue.Value) error {
		sf := fmt.Sprintf("%s.secondaryTables[%d]", field, i)
		var st mm.SecondaryTable
		var err error
		if st.Name, err = requiredString(sv, "name", sf); err != nil {
			return err
		}
		if st.KeyColumn, err = optionalString(sv, "keyColumn", sf); err != nil {
			return err
		}
		e.SecondaryTables = append(e.SecondaryTables, st)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachList(v, "restrictions", func(i int, rv cue.Value) error {
		r, err := parseRestriction(rv, fmt.Sprintf("%s.restrictions[%d]", field, i))
		if err != nil {
			return err
		}
		e.Restrictions = append(e.Restrictions, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if av := lookup(v, "attributes"); av.Exists() {
		if e.Attributes, err = parseAttributes(av, field+".attributes"); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// parseRestriction reads {column, value} or {column, null: true}.
func parseRestriction(v cue.Value, field string) (mm.Restriction, error) {
	var r mm.Restriction
	var err error
	if r.Column, err = requiredString(v, "column", field); err != nil {
		return r, err
	}
	if r.IsNull, err = optionalBool(v, "null", field); err != nil {
		return r, err
	}
	vv := lookup(v, "value")
	switch {
	case r.IsNull && vv.Exists():
		return r, &CompileError{Field: field, Message: "a restriction has either a value or null: true", Pos: v.Pos()}
	case r.IsNull:
		return r, nil
	case !vv.Exists():
		return r, &CompileError{Field: field + ".value", Message: "restriction value is required", Pos: v.Pos()}
	}
	r.Value, err = scalar(vv, field+".value")
	return r, err
}

// scalar converts a concrete CUE scalar to an IR value.
func scalar(v cue.Value, field string) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.FromAny(f)
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("expected a concrete scalar, got %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// parseAttributes reads a struct of attribute declarations in order.
func parseAttributes(v cue.Value, field string) ([]*mm.Attribute, error) {
	var out []*mm.Attribute
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		a, err := parseAttribute(iter.Label(), iter.Value(), field+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// attributeKinds are the keys that decide the kind of an attribute. Exactly
// one of them must be present.
var attributeKinds = []string{"type", "embedded", "toOne", "many", "elements"}

func parseAttribute(name string, v cue.Value, field string) (*mm.Attribute, error) {
	a := &mm.Attribute{Name: name}
	var kindKey, kindValue string
	for _, key := range attributeKinds {
		s, err := optionalString(v, key, field)
		if err != nil {
			return nil, err
		}
		if s == "" {
			continue
		}
		if kindKey != "" {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("attribute declares both %s and %s", kindKey, key),
				Pos:     v.Pos(),
			}
		}
		kindKey, kindValue = key, s
	}

	basic := func() error {
		k, err := mm.ParseKind(kindValue)
		if err != nil {
			return &CompileError{Field: field + "." + kindKey, Message: err.Error(), Pos: lookup(v, kindKey).Pos()}
		}
		a.Type = mm.Basic(k)
		return nil
	}

	switch kindKey {
	case "type":
		a.Kind = mm.AttributeBasic
		if err := basic(); err != nil {
			return nil, err
		}
	case "embedded":
		a.Kind, a.Embeddable = mm.AttributeEmbedded, kindValue
	case "toOne":
		a.Kind, a.Target = mm.AttributeToOne, kindValue
	case "many":
		a.Kind, a.Target = mm.AttributePlural, kindValue
	case "elements":
		a.Kind = mm.AttributePlural
		if err := basic(); err != nil {
			return nil, err
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: "attribute needs one of type, embedded, toOne, many or elements",
			Pos:     v.Pos(),
		}
	}

	var err error
	str := func(key string, dst *string) {
		if err == nil {
			*dst, err = optionalString(v, key, field)
		}
	}
	flag := func(key string, dst *bool) {
		if err == nil {
			*dst, err = optionalBool(v, key, field)
		}
	}
	str("column", &a.Column)
	str("table", &a.Table)
	str("joinColumn", &a.JoinColumn)
	str("mappedBy", &a.MappedBy)
	str("collectionTable", &a.CollectionTable)
	str("keyColumn", &a.KeyColumn)
	str("elementColumn", &a.ElementColumn)
	str("inverseColumn", &a.InverseColumn)
	str("indexColumn", &a.IndexColumn)
	flag("optional", &a.Optional)
	flag("eager", &a.Eager)
	if err != nil {
		return nil, err
	}

	var fetch, collection string
	if fetch, err = optionalString(v, "fetch", field); err != nil {
		return nil, err
	}
	switch fetch {
	case "", "select":
	case "join":
		a.JoinFetch = true
	default:
		return nil, &CompileError{Field: field + ".fetch", Message: fmt.Sprintf("unknown fetch style %q", fetch), Pos: v.Pos()}
	}

	if collection, err = optionalString(v, "collection", field); err != nil {
		return nil, err
	}
	if a.Kind != mm.AttributePlural && collection != "" {
		return nil, &CompileError{Field: field + ".collection", Message: "only plural attributes have a collection kind", Pos: v.Pos()}
	}
	if a.Kind == mm.AttributePlural {
		if a.Collection, err = collectionKind(collection); err != nil {
			return nil, &CompileError{Field: field + ".collection", Message: err.Error(), Pos: v.Pos()}
		}
	}
	return a, nil
}

func collectionKind(s string) (mm.CollectionKind, error) {
	switch s {
	case "", "bag":
		return mm.CollectionBag, nil
	case "list":
		return mm.CollectionList, nil
	case "set":
		return mm.CollectionSet, nil
	case "map":
		return mm.CollectionMap, nil
	}
	return mm.CollectionNone, fmt.Errorf("unknown collection kind %q, must be bag, list, set or map", s)
}

func parseFetchProfile(name string, v cue.Value) (*mm.FetchProfile, error) {
	p := &mm.FetchProfile{Name: name}
	field := "fetchProfile." + name
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		ov := iter.Value()
		of := fmt.Sprintf("%s[%d]", field, i)
		var o mm.FetchOverride
		if o.Entity, err = requiredString(ov, "entity", of); err != nil {
			return nil, err
		}
		if o.Association, err = requiredString(ov, "association", of); err != nil {
			return nil, err
		}
		style, err := optionalString(ov, "style", of)
		if err != nil {
			return nil, err
		}
		switch style {
		case "", "join":
			o.Style = mm.FetchStyleJoin
		case "select":
			o.Style = mm.FetchStyleSelect
		default:
			return nil, &CompileError{Field: of + ".style", Message: fmt.Sprintf("unknown fetch style %q", style), Pos: ov.Pos()}
		}
		p.Overrides = append(p.Overrides, o)
	}
	return p, nil
}

// eachList calls fn for every element of the list at path. A missing list
// is not an error.
func eachList(v cue.Value, path string, fn func(i int, v cue.Value) error) error {
	lv := lookup(v, path)
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func optionalString(v cue.Value, key, field string) (string, error) {
	sv := lookup(v, key)
	if !sv.Exists() {
		return "", nil
	}
	if err := sv.Err(); err != nil {
		return "", formatCUEError(err)
	}
	s, err := sv.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + key, Message: "must be a string", Pos: sv.Pos()}
	}
	return s, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	if !lookup(v, key).Exists() {
		return "", &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	return optionalString(v, key, field)
}

func optionalBool(v cue.Value, key, field string) (bool, error) {
	bv := lookup(v, key)
	if !bv.Exists() {
		return false, nil
	}
	if err := bv.Err(); err != nil {
		return false, formatCUEError(err)
	}
	b, err := bv.Bool()
	if err != nil {
		return false, &CompileError{Field: field + "." + key, Message: "must be a boolean", Pos: bv.Pos()}
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
