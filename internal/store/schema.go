package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// CreateSchema creates every table the model maps: entity tables, joined
// subtype tables, secondary tables and collection tables.
// Existing tables are left alone.
func (s *Store) CreateSchema(ctx context.Context, m *mm.Model) error {
	for _, stmt := range DDL(m, mm.SQLite()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// DDL returns one CREATE TABLE statement per mapped table, in the order the
// tables are first met walking the model's entities.
//
// Columns get the dialect's preferred type for their kind. A column only
// known from a base restriction takes the type of the restriction value.
func DDL(m *mm.Model, d mm.Dialect) []string {
	b := &schemaBuilder{dialect: d, tables: map[string]*tableDef{}}
	for _, e := range m.Entities() {
		b.entity(e)
	}
	out := make([]string, 0, len(b.order))
	for _, t := range b.order {
		out = append(out, t.create())
	}
	return out
}

type schemaBuilder struct {
	dialect mm.Dialect
	tables  map[string]*tableDef
	order   []*tableDef
}

type tableDef struct {
	name       string
	columns    []columnDef
	index      map[string]int
	primaryKey []string
}

type columnDef struct {
	name string
	typ  string
}

func (b *schemaBuilder) table(name string) *tableDef {
	if t, ok := b.tables[name]; ok {
		return t
	}
	t := &tableDef{name: name, index: map[string]int{}}
	b.tables[name] = t
	b.order = append(b.order, t)
	return t
}

// column adds a column once. A later declaration only fills in a missing
// type.
func (t *tableDef) column(name, typ string) {
	if i, ok := t.index[name]; ok {
		if t.columns[i].typ == "" {
			t.columns[i].typ = typ
		}
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, columnDef{name: name, typ: typ})
}

func (t *tableDef) key(name, typ string) {
	t.column(name, typ)
	if len(t.primaryKey) == 0 {
		t.primaryKey = []string{name}
	}
}

func (t *tableDef) create() string {
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		if c.typ == "" {
			defs = append(defs, quote(c.name))
			continue
		}
		defs = append(defs, quote(c.name)+" "+c.typ)
	}
	if len(t.primaryKey) > 0 {
		keys := make([]string, len(t.primaryKey))
		for i, k := range t.primaryKey {
			keys[i] = quote(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.name), strings.Join(defs, ", "))
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b *schemaBuilder) typeOf(t *mm.BasicType) string {
	if t == nil {
		return ""
	}
	return b.dialect.PreferredType(t.Kind)
}

func (b *schemaBuilder) entity(e *mm.Entity) {
	id := e.Identifier()
	idType := b.typeOf(id.Type)
	primary := b.table(e.PrimaryTable())

	switch {
	case e.Super() == nil:
		primary.key(id.Column, idType)
		if e.Strategy() == mm.InheritanceSingleTable {
			primary.column(e.Discriminator(), b.dialect.PreferredType(mm.KindString))
		}
	case e.Strategy() == mm.InheritanceJoined:
		primary.key(id.Column, idType)
	}

	for _, st := range e.SecondaryTables {
		b.table(st.Name).key(st.KeyColumn, idType)
	}

	for _, a := range e.Attributes {
		b.attribute(e, a, idType)
	}

	if e.Super() == nil {
		for _, r := range e.Restrictions {
			primary.column(r.Column, b.valueType(r.Value))
		}
	}
}

func (b *schemaBuilder) attribute(e *mm.Entity, a *mm.Attribute, ownerIDType string) {
	t := b.table(e.TableOf(a))
	switch a.Kind {
	case mm.AttributeBasic:
		if a == e.Identifier() {
			return
		}
		t.column(a.Column, b.typeOf(a.Type))
	case mm.AttributeEmbedded:
		if a.EmbeddableType == nil {
			return
		}
		for _, l := range a.EmbeddableType.Leaves() {
			t.column(l.Attribute.Column, b.typeOf(l.Attribute.Type))
		}
	case mm.AttributeToOne:
		if a.IsOwningToOne() {
			t.column(a.JoinColumn, b.typeOf(a.TargetEntity.Identifier().Type))
		}
	case mm.AttributePlural:
		if a.MappedBy != "" || a.CollectionTable == "" {
			return
		}
		ct := b.table(a.CollectionTable)
		ct.column(a.KeyColumn, ownerIDType)
		if a.TargetEntity != nil {
			ct.column(a.InverseColumn, b.typeOf(a.TargetEntity.Identifier().Type))
		} else {
			ct.column(a.ElementColumn, b.typeOf(a.Type))
		}
		if a.IndexColumn != "" {
			kind := mm.KindInteger
			if a.Collection == mm.CollectionMap {
				kind = mm.KindString
			}
			ct.column(a.IndexColumn, b.dialect.PreferredType(kind))
		}
	}
}

func (b *schemaBuilder) valueType(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRString:
		return b.dialect.PreferredType(mm.KindString)
	case ir.IRInt:
		return b.dialect.PreferredType(mm.KindLong)
	case ir.IRBool:
		return b.dialect.PreferredType(mm.KindBoolean)
	case ir.IRDecimal:
		return b.dialect.PreferredType(mm.KindDecimal)
	case ir.IRTimestamp:
		return b.dialect.PreferredType(mm.KindTimestamp)
	}
	return ""
}
