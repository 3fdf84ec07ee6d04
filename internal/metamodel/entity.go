package metamodel

import (
	"slices"

	"github.com/roach88/ormsql/internal/ir"
)

// InheritanceStrategy selects how a hierarchy is mapped to tables.
type InheritanceStrategy int

const (
	// InheritanceNone: the entity has no mapped subtypes.
	InheritanceNone InheritanceStrategy = iota
	// InheritanceSingleTable: the whole hierarchy shares the root table and
	// a discriminator column tells the rows apart.
	InheritanceSingleTable
	// InheritanceJoined: every type has its own table keyed by the root
	// identifier; subtype rows join their supertype rows.
	InheritanceJoined
)

func (s InheritanceStrategy) String() string {
	switch s {
	case InheritanceSingleTable:
		return "single_table"
	case InheritanceJoined:
		return "joined"
	}
	return "none"
}

// AttributeKind classifies an attribute.
type AttributeKind int

const (
	AttributeBasic AttributeKind = iota + 1
	AttributeEmbedded
	AttributeToOne
	AttributePlural
)

// CollectionKind classifies plural attributes. Bags are unordered and permit
// duplicates, which is why at most one may be join-fetched per statement.
type CollectionKind int

const (
	CollectionNone CollectionKind = iota
	CollectionBag
	CollectionList
	CollectionSet
	CollectionMap
)

func (c CollectionKind) String() string {
	switch c {
	case CollectionBag:
		return "bag"
	case CollectionList:
		return "list"
	case CollectionSet:
		return "set"
	case CollectionMap:
		return "map"
	}
	return "none"
}

// SecondaryTable maps part of an entity's attributes to another table that
// shares the primary key.
type SecondaryTable struct {
	Name      string
	KeyColumn string
}

// Restriction is a base restriction applied to every use of an entity
// (soft delete, tenant filter). Exactly one of Value and IsNull applies.
type Restriction struct {
	Column string
	Value  ir.IRValue
	IsNull bool
}

// Attribute is a persistent attribute of an entity or embeddable.
type Attribute struct {
	Name string
	Kind AttributeKind

	// Basic attributes and basic element collections.
	Type   *BasicType
	Column string

	// Table names a secondary table. Empty means the declaring type's table.
	Table string

	// Embedded attributes.
	Embeddable     string
	EmbeddableType *Embeddable

	// Associations: ToOne and entity-valued plurals.
	Target       string
	TargetEntity *Entity
	JoinColumn   string // owning ToOne: FK column on the declaring table
	MappedBy     string // inverse side: attribute on the target owning the FK
	Optional     bool
	Eager        bool
	JoinFetch    bool

	// Plural attributes.
	Collection      CollectionKind
	CollectionTable string // link table or element-collection table
	KeyColumn       string // column referencing the owner identifier
	ElementColumn   string // basic element value column
	InverseColumn   string // link-table column referencing the target identifier
	IndexColumn     string // list index or map key column

	declarer *Entity
	inverse  *Attribute
}

// TypeName identifies the association as a type, for inference.
func (a *Attribute) TypeName() string {
	if a.declarer == nil {
		return a.Name
	}
	return a.declarer.Name + "." + a.Name
}

// Declarer returns the entity declaring the attribute. Attributes of
// embeddables report the entity that embeds them.
func (a *Attribute) Declarer() *Entity { return a.declarer }

// Inverse returns the owning attribute on the target for a mappedBy side.
func (a *Attribute) Inverse() *Attribute { return a.inverse }

// IsAssociation reports whether the attribute references other entities.
func (a *Attribute) IsAssociation() bool {
	return a.Kind == AttributeToOne || (a.Kind == AttributePlural && a.TargetEntity != nil)
}

// IsOwningToOne reports whether this side holds the foreign key.
func (a *Attribute) IsOwningToOne() bool {
	return a.Kind == AttributeToOne && a.MappedBy == ""
}

// IsBag reports whether the attribute is an unordered, duplicate-permitting
// collection.
func (a *Attribute) IsBag() bool {
	return a.Kind == AttributePlural && a.Collection == CollectionBag
}

// AssociationKey identifies the physical relationship behind an
// association, so both sides of a bidirectional association share a key.
func (a *Attribute) AssociationKey() string {
	switch {
	case a.Kind == AttributeToOne && a.MappedBy == "":
		return a.declarer.Root().Name + "(" + a.JoinColumn + ")"
	case a.inverse != nil:
		return a.inverse.AssociationKey()
	case a.CollectionTable != "":
		return a.CollectionTable + "(" + a.KeyColumn + ")"
	}
	return a.TypeName()
}

// Embeddable is a value type spread over several columns of its owner.
type Embeddable struct {
	Name       string
	Attributes []*Attribute
}

func (e *Embeddable) TypeName() string { return e.Name }

// Attribute returns the member named name, or nil.
func (e *Embeddable) Attribute(name string) *Attribute {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Leaves returns the basic members in declaration order, descending into
// nested embeddables. The path of each leaf is relative to e.
func (e *Embeddable) Leaves() []EmbeddedLeaf {
	var out []EmbeddedLeaf
	for _, a := range e.Attributes {
		if a.Kind == AttributeEmbedded && a.EmbeddableType != nil {
			for _, l := range a.EmbeddableType.Leaves() {
				out = append(out, EmbeddedLeaf{Path: append([]string{a.Name}, l.Path...), Attribute: l.Attribute})
			}
			continue
		}
		out = append(out, EmbeddedLeaf{Path: []string{a.Name}, Attribute: a})
	}
	return out
}

// EmbeddedLeaf is one basic member of an embeddable.
type EmbeddedLeaf struct {
	Path      []string
	Attribute *Attribute
}

// Entity is a mapped entity type.
type Entity struct {
	Name            string
	Table           string
	SecondaryTables []SecondaryTable
	Abstract        bool
	Extends         string

	// Inheritance, DiscriminatorColumn and the restrictions are read from
	// the hierarchy root.
	Inheritance         InheritanceStrategy
	DiscriminatorColumn string
	DiscriminatorValue  string

	IDAttribute   string
	Version       string
	CustomVersion bool

	Attributes   []*Attribute
	Restrictions []Restriction

	super       *Entity
	subtypes    []*Entity
	identifier  *Attribute
	versionAttr *Attribute
}

func (e *Entity) TypeName() string { return e.Name }

// Super returns the direct supertype, or nil.
func (e *Entity) Super() *Entity { return e.super }

// Subtypes returns the direct subtypes in declaration order.
func (e *Entity) Subtypes() []*Entity { return e.subtypes }

// Root returns the hierarchy root.
func (e *Entity) Root() *Entity {
	r := e
	for r.super != nil {
		r = r.super
	}
	return r
}

// Strategy returns the hierarchy's inheritance strategy.
func (e *Entity) Strategy() InheritanceStrategy {
	return e.Root().Inheritance
}

// HasSubtypes reports whether any type extends e.
func (e *Entity) HasSubtypes() bool { return len(e.subtypes) > 0 }

// InHierarchy reports whether e takes part in an inheritance hierarchy.
func (e *Entity) InHierarchy() bool {
	return e.super != nil || len(e.subtypes) > 0
}

// Identifier returns the identifier attribute.
func (e *Entity) Identifier() *Attribute { return e.Root().identifier }

// VersionAttribute returns the version attribute, or nil when the entity is
// not versioned.
func (e *Entity) VersionAttribute() *Attribute { return e.Root().versionAttr }

// IsCustomVersion reports whether version values are produced by user code.
func (e *Entity) IsCustomVersion() bool { return e.Root().CustomVersion }

// Discriminator returns the discriminator column, if the hierarchy has one.
func (e *Entity) Discriminator() string { return e.Root().DiscriminatorColumn }

// BaseRestrictions returns the restrictions of the hierarchy root.
func (e *Entity) BaseRestrictions() []Restriction { return e.Root().Restrictions }

// IsSubtypeOf reports whether e is other or extends it.
func (e *Entity) IsSubtypeOf(other *Entity) bool {
	for t := e; t != nil; t = t.super {
		if t == other {
			return true
		}
	}
	return false
}

// Subtree returns e and all its descendants in declaration (preorder) order.
func (e *Entity) Subtree() []*Entity {
	out := []*Entity{e}
	for _, s := range e.subtypes {
		out = append(out, s.Subtree()...)
	}
	return out
}

// LiveSubtypes returns the concrete types an instance statically typed as e
// may have at runtime, in declaration order.
func (e *Entity) LiveSubtypes() []*Entity {
	var out []*Entity
	for _, t := range e.Subtree() {
		if !t.Abstract {
			out = append(out, t)
		}
	}
	return out
}

// Supertypes returns the chain from the direct supertype to the root.
func (e *Entity) Supertypes() []*Entity {
	var out []*Entity
	for t := e.super; t != nil; t = t.super {
		out = append(out, t)
	}
	return out
}

// Attribute looks up an attribute declared on e or a supertype.
func (e *Entity) Attribute(name string) *Attribute {
	for t := e; t != nil; t = t.super {
		for _, a := range t.Attributes {
			if a.Name == name {
				return a
			}
		}
	}
	return nil
}

// AttributeInSubtypes looks up an attribute declared on any type of e's
// subtree. Used to resolve a member through a treat.
func (e *Entity) AttributeInSubtypes(name string) *Attribute {
	for _, t := range e.Subtree() {
		for _, a := range t.Attributes {
			if a.Name == name {
				return a
			}
		}
	}
	return nil
}

// AllAttributes returns inherited attributes first, then e's own.
func (e *Entity) AllAttributes() []*Attribute {
	var out []*Attribute
	chain := append([]*Entity{e}, e.Supertypes()...)
	slices.Reverse(chain)
	for _, t := range chain {
		out = append(out, t.Attributes...)
	}
	return out
}

// PrimaryTable returns the table holding rows of e itself.
func (e *Entity) PrimaryTable() string {
	if e.Strategy() == InheritanceSingleTable {
		return e.Root().Table
	}
	return e.Table
}

// TableOf returns the physical table of an attribute of e.
func (e *Entity) TableOf(a *Attribute) string {
	if a.Table != "" {
		return a.Table
	}
	owner := a.declarer
	if owner == nil {
		owner = e
	}
	return owner.PrimaryTable()
}

// SecondaryTable returns the secondary table named name declared in e's
// hierarchy chain.
func (e *Entity) SecondaryTable(name string) (SecondaryTable, bool) {
	for t := e; t != nil; t = t.super {
		for _, st := range t.SecondaryTables {
			if st.Name == name {
				return st, true
			}
		}
	}
	return SecondaryTable{}, false
}

// TypeOwningTable returns the type of e's hierarchy whose primary table is
// table. For single-table hierarchies this is the root.
func (e *Entity) TypeOwningTable(table string) *Entity {
	for _, t := range e.Root().Subtree() {
		if t.Table == table {
			return t
		}
	}
	return nil
}

// ColumnSharedOutside reports whether some type of e's hierarchy outside
// within maps an attribute to the same table and column. A value read from
// such a column must be guarded by a type check.
func (e *Entity) ColumnSharedOutside(table, column string, within []*Entity) bool {
	for _, t := range e.Root().Subtree() {
		if slices.Contains(within, t) {
			continue
		}
		for _, a := range t.Attributes {
			if t.TableOf(a) != table {
				continue
			}
			for _, c := range a.Columns() {
				if c == column {
					return true
				}
			}
		}
	}
	return false
}

// Columns returns the columns an attribute occupies on its own table.
func (a *Attribute) Columns() []string {
	switch a.Kind {
	case AttributeBasic:
		return []string{a.Column}
	case AttributeEmbedded:
		if a.EmbeddableType == nil {
			return nil
		}
		var cols []string
		for _, l := range a.EmbeddableType.Leaves() {
			cols = append(cols, l.Attribute.Column)
		}
		return cols
	case AttributeToOne:
		if a.MappedBy == "" {
			return []string{a.JoinColumn}
		}
	}
	return nil
}
