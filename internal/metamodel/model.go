package metamodel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ettle/strcase"
	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
)

// Catalog is the read-only view of the domain model consumed by the
// translator. Implementations must be safe for concurrent readers.
type Catalog interface {
	Entity(name string) (*Entity, bool)
	Embeddable(name string) (*Embeddable, bool)
	FetchProfile(name string) (*FetchProfile, bool)
}

// FetchStyle says how a fetch profile loads an association.
type FetchStyle int

const (
	FetchStyleJoin FetchStyle = iota + 1
	FetchStyleSelect
)

// FetchOverride overrides the default fetch of one association.
type FetchOverride struct {
	Entity      string
	Association string
	Style       FetchStyle
}

// FetchProfile is a named set of fetch overrides that can be enabled per
// translation.
type FetchProfile struct {
	Name      string
	Overrides []FetchOverride
}

// Override returns the override for entity.association, searching the
// entity's supertypes as well.
func (p *FetchProfile) Override(e *Entity, association string) (FetchOverride, bool) {
	for t := e; t != nil; t = t.super {
		for _, o := range p.Overrides {
			if o.Entity == t.Name && o.Association == association {
				return o, true
			}
		}
	}
	return FetchOverride{}, false
}

// Model is the in-memory Catalog.
type Model struct {
	entities    map[string]*Entity
	folded      map[string]*Entity
	order       []*Entity
	embeddables map[string]*Embeddable
	profiles    map[string]*FetchProfile
	resolved    bool
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		entities:    make(map[string]*Entity),
		folded:      make(map[string]*Entity),
		embeddables: make(map[string]*Embeddable),
		profiles:    make(map[string]*FetchProfile),
	}
}

// foldName folds case for lookups. A Caser is stateful, so each call gets
// its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// AddEntity registers an entity. Names must be unique ignoring case.
func (m *Model) AddEntity(e *Entity) error {
	key := foldName(e.Name)
	if _, dup := m.folded[key]; dup {
		return fmt.Errorf("duplicate entity %q", e.Name)
	}
	m.entities[e.Name] = e
	m.folded[key] = e
	m.order = append(m.order, e)
	m.resolved = false
	return nil
}

// AddEmbeddable registers an embeddable type.
func (m *Model) AddEmbeddable(e *Embeddable) error {
	if _, dup := m.embeddables[e.Name]; dup {
		return fmt.Errorf("duplicate embeddable %q", e.Name)
	}
	m.embeddables[e.Name] = e
	m.resolved = false
	return nil
}

// AddFetchProfile registers a fetch profile.
func (m *Model) AddFetchProfile(p *FetchProfile) {
	m.profiles[p.Name] = p
}

// Entity looks an entity up by name. An exact match wins; otherwise the
// lookup ignores case.
func (m *Model) Entity(name string) (*Entity, bool) {
	if e, ok := m.entities[name]; ok {
		return e, true
	}
	e, ok := m.folded[foldName(name)]
	return e, ok
}

// Embeddable looks an embeddable up by name.
func (m *Model) Embeddable(name string) (*Embeddable, bool) {
	e, ok := m.embeddables[name]
	return e, ok
}

// FetchProfile looks a fetch profile up by name.
func (m *Model) FetchProfile(name string) (*FetchProfile, bool) {
	p, ok := m.profiles[name]
	return p, ok
}

// FetchProfiles returns all fetch profiles sorted by name.
func (m *Model) FetchProfiles() []*FetchProfile {
	out := make([]*FetchProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *FetchProfile) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Entities returns all entities in registration order.
func (m *Model) Entities() []*Entity {
	return m.order
}

// MustResolve is like Resolve but panics on error.
// Use only in tests or for fixture models known to be valid.
func (m *Model) MustResolve() *Model {
	if err := m.Resolve(); err != nil {
		panic(err)
	}
	return m
}

// Resolve links the model: supertypes and subtypes, attribute targets,
// inverse sides, identifiers and versions. It also fills naming defaults:
// table names are pluralized snake case, column names are snake case.
// Resolve is idempotent.
func (m *Model) Resolve() error {
	if m.resolved {
		return nil
	}
	for _, e := range m.order {
		e.super = nil
		e.subtypes = nil
	}
	for _, e := range m.order {
		if e.Extends == "" {
			continue
		}
		super, ok := m.entities[e.Extends]
		if !ok {
			return fmt.Errorf("entity %s: unknown supertype %q", e.Name, e.Extends)
		}
		e.super = super
		super.subtypes = append(super.subtypes, e)
	}
	for _, e := range m.order {
		if err := checkHierarchyCycle(e); err != nil {
			return err
		}
	}
	// Supertypes first: subtypes inherit the root's table.
	byDepth := slices.Clone(m.order)
	slices.SortStableFunc(byDepth, func(a, b *Entity) int {
		return len(a.Supertypes()) - len(b.Supertypes())
	})
	for _, e := range byDepth {
		m.applyEntityDefaults(e)
	}
	for _, emb := range m.embeddables {
		if err := m.resolveEmbeddable(emb, map[string]bool{}); err != nil {
			return err
		}
	}
	for _, e := range m.order {
		for _, a := range e.Attributes {
			a.declarer = e
			if err := m.resolveAttribute(e, a); err != nil {
				return fmt.Errorf("entity %s: %w", e.Name, err)
			}
		}
	}
	for _, e := range m.order {
		for _, a := range e.Attributes {
			if err := m.resolveInverse(e, a); err != nil {
				return fmt.Errorf("entity %s: %w", e.Name, err)
			}
		}
	}
	for _, e := range m.order {
		if e.super != nil {
			continue
		}
		if err := resolveKeys(e); err != nil {
			return err
		}
	}
	m.resolved = true
	return nil
}

func checkHierarchyCycle(e *Entity) error {
	seen := map[*Entity]bool{}
	for t := e; t != nil; t = t.super {
		if seen[t] {
			return fmt.Errorf("entity %s: inheritance cycle", e.Name)
		}
		seen[t] = true
	}
	return nil
}

func (m *Model) applyEntityDefaults(e *Entity) {
	if e.Table == "" {
		if e.super != nil && e.Strategy() == InheritanceSingleTable {
			e.Table = e.Root().Table
		} else {
			e.Table = DefaultTableName(e.Name)
		}
	}
	for i := range e.SecondaryTables {
		if e.SecondaryTables[i].KeyColumn == "" {
			e.SecondaryTables[i].KeyColumn = DefaultForeignKey(e.Name)
		}
	}
	if e.super == nil {
		if e.IDAttribute == "" {
			e.IDAttribute = "id"
		}
		if len(e.subtypes) > 0 && e.Inheritance == InheritanceNone {
			e.Inheritance = InheritanceSingleTable
		}
		if e.Inheritance == InheritanceSingleTable && e.DiscriminatorColumn == "" {
			e.DiscriminatorColumn = "dtype"
		}
	}
	if e.DiscriminatorValue == "" {
		e.DiscriminatorValue = e.Name
	}
}

func (m *Model) resolveEmbeddable(emb *Embeddable, visiting map[string]bool) error {
	if visiting[emb.Name] {
		return fmt.Errorf("embeddable %s: embeds itself", emb.Name)
	}
	visiting[emb.Name] = true
	defer delete(visiting, emb.Name)
	for _, a := range emb.Attributes {
		switch a.Kind {
		case AttributeBasic:
			if a.Column == "" {
				a.Column = DefaultColumnName(a.Name)
			}
		case AttributeEmbedded:
			nested, ok := m.embeddables[a.Embeddable]
			if !ok {
				return fmt.Errorf("embeddable %s.%s: unknown embeddable %q", emb.Name, a.Name, a.Embeddable)
			}
			a.EmbeddableType = nested
			if err := m.resolveEmbeddable(nested, visiting); err != nil {
				return err
			}
		default:
			return fmt.Errorf("embeddable %s.%s: only basic and embedded members are supported", emb.Name, a.Name)
		}
	}
	return nil
}

func (m *Model) resolveAttribute(e *Entity, a *Attribute) error {
	if a.Table != "" {
		if _, ok := e.SecondaryTable(a.Table); !ok {
			return fmt.Errorf("attribute %s: unknown secondary table %q", a.Name, a.Table)
		}
	}
	switch a.Kind {
	case AttributeBasic:
		if a.Type == nil {
			return fmt.Errorf("attribute %s: basic attribute without type", a.Name)
		}
		if a.Column == "" {
			a.Column = DefaultColumnName(a.Name)
		}
	case AttributeEmbedded:
		emb, ok := m.embeddables[a.Embeddable]
		if !ok {
			return fmt.Errorf("attribute %s: unknown embeddable %q", a.Name, a.Embeddable)
		}
		a.EmbeddableType = emb
	case AttributeToOne:
		target, ok := m.entities[a.Target]
		if !ok {
			return fmt.Errorf("attribute %s: unknown target entity %q", a.Name, a.Target)
		}
		a.TargetEntity = target
		if a.MappedBy == "" && a.JoinColumn == "" {
			a.JoinColumn = DefaultColumnName(a.Name) + "_id"
		}
	case AttributePlural:
		if a.Collection == CollectionNone {
			a.Collection = CollectionBag
		}
		if a.Target != "" {
			target, ok := m.entities[a.Target]
			if !ok {
				return fmt.Errorf("attribute %s: unknown target entity %q", a.Name, a.Target)
			}
			a.TargetEntity = target
		} else if a.Type == nil {
			return fmt.Errorf("attribute %s: plural attribute needs a target entity or an element type", a.Name)
		}
		if a.MappedBy == "" {
			if a.CollectionTable == "" {
				a.CollectionTable = DefaultColumnName(e.Name) + "_" + DefaultColumnName(a.Name)
			}
			if a.KeyColumn == "" {
				a.KeyColumn = DefaultForeignKey(e.Name)
			}
			if a.TargetEntity != nil && a.InverseColumn == "" {
				a.InverseColumn = DefaultForeignKey(a.TargetEntity.Name)
			}
			if a.TargetEntity == nil && a.ElementColumn == "" {
				a.ElementColumn = DefaultColumnName(inflection.Singular(a.Name))
			}
		}
	default:
		return fmt.Errorf("attribute %s: unknown kind %d", a.Name, a.Kind)
	}
	return nil
}

func (m *Model) resolveInverse(e *Entity, a *Attribute) error {
	if a.MappedBy == "" || a.TargetEntity == nil {
		return nil
	}
	owner := a.TargetEntity.Attribute(a.MappedBy)
	if owner == nil || !owner.IsOwningToOne() {
		return fmt.Errorf("attribute %s: mappedBy %q is not an owning to-one on %s", a.Name, a.MappedBy, a.TargetEntity.Name)
	}
	if owner.TargetEntity == nil || !e.IsSubtypeOf(owner.TargetEntity) && !owner.TargetEntity.IsSubtypeOf(e) {
		return fmt.Errorf("attribute %s: mappedBy %s.%s does not reference %s", a.Name, a.TargetEntity.Name, a.MappedBy, e.Name)
	}
	a.inverse = owner
	return nil
}

func resolveKeys(root *Entity) error {
	id := root.Attribute(root.IDAttribute)
	if id == nil {
		return fmt.Errorf("entity %s: identifier attribute %q not found", root.Name, root.IDAttribute)
	}
	if id.Kind != AttributeBasic {
		return fmt.Errorf("entity %s: identifier %q must be a basic attribute", root.Name, root.IDAttribute)
	}
	root.identifier = id
	if root.Version != "" {
		v := root.Attribute(root.Version)
		if v == nil {
			return fmt.Errorf("entity %s: version attribute %q not found", root.Name, root.Version)
		}
		root.versionAttr = v
	}
	return nil
}

// DefaultTableName derives a table name from an entity name:
// "LineItem" becomes "line_items".
func DefaultTableName(entity string) string {
	return inflection.Plural(strcase.ToSnake(entity))
}

// DefaultColumnName derives a column name from an attribute name:
// "firstName" becomes "first_name".
func DefaultColumnName(attribute string) string {
	return strcase.ToSnake(attribute)
}

// DefaultForeignKey derives the column referencing an entity's identifier.
func DefaultForeignKey(entity string) string {
	return strcase.ToSnake(entity) + "_id"
}
