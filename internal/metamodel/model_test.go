package metamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mm "github.com/roach88/ormsql/internal/metamodel"
	"github.com/roach88/ormsql/internal/testutil"
)

func TestResolve_ContactInverseOneToOne(t *testing.T) {
	m := testutil.ContactModel()

	contact, ok := m.Entity("Contact")
	require.True(t, ok)

	alt := contact.Attribute("alternativeContact")
	require.NotNil(t, alt)
	primary := contact.Attribute("primaryContact")
	require.NotNil(t, primary)

	assert.False(t, alt.IsOwningToOne())
	assert.True(t, primary.IsOwningToOne())
	assert.Same(t, primary, alt.Inverse())
	assert.Equal(t, primary.AssociationKey(), alt.AssociationKey(),
		"both sides of a bidirectional association share a key")
	assert.Equal(t, []string{"primary_contact_id"}, primary.Columns())
	assert.Empty(t, alt.Columns(), "inverse side occupies no column")
}

func TestResolve_SecondaryTable(t *testing.T) {
	contact, _ := testutil.ContactModel().Entity("Contact")

	birthday := contact.Attribute("birthday")
	require.NotNil(t, birthday)
	assert.Equal(t, "contact_supp", contact.TableOf(birthday))
	assert.Equal(t, "contacts", contact.TableOf(contact.Attribute("name")))
	assert.Equal(t, []string{"firstname", "lastname"}, contact.Attribute("name").Columns())
}

func TestResolve_SingleTableHierarchy(t *testing.T) {
	m := testutil.HierarchyModel()
	contact, _ := m.Entity("Contact")
	special, _ := m.Entity("SpecialContact")
	very, _ := m.Entity("VerySpecialContact")
	other, _ := m.Entity("OtherContact")

	assert.Equal(t, mm.InheritanceSingleTable, very.Strategy())
	assert.Equal(t, "contacts", very.PrimaryTable())
	assert.Equal(t, "contact_type", very.Discriminator())
	assert.Same(t, contact, very.Root())
	assert.Equal(t, []*mm.Entity{special, very}, special.LiveSubtypes())
	assert.Equal(t, []*mm.Entity{contact, special, very, other}, contact.LiveSubtypes())
	assert.True(t, very.IsSubtypeOf(contact))
	assert.False(t, contact.IsSubtypeOf(special))
	assert.Same(t, contact.Identifier(), very.Identifier())
}

func TestColumnSharedOutside(t *testing.T) {
	m := testutil.HierarchyModel()
	contact, _ := m.Entity("Contact")
	special, _ := m.Entity("SpecialContact")

	assert.True(t, contact.ColumnSharedOutside("contacts", "special_field", special.Subtree()),
		"OtherContact maps otherField to the same column")
	assert.False(t, contact.ColumnSharedOutside("contacts", "level", special.Subtree()))
}

func TestResolve_JoinedHierarchy(t *testing.T) {
	m := testutil.AnimalModel()
	animal, _ := m.Entity("Animal")
	dog, _ := m.Entity("Dog")

	assert.Equal(t, mm.InheritanceJoined, dog.Strategy())
	assert.Equal(t, "dogs", dog.PrimaryTable())
	assert.Equal(t, "animals", dog.TableOf(dog.Attribute("name")))
	assert.Equal(t, "dogs", dog.TableOf(dog.Attribute("barkVolume")))
	assert.Empty(t, dog.Discriminator())
	assert.Same(t, dog, animal.TypeOwningTable("dogs"))
}

func TestResolve_Defaults(t *testing.T) {
	m := mm.NewModel()
	require.NoError(t, m.AddEntity(&mm.Entity{
		Name: "LineItem",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "unitPrice", Kind: mm.AttributeBasic, Type: mm.DecimalType},
			{Name: "parentItem", Kind: mm.AttributeToOne, Target: "LineItem"},
		},
	}))
	require.NoError(t, m.Resolve())

	item, ok := m.Entity("lineitem")
	require.True(t, ok, "lookup ignores case")
	assert.Equal(t, "line_items", item.Table)
	assert.Equal(t, "unit_price", item.Attribute("unitPrice").Column)
	assert.Equal(t, "parent_item_id", item.Attribute("parentItem").JoinColumn)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entity  *mm.Entity
		wantErr string
	}{
		{
			name:    "unknown supertype",
			entity:  &mm.Entity{Name: "A", Extends: "Missing"},
			wantErr: "unknown supertype",
		},
		{
			name: "unknown target",
			entity: &mm.Entity{Name: "A", Attributes: []*mm.Attribute{
				{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
				{Name: "b", Kind: mm.AttributeToOne, Target: "B"},
			}},
			wantErr: "unknown target entity",
		},
		{
			name:    "missing identifier",
			entity:  &mm.Entity{Name: "A"},
			wantErr: "identifier attribute",
		},
		{
			name: "bad mappedBy",
			entity: &mm.Entity{Name: "A", Attributes: []*mm.Attribute{
				{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
				{Name: "self", Kind: mm.AttributeToOne, Target: "A", MappedBy: "nope"},
			}},
			wantErr: "mappedBy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mm.NewModel()
			require.NoError(t, m.AddEntity(tt.entity))
			err := m.Resolve()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddEntity_Duplicate(t *testing.T) {
	m := mm.NewModel()
	require.NoError(t, m.AddEntity(&mm.Entity{Name: "Order"}))
	err := m.AddEntity(&mm.Entity{Name: "order"})
	require.Error(t, err)
}

func TestFetchProfileOverride(t *testing.T) {
	m := testutil.OrderModel()
	order, _ := m.Entity("Order")
	p, ok := m.FetchProfile("with-items")
	require.True(t, ok)

	o, ok := p.Override(order, "items")
	require.True(t, ok)
	assert.Equal(t, mm.FetchStyleJoin, o.Style)

	_, ok = p.Override(order, "tags")
	assert.False(t, ok)
}
