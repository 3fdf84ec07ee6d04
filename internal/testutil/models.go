package testutil

import (
	"github.com/roach88/ormsql/internal/ir"
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// nameEmbeddable is the Name value type with explicit column names.
func nameEmbeddable() *mm.Embeddable {
	return &mm.Embeddable{
		Name: "Name",
		Attributes: []*mm.Attribute{
			{Name: "first", Kind: mm.AttributeBasic, Type: mm.StringType, Column: "firstname"},
			{Name: "last", Kind: mm.AttributeBasic, Type: mm.StringType, Column: "lastname"},
		},
	}
}

// ContactModel returns a resolved model with a single Contact entity:
// table contacts, secondary table contact_supp, an embedded Name, and a
// self-referencing one-to-one whose owning side is primaryContact and whose
// inverse side is alternativeContact.
func ContactModel() *mm.Model {
	m := mm.NewModel()
	must(m.AddEmbeddable(nameEmbeddable()))
	must(m.AddEntity(&mm.Entity{
		Name:            "Contact",
		Table:           "contacts",
		SecondaryTables: []mm.SecondaryTable{{Name: "contact_supp", KeyColumn: "id"}},
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "name", Kind: mm.AttributeEmbedded, Embeddable: "Name"},
			{Name: "birthday", Kind: mm.AttributeBasic, Type: mm.DateType, Table: "contact_supp"},
			{Name: "alternativeContact", Kind: mm.AttributeToOne, Target: "Contact", MappedBy: "primaryContact", Optional: true},
			{Name: "primaryContact", Kind: mm.AttributeToOne, Target: "Contact", JoinColumn: "primary_contact_id", Optional: true},
		},
	}))
	return m.MustResolve()
}

// HierarchyModel returns a resolved single-table hierarchy over the
// contacts table with discriminator column contact_type:
//
//	Contact
//	├── SpecialContact (specialField -> special_field)
//	│   └── VerySpecialContact (level)
//	└── OtherContact (otherField -> special_field, shared with SpecialContact)
func HierarchyModel() *mm.Model {
	m := mm.NewModel()
	must(m.AddEmbeddable(nameEmbeddable()))
	must(m.AddEntity(&mm.Entity{
		Name:                "Contact",
		Table:               "contacts",
		Inheritance:         mm.InheritanceSingleTable,
		DiscriminatorColumn: "contact_type",
		DiscriminatorValue:  "C",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "name", Kind: mm.AttributeEmbedded, Embeddable: "Name"},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:               "SpecialContact",
		Extends:            "Contact",
		DiscriminatorValue: "S",
		Attributes: []*mm.Attribute{
			{Name: "specialField", Kind: mm.AttributeBasic, Type: mm.StringType, Column: "special_field"},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:               "VerySpecialContact",
		Extends:            "SpecialContact",
		DiscriminatorValue: "V",
		Attributes: []*mm.Attribute{
			{Name: "level", Kind: mm.AttributeBasic, Type: mm.IntegerType},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:               "OtherContact",
		Extends:            "Contact",
		DiscriminatorValue: "O",
		Attributes: []*mm.Attribute{
			{Name: "otherField", Kind: mm.AttributeBasic, Type: mm.StringType, Column: "special_field"},
		},
	}))
	return m.MustResolve()
}

// AnimalModel returns a resolved joined hierarchy without a discriminator
// column:
//
//	Animal (animals)
//	├── Dog (dogs: bark_volume)
//	└── Cat (cats: lives)
func AnimalModel() *mm.Model {
	m := mm.NewModel()
	must(m.AddEntity(&mm.Entity{
		Name:        "Animal",
		Table:       "animals",
		Inheritance: mm.InheritanceJoined,
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "name", Kind: mm.AttributeBasic, Type: mm.StringType},
			{Name: "owner", Kind: mm.AttributeToOne, Target: "Keeper", JoinColumn: "owner_id", Optional: true},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:    "Dog",
		Table:   "dogs",
		Extends: "Animal",
		Attributes: []*mm.Attribute{
			{Name: "barkVolume", Kind: mm.AttributeBasic, Type: mm.IntegerType},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:    "Cat",
		Table:   "cats",
		Extends: "Animal",
		Attributes: []*mm.Attribute{
			{Name: "lives", Kind: mm.AttributeBasic, Type: mm.IntegerType},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:  "Keeper",
		Table: "keepers",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "name", Kind: mm.AttributeBasic, Type: mm.StringType},
			{Name: "animals", Kind: mm.AttributePlural, Target: "Animal", MappedBy: "owner", Collection: mm.CollectionSet},
		},
	}))
	return m.MustResolve()
}

// OrderModel returns a resolved model for fetch planning and DML:
//
//   - Customer is soft-deleted through a deleted=false base restriction and
//     owns a set of orders.
//   - Order is versioned and has two bags: line items (one-to-many) and
//     tags (element collection), plus an indexed list of notes.
//   - LineItem references its order and a Product.
//   - Event carries timestamps and a duration for temporal arithmetic.
func OrderModel() *mm.Model {
	m := mm.NewModel()
	must(m.AddEntity(&mm.Entity{
		Name:  "Customer",
		Table: "customers",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "name", Kind: mm.AttributeBasic, Type: mm.StringType},
			{Name: "deleted", Kind: mm.AttributeBasic, Type: mm.BooleanType},
			{Name: "orders", Kind: mm.AttributePlural, Target: "Order", MappedBy: "customer", Collection: mm.CollectionSet},
		},
		Restrictions: []mm.Restriction{{Column: "deleted", Value: ir.IRBool(false)}},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:    "Order",
		Table:   "orders",
		Version: "version",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "number", Kind: mm.AttributeBasic, Type: mm.StringType},
			{Name: "version", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "placedAt", Kind: mm.AttributeBasic, Type: mm.TimestampType},
			{Name: "customer", Kind: mm.AttributeToOne, Target: "Customer", JoinColumn: "customer_id", Eager: true, JoinFetch: true},
			{Name: "items", Kind: mm.AttributePlural, Target: "LineItem", MappedBy: "order", Collection: mm.CollectionBag},
			{Name: "tags", Kind: mm.AttributePlural, Type: mm.StringType, Collection: mm.CollectionBag, CollectionTable: "order_tags", KeyColumn: "order_id", ElementColumn: "tag"},
			{Name: "notes", Kind: mm.AttributePlural, Type: mm.StringType, Collection: mm.CollectionList, CollectionTable: "order_notes", KeyColumn: "order_id", ElementColumn: "note", IndexColumn: "position"},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:  "LineItem",
		Table: "line_items",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "quantity", Kind: mm.AttributeBasic, Type: mm.IntegerType},
			{Name: "price", Kind: mm.AttributeBasic, Type: mm.DecimalType},
			{Name: "order", Kind: mm.AttributeToOne, Target: "Order", JoinColumn: "order_id"},
			{Name: "product", Kind: mm.AttributeToOne, Target: "Product", JoinColumn: "product_id", Eager: true},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:  "Product",
		Table: "products",
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "sku", Kind: mm.AttributeBasic, Type: mm.StringType},
		},
	}))
	must(m.AddEntity(&mm.Entity{
		Name:          "Event",
		Table:         "events",
		Version:       "revision",
		CustomVersion: true,
		Attributes: []*mm.Attribute{
			{Name: "id", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "title", Kind: mm.AttributeBasic, Type: mm.StringType},
			{Name: "revision", Kind: mm.AttributeBasic, Type: mm.LongType},
			{Name: "startsAt", Kind: mm.AttributeBasic, Type: mm.TimestampType},
			{Name: "endsAt", Kind: mm.AttributeBasic, Type: mm.TimestampType},
			{Name: "length", Kind: mm.AttributeBasic, Type: mm.DurationType},
		},
	}))
	m.AddFetchProfile(&mm.FetchProfile{
		Name: "with-items",
		Overrides: []mm.FetchOverride{
			{Entity: "Order", Association: "items", Style: mm.FetchStyleJoin},
		},
	})
	return m.MustResolve()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
