// Package queryir defines the domain query tree: a query expressed against
// the object model (entities, associations, embedded values, inheritance,
// collections) before it is lowered to relational SQL.
//
// ARCHITECTURE:
//
//	[YAML / builder] → [domain query tree] → querysql → [relational AST] → sqlrender
//
// The tree is produced by a front end (the YAML decoder in this package, or
// Go code using the constructors) and consumed read-only by the translator
// in package querysql.
//
// SEALED INTERFACES:
//
// Statement, QueryPart, From, Join, Expression and Predicate are sealed
// interfaces using the marker method pattern. Only types in this package can
// implement them, which keeps type switches in the translator exhaustive.
//
// PATHS:
//
// A Path names a position reachable from a from-clause alias:
//
//	c                               the root aliased c
//	c.alternativeContact.name.first attribute navigation (implicit joins)
//	treat(c as SpecialContact).x    subtype narrowing
//	index(l), value(l)              parts of a plural join aliased l
//
// A NavigablePath is the translator-side key for the same positions; equal
// navigable paths resolve to the same table group within one query scope.
package queryir
