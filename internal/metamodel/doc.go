// Package metamodel describes the domain model the query translator lowers
// against: entities and their tables, attributes and their columns,
// embeddable values, associations, inheritance hierarchies with their
// discriminators, versioning, base restrictions and fetch profiles.
//
// The translator consumes the model read-only through the Catalog
// interface. Model is the in-memory implementation; build one directly or
// compile it from CUE with package compiler, then call Resolve before use.
//
// The package also holds the Dialect capability object: the translator asks
// it questions (lateral support, native temporal unit, preferred SQL types)
// but never renders dialect-specific SQL itself.
package metamodel
