// Package sqlast defines the relational AST produced by the translator in
// package querysql and consumed by the renderer in package sqlrender.
//
// The tree is built from table groups: a TableGroup owns a primary table
// reference, lazily used secondary or subclass table references, and the
// table-group joins hanging off it. Everything below the from clause is an
// ordinary SQL expression tree of column references, literals, placeholders,
// function calls and predicates.
//
// LAZINESS:
//
// Table groups start Unresolved. Referencing a column moves the group to
// ResolvedMinimal (only key columns were touched) or ResolvedFull. Secondary
// and subclass tables are rendered only when marked used. The renderer skips
// implicit left joins whose group was never resolved.
package sqlast
