// Package sqlrender turns relational ASTs into SQL text for SQLite and
// PostgreSQL.
//
// Rendering is the step after translation: the translator decides what
// tables are joined and which predicates apply, the renderer only spells
// the result in a dialect. Values never appear in the SQL text. Every
// placeholder and every non-null literal becomes a bind argument, in the
// order the placeholders appear.
//
// Placeholders are written as "?" and rewritten to the dialect's format
// with the squirrel placeholder formats ("?" for SQLite, "$n" for
// PostgreSQL).
package sqlrender
