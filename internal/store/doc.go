// Package store runs translated statements against SQLite.
//
// A Store is the execution side of the toolchain: it derives DDL from a
// resolved model, loads fixture rows, and executes rendered SQL with its
// bind arguments. Every executed statement can be appended to a run log
// keyed by plan fingerprint and binding hash.
//
// # Run Log
//
//   - UNIQUE(fingerprint, binding_hash): recording the same statement with
//     the same bindings twice is a no-op
//   - All reads are ordered by seq, never by wall time
//   - Bindings are stored as canonical JSON (see internal/ir)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Pass ":memory:" to Open for a throwaway database.
package store
