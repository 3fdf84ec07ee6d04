// Package ir provides the literal value model shared by the domain query tree
// and the relational AST.
//
// This package contains value types only. Every other internal package may
// import ir; ir imports nothing internal, so literal values stay the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO binary floats: fractional numbers are exact decimals (IRDecimal)
//   - Durations are nanosecond counts, timestamps are UTC instants
//   - Canonical JSON (RFC 8785 ordering, NFC strings) is the only encoding
//     used for fingerprints
package ir
