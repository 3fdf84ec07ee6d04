// Package harness runs conformance scenarios for the query translator.
//
// A scenario names a CUE model, the fixture rows its tables start with, and
// a sequence of domain statements written in the YAML query format. Each
// scenario runs in a fresh in-memory SQLite database whose tables are
// derived from the model:
//
//  1. Load and compile the model (compiler.LoadModel)
//  2. Create the tables and insert the fixtures
//  3. For each step: decode, validate, translate, render and execute the
//     statement, and record the execution in the run log
//  4. Check each step's expect clause, then evaluate the assertions
//
// Translation ids come from a sequence generator seeded with the scenario
// name, so logs and golden files are reproducible.
//
// Golden files capture, per step, the statement kind, its dump, the bind
// arguments and the rows. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
