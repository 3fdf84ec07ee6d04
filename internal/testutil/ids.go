package testutil

import "fmt"

// FixedIDGenerator returns the same translation id every time.
//
// This enables deterministic log output and golden comparison: the same
// query translated with the same FixedIDGenerator produces byte-identical
// output.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	return &FixedIDGenerator{id: id}
}

// NewID returns the fixed id.
func (g *FixedIDGenerator) NewID() string {
	return g.id
}

// SequenceIDGenerator returns prefix-1, prefix-2, ...
// Not safe for concurrent use.
type SequenceIDGenerator struct {
	prefix string
	seq    int
}

// NewSequenceIDGenerator creates a sequence generator.
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next id in the sequence.
func (g *SequenceIDGenerator) NewID() string {
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}
