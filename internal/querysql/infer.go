package querysql

import (
	mm "github.com/roach88/ormsql/internal/metamodel"
)

// typeSupplier computes an inferred type on demand.
type typeSupplier func() mm.Type

// inferenceStack holds the types the enclosing context expects.
//
// Literal and parameter translation consult Current when the node carries
// no type of its own. Suppliers run lazily and may compute the static type
// of a parameter, which consults inference again; the inProgress flag makes
// such nested lookups answer nil instead of recursing forever.
type inferenceStack struct {
	suppliers  []typeSupplier
	inProgress bool
}

func (s *inferenceStack) push(fn typeSupplier) {
	s.suppliers = append(s.suppliers, fn)
}

func (s *inferenceStack) pop() {
	s.suppliers = s.suppliers[:len(s.suppliers)-1]
}

func (s *inferenceStack) depth() int { return len(s.suppliers) }

// Current returns the type supplied by the top entry, or nil.
func (s *inferenceStack) Current() mm.Type {
	if s.inProgress || len(s.suppliers) == 0 {
		return nil
	}
	top := s.suppliers[len(s.suppliers)-1]
	if top == nil {
		return nil
	}
	s.inProgress = true
	defer func() { s.inProgress = false }()
	return top()
}

// with runs fn with supplier on top of the stack. The entry is popped on
// every exit path, including bailouts.
func (s *inferenceStack) with(supplier typeSupplier, fn func()) {
	s.push(supplier)
	defer s.pop()
	fn()
}

// fixedType is a supplier for an already known type.
func fixedType(t mm.Type) typeSupplier {
	if t == nil {
		return nil
	}
	return func() mm.Type { return t }
}
