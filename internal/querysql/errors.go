package querysql

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// SemanticError reports a domain query that is relationally ill-formed.
//
// Semantic errors are user errors: the query asks for something the
// relational model cannot express (a join without a condition, set-operation
// parts that do not line up, two bag fetches in one statement). They abort
// the whole translation.
type SemanticError struct {
	// Code identifies the error category.
	Code SemanticErrorCode

	// Message is a human-readable description.
	Message string

	// Position locates the offending node ("where", "select[2]",
	// "from[0].join[1]"). Empty when the error concerns the statement as a
	// whole.
	Position string
}

// SemanticErrorCode categorizes semantic errors.
type SemanticErrorCode string

const (
	// ErrCodeMissingJoinCondition: an entity, derived, function or cte join
	// that is neither cross nor lateral has no ON predicate.
	ErrCodeMissingJoinCondition SemanticErrorCode = "MISSING_JOIN_CONDITION"

	// ErrCodeQueryGroupArity: parts of a set operation select different
	// numbers of items.
	ErrCodeQueryGroupArity SemanticErrorCode = "QUERY_GROUP_ARITY"

	// ErrCodeQueryGroupType: items at the same position of a set operation
	// have incompatible types.
	ErrCodeQueryGroupType SemanticErrorCode = "QUERY_GROUP_TYPE"

	// ErrCodeQueryGroupFetch: parts of a set operation fetch different
	// associations.
	ErrCodeQueryGroupFetch SemanticErrorCode = "QUERY_GROUP_FETCH"

	// ErrCodeNotVersioned: a versioned update targets an entity without a
	// version attribute.
	ErrCodeNotVersioned SemanticErrorCode = "NOT_VERSIONED"

	// ErrCodeCustomVersion: a versioned update targets an entity whose
	// version values are produced by user code.
	ErrCodeCustomVersion SemanticErrorCode = "CUSTOM_VERSION"

	// ErrCodeMultipleBagFetch: more than one bag is join-fetched.
	ErrCodeMultipleBagFetch SemanticErrorCode = "MULTIPLE_BAG_FETCH"

	// ErrCodeMixedDurationUnits: calendar and fixed-length durations are
	// combined outside timestamp arithmetic.
	ErrCodeMixedDurationUnits SemanticErrorCode = "MIXED_DURATION_UNITS"

	// ErrCodeInsertArity: insert values or select items do not match the
	// target columns.
	ErrCodeInsertArity SemanticErrorCode = "INSERT_ARITY"

	// ErrCodeUnknownReference: an entity, attribute or treat target does not
	// exist in the catalog.
	ErrCodeUnknownReference SemanticErrorCode = "UNKNOWN_REFERENCE"

	// ErrCodeUnsupported: a construct the translator does not lower.
	ErrCodeUnsupported SemanticErrorCode = "UNSUPPORTED"

	// ErrCodeCteNameExhausted: no unique name could be generated for a CTE.
	ErrCodeCteNameExhausted SemanticErrorCode = "CTE_NAME_EXHAUSTED"

	// ErrCodeLateralUnsupported: a lateral join was requested but the
	// dialect cannot express it.
	ErrCodeLateralUnsupported SemanticErrorCode = "LATERAL_UNSUPPORTED"
)

// Error implements the error interface.
func (e *SemanticError) Error() string {
	if e.Position != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Position)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InterpretationError reports that a resolution step found no table group,
// CTE or join for a path the tree claims is resolved. It indicates an
// unsupported combination of constructs or a translator defect, never a
// plain user typo.
type InterpretationError struct {
	Message string
	Path    string
}

// Error implements the error interface.
func (e *InterpretationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("interpretation error: %s (path=%s)", e.Message, e.Path)
	}
	return "interpretation error: " + e.Message
}

// AssertionFailure signals a broken translator invariant. It is raised with
// panic and carries the stack of the failing check. Translate never
// recovers it.
type AssertionFailure struct {
	*goerrors.Error
}

// newAssertionFailure captures the caller's stack.
func newAssertionFailure(format string, args ...any) *AssertionFailure {
	return &AssertionFailure{Error: goerrors.Wrap(fmt.Errorf("assertion failed: "+format, args...), 1)}
}

// assertf panics with an AssertionFailure when cond is false.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(newAssertionFailure(format, args...))
	}
}

// IsSemanticError reports whether err is a SemanticError with one of the
// given codes, or with any code when none are given.
// Uses errors.As to handle wrapped errors.
func IsSemanticError(err error, codes ...SemanticErrorCode) bool {
	var se *SemanticError
	if !errors.As(err, &se) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// IsInterpretationError reports whether err is an InterpretationError.
func IsInterpretationError(err error) bool {
	var ie *InterpretationError
	return errors.As(err, &ie)
}

// bailout carries a translation error up the recursive descent. Only
// translate errors travel this way; anything else that panics is re-raised.
type bailout struct {
	err error
}

func (t *translation) fail(code SemanticErrorCode, format string, args ...any) {
	panic(bailout{err: &SemanticError{Code: code, Message: fmt.Sprintf(format, args...), Position: t.position()}})
}

func (t *translation) interpretationFailure(path, format string, args ...any) {
	panic(bailout{err: &InterpretationError{Message: fmt.Sprintf(format, args...), Path: path}})
}
