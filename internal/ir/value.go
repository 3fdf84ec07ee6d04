package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/shopspring/decimal"
)

// IRValue is a sealed interface representing constrained literal values.
// Only IRNull, IRString, IRInt, IRBool, IRDecimal, IRDuration, IRTimestamp,
// IRArray, and IRObject implement this.
// NO binary floats - fractional literals are exact decimals.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents an SQL NULL literal.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a character literal.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integral literal. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean literal.
type IRBool bool

func (IRBool) irValue() {}

// IRDecimal represents an exact fractional literal.
type IRDecimal struct {
	Value decimal.Decimal
}

func (IRDecimal) irValue() {}

// IRDuration represents a duration literal, stored as nanoseconds.
type IRDuration time.Duration

func (IRDuration) irValue() {}

// IRTimestamp represents a point in time. Always normalized to UTC.
type IRTimestamp time.Time

func (IRTimestamp) irValue() {}

// IRArray represents a list of values, used for multi-valued bindings.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a composite value keyed by attribute name, used for
// embeddable and entity-valued bindings.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRDecimal parses an exact decimal literal.
func NewIRDecimal(s string) (IRDecimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return IRDecimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return IRDecimal{Value: d}, nil
}

// NewIRTimestamp creates a timestamp normalized to UTC.
func NewIRTimestamp(t time.Time) IRTimestamp {
	return IRTimestamp(t.UTC())
}

// IsNull reports whether v is nil or IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for fingerprints.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
// Decimals are encoded as strings so no precision is lost on the way through
// encoding/json; durations as their Go string form; timestamps as RFC 3339.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRDecimal:
		return json.Marshal(val.Value.String())
	case IRDuration:
		return json.Marshal(time.Duration(val).String())
	case IRTimestamp:
		return json.Marshal(time.Time(val).UTC().Format(time.RFC3339Nano))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// FromAny converts a decoded YAML/JSON value into an IRValue.
//
// Floats are accepted only because YAML decoders produce them for any
// fractional literal; they are converted to exact decimals through their
// shortest string form.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case float64:
		return IRDecimal{Value: decimal.NewFromFloat(val)}, nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return NewIRDecimal(s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case time.Time:
		return NewIRTimestamp(val), nil
	case time.Duration:
		return IRDuration(val), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// DriverValue converts a scalar IRValue into a value accepted by
// database/sql drivers. Composite values are rejected: they must be
// flattened into several placeholders before binding.
func DriverValue(v IRValue) (any, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return nil, nil
	case IRString:
		return string(val), nil
	case IRInt:
		return int64(val), nil
	case IRBool:
		return bool(val), nil
	case IRDecimal:
		return val.Value.String(), nil
	case IRDuration:
		return int64(val), nil
	case IRTimestamp:
		return time.Time(val).UTC().Format("2006-01-02 15:04:05.000000000"), nil
	case IRArray, IRObject:
		return nil, fmt.Errorf("composite value %T cannot be bound to a single placeholder", v)
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}
