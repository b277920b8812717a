package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

var (
	ErrUnsupportedValueKind = errors.New("unsupported value kind")
	ErrValueTypeMismatch    = errors.New("value does not match column type")
)

// Document is one semi-structured record read from the source store.
//
// Values are string, json.Number (or a Go numeric), bool, map[string]any,
// []any or nil. A Document is never modified after it has been read.
type Document map[string]any

// Keys returns the attribute names in lexical order. Decoded documents do not
// keep their source attribute order, so new columns are laid out by name.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the attribute value if it is a string.
func (d Document) String(name string) (string, bool) {
	s, ok := d[name].(string)
	return s, ok
}

// ValueKind classifies a document value structurally.
type ValueKind int

const (
	KindUnknown ValueKind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindString:
		return "STRING"
	case KindNumber:
		return "NUMBER"
	case KindBool:
		return "BOOLEAN"
	case KindObject:
		return "OBJECT"
	case KindArray:
		return "ARRAY"
	default:
		return "UNKNOWN"
	}
}

// KindOf returns the structural kind of v.
func KindOf(v any) ValueKind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case bool:
		return KindBool
	case map[string]any, Document:
		return KindObject
	case []any:
		return KindArray
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject
		}
	}
	return KindUnknown
}

// ColumnValue extracts v as the given column type, producing the value bound
// to the statement. Null stays null for every column type.
func ColumnValue(v any, t ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case ColumnString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ColumnNumber:
		if n, ok := numberText(v); ok {
			return n, nil
		}
	case ColumnBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ColumnJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json column: %w", err)
		}
		return string(b), nil
	}

	return nil, fmt.Errorf("%w: %s value for %s column", ErrValueTypeMismatch, KindOf(v), t)
}

// numberText renders a numeric value as a decimal literal without losing the
// precision of source numbers that arrive as text.
func numberText(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(n).Int(), 10), true
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(n).Uint(), 10), true
	}
	return "", false
}
