// Package value defines the dynamic runtime value shared by tree queries
// and table queries, along with its equality, ordering, truthiness,
// arithmetic and access rules.
package value

import (
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/datasetq/datasetq/table"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindTable
	KindDeferredTable
	KindColumn
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTable:
		return "table"
	case KindDeferredTable:
		return "deferred_table"
	case KindColumn:
		return "column"
	default:
		return "unknown"
	}
}

// Value is an immutable runtime value. Only the fields matching Kind are
// meaningful. Operations that change a value build a new one.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Big   *big.Int
	Float float64
	Str   string
	Arr   []Value
	Obj   map[string]Value
	Table *table.Table
	Lazy  *table.LazyFrame
	Col   *table.Column
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// BoolVal creates a boolean.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntVal creates a 64-bit integer.
func IntVal(i int64) Value { return Value{Kind: KindInt, Int: i} }

// BigVal creates an integer that may not fit in 64 bits. Values that fit
// are stored as plain integers.
func BigVal(b *big.Int) Value {
	if b.IsInt64() {
		return IntVal(b.Int64())
	}
	return Value{Kind: KindBigInt, Big: new(big.Int).Set(b)}
}

// FloatVal creates a float.
func FloatVal(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StrVal creates a string.
func StrVal(s string) Value { return Value{Kind: KindString, Str: s} }

// ArrayVal creates an array. The slice is owned by the value afterwards.
func ArrayVal(vs []Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Kind: KindArray, Arr: vs}
}

// ObjectVal creates an object. The map is owned by the value afterwards.
func ObjectVal(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindObject, Obj: m}
}

// TableVal wraps a materialized table.
func TableVal(t *table.Table) Value { return Value{Kind: KindTable, Table: t} }

// DeferredVal wraps an unmaterialized plan.
func DeferredVal(lf *table.LazyFrame) Value { return Value{Kind: KindDeferredTable, Lazy: lf} }

// ColumnVal wraps a single column.
func ColumnVal(c *table.Column) Value { return Value{Kind: KindColumn, Col: c} }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNumber reports whether v is an Int, BigInt or Float.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindBigInt || v.Kind == KindFloat
}

// TypeName returns the name reported by the type builtin.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindInt, KindBigInt, KindFloat:
		return "number"
	default:
		return v.Kind.String()
	}
}

// Truthy maps a value to a boolean: false, null, zero, and empty strings,
// arrays and objects are false. Tables, columns and plans are always true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindBigInt:
		return v.Big.Sign() != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != ""
	case KindArray:
		return len(v.Arr) > 0
	case KindObject:
		return len(v.Obj) > 0
	default:
		return true
	}
}

// AsFloat converts a number to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindBigInt:
		f, _ := new(big.Float).SetInt(v.Big).Float64()
		return f, true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// AsInt converts a number with no fractional part to int64.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		if v.Float == math.Trunc(v.Float) && v.Float >= math.MinInt64 && v.Float < math.MaxInt64 {
			return int64(v.Float), true
		}
	}
	return 0, false
}

// AsString renders scalars without quotes; containers render as JSON.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBigInt:
		return v.Big.String()
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return v.Str
	default:
		return v.String()
	}
}

// Len returns the element count of containers and the rune count of
// strings.
func (v Value) Len() (int, bool) {
	switch v.Kind {
	case KindString:
		return len([]rune(v.Str)), true
	case KindArray:
		return len(v.Arr), true
	case KindObject:
		return len(v.Obj), true
	case KindTable:
		return v.Table.NumRows(), true
	case KindColumn:
		return v.Col.Len(), true
	case KindNull:
		return 0, true
	}
	return 0, false
}

// SortedKeys returns an object's keys in ascending order.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.Obj))
	for k := range v.Obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
