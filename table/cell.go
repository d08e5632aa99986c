package table

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var (
	// ErrIncomparable is returned when two cells have no defined ordering.
	ErrIncomparable = errors.New("incomparable values")
	// ErrDivisionByZero is returned by the division operator.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")
)

// CellType represents the type of a Cell.
type CellType int

const (
	CellNull CellType = iota
	CellInt
	CellFloat
	CellString
	CellBool
	CellList
	CellOpaque // payload the engine stores but does not interpret
)

func (t CellType) String() string {
	switch t {
	case CellNull:
		return "null"
	case CellInt:
		return "int"
	case CellFloat:
		return "float"
	case CellString:
		return "string"
	case CellBool:
		return "bool"
	case CellList:
		return "list"
	case CellOpaque:
		return "opaque"
	default:
		return "?"
	}
}

// Cell is a dynamically-typed value stored in, or extracted from, a Column.
type Cell struct {
	Type  CellType
	Int   int64
	Float float64
	Str   string
	Bool  bool
	List  []Cell
	Any   any
}

// Keyer is implemented by opaque payloads that can take part in grouping
// and joining.
type Keyer interface {
	Key() string
}

// Null returns a null cell.
func Null() Cell {
	return Cell{Type: CellNull}
}

// IntVal creates an integer cell.
func IntVal(v int64) Cell {
	return Cell{Type: CellInt, Int: v}
}

// FloatVal creates a float cell.
func FloatVal(v float64) Cell {
	return Cell{Type: CellFloat, Float: v}
}

// StrVal creates a string cell.
func StrVal(v string) Cell {
	return Cell{Type: CellString, Str: v}
}

// BoolVal creates a boolean cell.
func BoolVal(v bool) Cell {
	return Cell{Type: CellBool, Bool: v}
}

// ListVal creates a list cell.
func ListVal(v []Cell) Cell {
	return Cell{Type: CellList, List: v}
}

// OpaqueVal wraps a value the engine only stores and hashes.
func OpaqueVal(v any) Cell {
	return Cell{Type: CellOpaque, Any: v}
}

// IsNull returns true if the cell is null.
func (c Cell) IsNull() bool {
	return c.Type == CellNull
}

// AsFloat attempts to coerce to float64 for arithmetic.
func (c Cell) AsFloat() (float64, bool) {
	switch c.Type {
	case CellInt:
		return float64(c.Int), true
	case CellFloat:
		return c.Float, true
	default:
		return 0, false
	}
}

// AsString returns the string representation.
func (c Cell) AsString() string {
	switch c.Type {
	case CellNull:
		return "null"
	case CellInt:
		return strconv.FormatInt(c.Int, 10)
	case CellFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case CellString:
		return c.Str
	case CellBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case CellList:
		parts := make([]string, len(c.List))
		for i, v := range c.List {
			parts[i] = v.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case CellOpaque:
		return fmt.Sprint(c.Any)
	default:
		return "?"
	}
}

// Truthy reports whether the cell counts as true in a predicate.
func (c Cell) Truthy() bool {
	switch c.Type {
	case CellNull:
		return false
	case CellBool:
		return c.Bool
	case CellInt:
		return c.Int != 0
	case CellFloat:
		return c.Float != 0
	case CellString:
		return c.Str != ""
	case CellList:
		return len(c.List) > 0
	case CellOpaque:
		if t, ok := c.Any.(interface{ Truthy() bool }); ok {
			return t.Truthy()
		}
		return true
	}
	return false
}

// Key returns a canonical encoding of the cell. Cells that compare equal
// produce the same key, so 1 and 1.0 land in the same group.
func (c Cell) Key() string {
	var sb strings.Builder
	c.writeKey(&sb)
	return sb.String()
}

func (c Cell) writeKey(sb *strings.Builder) {
	switch c.Type {
	case CellNull:
		sb.WriteString("z")
	case CellBool:
		if c.Bool {
			sb.WriteString("b1")
		} else {
			sb.WriteString("b0")
		}
	case CellInt:
		sb.WriteString("n")
		sb.WriteString(strconv.FormatInt(c.Int, 10))
	case CellFloat:
		sb.WriteString("n")
		sb.WriteString(FloatKey(c.Float))
	case CellString:
		sb.WriteString("s")
		sb.WriteString(strconv.Itoa(len(c.Str)))
		sb.WriteString(":")
		sb.WriteString(c.Str)
	case CellList:
		sb.WriteString("l[")
		for i, v := range c.List {
			if i > 0 {
				sb.WriteString(",")
			}
			v.writeKey(sb)
		}
		sb.WriteString("]")
	case CellOpaque:
		sb.WriteString("o")
		if k, ok := c.Any.(Keyer); ok {
			sb.WriteString(k.Key())
		} else {
			sb.WriteString(fmt.Sprintf("%#v", c.Any))
		}
	}
}

// FloatKey renders a float so that integral values match their integer
// rendering.
func FloatKey(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "+Inf"
		}
		return "-Inf"
	}
	if f == math.Trunc(f) {
		if f >= math.MinInt64 && f < math.MaxInt64 {
			return strconv.FormatInt(int64(f), 10)
		}
		i, _ := new(big.Float).SetFloat64(f).Int(nil)
		return i.String()
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Compare orders two cells. Null sorts first; booleans, numbers and strings
// compare natively. Anything else, including NaN, is ErrIncomparable.
func Compare(a, b Cell) (int, error) {
	if a.IsNull() || b.IsNull() {
		switch {
		case a.IsNull() && b.IsNull():
			return 0, nil
		case a.IsNull():
			return -1, nil
		default:
			return 1, nil
		}
	}
	if a.Type == CellBool && b.Type == CellBool {
		switch {
		case a.Bool == b.Bool:
			return 0, nil
		case !a.Bool:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if a.Type == CellString && b.Type == CellString {
		return strings.Compare(a.Str, b.Str), nil
	}
	if a.Type == CellInt && b.Type == CellInt {
		switch {
		case a.Int < b.Int:
			return -1, nil
		case a.Int > b.Int:
			return 1, nil
		}
		return 0, nil
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if aok && bok {
		if math.IsNaN(af) || math.IsNaN(bf) {
			return 0, ErrIncomparable
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s and %s", ErrIncomparable, a.Type, b.Type)
}

// SortCompare is Compare with incomparable pairs treated as equal.
func SortCompare(a, b Cell) int {
	c, err := Compare(a, b)
	if err != nil {
		return 0
	}
	return c
}

// Equal reports structural equality with numeric cross-type promotion.
func Equal(a, b Cell) bool {
	if a.Type == CellList && b.Type == CellList {
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	if a.Type == CellOpaque || b.Type == CellOpaque {
		if a.Type != b.Type {
			return false
		}
		return a.Key() == b.Key()
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if aok && bok {
		if a.Type == CellInt && b.Type == CellInt {
			return a.Int == b.Int
		}
		return af == bf
	}
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case CellNull:
		return true
	case CellString:
		return a.Str == b.Str
	case CellBool:
		return a.Bool == b.Bool
	}
	return false
}
