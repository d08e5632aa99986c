package table

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DataType is the physical type of a Column.
type DataType int

const (
	TypeNull DataType = iota // every cell is null
	TypeInt64
	TypeFloat64
	TypeString
	TypeBool
	TypeList
	TypeAny // mixed cells, kept as-is
)

func (d DataType) String() string {
	switch d {
	case TypeNull:
		return "null"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "utf8"
	case TypeBool:
		return "bool"
	case TypeList:
		return "list"
	case TypeAny:
		return "any"
	default:
		return "?"
	}
}

// Arrow's Go allocator is garbage collected, so columns never need an
// explicit Release.
var alloc = memory.DefaultAllocator

// Column is a named, immutable vector of cells. Primitive types are backed
// by arrow arrays; lists and mixed columns keep their cells directly.
type Column struct {
	name  string
	dtype DataType
	arr   arrow.Array
	cells []Cell
	n     int
}

// NewColumn builds a column from cells, inferring the narrowest type that
// holds all of them. Int and float cells together make a float column.
func NewColumn(name string, cells []Cell) *Column {
	dtype := inferType(cells)
	c := &Column{name: name, dtype: dtype, n: len(cells)}
	switch dtype {
	case TypeNull:
	case TypeInt64:
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		b.Reserve(len(cells))
		for _, v := range cells {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.Int)
			}
		}
		c.arr = b.NewInt64Array()
	case TypeFloat64:
		b := array.NewFloat64Builder(alloc)
		defer b.Release()
		b.Reserve(len(cells))
		for _, v := range cells {
			if f, ok := v.AsFloat(); ok {
				b.Append(f)
			} else {
				b.AppendNull()
			}
		}
		c.arr = b.NewFloat64Array()
	case TypeString:
		b := array.NewStringBuilder(alloc)
		defer b.Release()
		b.Reserve(len(cells))
		for _, v := range cells {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.Str)
			}
		}
		c.arr = b.NewStringArray()
	case TypeBool:
		b := array.NewBooleanBuilder(alloc)
		defer b.Release()
		b.Reserve(len(cells))
		for _, v := range cells {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.Bool)
			}
		}
		c.arr = b.NewBooleanArray()
	default:
		c.cells = append([]Cell(nil), cells...)
	}
	return c
}

// NullColumn returns a column of n nulls.
func NullColumn(name string, n int) *Column {
	return &Column{name: name, dtype: TypeNull, n: n}
}

// Repeat returns a column holding v n times.
func Repeat(name string, v Cell, n int) *Column {
	cells := make([]Cell, n)
	for i := range cells {
		cells[i] = v
	}
	return NewColumn(name, cells)
}

func inferType(cells []Cell) DataType {
	dtype := TypeNull
	for _, v := range cells {
		var t DataType
		switch v.Type {
		case CellNull:
			continue
		case CellInt:
			t = TypeInt64
		case CellFloat:
			t = TypeFloat64
		case CellString:
			t = TypeString
		case CellBool:
			t = TypeBool
		case CellList:
			t = TypeList
		default:
			return TypeAny
		}
		switch {
		case dtype == TypeNull:
			dtype = t
		case dtype == t:
		case (dtype == TypeInt64 && t == TypeFloat64) || (dtype == TypeFloat64 && t == TypeInt64):
			dtype = TypeFloat64
		default:
			return TypeAny
		}
	}
	return dtype
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// DataType returns the physical type.
func (c *Column) DataType() DataType { return c.dtype }

// Len returns the number of cells.
func (c *Column) Len() int { return c.n }

// IsNull reports whether cell i is null.
func (c *Column) IsNull(i int) bool {
	switch c.dtype {
	case TypeNull:
		return true
	case TypeList, TypeAny:
		return c.cells[i].IsNull()
	default:
		return c.arr.IsNull(i)
	}
}

// NullCount returns the number of null cells.
func (c *Column) NullCount() int {
	switch c.dtype {
	case TypeNull:
		return c.n
	case TypeList, TypeAny:
		n := 0
		for _, v := range c.cells {
			if v.IsNull() {
				n++
			}
		}
		return n
	default:
		return c.arr.NullN()
	}
}

// Get returns cell i.
func (c *Column) Get(i int) Cell {
	if i < 0 || i >= c.n {
		return Null()
	}
	switch c.dtype {
	case TypeNull:
		return Null()
	case TypeInt64:
		a := c.arr.(*array.Int64)
		if a.IsNull(i) {
			return Null()
		}
		return IntVal(a.Value(i))
	case TypeFloat64:
		a := c.arr.(*array.Float64)
		if a.IsNull(i) {
			return Null()
		}
		return FloatVal(a.Value(i))
	case TypeString:
		a := c.arr.(*array.String)
		if a.IsNull(i) {
			return Null()
		}
		return StrVal(a.Value(i))
	case TypeBool:
		a := c.arr.(*array.Boolean)
		if a.IsNull(i) {
			return Null()
		}
		return BoolVal(a.Value(i))
	default:
		return c.cells[i]
	}
}

// Cells copies the column out as cells.
func (c *Column) Cells() []Cell {
	out := make([]Cell, c.n)
	for i := range out {
		out[i] = c.Get(i)
	}
	return out
}

// Rename returns the same data under a new name.
func (c *Column) Rename(name string) *Column {
	cp := *c
	cp.name = name
	return &cp
}

// Slice returns rows [start, end) sharing the underlying storage.
func (c *Column) Slice(start, end int) *Column {
	if start < 0 {
		start = 0
	}
	if end > c.n {
		end = c.n
	}
	if end < start {
		end = start
	}
	out := &Column{name: c.name, dtype: c.dtype, n: end - start}
	switch c.dtype {
	case TypeNull:
	case TypeList, TypeAny:
		out.cells = c.cells[start:end]
	default:
		out.arr = array.NewSlice(c.arr, int64(start), int64(end))
	}
	return out
}

// Take gathers the given row indices. A negative index yields null, which
// joins use for the unmatched side.
func (c *Column) Take(idx []int) *Column {
	out := &Column{name: c.name, dtype: c.dtype, n: len(idx)}
	switch c.dtype {
	case TypeNull:
	case TypeInt64:
		a := c.arr.(*array.Int64)
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		b.Reserve(len(idx))
		for _, i := range idx {
			if i < 0 || a.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(a.Value(i))
			}
		}
		out.arr = b.NewInt64Array()
	case TypeFloat64:
		a := c.arr.(*array.Float64)
		b := array.NewFloat64Builder(alloc)
		defer b.Release()
		b.Reserve(len(idx))
		for _, i := range idx {
			if i < 0 || a.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(a.Value(i))
			}
		}
		out.arr = b.NewFloat64Array()
	case TypeString:
		a := c.arr.(*array.String)
		b := array.NewStringBuilder(alloc)
		defer b.Release()
		b.Reserve(len(idx))
		for _, i := range idx {
			if i < 0 || a.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(a.Value(i))
			}
		}
		out.arr = b.NewStringArray()
	case TypeBool:
		a := c.arr.(*array.Boolean)
		b := array.NewBooleanBuilder(alloc)
		defer b.Release()
		b.Reserve(len(idx))
		for _, i := range idx {
			if i < 0 || a.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(a.Value(i))
			}
		}
		out.arr = b.NewBooleanArray()
	default:
		out.cells = make([]Cell, len(idx))
		for k, i := range idx {
			if i < 0 {
				out.cells[k] = Null()
			} else {
				out.cells[k] = c.cells[i]
			}
		}
	}
	return out
}

// EqualColumns reports whether two columns hold equal cells in order.
func EqualColumns(a, b *Column) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !Equal(a.Get(i), b.Get(i)) {
			return false
		}
	}
	return true
}

func (c *Column) String() string {
	return fmt.Sprintf("%s: %s[%d]", c.name, c.dtype, c.n)
}
