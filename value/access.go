package value

import (
	"fmt"
	"math"

	"github.com/datasetq/datasetq/table"
)

// Field looks up name. A missing object key is null, not an error. On a
// table it projects a single column; on a deferred table the projection
// is added to the plan.
func Field(v Value, name string) (Value, error) {
	switch v.Kind {
	case KindNull:
		return Null(), nil
	case KindObject:
		if e, ok := v.Obj[name]; ok {
			return e, nil
		}
		return Null(), nil
	case KindTable:
		c, ok := v.Table.Column(name)
		if !ok {
			return Null(), &OpError{Op: "." + name, Msg: fmt.Sprintf("column %q", name), Err: ErrMissingColumn}
		}
		return ColumnVal(c), nil
	case KindDeferredTable:
		return DeferredVal(v.Lazy.Select(name)), nil
	}
	return Null(), typeErrf("."+name, v.Kind, "cannot index %s with %q", v.TypeName(), name)
}

// Index returns element i. Arrays, strings and columns accept negative
// indices counting from the end and yield null out of range. A table
// index returns that row as an object; a string index on an object or
// table is field access.
func Index(v Value, idx Value) (Value, error) {
	if idx.Kind == KindString {
		switch v.Kind {
		case KindObject, KindTable, KindDeferredTable, KindNull:
			return Field(v, idx.Str)
		}
		return Null(), typeErrf("index", v.Kind, "cannot index %s with string %q", v.TypeName(), idx.Str)
	}
	if v.Kind == KindNull {
		return Null(), nil
	}
	if idx.Kind == KindArray && v.Kind == KindArray {
		return indicesOf(v, idx), nil
	}
	i, err := indexInt(v, idx)
	if err != nil {
		return Null(), err
	}
	switch v.Kind {
	case KindArray:
		if i, ok := normIndex(i, len(v.Arr)); ok {
			return v.Arr[i], nil
		}
		return Null(), nil
	case KindString:
		rs := []rune(v.Str)
		if i, ok := normIndex(i, len(rs)); ok {
			return StrVal(string(rs[i])), nil
		}
		return Null(), nil
	case KindColumn:
		if i, ok := normIndex(i, v.Col.Len()); ok {
			return FromCell(v.Col.Get(i)), nil
		}
		return Null(), nil
	case KindTable:
		if i, ok := normIndex(i, v.Table.NumRows()); ok {
			return RowAt(v.Table, i), nil
		}
		return Null(), nil
	case KindDeferredTable:
		lf := v.Lazy
		if i >= 0 {
			lf = lf.Slice(i, 1)
			i = 0
		}
		t, err := lf.Collect()
		if err != nil {
			return Null(), opErr("index", err)
		}
		return Index(TableVal(t), IntVal(int64(i)))
	}
	return Null(), typeErrf("index", v.Kind, "cannot index %s with number", v.TypeName())
}

func indexInt(v Value, idx Value) (int, error) {
	switch idx.Kind {
	case KindInt:
		switch {
		case idx.Int > MaxArrayIndex:
			return MaxArrayIndex + 1, nil
		case idx.Int < -MaxArrayIndex:
			return -MaxArrayIndex - 1, nil
		}
		return int(idx.Int), nil
	case KindFloat:
		if math.IsNaN(idx.Float) {
			return 0, typeErrf("index", v.Kind, "cannot index with NaN")
		}
		f := math.Floor(idx.Float)
		if f > MaxArrayIndex {
			return MaxArrayIndex + 1, nil
		}
		if f < -MaxArrayIndex {
			return -MaxArrayIndex - 1, nil
		}
		return int(f), nil
	case KindBigInt:
		if idx.Big.Sign() < 0 {
			return -MaxArrayIndex - 1, nil
		}
		return MaxArrayIndex + 1, nil
	}
	return 0, typeErrf("index", v.Kind, "cannot index %s with %s", v.TypeName(), idx.TypeName())
}

// MaxArrayIndex is the largest index an assignment may extend an array to.
const MaxArrayIndex = 1<<29 - 1

func normIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}

// indicesOf returns the start offsets where sub occurs in v.
func indicesOf(v, sub Value) Value {
	out := []Value{}
	if len(sub.Arr) == 0 {
		return ArrayVal(out)
	}
	for i := 0; i+len(sub.Arr) <= len(v.Arr); i++ {
		match := true
		for j := range sub.Arr {
			if !Equal(v.Arr[i+j], sub.Arr[j]) {
				match = false
				break
			}
		}
		if match {
			out = append(out, IntVal(int64(i)))
		}
	}
	return ArrayVal(out)
}

// Slice returns the half-open range [from, to). Null bounds are open;
// negative bounds count from the end; both clamp to the length.
func Slice(v Value, from, to Value) (Value, error) {
	if v.Kind == KindNull {
		return Null(), nil
	}
	lo, hi, err := sliceArgs(v, from, to)
	if err != nil {
		return Null(), err
	}
	if v.Kind == KindDeferredTable {
		// bounds that do not count from the end need no row count
		if (lo.open || lo.n >= 0) && (hi.open || hi.n >= 0) {
			start := 0
			if !lo.open {
				start = lo.n
			}
			if hi.open {
				return DeferredVal(v.Lazy.Map(fmt.Sprintf("slice(%d, null)", start), func(t *table.Table) (*table.Table, error) {
					return t.Slice(start, t.NumRows()), nil
				})), nil
			}
			return DeferredVal(v.Lazy.Slice(start, max(0, hi.n-start))), nil
		}
		return DeferredVal(v.Lazy.Map(fmt.Sprintf("slice(%s, %s)", from, to), func(t *table.Table) (*table.Table, error) {
			s, e := lo.resolve(t.NumRows(), 0), hi.resolve(t.NumRows(), t.NumRows())
			return t.Slice(s, max(0, e-s)), nil
		})), nil
	}
	n, ok := v.Len()
	if !ok {
		return Null(), typeErrf("slice", v.Kind, "cannot slice %s", v.TypeName())
	}
	s, e := lo.resolve(n, 0), hi.resolve(n, n)
	if e < s {
		e = s
	}
	switch v.Kind {
	case KindArray:
		out := make([]Value, e-s)
		copy(out, v.Arr[s:e])
		return ArrayVal(out), nil
	case KindString:
		return StrVal(string([]rune(v.Str)[s:e])), nil
	case KindTable:
		return TableVal(v.Table.Slice(s, e-s)), nil
	case KindColumn:
		return ColumnVal(v.Col.Slice(s, e)), nil
	}
	return Null(), typeErrf("slice", v.Kind, "cannot slice %s", v.TypeName())
}

type bound struct {
	n    int
	open bool
}

func (b bound) resolve(length, def int) int {
	if b.open {
		return def
	}
	i := b.n
	if i < 0 {
		i += length
	}
	return min(max(i, 0), length)
}

func sliceArgs(v, from, to Value) (bound, bound, error) {
	conv := func(x Value) (bound, error) {
		switch x.Kind {
		case KindNull:
			return bound{open: true}, nil
		case KindInt:
			return bound{n: int(x.Int)}, nil
		case KindFloat:
			return bound{n: int(math.Floor(x.Float))}, nil
		}
		return bound{}, typeErrf("slice", v.Kind, "slice bounds must be numbers, got %s", x.TypeName())
	}
	lo, err := conv(from)
	if err != nil {
		return bound{}, bound{}, err
	}
	hi, err := conv(to)
	return lo, hi, err
}

// Iterate expands v into its elements: an array's items, an object's values
// in key order, a table's rows as objects, a column's cells.
func Iterate(v Value) ([]Value, error) {
	switch v.Kind {
	case KindArray:
		return v.Arr, nil
	case KindObject:
		out := make([]Value, 0, len(v.Obj))
		for _, k := range v.SortedKeys() {
			out = append(out, v.Obj[k])
		}
		return out, nil
	case KindTable:
		out := make([]Value, 0, v.Table.NumRows())
		err := EachRow(v.Table, func(_ int, row Value) error {
			out = append(out, row)
			return nil
		})
		return out, err
	case KindDeferredTable:
		t, err := v.Lazy.Collect()
		if err != nil {
			return nil, opErr(".[]", err)
		}
		return Iterate(TableVal(t))
	case KindColumn:
		return ColumnValues(v.Col), nil
	}
	return nil, typeErrf(".[]", v.Kind, "cannot iterate over %s", v.TypeName())
}

// GetPath follows a path of field names and indices.
func GetPath(v Value, path []Value) (Value, error) {
	cur := v
	for _, p := range path {
		var err error
		cur, err = Index(cur, p)
		if err != nil {
			return Null(), err
		}
	}
	return cur, nil
}

// SetPath returns a copy of v with the value at path replaced. Missing
// intermediate containers are created. Setting a single field on a table
// adds or replaces a column, broadcasting scalars.
func SetPath(v Value, path []Value, nv Value) (Value, error) {
	if len(path) == 0 {
		return nv, nil
	}
	p := path[0]
	switch v.Kind {
	case KindTable:
		if p.Kind != KindString || len(path) != 1 {
			return Null(), typeErrf("assign", v.Kind, "tables only support assigning a single column")
		}
		c, err := columnFor(p.Str, nv, v.Table.NumRows())
		if err != nil {
			return Null(), err
		}
		t, err := v.Table.WithColumn(c)
		if err != nil {
			return Null(), opErr("assign", err)
		}
		return TableVal(t), nil
	case KindDeferredTable:
		if p.Kind != KindString || len(path) != 1 {
			return Null(), typeErrf("assign", v.Kind, "tables only support assigning a single column")
		}
		name := p.Str
		return DeferredVal(v.Lazy.Map("assign ."+name, func(t *table.Table) (*table.Table, error) {
			c, err := columnFor(name, nv, t.NumRows())
			if err != nil {
				return nil, err
			}
			return t.WithColumn(c)
		})), nil
	}
	switch p.Kind {
	case KindString:
		if v.Kind != KindObject && v.Kind != KindNull {
			return Null(), typeErrf("assign", v.Kind, "cannot set field %q on %s", p.Str, v.TypeName())
		}
		out := make(map[string]Value, len(v.Obj)+1)
		for k, e := range v.Obj {
			out[k] = e
		}
		child, err := SetPath(out[p.Str], path[1:], nv)
		if err != nil {
			return Null(), err
		}
		out[p.Str] = child
		return ObjectVal(out), nil
	case KindInt, KindBigInt, KindFloat:
		if v.Kind != KindArray && v.Kind != KindNull {
			return Null(), typeErrf("assign", v.Kind, "cannot set index on %s", v.TypeName())
		}
		i, err := indexInt(v, p)
		if err != nil {
			return Null(), err
		}
		if i > MaxArrayIndex {
			return Null(), opErrf("assign", "array index %s too large", p)
		}
		if i < 0 {
			i += len(v.Arr)
			if i < 0 {
				return Null(), opErrf("assign", "index %d out of bounds", i-len(v.Arr))
			}
		}
		n := max(len(v.Arr), i+1)
		out := make([]Value, n)
		copy(out, v.Arr)
		for j := len(v.Arr); j < n; j++ {
			out[j] = Null()
		}
		child, err := SetPath(out[i], path[1:], nv)
		if err != nil {
			return Null(), err
		}
		out[i] = child
		return ArrayVal(out), nil
	}
	return Null(), typeErrf("assign", v.Kind, "invalid path component %s", p.TypeName())
}

func columnFor(name string, v Value, n int) (*table.Column, error) {
	switch v.Kind {
	case KindColumn:
		if v.Col.Len() != n {
			return nil, opErrf("assign", "column %q has %d rows, table has %d", name, v.Col.Len(), n)
		}
		return v.Col.Rename(name), nil
	case KindArray:
		if len(v.Arr) != n {
			return nil, opErrf("assign", "array of %d values for a table of %d rows", len(v.Arr), n)
		}
		return table.NewColumn(name, ToCells(v.Arr)), nil
	case KindTable, KindDeferredTable:
		return nil, typeErrf("assign", v.Kind, "cannot store a table in a column")
	}
	return table.Repeat(name, ToCell(v), n), nil
}

// DeletePath returns a copy of v without the value at path. Deleting a
// field of a table drops the column.
func DeletePath(v Value, path []Value) (Value, error) {
	if len(path) == 0 {
		return Null(), nil
	}
	p := path[0]
	last := len(path) == 1
	switch v.Kind {
	case KindNull:
		return Null(), nil
	case KindTable:
		if p.Kind != KindString || !last {
			return Null(), typeErrf("del", v.Kind, "tables only support deleting columns")
		}
		t, err := v.Table.Drop(p.Str)
		if err != nil {
			return Null(), opErr("del", err)
		}
		return TableVal(t), nil
	case KindDeferredTable:
		if p.Kind != KindString || !last {
			return Null(), typeErrf("del", v.Kind, "tables only support deleting columns")
		}
		return DeferredVal(v.Lazy.Drop(p.Str)), nil
	case KindObject:
		if p.Kind != KindString {
			return Null(), typeErrf("del", v.Kind, "cannot delete %s key from object", p.TypeName())
		}
		out := make(map[string]Value, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = e
		}
		if last {
			delete(out, p.Str)
		} else if child, ok := out[p.Str]; ok {
			nc, err := DeletePath(child, path[1:])
			if err != nil {
				return Null(), err
			}
			out[p.Str] = nc
		}
		return ObjectVal(out), nil
	case KindArray:
		i, err := indexInt(v, p)
		if err != nil {
			return Null(), err
		}
		i, ok := normIndex(i, len(v.Arr))
		if !ok {
			return v, nil
		}
		out := make([]Value, 0, len(v.Arr))
		out = append(out, v.Arr[:i]...)
		if !last {
			nc, err := DeletePath(v.Arr[i], path[1:])
			if err != nil {
				return Null(), err
			}
			out = append(out, nc)
		}
		out = append(out, v.Arr[i+1:]...)
		return ArrayVal(out), nil
	}
	return Null(), typeErrf("del", v.Kind, "cannot delete from %s", v.TypeName())
}
