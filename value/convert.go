package value

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/datasetq/datasetq/table"
)

// FromCell converts an engine cell to a Value. Opaque cells carry the
// Value they were built from.
func FromCell(c table.Cell) Value {
	switch c.Type {
	case table.CellNull:
		return Null()
	case table.CellInt:
		return IntVal(c.Int)
	case table.CellFloat:
		return FloatVal(c.Float)
	case table.CellString:
		return StrVal(c.Str)
	case table.CellBool:
		return BoolVal(c.Bool)
	case table.CellList:
		out := make([]Value, len(c.List))
		for i, e := range c.List {
			out[i] = FromCell(e)
		}
		return ArrayVal(out)
	case table.CellOpaque:
		if v, ok := c.Any.(Value); ok {
			return v
		}
		return FromGo(c.Any)
	}
	return Null()
}

// ToCell converts a Value to an engine cell. Variants the engine has no
// native type for are stored opaquely.
func ToCell(v Value) table.Cell {
	switch v.Kind {
	case KindNull:
		return table.Null()
	case KindBool:
		return table.BoolVal(v.Bool)
	case KindInt:
		return table.IntVal(v.Int)
	case KindFloat:
		return table.FloatVal(v.Float)
	case KindString:
		return table.StrVal(v.Str)
	case KindArray:
		out := make([]table.Cell, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = ToCell(e)
		}
		return table.ListVal(out)
	}
	return table.OpaqueVal(v)
}

// ToCells converts a slice of values.
func ToCells(vs []Value) []table.Cell {
	out := make([]table.Cell, len(vs))
	for i, v := range vs {
		out[i] = ToCell(v)
	}
	return out
}

// FromCells converts a slice of cells.
func FromCells(cs []table.Cell) []Value {
	out := make([]Value, len(cs))
	for i, c := range cs {
		out[i] = FromCell(c)
	}
	return out
}

// ColumnValues returns the cells of a column as values.
func ColumnValues(c *table.Column) []Value {
	out := make([]Value, c.Len())
	for i := range out {
		out[i] = FromCell(c.Get(i))
	}
	return out
}

// EachRow calls fn with every row of t as an Object, one row at a time.
func EachRow(t *table.Table, fn func(i int, row Value) error) error {
	names := t.Columns()
	cols := make([]*table.Column, len(names))
	for i := range names {
		cols[i] = t.ColumnAt(i)
	}
	for r := 0; r < t.NumRows(); r++ {
		obj := make(map[string]Value, len(names))
		for c, name := range names {
			obj[name] = FromCell(cols[c].Get(r))
		}
		if err := fn(r, ObjectVal(obj)); err != nil {
			return err
		}
	}
	return nil
}

// TableToArray converts a table into an Array of row Objects.
func TableToArray(t *table.Table) Value {
	rows := make([]Value, 0, t.NumRows())
	_ = EachRow(t, func(_ int, row Value) error {
		rows = append(rows, row)
		return nil
	})
	return ArrayVal(rows)
}

// RowAt returns row i of t as an Object.
func RowAt(t *table.Table, i int) Value {
	obj := make(map[string]Value, t.NumCols())
	for c, name := range t.Columns() {
		obj[name] = FromCell(t.ColumnAt(c).Get(i))
	}
	return ObjectVal(obj)
}

// ArrayToTable builds a table from an Array of Objects. Columns follow the
// given order; without one, each object contributes its unseen keys in
// sorted order. Keys missing from a row become null.
func ArrayToTable(rows []Value, columns ...string) (*table.Table, error) {
	if len(columns) == 0 {
		seen := make(map[string]bool)
		for i, row := range rows {
			if row.Kind != KindObject {
				return nil, typeErrf("to_table", row.Kind, "row %d is %s, not object", i, row.TypeName())
			}
			for _, k := range row.SortedKeys() {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
		}
	}
	b := table.NewBuilder(columns)
	cells := make([]table.Cell, len(columns))
	for i, row := range rows {
		if row.Kind != KindObject {
			return nil, typeErrf("to_table", row.Kind, "row %d is %s, not object", i, row.TypeName())
		}
		for c, name := range columns {
			cells[c] = ToCell(row.Obj[name])
		}
		b.AddRow(cells)
	}
	return b.Build()
}

// AsTable returns the table behind v, materializing deferred tables and
// bridging Arrays of Objects.
func AsTable(op string, v Value) (*table.Table, error) {
	switch v.Kind {
	case KindTable:
		return v.Table, nil
	case KindDeferredTable:
		t, err := v.Lazy.Collect()
		if err != nil {
			return nil, opErr(op, err)
		}
		return t, nil
	case KindArray:
		return ArrayToTable(v.Arr)
	}
	return nil, typeErr(op, v)
}

// IsRecords reports whether v is an Array whose elements are all Objects.
func IsRecords(v Value) bool {
	if v.Kind != KindArray {
		return false
	}
	for _, e := range v.Arr {
		if e.Kind != KindObject {
			return false
		}
	}
	return true
}

// FromGo converts decoded data (JSON, YAML, Avro, SQL rows) to a Value.
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return BoolVal(t)
	case int:
		return IntVal(int64(t))
	case int8:
		return IntVal(int64(t))
	case int16:
		return IntVal(int64(t))
	case int32:
		return IntVal(int64(t))
	case int64:
		return IntVal(t)
	case uint8:
		return IntVal(int64(t))
	case uint16:
		return IntVal(int64(t))
	case uint32:
		return IntVal(int64(t))
	case uint:
		return BigVal(new(big.Int).SetUint64(uint64(t)))
	case uint64:
		return BigVal(new(big.Int).SetUint64(t))
	case float32:
		return FloatVal(float64(t))
	case float64:
		return FloatVal(t)
	case *big.Int:
		return BigVal(t)
	case json.Number:
		return parseNumber(string(t))
	case string:
		return StrVal(t)
	case []byte:
		return StrVal(string(t))
	case time.Time:
		return StrVal(t.Format(time.RFC3339Nano))
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromGo(e)
		}
		return ArrayVal(out)
	case []map[string]any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromGo(e)
		}
		return ArrayVal(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromGo(e)
		}
		return ObjectVal(out)
	case map[any]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = FromGo(e)
		}
		return ObjectVal(out)
	}
	return StrVal(fmt.Sprint(x))
}

func parseNumber(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntVal(i)
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return BigVal(b)
	}
	f, _ := strconv.ParseFloat(s, 64)
	return FloatVal(f)
}

// ToGo converts v to plain Go data suitable for encoders. Tables become
// slices of row maps.
func ToGo(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindBigInt:
		return new(big.Int).Set(v.Big)
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = ToGo(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = ToGo(e)
		}
		return out
	case KindTable:
		return ToGo(TableToArray(v.Table))
	case KindDeferredTable:
		t, err := v.Lazy.Collect()
		if err != nil {
			return nil
		}
		return ToGo(TableToArray(t))
	case KindColumn:
		return ToGo(ArrayVal(ColumnValues(v.Col)))
	}
	return nil
}
