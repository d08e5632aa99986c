// Package table is the columnar engine behind Table and DeferredTable
// values: arrow-backed columns, eager frame operations, vectorised
// expressions, grouping, joins, windows and lazily optimised query plans.
package table

import (
	"fmt"
	"strings"
)

// Table is the core data structure: equally long, uniquely named columns.
type Table struct {
	cols  []*Column
	nrows int
}

// New creates a table from columns, which must have equal lengths and
// distinct names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{cols: cols}
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if seen[c.Name()] {
			return nil, fmt.Errorf("duplicate column %q", c.Name())
		}
		seen[c.Name()] = true
		if i == 0 {
			t.nrows = c.Len()
		} else if c.Len() != t.nrows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), t.nrows)
		}
	}
	return t, nil
}

// Empty returns a table with the given columns and no rows.
func Empty(columns []string) *Table {
	cols := make([]*Column, len(columns))
	for i, name := range columns {
		cols[i] = NullColumn(name, 0)
	}
	return &Table{cols: cols}
}

// withRows builds a table whose row count is known even without columns.
func withRows(cols []*Column, nrows int) *Table {
	return &Table{cols: cols, nrows: nrows}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.nrows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name()
	}
	return names
}

// ColIndex returns the index of a column by name, or -1.
func (t *Table) ColIndex(name string) int {
	for i, c := range t.cols {
		if c.Name() == name {
			return i
		}
	}
	return -1
}

// Column returns a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	idx := t.ColIndex(name)
	if idx < 0 {
		return nil, false
	}
	return t.cols[idx], true
}

// ColumnAt returns the i-th column.
func (t *Table) ColumnAt(i int) *Column {
	return t.cols[i]
}

// Get returns the value at a given row and column name.
func (t *Table) Get(row int, col string) Cell {
	c, ok := t.Column(col)
	if !ok || row < 0 || row >= t.nrows {
		return Null()
	}
	return c.Get(row)
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Cell {
	vals := make([]Cell, len(t.cols))
	for j, c := range t.cols {
		vals[j] = c.Get(i)
	}
	return vals
}

// Equal reports whether two tables have the same columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t.nrows != o.nrows || len(t.cols) != len(o.cols) {
		return false
	}
	for i := range t.cols {
		if t.cols[i].Name() != o.cols[i].Name() || !EqualColumns(t.cols[i], o.cols[i]) {
			return false
		}
	}
	return true
}

// Builder accumulates rows before they are laid out as columns.
type Builder struct {
	columns []string
	cells   [][]Cell
	nrows   int
}

// NewBuilder creates a row builder for the given columns.
func NewBuilder(columns []string) *Builder {
	return &Builder{
		columns: columns,
		cells:   make([][]Cell, len(columns)),
	}
}

// AddRow appends a row. Missing trailing values are null.
func (b *Builder) AddRow(values []Cell) {
	for i := range b.columns {
		if i < len(values) {
			b.cells[i] = append(b.cells[i], values[i])
		} else {
			b.cells[i] = append(b.cells[i], Null())
		}
	}
	b.nrows++
}

// Build lays the accumulated rows out as a table.
func (b *Builder) Build() (*Table, error) {
	cols := make([]*Column, len(b.columns))
	forEachColumn(len(b.columns), func(i int) {
		cols[i] = NewColumn(b.columns[i], b.cells[i])
	})
	t, err := New(cols...)
	if err != nil {
		return nil, err
	}
	t.nrows = b.nrows
	return t, nil
}

// String returns a compact representation of the table.
func (t *Table) String() string {
	if t.nrows == 0 {
		return "[" + strings.Join(t.Columns(), ", ") + "] (0 rows)"
	}

	var sb strings.Builder
	sb.WriteString("[ ")
	for i := 0; i < t.nrows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("{")
		for j, c := range t.cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Name())
			sb.WriteString(":")
			sb.WriteString(c.Get(i).AsString())
		}
		sb.WriteString("}")
	}
	sb.WriteString(" ]")
	return sb.String()
}
