package table

import (
	"fmt"
	"sort"
	"strings"
)

// SortKey is one column of a multi-key sort.
type SortKey struct {
	Column     string
	Descending bool
}

func (k SortKey) String() string {
	if k.Descending {
		return k.Column + " desc"
	}
	return k.Column
}

// Select projects columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, len(names))
	for i, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("select: %w: %q", ErrColumnNotFound, name)
		}
		cols[i] = c
	}
	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out.nrows = t.nrows
	return out, nil
}

// Drop removes columns.
func (t *Table) Drop(names ...string) (*Table, error) {
	removeSet := make(map[string]bool)
	for _, name := range names {
		if t.ColIndex(name) < 0 {
			return nil, fmt.Errorf("drop: %w: %q", ErrColumnNotFound, name)
		}
		removeSet[name] = true
	}

	var keep []*Column
	for _, c := range t.cols {
		if !removeSet[c.Name()] {
			keep = append(keep, c)
		}
	}
	return withRows(keep, t.nrows), nil
}

// Rename renames one column.
func (t *Table) Rename(old, new string) (*Table, error) {
	idx := t.ColIndex(old)
	if idx < 0 {
		return nil, fmt.Errorf("rename: %w: %q", ErrColumnNotFound, old)
	}
	if old != new && t.ColIndex(new) >= 0 {
		return nil, fmt.Errorf("rename: column %q already exists", new)
	}
	cols := make([]*Column, len(t.cols))
	copy(cols, t.cols)
	cols[idx] = cols[idx].Rename(new)
	return withRows(cols, t.nrows), nil
}

// WithColumn replaces the column of the same name or appends a new one.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if len(t.cols) > 0 && c.Len() != t.nrows {
		return nil, fmt.Errorf("with_column: column %q has %d rows, expected %d", c.Name(), c.Len(), t.nrows)
	}
	cols := make([]*Column, len(t.cols), len(t.cols)+1)
	copy(cols, t.cols)
	if idx := t.ColIndex(c.Name()); idx >= 0 {
		cols[idx] = c
	} else {
		cols = append(cols, c)
	}
	return withRows(cols, c.Len()), nil
}

// Slice returns length rows starting at offset. A negative offset counts
// from the end. Both bounds saturate.
func (t *Table) Slice(offset, length int) *Table {
	if offset < 0 {
		offset += t.nrows
		if offset < 0 {
			offset = 0
		}
	}
	if offset > t.nrows {
		offset = t.nrows
	}
	if length < 0 {
		length = 0
	}
	end := offset + length
	if end > t.nrows || end < offset {
		end = t.nrows
	}
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Slice(offset, end)
	}
	return withRows(cols, end-offset)
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	return t.Slice(0, n)
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	if n > t.nrows {
		n = t.nrows
	}
	if n < 0 {
		n = 0
	}
	return t.Slice(t.nrows-n, n)
}

// Take gathers rows by index; negative indices produce null rows.
func (t *Table) Take(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	forEachColumn(len(t.cols), func(i int) {
		cols[i] = t.cols[i].Take(idx)
	})
	return withRows(cols, len(idx))
}

// Filter keeps the rows whose mask cell is truthy.
func (t *Table) Filter(mask *Column) (*Table, error) {
	if mask.Len() != t.nrows {
		return nil, fmt.Errorf("filter: mask has %d rows, expected %d", mask.Len(), t.nrows)
	}
	idx := make([]int, 0, t.nrows)
	for i := 0; i < t.nrows; i++ {
		if mask.Get(i).Truthy() {
			idx = append(idx, i)
		}
	}
	return t.Take(idx), nil
}

// FilterExpr evaluates a predicate and keeps matching rows.
func (t *Table) FilterExpr(pred Expr) (*Table, error) {
	mask, err := pred.Eval(t)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return t.Filter(mask)
}

// WithExpr evaluates an expression and stores it under name.
func (t *Table) WithExpr(name string, e Expr) (*Table, error) {
	c, err := e.Eval(t)
	if err != nil {
		return nil, fmt.Errorf("with_column %q: %w", name, err)
	}
	return t.WithColumn(c.Rename(name))
}

// SortBy sorts rows stably by several keys. Nulls sort first; incomparable
// pairs keep their input order.
func (t *Table) SortBy(keys ...SortKey) (*Table, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, ok := t.Column(k.Column)
		if !ok {
			return nil, fmt.Errorf("sort: %w: %q", ErrColumnNotFound, k.Column)
		}
		cols[i] = c
	}

	idx := make([]int, t.nrows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for i, c := range cols {
			ca, cb := c.Get(idx[a]), c.Get(idx[b])
			cmp := SortCompare(ca, cb)
			if cmp != 0 {
				if ca.IsNull() || cb.IsNull() {
					return ca.IsNull()
				}
				if keys[i].Descending {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return false
	})
	return t.Take(idx), nil
}

// Unique keeps the first row for each distinct combination of the given
// columns, or of all columns when none are given.
func (t *Table) Unique(columns ...string) (*Table, error) {
	cols := t.cols
	if len(columns) > 0 {
		cols = make([]*Column, len(columns))
		for i, name := range columns {
			c, ok := t.Column(name)
			if !ok {
				return nil, fmt.Errorf("distinct: %w: %q", ErrColumnNotFound, name)
			}
			cols[i] = c
		}
	}

	seen := make(map[string]bool)
	var idx []int
	for i := 0; i < t.nrows; i++ {
		key := rowKey(cols, i)
		if !seen[key] {
			seen[key] = true
			idx = append(idx, i)
		}
	}
	return t.Take(idx), nil
}

func rowKey(cols []*Column, row int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Get(row).Key()
	}
	return strings.Join(parts, "\x1f")
}
