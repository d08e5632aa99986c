package table

import "fmt"

// Pivot spreads the distinct values of columns into new columns, filled with
// agg over values for each index group. New columns appear in first-seen
// order.
func (t *Table) Pivot(index []string, columns, values string, agg AggFunc) (*Table, error) {
	pivotCol, ok := t.Column(columns)
	if !ok {
		return nil, fmt.Errorf("pivot: %w: %q", ErrColumnNotFound, columns)
	}
	valueCol, ok := t.Column(values)
	if !ok {
		return nil, fmt.Errorf("pivot: %w: %q", ErrColumnNotFound, values)
	}
	groups, err := t.groups(index)
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}
	if t.nrows == 0 {
		groups = nil
	}

	var names []string
	slot := make(map[string]int)
	for i := 0; i < t.nrows; i++ {
		name := pivotCol.Get(i).AsString()
		if _, ok := slot[name]; !ok {
			slot[name] = len(names)
			names = append(names, name)
		}
	}
	for _, n := range index {
		if _, clash := slot[n]; clash {
			return nil, fmt.Errorf("pivot: value %q clashes with an index column", n)
		}
	}

	spread := make([][]Cell, len(names))
	for i := range spread {
		spread[i] = make([]Cell, len(groups))
	}
	for g, rows := range groups {
		buckets := make([][]Cell, len(names))
		for _, r := range rows {
			s := slot[pivotCol.Get(r).AsString()]
			buckets[s] = append(buckets[s], valueCol.Get(r))
		}
		for s, cells := range buckets {
			if len(cells) == 0 {
				spread[s][g] = Null()
				continue
			}
			v, err := Reduce(agg, cells, "")
			if err != nil {
				return nil, fmt.Errorf("pivot: %w", err)
			}
			spread[s][g] = v
		}
	}

	firsts := make([]int, len(groups))
	for g, rows := range groups {
		firsts[g] = rows[0]
	}
	var cols []*Column
	if len(index) > 0 {
		idx, err := t.Select(index...)
		if err != nil {
			return nil, fmt.Errorf("pivot: %w", err)
		}
		cols = append(cols, idx.Take(firsts).cols...)
	}
	for s, name := range names {
		cols = append(cols, NewColumn(name, spread[s]))
	}
	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}
	out.nrows = len(groups)
	return out, nil
}

// Unpivot turns value columns into variable/value rows, one block per value
// column. With no value columns given, every non-id column is used.
func (t *Table) Unpivot(ids, values []string) (*Table, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t.ColIndex(id) < 0 {
			return nil, fmt.Errorf("unpivot: %w: %q", ErrColumnNotFound, id)
		}
		idSet[id] = true
	}
	if len(values) == 0 {
		for _, c := range t.cols {
			if !idSet[c.Name()] {
				values = append(values, c.Name())
			}
		}
	}

	n := t.nrows * len(values)
	take := make([]int, 0, n)
	variable := make([]Cell, 0, n)
	value := make([]Cell, 0, n)
	for _, name := range values {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("unpivot: %w: %q", ErrColumnNotFound, name)
		}
		for i := 0; i < t.nrows; i++ {
			take = append(take, i)
			variable = append(variable, StrVal(name))
			value = append(value, c.Get(i))
		}
	}

	var cols []*Column
	for _, id := range ids {
		c, _ := t.Column(id)
		cols = append(cols, c.Take(take))
	}
	cols = append(cols, NewColumn("variable", variable), NewColumn("value", value))
	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("unpivot: %w", err)
	}
	out.nrows = n
	return out, nil
}
