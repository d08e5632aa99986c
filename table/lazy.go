package table

import (
	"fmt"
	"strings"
)

// LazyOperation is one deferred step of a LazyFrame plan.
type LazyOperation interface {
	Apply(t *Table) (*Table, error)
	String() string
}

// LazyFrame is a deferred query plan over a Table. Building a plan never
// touches row data; Collect optimizes the plan and runs it.
type LazyFrame struct {
	source     *Table
	projection []string // nil reads every source column
	operations []LazyOperation
}

// Lazy wraps a table in an empty plan.
func (t *Table) Lazy() *LazyFrame {
	return &LazyFrame{source: t}
}

// Source returns the table the plan reads.
func (lf *LazyFrame) Source() *Table { return lf.source }

// Len returns the number of planned operations.
func (lf *LazyFrame) Len() int { return len(lf.operations) }

func (lf *LazyFrame) with(op LazyOperation) *LazyFrame {
	operations := make([]LazyOperation, len(lf.operations), len(lf.operations)+1)
	copy(operations, lf.operations)
	operations = append(operations, op)
	return &LazyFrame{
		source:     lf.source,
		projection: lf.projection,
		operations: operations,
	}
}

// Select adds a column projection.
func (lf *LazyFrame) Select(columns ...string) *LazyFrame {
	return lf.with(&selectOp{columns: columns})
}

// Drop adds a column removal.
func (lf *LazyFrame) Drop(columns ...string) *LazyFrame {
	return lf.with(&dropOp{columns: columns})
}

// Rename adds a column rename.
func (lf *LazyFrame) Rename(old, new string) *LazyFrame {
	return lf.with(&renameOp{old: old, new: new})
}

// Filter adds a row filter.
func (lf *LazyFrame) Filter(predicate Expr) *LazyFrame {
	return lf.with(&filterOp{predicate: predicate})
}

// FilterFunc adds a row filter computed by Go code over the whole frame.
func (lf *LazyFrame) FilterFunc(desc string, fn func(t *Table) (*Column, error)) *LazyFrame {
	return lf.with(&filterOp{predicate: Opaque(desc, fn)})
}

// WithColumn adds a computed column.
func (lf *LazyFrame) WithColumn(name string, e Expr) *LazyFrame {
	return lf.with(&withColumnOp{name: name, expr: e})
}

// Sort adds a stable multi-key sort.
func (lf *LazyFrame) Sort(keys ...SortKey) *LazyFrame {
	return lf.with(&sortOp{keys: keys})
}

// Head keeps the first n rows.
func (lf *LazyFrame) Head(n int) *LazyFrame {
	return lf.with(&sliceOp{offset: 0, length: n})
}

// Tail keeps the last n rows.
func (lf *LazyFrame) Tail(n int) *LazyFrame {
	return lf.with(&sliceOp{length: n, fromEnd: true})
}

// Slice keeps length rows starting at offset.
func (lf *LazyFrame) Slice(offset, length int) *LazyFrame {
	if offset < 0 {
		// negative offsets depend on the row count, so they are not fused
		return lf.Map(fmt.Sprintf("slice(%d, %d)", offset, length), func(t *Table) (*Table, error) {
			return t.Slice(offset, length), nil
		})
	}
	return lf.with(&sliceOp{offset: offset, length: length})
}

// Unique keeps the first row of each distinct key.
func (lf *LazyFrame) Unique(columns ...string) *LazyFrame {
	return lf.with(&uniqueOp{columns: columns})
}

// Map adds an arbitrary table transformation. The optimizer treats it as a
// barrier.
func (lf *LazyFrame) Map(desc string, fn func(t *Table) (*Table, error)) *LazyFrame {
	return lf.with(&mapOp{desc: desc, fn: fn})
}

// Join adds a join against another plan, collected when this one is.
func (lf *LazyFrame) Join(right *LazyFrame, opts JoinOptions) *LazyFrame {
	return lf.with(&joinOp{right: right, opts: opts})
}

// GroupBy starts a grouped aggregation.
func (lf *LazyFrame) GroupBy(keys ...string) *LazyGroupBy {
	return &LazyGroupBy{lazyFrame: lf, keys: keys}
}

// LazyGroupBy is a pending group-by waiting for its aggregations.
type LazyGroupBy struct {
	lazyFrame *LazyFrame
	keys      []string
}

// Agg completes the group-by.
func (lgb *LazyGroupBy) Agg(aggs ...AggExpr) *LazyFrame {
	return lgb.lazyFrame.with(&groupByOp{keys: lgb.keys, aggs: aggs})
}

// Collect optimizes and executes the plan.
func (lf *LazyFrame) Collect() (*Table, error) {
	plan := optimize(lf)
	return plan.execute()
}

func (lf *LazyFrame) execute() (*Table, error) {
	t := lf.source
	if t == nil {
		return Empty(nil), nil
	}
	if lf.projection != nil {
		var err error
		if t, err = t.Select(lf.projection...); err != nil {
			return nil, fmt.Errorf("collect: scan: %w", err)
		}
	}
	for _, op := range lf.operations {
		next, err := op.Apply(t)
		if err != nil {
			return nil, fmt.Errorf("collect: %s: %w", op, err)
		}
		t = next
	}
	return t, nil
}

// Explain returns the optimized plan, source first.
func (lf *LazyFrame) Explain() []string {
	plan := optimize(lf)
	lines := []string{plan.scanString()}
	for _, op := range plan.operations {
		lines = append(lines, op.String())
	}
	return lines
}

func (lf *LazyFrame) scanString() string {
	if lf.source == nil {
		return "scan empty"
	}
	s := fmt.Sprintf("scan %d columns, %d rows", lf.source.NumCols(), lf.source.NumRows())
	if lf.projection != nil {
		s += " project [" + strings.Join(lf.projection, ", ") + "]"
	}
	return s
}

// String returns a representation of the unoptimized plan.
func (lf *LazyFrame) String() string {
	var sb strings.Builder
	sb.WriteString("LazyFrame:\n  ")
	sb.WriteString(lf.scanString())
	sb.WriteString("\n")
	for i, op := range lf.operations {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, op)
	}
	return sb.String()
}

type selectOp struct {
	columns []string
}

func (o *selectOp) Apply(t *Table) (*Table, error) { return t.Select(o.columns...) }
func (o *selectOp) String() string {
	return "select [" + strings.Join(o.columns, ", ") + "]"
}

type dropOp struct {
	columns []string
}

func (o *dropOp) Apply(t *Table) (*Table, error) { return t.Drop(o.columns...) }
func (o *dropOp) String() string {
	return "drop [" + strings.Join(o.columns, ", ") + "]"
}

type renameOp struct {
	old, new string
}

func (o *renameOp) Apply(t *Table) (*Table, error) { return t.Rename(o.old, o.new) }
func (o *renameOp) String() string                 { return "rename " + o.old + " -> " + o.new }

type filterOp struct {
	predicate Expr
}

func (o *filterOp) Apply(t *Table) (*Table, error) { return t.FilterExpr(o.predicate) }
func (o *filterOp) String() string                 { return "filter " + o.predicate.String() }

type withColumnOp struct {
	name string
	expr Expr
}

func (o *withColumnOp) Apply(t *Table) (*Table, error) { return t.WithExpr(o.name, o.expr) }
func (o *withColumnOp) String() string {
	return "with_column " + o.name + " = " + o.expr.String()
}

type sortOp struct {
	keys []SortKey
}

func (o *sortOp) Apply(t *Table) (*Table, error) { return t.SortBy(o.keys...) }
func (o *sortOp) String() string {
	parts := make([]string, len(o.keys))
	for i, k := range o.keys {
		parts[i] = k.String()
	}
	return "sort [" + strings.Join(parts, ", ") + "]"
}

type sliceOp struct {
	offset, length int
	fromEnd        bool
}

func (o *sliceOp) Apply(t *Table) (*Table, error) {
	if o.fromEnd {
		return t.Tail(o.length), nil
	}
	return t.Slice(o.offset, o.length), nil
}

func (o *sliceOp) String() string {
	switch {
	case o.fromEnd:
		return fmt.Sprintf("tail %d", o.length)
	case o.offset == 0:
		return fmt.Sprintf("head %d", o.length)
	default:
		return fmt.Sprintf("slice offset %d length %d", o.offset, o.length)
	}
}

type uniqueOp struct {
	columns []string
}

func (o *uniqueOp) Apply(t *Table) (*Table, error) { return t.Unique(o.columns...) }
func (o *uniqueOp) String() string {
	if len(o.columns) == 0 {
		return "unique"
	}
	return "unique [" + strings.Join(o.columns, ", ") + "]"
}

type mapOp struct {
	desc string
	fn   func(t *Table) (*Table, error)
}

func (o *mapOp) Apply(t *Table) (*Table, error) { return o.fn(t) }
func (o *mapOp) String() string                 { return "map " + o.desc }

type groupByOp struct {
	keys []string
	aggs []AggExpr
}

func (o *groupByOp) Apply(t *Table) (*Table, error) { return t.GroupBy(o.keys, o.aggs) }
func (o *groupByOp) String() string {
	parts := make([]string, len(o.aggs))
	for i, a := range o.aggs {
		parts[i] = a.String()
	}
	return "group_by [" + strings.Join(o.keys, ", ") + "] agg [" + strings.Join(parts, ", ") + "]"
}

type joinOp struct {
	right *LazyFrame
	opts  JoinOptions
}

func (o *joinOp) Apply(t *Table) (*Table, error) {
	right, err := o.right.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting right side: %w", err)
	}
	return t.Join(right, o.opts)
}

func (o *joinOp) String() string { return o.opts.String() }
