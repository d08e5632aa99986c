package engine

import (
	"fmt"
	"strings"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// DefaultConcatSeparator joins values for concat when no separator is given.
const DefaultConcatSeparator = ","

var aggregationNames = []string{
	"count", "sum", "mean", "avg", "median", "min", "max", "std", "var",
	"first", "last", "list", "n_unique", "count_unique", "concat", "string_concat",
}

// aggregationBuiltin reduces the input directly: `[1,2] | sum`,
// `sum("price")` on a table, `count`. The extra registered arity lets the
// same names carry alias= inside aggregate(...).
func aggregationBuiltin(name string) *Builtin {
	fn, _ := table.ParseAggFunc(name)
	positional := 1
	if fn == table.AggConcat {
		positional = 2
	}
	return &Builtin{
		Name:    name,
		MaxArgs: positional + 1,
		Fn: func(in value.Value, args []value.Value) (value.Value, error) {
			if len(args) > positional {
				return value.Null(), &value.OpError{Op: name, Msg: fmt.Sprintf("wrong number of arguments: %d", len(args))}
			}
			return reduceValue(name, fn, in, args)
		},
	}
}

func reduceValue(name string, fn table.AggFunc, in value.Value, args []value.Value) (value.Value, error) {
	col := value.Null()
	sep := DefaultConcatSeparator
	switch {
	case fn == table.AggConcat && len(args) == 2:
		col = args[0]
		s, err := wantString(name, args[1])
		if err != nil {
			return value.Null(), err
		}
		sep = s
	case fn == table.AggConcat && len(args) == 1 && !hasColumns(in):
		s, err := wantString(name, args[0])
		if err != nil {
			return value.Null(), err
		}
		sep = s
	case len(args) >= 1:
		col = args[0]
	}

	if fn == table.AggCount && col.IsNull() {
		return fnLength(in, nil)
	}
	if (fn == table.AggFirst || fn == table.AggLast) && col.IsNull() {
		elems, err := aggElements(name, in)
		if err != nil || len(elems) == 0 {
			return value.Null(), err
		}
		if fn == table.AggFirst {
			return elems[0], nil
		}
		return elems[len(elems)-1], nil
	}

	cells, err := aggInput(name, in, col)
	if err != nil {
		return value.Null(), err
	}
	out, err := table.Reduce(fn, cells, sep)
	if err != nil {
		return value.Null(), &value.OpError{Op: name, Err: err}
	}
	return value.FromCell(out), nil
}

func hasColumns(v value.Value) bool {
	switch v.Kind {
	case value.KindTable, value.KindDeferredTable:
		return true
	}
	return value.IsRecords(v) && len(v.Arr) > 0
}

// aggElements lists the values reduced when no column is named; table rows
// become Objects.
func aggElements(op string, in value.Value) ([]value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return nil, nil
	case value.KindArray, value.KindObject, value.KindColumn, value.KindTable, value.KindDeferredTable:
		return value.Iterate(in)
	}
	return nil, &value.TypeError{Op: op, Kind: in.Kind}
}

// aggInput returns the cells an aggregation reduces. col is null, a column
// name, or an already-evaluated Column.
func aggInput(op string, in, col value.Value) ([]table.Cell, error) {
	if col.Kind == value.KindColumn {
		return col.Col.Cells(), nil
	}
	if !col.IsNull() && col.Kind != value.KindString {
		return nil, &value.TypeError{Op: op, Kind: col.Kind, Msg: fmt.Sprintf("column must be a name, got %s", col.TypeName())}
	}
	switch in.Kind {
	case value.KindNull:
		return nil, nil
	case value.KindColumn:
		return in.Col.Cells(), nil
	case value.KindObject:
		if !col.IsNull() {
			return []table.Cell{value.ToCell(in.Obj[col.Str])}, nil
		}
		vs, _ := value.Iterate(in)
		return value.ToCells(vs), nil
	case value.KindArray:
		if col.IsNull() {
			return value.ToCells(in.Arr), nil
		}
		cells := make([]table.Cell, len(in.Arr))
		for i, e := range in.Arr {
			if e.Kind != value.KindObject {
				return nil, &value.TypeError{Op: op, Kind: e.Kind, Msg: fmt.Sprintf("element %d is %s, not object", i, e.TypeName())}
			}
			cells[i] = value.ToCell(e.Obj[col.Str])
		}
		return cells, nil
	case value.KindTable, value.KindDeferredTable:
		t, err := value.AsTable(op, in)
		if err != nil {
			return nil, err
		}
		if col.IsNull() {
			if t.NumCols() != 1 {
				return nil, &value.OpError{Op: op, Msg: fmt.Sprintf("table has %d columns; name the one to reduce", t.NumCols())}
			}
			return t.ColumnAt(0).Cells(), nil
		}
		c, ok := t.Column(col.Str)
		if !ok {
			return nil, &value.OpError{Op: op, Msg: fmt.Sprintf("no column %q", col.Str), Err: value.ErrMissingColumn}
		}
		return c.Cells(), nil
	}
	return nil, &value.TypeError{Op: op, Kind: in.Kind}
}

// --- aggregate(...) specs ---

func aggSpecs(call *ast.CallExpr) ([]table.AggExpr, error) {
	var out []table.AggExpr
	var err error
	for _, a := range call.Args {
		if out, err = appendAggSpec(out, a, ""); err != nil {
			return nil, err
		}
	}
	for _, n := range call.Named {
		if out, err = appendAggSpec(out, n.Value, n.Name); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, &value.OpError{Op: call.Name, Msg: "no aggregations given"}
	}
	return out, nil
}

func appendAggSpec(out []table.AggExpr, e ast.Expr, alias string) ([]table.AggExpr, error) {
	switch n := e.(type) {
	case *ast.ArrayExpr:
		var err error
		for _, el := range n.Elems {
			if out, err = appendAggSpec(out, el, ""); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *ast.ObjectExpr:
		var err error
		for _, ent := range n.Entries {
			key, ok := literalString(ent.Key)
			if !ok {
				return nil, &value.OpError{Op: "aggregate", Msg: fmt.Sprintf("output name must be a literal, got %s", ent.Key)}
			}
			if out, err = appendAggSpec(out, ent.Value, key); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *ast.CallExpr:
		a, err := aggCall(n, "")
		if err != nil {
			return nil, err
		}
		if alias != "" {
			a.Alias = alias
		}
		return append(out, a), nil
	case *ast.PipeExpr:
		// .price.sum() style
		col, okCol := columnName(n.Left)
		call, okCall := n.Right.(*ast.CallExpr)
		if okCol && okCall && len(call.Args) == 0 {
			a, err := aggCall(call, col)
			if err != nil {
				return nil, err
			}
			if alias != "" {
				a.Alias = alias
			}
			return append(out, a), nil
		}
	}
	return nil, &value.OpError{Op: "aggregate", Msg: fmt.Sprintf("%s is not an aggregation", e)}
}

// aggCall reads count(), sum("col"), mean(.col, alias="m") or
// concat("col", "; ").
func aggCall(call *ast.CallExpr, column string) (table.AggExpr, error) {
	fn, ok := table.ParseAggFunc(call.Name)
	if !ok {
		return table.AggExpr{}, &value.OpError{Op: "aggregate", Msg: fmt.Sprintf("%s is not an aggregation function", call.Name)}
	}
	a := table.AggExpr{Func: fn, Column: column}
	if e := call.Arg("column", 0); e != nil && column == "" {
		name, ok := columnName(e)
		if !ok {
			return a, &value.OpError{Op: call.Name, Msg: fmt.Sprintf("column must be a name or .field, got %s", e)}
		}
		a.Column = name
	}
	if fn == table.AggConcat {
		a.Separator = DefaultConcatSeparator
		pos := 1
		if column != "" {
			pos = 0
		}
		sep := call.Arg("sep", pos)
		if sep == nil {
			sep = call.Arg("separator", -1)
		}
		if sep != nil {
			s, ok := literalString(sep)
			if !ok {
				return a, &value.OpError{Op: call.Name, Msg: "separator must be a string literal"}
			}
			a.Separator = s
		}
	}
	if e := call.Arg("alias", -1); e != nil {
		s, ok := literalString(e)
		if !ok {
			return a, &value.OpError{Op: call.Name, Msg: "alias must be a string literal"}
		}
		a.Alias = s
	}
	if a.Column == "" && fn != table.AggCount {
		return a, &value.OpError{Op: call.Name, Msg: "needs a column"}
	}
	return a, nil
}

func literalString(e ast.Expr) (string, bool) {
	if lit, ok := e.(*ast.LiteralExpr); ok && lit.Value.Kind == value.KindString {
		return lit.Value.Str, true
	}
	return "", false
}

// columnName accepts "name" and .name.
func columnName(e ast.Expr) (string, bool) {
	if s, ok := literalString(e); ok {
		return s, true
	}
	if f, ok := e.(*ast.FieldExpr); ok {
		if _, ok := f.Target.(*ast.IdentityExpr); ok {
			return f.Name, true
		}
	}
	return "", false
}

// --- group keys ---

// groupKey is a named column, or an arbitrary expression usable only on
// Arrays.
type groupKey struct {
	name  string
	label string
	op    Operation
}

func (c *compiler) groupKeys(call *ast.CallExpr) ([]groupKey, error) {
	var keys []groupKey
	add := func(e ast.Expr) error {
		if name, ok := columnName(e); ok {
			keys = append(keys, groupKey{name: name, label: name, op: &fieldOp{target: identityOp{}, name: name}})
			return nil
		}
		op, err := c.compilePipe(e)
		if err != nil {
			return err
		}
		keys = append(keys, groupKey{label: e.String(), op: op})
		return nil
	}
	for _, a := range call.Args {
		if arr, ok := a.(*ast.ArrayExpr); ok {
			for _, el := range arr.Elems {
				if err := add(el); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := add(a); err != nil {
			return nil, err
		}
	}
	if len(call.Named) > 0 {
		return nil, &value.OpError{Op: call.Name, Msg: fmt.Sprintf("does not take named arguments (got %s=)", call.Named[0].Name)}
	}
	return keys, nil
}

func keyNames(keys []groupKey) ([]string, bool) {
	names := make([]string, len(keys))
	for i, k := range keys {
		if k.name == "" {
			return nil, false
		}
		names[i] = k.name
	}
	return names, true
}

func keyLabels(keys []groupKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.label
	}
	return strings.Join(parts, ", ")
}

// partition splits elems by their key values, in first-seen order.
func partition(env *Env, keys []groupKey, elems []value.Value) ([][]value.Value, [][]value.Value, error) {
	index := make(map[string]int)
	var groups, groupKeys [][]value.Value
	for _, e := range elems {
		kv := make([]value.Value, len(keys))
		for i, k := range keys {
			v, err := k.op.Apply(env, e)
			if err != nil {
				return nil, nil, err
			}
			kv[i] = v
		}
		key := value.KeyOf(kv)
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, nil)
			groupKeys = append(groupKeys, kv)
		}
		groups[g] = append(groups[g], e)
	}
	return groups, groupKeys, nil
}

// --- operations ---

// groupAggOp is group_by(keys) | aggregate(aggs), or aggregate(aggs) alone
// when keys is empty.
type groupAggOp struct {
	keys []groupKey
	aggs []table.AggExpr
}

func compileAggregate(c *compiler, call *ast.CallExpr) (Operation, error) {
	aggs, err := aggSpecs(call)
	if err != nil {
		return nil, err
	}
	return &groupAggOp{aggs: aggs}, nil
}

func compileGroupAggregate(c *compiler, g, a *ast.CallExpr) (Operation, error) {
	keys, err := c.groupKeys(g)
	if err != nil {
		return nil, err
	}
	aggs, err := aggSpecs(a)
	if err != nil {
		return nil, err
	}
	return &groupAggOp{keys: keys, aggs: aggs}, nil
}

func (o *groupAggOp) Apply(env *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindTable:
		names, ok := keyNames(o.keys)
		if !ok {
			return value.Null(), &value.TypeError{Op: "group_by", Kind: in.Kind, Msg: "table group keys must be column names"}
		}
		t, err := in.Table.GroupBy(names, o.aggs)
		if err != nil {
			return value.Null(), &value.OpError{Op: "aggregate", Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		names, ok := keyNames(o.keys)
		if !ok {
			return value.Null(), &value.TypeError{Op: "group_by", Kind: in.Kind, Msg: "table group keys must be column names"}
		}
		return value.DeferredVal(in.Lazy.GroupBy(names...).Agg(o.aggs...)), nil
	case value.KindArray:
		return o.applyTree(env, in.Arr)
	}
	return value.Null(), &value.TypeError{Op: "aggregate", Kind: in.Kind}
}

func (o *groupAggOp) applyTree(env *Env, rows []value.Value) (value.Value, error) {
	groups, groupKeys := [][]value.Value{rows}, [][]value.Value{nil}
	if len(o.keys) > 0 {
		var err error
		if groups, groupKeys, err = partition(env, o.keys, rows); err != nil {
			return value.Null(), err
		}
	}
	out := make([]value.Value, len(groups))
	for g, members := range groups {
		obj := make(map[string]value.Value, len(o.keys)+len(o.aggs))
		for i, k := range o.keys {
			obj[k.label] = groupKeys[g][i]
		}
		for _, a := range o.aggs {
			v, err := reduceRows(members, a)
			if err != nil {
				return value.Null(), err
			}
			obj[a.OutputName()] = v
		}
		out[g] = value.ObjectVal(obj)
	}
	return value.ArrayVal(out), nil
}

func reduceRows(rows []value.Value, a table.AggExpr) (value.Value, error) {
	if a.Column == "" {
		return value.IntVal(int64(len(rows))), nil
	}
	cells := make([]table.Cell, len(rows))
	for i, r := range rows {
		if r.Kind != value.KindObject {
			return value.Null(), &value.TypeError{Op: "aggregate", Kind: r.Kind, Msg: fmt.Sprintf("row %d is %s, not object", i, r.TypeName())}
		}
		cells[i] = value.ToCell(r.Obj[a.Column])
	}
	c, err := table.Reduce(a.Func, cells, a.Separator)
	if err != nil {
		return value.Null(), &value.OpError{Op: a.OutputName(), Err: err}
	}
	return value.FromCell(c), nil
}

func (o *groupAggOp) Describe() string {
	parts := make([]string, len(o.aggs))
	for i, a := range o.aggs {
		parts[i] = a.String()
	}
	s := "aggregate(" + strings.Join(parts, ", ") + ")"
	if len(o.keys) == 0 {
		return s
	}
	return "group_by(" + keyLabels(o.keys) + ") | " + s
}

func (o *groupAggOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	names, ok := keyNames(o.keys)
	if !ok {
		return nil, false
	}
	return p.GroupBy(names, o.aggs...), true
}

// groupByOp is group_by without a following aggregate: an Array of groups,
// each an Array of elements, or an Array of Tables for table input.
type groupByOp struct {
	keys []groupKey
}

func compileGroupBy(c *compiler, call *ast.CallExpr) (Operation, error) {
	keys, err := c.groupKeys(call)
	if err != nil {
		return nil, err
	}
	return &groupByOp{keys: keys}, nil
}

func (o *groupByOp) Apply(env *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindArray:
		groups, _, err := partition(env, o.keys, in.Arr)
		if err != nil {
			return value.Null(), err
		}
		out := make([]value.Value, len(groups))
		for i, g := range groups {
			out[i] = value.ArrayVal(g)
		}
		return value.ArrayVal(out), nil
	case value.KindTable, value.KindDeferredTable:
		t, err := value.AsTable("group_by", in)
		if err != nil {
			return value.Null(), err
		}
		rows, err := value.Iterate(value.TableVal(t))
		if err != nil {
			return value.Null(), err
		}
		index := make(map[string]int)
		var groups [][]int
		for r, row := range rows {
			kv := make([]value.Value, len(o.keys))
			for i, k := range o.keys {
				if kv[i], err = k.op.Apply(env, row); err != nil {
					return value.Null(), err
				}
			}
			key := value.KeyOf(kv)
			g, ok := index[key]
			if !ok {
				g = len(groups)
				index[key] = g
				groups = append(groups, nil)
			}
			groups[g] = append(groups[g], r)
		}
		out := make([]value.Value, len(groups))
		for i, idx := range groups {
			out[i] = value.TableVal(t.Take(idx))
		}
		return value.ArrayVal(out), nil
	}
	return value.Null(), &value.TypeError{Op: "group_by", Kind: in.Kind}
}

func (o *groupByOp) Describe() string { return "group_by(" + keyLabels(o.keys) + ")" }
