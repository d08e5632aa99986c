package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// columnList reads string literals or arrays of them.
func columnList(call *ast.CallExpr) ([]string, bool) {
	if len(call.Named) > 0 || len(call.Args) == 0 {
		return nil, false
	}
	var names []string
	for _, a := range call.Args {
		if s, ok := literalString(a); ok {
			names = append(names, s)
			continue
		}
		arr, ok := a.(*ast.ArrayExpr)
		if !ok {
			return nil, false
		}
		for _, el := range arr.Elems {
			s, ok := literalString(el)
			if !ok {
				return nil, false
			}
			names = append(names, s)
		}
	}
	return names, true
}

func singleArg(call *ast.CallExpr) (ast.Expr, error) {
	if len(call.Args) != 1 || len(call.Named) > 0 {
		return nil, arityError(call)
	}
	return call.Args[0], nil
}

func quoteAll(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(parts, ", ")
}

// eachRecord applies fn to every Object of an Array.
func eachRecord(op string, in value.Value, fn func(obj value.Value) (value.Value, error)) (value.Value, error) {
	out := make([]value.Value, len(in.Arr))
	for i, e := range in.Arr {
		if e.Kind != value.KindObject {
			return value.Null(), &value.TypeError{Op: op, Kind: e.Kind, Msg: fmt.Sprintf("element %d is %s, not object", i, e.TypeName())}
		}
		v, err := fn(e)
		if err != nil {
			return value.Null(), err
		}
		out[i] = v
	}
	return value.ArrayVal(out), nil
}

func copyObject(obj value.Value, extra int) map[string]value.Value {
	m := make(map[string]value.Value, len(obj.Obj)+extra)
	for k, v := range obj.Obj {
		m[k] = v
	}
	return m
}

// --- select / filter ---

type selectColumnsOp struct {
	columns []string
}

func compileSelect(c *compiler, call *ast.CallExpr) (Operation, error) {
	if cols, ok := columnList(call); ok {
		return &selectColumnsOp{columns: cols}, nil
	}
	return compileFilterNamed(c, call, "select")
}

func (o *selectColumnsOp) Apply(_ *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindTable:
		t, err := in.Table.Select(o.columns...)
		if err != nil {
			return value.Null(), &value.OpError{Op: "select", Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.Select(o.columns...)), nil
	case value.KindObject:
		return o.project(in), nil
	case value.KindArray:
		return eachRecord("select", in, func(obj value.Value) (value.Value, error) {
			return o.project(obj), nil
		})
	}
	return value.Null(), &value.TypeError{Op: "select", Kind: in.Kind}
}

// project keeps the named keys that exist.
func (o *selectColumnsOp) project(obj value.Value) value.Value {
	m := make(map[string]value.Value, len(o.columns))
	for _, c := range o.columns {
		if v, ok := obj.Obj[c]; ok {
			m[c] = v
		}
	}
	return value.ObjectVal(m)
}

func (o *selectColumnsOp) Describe() string { return "select(" + quoteAll(o.columns) + ")" }

func (o *selectColumnsOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	return p.Select(o.columns...), true
}

// filterOp keeps the elements or rows for which pred is truthy. expr is
// the engine form of pred when it has one.
type filterOp struct {
	name string
	pred Operation
	expr table.Expr
	src  string
}

func compileFilter(c *compiler, call *ast.CallExpr) (Operation, error) {
	return compileFilterNamed(c, call, "filter")
}

func compileFilterNamed(c *compiler, call *ast.CallExpr, name string) (Operation, error) {
	arg, err := singleArg(call)
	if err != nil {
		return nil, err
	}
	pred, err := c.compilePipe(arg)
	if err != nil {
		return nil, err
	}
	expr, _ := translate(arg, "")
	return &filterOp{name: name, pred: pred, expr: expr, src: arg.String()}, nil
}

func (o *filterOp) Apply(env *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindArray:
		out := make([]value.Value, 0, len(in.Arr))
		for _, e := range in.Arr {
			ok, err := o.test(env, e)
			if err != nil {
				return value.Null(), err
			}
			if ok {
				out = append(out, e)
			}
		}
		return value.ArrayVal(out), nil
	case value.KindTable:
		var t *table.Table
		var err error
		if o.expr != nil {
			t, err = in.Table.FilterExpr(o.expr)
		} else {
			t, err = o.filterRows(env, in.Table)
		}
		if err != nil {
			return value.Null(), &value.OpError{Op: o.name, Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		if o.expr != nil {
			return value.DeferredVal(in.Lazy.Filter(o.expr)), nil
		}
		return value.DeferredVal(in.Lazy.FilterFunc(o.src, o.maskFunc(env))), nil
	case value.KindColumn:
		var cells []table.Cell
		for i := 0; i < in.Col.Len(); i++ {
			c := in.Col.Get(i)
			ok, err := o.test(env, value.FromCell(c))
			if err != nil {
				return value.Null(), err
			}
			if ok {
				cells = append(cells, c)
			}
		}
		return value.ColumnVal(table.NewColumn(in.Col.Name(), cells)), nil
	}
	ok, err := o.test(env, in)
	if err != nil {
		return value.Null(), err
	}
	if !ok {
		return value.Null(), errEmpty
	}
	return in, nil
}

func (o *filterOp) test(env *Env, v value.Value) (bool, error) {
	r, err := o.pred.Apply(env, v)
	if errors.Is(err, errEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Truthy(), nil
}

func (o *filterOp) filterRows(env *Env, t *table.Table) (*table.Table, error) {
	mask, err := rowMask(env, o.pred, t)
	if err != nil {
		return nil, err
	}
	return t.Filter(mask)
}

func (o *filterOp) maskFunc(env *Env) func(*table.Table) (*table.Column, error) {
	return func(t *table.Table) (*table.Column, error) {
		return rowMask(env, o.pred, t)
	}
}

func (o *filterOp) Describe() string { return o.name + "(" + o.src + ")" }

func (o *filterOp) lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	if o.expr != nil {
		return p.Filter(o.expr), true
	}
	return p.FilterFunc(o.src, o.maskFunc(env)), true
}

// --- map / map_values ---

type mapOp struct {
	f      Operation
	values bool
}

func compileMap(c *compiler, call *ast.CallExpr) (Operation, error) {
	arg, err := singleArg(call)
	if err != nil {
		return nil, err
	}
	f, err := c.compilePipe(arg)
	if err != nil {
		return nil, err
	}
	return &mapOp{f: f}, nil
}

func compileMapValues(c *compiler, call *ast.CallExpr) (Operation, error) {
	op, err := compileMap(c, call)
	if err != nil {
		return nil, err
	}
	op.(*mapOp).values = true
	return op, nil
}

func (o *mapOp) Apply(env *Env, in value.Value) (value.Value, error) {
	if o.values && in.Kind == value.KindObject {
		out := make(map[string]value.Value, len(in.Obj))
		for k, v := range in.Obj {
			r, err := o.f.Apply(env, v)
			if errors.Is(err, errEmpty) {
				continue
			}
			if err != nil {
				return value.Null(), err
			}
			out[k] = r
		}
		return value.ObjectVal(out), nil
	}
	if in.Kind == value.KindColumn {
		return mapScalar(in, nil, func(v value.Value, _ []value.Value) (value.Value, error) {
			return o.f.Apply(env, v)
		})
	}
	elems, err := value.Iterate(in)
	if err != nil {
		return value.Null(), err
	}
	out := make([]value.Value, 0, len(elems))
	for _, e := range elems {
		if out, err = appendResult(out, o.f, env, e); err != nil {
			return value.Null(), err
		}
	}
	return value.ArrayVal(out), nil
}

func (o *mapOp) Describe() string {
	if o.values {
		return "map_values(" + o.f.Describe() + ")"
	}
	return "map(" + o.f.Describe() + ")"
}

// --- sort ---

type sortKey struct {
	name string // set for plain columns
	desc bool
	op   Operation
}

type sortOp struct {
	keys []sortKey
}

func compileSort(c *compiler, call *ast.CallExpr) (Operation, error) {
	if len(call.Named) > 0 {
		return nil, &value.OpError{Op: call.Name, Msg: fmt.Sprintf("does not take named arguments (got %s=)", call.Named[0].Name)}
	}
	var keys []sortKey
	var add func(e ast.Expr, desc bool) error
	add = func(e ast.Expr, desc bool) error {
		if s, ok := literalString(e); ok {
			if rest, ok := strings.CutPrefix(s, "-"); ok && rest != "" {
				s, desc = rest, !desc
			}
			keys = append(keys, sortKey{name: s, desc: desc, op: &fieldOp{target: identityOp{}, name: s}})
			return nil
		}
		switch n := e.(type) {
		case *ast.ArrayExpr:
			for _, el := range n.Elems {
				if err := add(el, desc); err != nil {
					return err
				}
			}
			return nil
		case *ast.CallExpr:
			if (n.Name == "asc" || n.Name == "desc") && len(n.Args) == 1 && len(n.Named) == 0 {
				return add(n.Args[0], n.Name == "desc")
			}
		}
		if name, ok := columnName(e); ok {
			keys = append(keys, sortKey{name: name, desc: desc, op: &fieldOp{target: identityOp{}, name: name}})
			return nil
		}
		op, err := c.compilePipe(e)
		if err != nil {
			return err
		}
		keys = append(keys, sortKey{desc: desc, op: op})
		return nil
	}
	for _, a := range call.Args {
		if err := add(a, false); err != nil {
			return nil, err
		}
	}
	return &sortOp{keys: keys}, nil
}

func compileSortKeyOutsideSort(_ *compiler, call *ast.CallExpr) (Operation, error) {
	return nil, &value.OpError{Op: call.Name, Msg: "only valid inside sort or sort_by"}
}

func (o *sortOp) tableKeys() ([]table.SortKey, bool) {
	out := make([]table.SortKey, len(o.keys))
	for i, k := range o.keys {
		if k.name == "" {
			return nil, false
		}
		out[i] = table.SortKey{Column: k.name, Descending: k.desc}
	}
	return out, true
}

func (o *sortOp) Apply(env *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindArray:
		idx, err := o.order(env, in.Arr)
		if err != nil {
			return value.Null(), err
		}
		out := make([]value.Value, len(idx))
		for i, j := range idx {
			out[i] = in.Arr[j]
		}
		return value.ArrayVal(out), nil
	case value.KindTable:
		t, err := o.sortTable(env, in.Table)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		if keys, ok := o.tableKeys(); ok && len(keys) > 0 {
			return value.DeferredVal(in.Lazy.Sort(keys...)), nil
		}
		return value.DeferredVal(in.Lazy.Map(o.Describe(), func(t *table.Table) (*table.Table, error) {
			return o.sortTable(env, t)
		})), nil
	case value.KindColumn:
		cells := in.Col.Cells()
		sorted := append([]table.Cell(nil), cells...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return table.SortCompare(sorted[i], sorted[j]) < 0
		})
		return value.ColumnVal(table.NewColumn(in.Col.Name(), sorted)), nil
	}
	return value.Null(), &value.TypeError{Op: "sort", Kind: in.Kind}
}

func (o *sortOp) sortTable(env *Env, t *table.Table) (*table.Table, error) {
	keys, ok := o.tableKeys()
	if ok && len(keys) == 0 {
		for _, name := range t.Columns() {
			keys = append(keys, table.SortKey{Column: name})
		}
	}
	if ok {
		out, err := t.SortBy(keys...)
		if err != nil {
			return nil, &value.OpError{Op: "sort", Err: err}
		}
		return out, nil
	}
	rows, err := value.Iterate(value.TableVal(t))
	if err != nil {
		return nil, err
	}
	idx, err := o.order(env, rows)
	if err != nil {
		return nil, err
	}
	return t.Take(idx), nil
}

// order returns the stable sorted permutation of elems.
func (o *sortOp) order(env *Env, elems []value.Value) ([]int, error) {
	keys := make([][]value.Value, len(elems))
	for i, e := range elems {
		if len(o.keys) == 0 {
			keys[i] = []value.Value{e}
			continue
		}
		kv := make([]value.Value, len(o.keys))
		for j, k := range o.keys {
			v, err := k.op.Apply(env, e)
			if err != nil && !errors.Is(err, errEmpty) {
				return nil, err
			}
			kv[j] = v
		}
		keys[i] = kv
	}
	idx := make([]int, len(elems))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for j := range ka {
			cmp := value.SortCompare(ka[j], kb[j])
			if cmp == 0 {
				continue
			}
			// nulls lead in both directions
			if ka[j].IsNull() || kb[j].IsNull() {
				return ka[j].IsNull()
			}
			if j < len(o.keys) && o.keys[j].desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return idx, nil
}

func (o *sortOp) Describe() string {
	parts := make([]string, len(o.keys))
	for i, k := range o.keys {
		s := k.op.Describe()
		if k.name != "" {
			s = fmt.Sprintf("%q", k.name)
		}
		if k.desc {
			s = "desc(" + s + ")"
		}
		parts[i] = s
	}
	if len(parts) == 0 {
		return "sort"
	}
	return "sort_by(" + strings.Join(parts, ", ") + ")"
}

func (o *sortOp) lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	if keys, ok := o.tableKeys(); ok && len(keys) > 0 {
		return p.Sort(keys...), true
	}
	return p.Then(o.Describe(), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Map(o.Describe(), func(t *table.Table) (*table.Table, error) {
			return o.sortTable(env, t)
		}), nil
	}), true
}

// --- unique_by / min_by / max_by ---

type byOp struct {
	name string
	f    Operation
}

func compileUniqueBy(c *compiler, call *ast.CallExpr) (Operation, error) {
	return compileBy(c, call)
}

func compileExtremeBy(c *compiler, call *ast.CallExpr) (Operation, error) {
	return compileBy(c, call)
}

func compileBy(c *compiler, call *ast.CallExpr) (Operation, error) {
	arg, err := singleArg(call)
	if err != nil {
		return nil, err
	}
	var f Operation
	if name, ok := columnName(arg); ok {
		f = &fieldOp{target: identityOp{}, name: name}
	} else if f, err = c.compilePipe(arg); err != nil {
		return nil, err
	}
	return &byOp{name: call.Name, f: f}, nil
}

func (o *byOp) Apply(env *Env, in value.Value) (value.Value, error) {
	var elems []value.Value
	var t *table.Table
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindArray:
		elems = in.Arr
	case value.KindTable, value.KindDeferredTable:
		var err error
		if t, err = value.AsTable(o.name, in); err != nil {
			return value.Null(), err
		}
		if elems, err = value.Iterate(value.TableVal(t)); err != nil {
			return value.Null(), err
		}
	default:
		return value.Null(), &value.TypeError{Op: o.name, Kind: in.Kind}
	}
	keys := make([]value.Value, len(elems))
	for i, e := range elems {
		k, err := o.f.Apply(env, e)
		if err != nil && !errors.Is(err, errEmpty) {
			return value.Null(), err
		}
		keys[i] = k
	}

	if o.name != "unique_by" {
		if len(elems) == 0 {
			return value.Null(), nil
		}
		best := 0
		for i := 1; i < len(elems); i++ {
			cmp := value.SortCompare(keys[i], keys[best])
			if (o.name == "min_by" && cmp < 0) || (o.name == "max_by" && cmp >= 0) {
				best = i
			}
		}
		return elems[best], nil
	}

	idx := make([]int, len(elems))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return value.SortCompare(keys[idx[a]], keys[idx[b]]) < 0
	})
	seen := make(map[string]bool)
	kept := idx[:0]
	for _, i := range idx {
		k := keys[i].Key()
		if !seen[k] {
			seen[k] = true
			kept = append(kept, i)
		}
	}
	if t != nil {
		return value.TableVal(t.Take(kept)), nil
	}
	out := make([]value.Value, len(kept))
	for i, j := range kept {
		out[i] = elems[j]
	}
	return value.ArrayVal(out), nil
}

func (o *byOp) Describe() string { return o.name + "(" + o.f.Describe() + ")" }

// --- with_column ---

type withColumnOp struct {
	name string
	op   Operation
	expr table.Expr
	src  string
}

func compileWithColumn(c *compiler, call *ast.CallExpr) (Operation, error) {
	nameArg, valArg := call.Arg("name", 0), call.Arg("value", 1)
	if nameArg == nil || valArg == nil {
		return nil, arityError(call)
	}
	name, ok := columnName(nameArg)
	if !ok {
		return nil, &value.OpError{Op: "with_column", Msg: fmt.Sprintf("column name must be a string or .field, got %s", nameArg)}
	}
	op, err := c.compilePipe(valArg)
	if err != nil {
		return nil, err
	}
	expr, _ := translate(valArg, "")
	return &withColumnOp{name: name, op: op, expr: expr, src: valArg.String()}, nil
}

func (o *withColumnOp) Apply(env *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindTable:
		var t *table.Table
		var err error
		if o.expr != nil {
			t, err = in.Table.WithExpr(o.name, o.expr)
		} else {
			var c *table.Column
			if c, err = o.column(env, in.Table); err == nil {
				t, err = in.Table.WithColumn(c)
			}
		}
		if err != nil {
			return value.Null(), &value.OpError{Op: "with_column", Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.WithColumn(o.name, o.engineExpr(env))), nil
	case value.KindObject:
		v, err := o.op.Apply(env, in)
		if err != nil {
			return value.Null(), err
		}
		m := copyObject(in, 1)
		m[o.name] = v
		return value.ObjectVal(m), nil
	case value.KindArray:
		return eachRecord("with_column", in, func(obj value.Value) (value.Value, error) {
			return o.Apply(env, obj)
		})
	}
	return value.Null(), &value.TypeError{Op: "with_column", Kind: in.Kind}
}

// column evaluates the expression against the whole table first and falls
// back to evaluating it row by row.
func (o *withColumnOp) column(env *Env, t *table.Table) (*table.Column, error) {
	v, err := o.op.Apply(env, value.TableVal(t))
	if err == nil {
		switch v.Kind {
		case value.KindColumn:
			if v.Col.Len() == t.NumRows() {
				return v.Col.Rename(o.name), nil
			}
		case value.KindNull, value.KindBool, value.KindInt, value.KindFloat, value.KindString:
			return table.Repeat(o.name, value.ToCell(v), t.NumRows()), nil
		case value.KindArray:
			if len(v.Arr) == t.NumRows() {
				return table.NewColumn(o.name, value.ToCells(v.Arr)), nil
			}
		}
	}
	return rowValues(env, o.op, t, o.name)
}

func (o *withColumnOp) engineExpr(env *Env) table.Expr {
	if o.expr != nil {
		return o.expr
	}
	return table.Opaque(o.src, func(t *table.Table) (*table.Column, error) {
		return o.column(env, t)
	})
}

func (o *withColumnOp) Describe() string {
	return fmt.Sprintf("with_column(%q, %s)", o.name, o.src)
}

func (o *withColumnOp) lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	return p.WithColumn(o.name, o.engineExpr(env)), true
}

// --- drop / rename / distinct ---

type dropOp struct {
	columns []string
}

func compileDrop(_ *compiler, call *ast.CallExpr) (Operation, error) {
	cols, ok := columnList(call)
	if !ok {
		return nil, &value.OpError{Op: "drop", Msg: "expects column names"}
	}
	return &dropOp{columns: cols}, nil
}

func (o *dropOp) Apply(_ *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindTable:
		t, err := in.Table.Drop(o.columns...)
		if err != nil {
			return value.Null(), &value.OpError{Op: "drop", Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.Drop(o.columns...)), nil
	case value.KindObject:
		m := copyObject(in, 0)
		for _, c := range o.columns {
			delete(m, c)
		}
		return value.ObjectVal(m), nil
	case value.KindArray:
		return eachRecord("drop", in, func(obj value.Value) (value.Value, error) {
			return o.Apply(nil, obj)
		})
	}
	return value.Null(), &value.TypeError{Op: "drop", Kind: in.Kind}
}

func (o *dropOp) Describe() string { return "drop(" + quoteAll(o.columns) + ")" }

func (o *dropOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	return p.DropColumns(o.columns...), true
}

type renamePair struct{ old, new string }

type renameOp struct {
	pairs []renamePair
}

// compileRename accepts rename("old", "new"), rename({old: "new"}) and
// rename(old="new").
func compileRename(_ *compiler, call *ast.CallExpr) (Operation, error) {
	bad := &value.OpError{Op: "rename", Msg: "expects rename(old, new) or rename({old: new})"}
	var pairs []renamePair
	switch {
	case len(call.Args) == 2 && len(call.Named) == 0:
		old, ok1 := columnName(call.Args[0])
		nw, ok2 := columnName(call.Args[1])
		if !ok1 || !ok2 {
			return nil, bad
		}
		pairs = append(pairs, renamePair{old, nw})
	case len(call.Args) == 1 && len(call.Named) == 0:
		obj, ok := call.Args[0].(*ast.ObjectExpr)
		if !ok {
			return nil, bad
		}
		for _, ent := range obj.Entries {
			old, ok1 := literalString(ent.Key)
			nw, ok2 := literalString(ent.Value)
			if !ok1 || !ok2 {
				return nil, bad
			}
			pairs = append(pairs, renamePair{old, nw})
		}
	case len(call.Args) == 0:
		for _, n := range call.Named {
			nw, ok := literalString(n.Value)
			if !ok {
				return nil, bad
			}
			pairs = append(pairs, renamePair{n.Name, nw})
		}
	default:
		return nil, bad
	}
	return &renameOp{pairs: pairs}, nil
}

func (o *renameOp) Apply(_ *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindTable:
		t := in.Table
		for _, p := range o.pairs {
			var err error
			if t, err = t.Rename(p.old, p.new); err != nil {
				return value.Null(), &value.OpError{Op: "rename", Err: err}
			}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		lf := in.Lazy
		for _, p := range o.pairs {
			lf = lf.Rename(p.old, p.new)
		}
		return value.DeferredVal(lf), nil
	case value.KindObject:
		m := copyObject(in, 0)
		for _, p := range o.pairs {
			if v, ok := m[p.old]; ok {
				delete(m, p.old)
				m[p.new] = v
			}
		}
		return value.ObjectVal(m), nil
	case value.KindArray:
		return eachRecord("rename", in, func(obj value.Value) (value.Value, error) {
			return o.Apply(nil, obj)
		})
	}
	return value.Null(), &value.TypeError{Op: "rename", Kind: in.Kind}
}

func (o *renameOp) Describe() string {
	parts := make([]string, len(o.pairs))
	for i, p := range o.pairs {
		parts[i] = fmt.Sprintf("%q: %q", p.old, p.new)
	}
	return "rename({" + strings.Join(parts, ", ") + "})"
}

func (o *renameOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	for _, r := range o.pairs {
		p = p.Rename(r.old, r.new)
	}
	return p, true
}

// distinctOp keeps the first occurrence of each distinct row, or of each
// distinct combination of the given columns.
type distinctOp struct {
	columns []string
}

func compileDistinct(_ *compiler, call *ast.CallExpr) (Operation, error) {
	if call.Arity() == 0 {
		return &distinctOp{}, nil
	}
	cols, ok := columnList(call)
	if !ok {
		return nil, &value.OpError{Op: "distinct", Msg: "expects column names"}
	}
	return &distinctOp{columns: cols}, nil
}

func (o *distinctOp) Apply(_ *Env, in value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindTable:
		t, err := in.Table.Unique(o.columns...)
		if err != nil {
			return value.Null(), &value.OpError{Op: "distinct", Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.Unique(o.columns...)), nil
	case value.KindArray:
		seen := make(map[string]bool, len(in.Arr))
		out := make([]value.Value, 0, len(in.Arr))
		for _, e := range in.Arr {
			k := e.Key()
			if len(o.columns) > 0 {
				if e.Kind != value.KindObject {
					return value.Null(), &value.TypeError{Op: "distinct", Kind: e.Kind, Msg: fmt.Sprintf("element is %s, not object", e.TypeName())}
				}
				kv := make([]value.Value, len(o.columns))
				for i, c := range o.columns {
					kv[i] = e.Obj[c]
				}
				k = value.KeyOf(kv)
			}
			if !seen[k] {
				seen[k] = true
				out = append(out, e)
			}
		}
		return value.ArrayVal(out), nil
	}
	return value.Null(), &value.TypeError{Op: "distinct", Kind: in.Kind}
}

func (o *distinctOp) Describe() string {
	if len(o.columns) == 0 {
		return "distinct"
	}
	return "distinct(" + quoteAll(o.columns) + ")"
}

func (o *distinctOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	return p.Unique(o.columns...), true
}
