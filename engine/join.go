package engine

import (
	"fmt"
	"strings"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// joinOp is both the relational join and, given only a string, jq's
// string join.
//
//	join($right, on=["id"], type="left")
//	join($right, "id", "left")
//	join(left_on="a", right_on="b", right=$other)
//	join($left, $right, on="id")
//	join(", ")
type joinOp struct {
	left     Operation // nil joins the input
	right    Operation
	on       Operation
	leftOn   Operation
	rightOn  Operation
	how      Operation
	validate Operation
	suffix   Operation
}

func compileJoin(c *compiler, call *ast.CallExpr) (Operation, error) {
	o := &joinOp{}
	if len(call.Args) == 2 && (call.Arg("on", -1) != nil || call.Arg("left_on", -1) != nil) {
		left, err := c.compilePipe(call.Args[0])
		if err != nil {
			return nil, err
		}
		o.left = left
		rest := *call
		rest.Args = call.Args[1:]
		call = &rest
	}
	slots := []struct {
		name string
		pos  int
		dst  *Operation
	}{
		{"right", 0, &o.right},
		{"on", 1, &o.on},
		{"type", 2, &o.how},
		{"how", -1, &o.how},
		{"left_on", -1, &o.leftOn},
		{"right_on", -1, &o.rightOn},
		{"validate", -1, &o.validate},
		{"suffix", -1, &o.suffix},
	}
	if len(call.Args) > 3 {
		return nil, arityError(call)
	}
	known := make(map[string]bool, len(slots))
	for _, s := range slots {
		known[s.name] = true
		e := call.Arg(s.name, s.pos)
		if e == nil || *s.dst != nil {
			continue
		}
		op, err := c.compilePipe(e)
		if err != nil {
			return nil, err
		}
		*s.dst = op
	}
	for _, n := range call.Named {
		if !known[n.Name] {
			return nil, &value.OpError{Op: "join", Msg: fmt.Sprintf("unknown option %s=", n.Name)}
		}
	}
	if o.right == nil {
		return nil, &value.OpError{Op: "join", Msg: "missing the right-hand side"}
	}
	return o, nil
}

func (o *joinOp) relational() bool {
	return o.on != nil || o.leftOn != nil || o.rightOn != nil || o.how != nil || o.validate != nil || o.suffix != nil
}

func (o *joinOp) Apply(env *Env, in value.Value) (value.Value, error) {
	lv := in
	if o.left != nil {
		var err error
		if lv, err = o.left.Apply(env, in); err != nil {
			return value.Null(), err
		}
	}
	rv, err := o.right.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	if !o.relational() {
		if rv.Kind != value.KindString {
			return value.Null(), &value.OpError{Op: "join", Msg: "missing on="}
		}
		return stringJoin(lv, rv.Str)
	}
	opts, err := o.options(env, in)
	if err != nil {
		return value.Null(), err
	}
	return joinValues(lv, rv, opts)
}

func (o *joinOp) options(env *Env, in value.Value) (table.JoinOptions, error) {
	var opts table.JoinOptions
	str := func(op Operation) (string, error) {
		v, err := op.Apply(env, in)
		if err != nil {
			return "", err
		}
		return wantString("join", v)
	}
	list := func(op Operation) ([]string, error) {
		v, err := op.Apply(env, in)
		if err != nil {
			return nil, err
		}
		return stringList("join", v)
	}
	var err error
	if o.on != nil {
		if opts.LeftOn, err = list(o.on); err != nil {
			return opts, err
		}
		opts.RightOn = opts.LeftOn
	}
	if o.leftOn != nil {
		if opts.LeftOn, err = list(o.leftOn); err != nil {
			return opts, err
		}
	}
	if o.rightOn != nil {
		if opts.RightOn, err = list(o.rightOn); err != nil {
			return opts, err
		}
	}
	if len(opts.LeftOn) == 0 {
		return opts, &value.OpError{Op: "join", Msg: "missing on="}
	}
	if len(opts.RightOn) == 0 {
		opts.RightOn = opts.LeftOn
	}
	if len(opts.LeftOn) != len(opts.RightOn) {
		return opts, &value.OpError{Op: "join", Msg: fmt.Sprintf("key mismatch: %d left keys, %d right keys", len(opts.LeftOn), len(opts.RightOn))}
	}
	if o.how != nil {
		s, err := str(o.how)
		if err != nil {
			return opts, err
		}
		if opts.How, err = table.ParseJoinType(s); err != nil {
			return opts, &value.OpError{Op: "join", Err: err}
		}
	}
	if o.validate != nil {
		s, err := str(o.validate)
		if err != nil {
			return opts, err
		}
		if opts.Validate, err = table.ParseJoinValidation(s); err != nil {
			return opts, &value.OpError{Op: "join", Err: err}
		}
	}
	opts.Suffix = table.DefaultJoinSuffix
	if o.suffix != nil {
		if opts.Suffix, err = str(o.suffix); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// joinValues picks the execution path: deferred when the left side is
// deferred, the engine when either side is a table, in memory for two
// Arrays of Objects.
func joinValues(left, right value.Value, opts table.JoinOptions) (value.Value, error) {
	switch {
	case left.Kind == value.KindDeferredTable:
		rlf, err := lazyOf(right)
		if err != nil {
			return value.Null(), err
		}
		return value.DeferredVal(left.Lazy.Join(rlf, opts)), nil
	case isTabular(left) || isTabular(right):
		lt, err := value.AsTable("join", left)
		if err != nil {
			return value.Null(), err
		}
		rt, err := value.AsTable("join", right)
		if err != nil {
			return value.Null(), err
		}
		t, err := lt.Join(rt, opts)
		if err != nil {
			return value.Null(), &value.OpError{Op: "join", Err: err}
		}
		return value.TableVal(t), nil
	case left.Kind == value.KindArray && right.Kind == value.KindArray:
		rows, err := treeJoin(left.Arr, right.Arr, opts)
		if err != nil {
			return value.Null(), err
		}
		return value.ArrayVal(rows), nil
	}
	kind := left.Kind
	if left.Kind == value.KindArray {
		kind = right.Kind
	}
	return value.Null(), &value.TypeError{Op: "join", Kind: kind, Msg: fmt.Sprintf("cannot join %s with %s", left.TypeName(), right.TypeName())}
}

func isTabular(v value.Value) bool {
	return v.Kind == value.KindTable || v.Kind == value.KindDeferredTable
}

func lazyOf(v value.Value) (*table.LazyFrame, error) {
	if v.Kind == value.KindDeferredTable {
		return v.Lazy, nil
	}
	t, err := value.AsTable("join", v)
	if err != nil {
		return nil, err
	}
	return t.Lazy(), nil
}

// recordColumns lists the keys of rows in the order ArrayToTable uses.
func recordColumns(rows []value.Value) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for i, r := range rows {
		if r.Kind != value.KindObject {
			return nil, &value.TypeError{Op: "join", Kind: r.Kind, Msg: fmt.Sprintf("row %d is %s, not object", i, r.TypeName())}
		}
		for _, k := range r.SortedKeys() {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names, nil
}

// recordKey reports false when any key is null or missing.
func recordKey(row value.Value, names []string) (string, bool) {
	kv := make([]value.Value, len(names))
	for i, n := range names {
		v := row.Obj[n]
		if v.IsNull() {
			return "", false
		}
		kv[i] = v
	}
	return value.KeyOf(kv), true
}

// treeJoin joins two Arrays of Objects with the same row order, key and
// naming rules as table.Join.
func treeJoin(left, right []value.Value, opts table.JoinOptions) ([]value.Value, error) {
	lcols, err := recordColumns(left)
	if err != nil {
		return nil, err
	}
	rcols, err := recordColumns(right)
	if err != nil {
		return nil, err
	}

	rindex := make(map[string][]int)
	for j, r := range right {
		if k, ok := recordKey(r, opts.RightOn); ok {
			rindex[k] = append(rindex[k], j)
		}
	}
	if v := opts.Validate; v == table.OneToOne || v == table.ManyToOne {
		for _, rows := range rindex {
			if len(rows) > 1 {
				return nil, &value.OpError{Op: "join", Err: fmt.Errorf("%w: %s requires unique right keys", table.ErrJoinValidation, v)}
			}
		}
	}
	if v := opts.Validate; v == table.OneToOne || v == table.OneToMany {
		seen := make(map[string]bool)
		for _, l := range left {
			k, ok := recordKey(l, opts.LeftOn)
			if !ok {
				continue
			}
			if seen[k] {
				return nil, &value.OpError{Op: "join", Err: fmt.Errorf("%w: %s requires unique left keys", table.ErrJoinValidation, v)}
			}
			seen[k] = true
		}
	}

	var lidx, ridx []int
	if opts.How == table.RightJoin {
		lindex := make(map[string][]int)
		for i, l := range left {
			if k, ok := recordKey(l, opts.LeftOn); ok {
				lindex[k] = append(lindex[k], i)
			}
		}
		for j, r := range right {
			k, ok := recordKey(r, opts.RightOn)
			matches := lindex[k]
			if !ok || len(matches) == 0 {
				lidx, ridx = append(lidx, -1), append(ridx, j)
				continue
			}
			for _, i := range matches {
				lidx, ridx = append(lidx, i), append(ridx, j)
			}
		}
	} else {
		matched := make([]bool, len(right))
		for i, l := range left {
			k, ok := recordKey(l, opts.LeftOn)
			matches := rindex[k]
			if !ok || len(matches) == 0 {
				if opts.How != table.InnerJoin {
					lidx, ridx = append(lidx, i), append(ridx, -1)
				}
				continue
			}
			for _, j := range matches {
				lidx, ridx = append(lidx, i), append(ridx, j)
				matched[j] = true
			}
		}
		if opts.How == table.OuterJoin {
			for j := range right {
				if !matched[j] {
					lidx, ridx = append(lidx, -1), append(ridx, j)
				}
			}
		}
	}

	leftKey := make(map[string]string, len(opts.LeftOn))
	rightKey := make(map[string]bool, len(opts.RightOn))
	for i, n := range opts.LeftOn {
		leftKey[n] = opts.RightOn[i]
		rightKey[opts.RightOn[i]] = true
	}
	used := make(map[string]bool, len(lcols))
	for _, n := range lcols {
		used[n] = true
	}
	rnames := make(map[string]string, len(rcols))
	for _, n := range rcols {
		if rightKey[n] {
			continue
		}
		name := n
		for used[name] {
			name += opts.Suffix
		}
		used[name] = true
		rnames[n] = name
	}

	coalesceKeys := opts.How == table.RightJoin || opts.How == table.OuterJoin
	out := make([]value.Value, len(lidx))
	for r := range lidx {
		obj := make(map[string]value.Value, len(used))
		var lrow, rrow value.Value
		if lidx[r] >= 0 {
			lrow = left[lidx[r]]
		}
		if ridx[r] >= 0 {
			rrow = right[ridx[r]]
		}
		for _, n := range lcols {
			v := lrow.Obj[n]
			if rn, isKey := leftKey[n]; isKey && coalesceKeys && v.IsNull() {
				v = rrow.Obj[rn]
			}
			obj[n] = v
		}
		for n, name := range rnames {
			obj[name] = rrow.Obj[n]
		}
		out[r] = value.ObjectVal(obj)
	}
	return out, nil
}

// stringJoin is jq's join: elements rendered as strings, null as "".
func stringJoin(in value.Value, sep string) (value.Value, error) {
	if in.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Op: "join", Kind: in.Kind, Msg: fmt.Sprintf("cannot join %s with a string", in.TypeName())}
	}
	parts := make([]string, len(in.Arr))
	for i, e := range in.Arr {
		switch e.Kind {
		case value.KindNull:
		case value.KindArray, value.KindObject, value.KindTable, value.KindDeferredTable, value.KindColumn:
			return value.Null(), &value.TypeError{Op: "join", Kind: e.Kind, Msg: fmt.Sprintf("cannot join %s", e.TypeName())}
		default:
			parts[i] = e.AsString()
		}
	}
	return value.StrVal(strings.Join(parts, sep)), nil
}

func (o *joinOp) Describe() string {
	parts := []string{o.right.Describe()}
	if o.left != nil {
		parts = append([]string{o.left.Describe()}, parts...)
	}
	add := func(name string, op Operation) {
		if op != nil {
			parts = append(parts, name+"="+op.Describe())
		}
	}
	add("on", o.on)
	add("left_on", o.leftOn)
	add("right_on", o.rightOn)
	add("type", o.how)
	add("validate", o.validate)
	add("suffix", o.suffix)
	return "join(" + strings.Join(parts, ", ") + ")"
}

// lower succeeds when the right side and every option are constants.
func (o *joinOp) lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	if !o.relational() || o.left != nil {
		return nil, false
	}
	for _, op := range []Operation{o.right, o.on, o.leftOn, o.rightOn, o.how, o.validate, o.suffix} {
		if op == nil {
			continue
		}
		if _, ok := constant(env, op); !ok {
			return nil, false
		}
	}
	rv, _ := constant(env, o.right)
	opts, err := o.options(env, value.Null())
	if err != nil {
		return nil, false
	}
	rlf, err := lazyOf(rv)
	if err != nil {
		return nil, false
	}
	return p.Join(rlf, opts), true
}
