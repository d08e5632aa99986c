package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// Operation is one compiled node of a query. Operations are immutable and
// may be applied concurrently to independent inputs.
type Operation interface {
	Apply(env *Env, in value.Value) (value.Value, error)
	Describe() string
}

// errEmpty is returned by operations that produce no output, such as a
// select whose predicate is false on a scalar. Iteration drops such
// elements; at the top of a pipeline the result is null.
var errEmpty = errors.New("empty result")

// Env is an immutable chain of variable bindings.
type Env struct {
	parent *Env
	name   string
	val    value.Value
}

// NewEnv returns an environment holding vars.
func NewEnv(vars map[string]value.Value) *Env {
	var env *Env
	for name, v := range vars {
		env = env.Bind(name, v)
	}
	return env
}

// Bind returns a new environment with name bound to v.
func (e *Env) Bind(name string, v value.Value) *Env {
	return &Env{parent: e, name: name, val: v}
}

// Lookup finds the innermost binding of name.
func (e *Env) Lookup(name string) (value.Value, bool) {
	for s := e; s != nil; s = s.parent {
		if s.name == name {
			return s.val, true
		}
	}
	return value.Null(), false
}

// --- Leaves ---

type identityOp struct{}

func (identityOp) Apply(_ *Env, in value.Value) (value.Value, error) { return in, nil }
func (identityOp) Describe() string                                   { return "." }

type literalOp struct {
	v value.Value
}

func (o *literalOp) Apply(*Env, value.Value) (value.Value, error) { return o.v, nil }
func (o *literalOp) Describe() string                            { return o.v.String() }

type varOp struct {
	name string
}

func (o *varOp) Apply(env *Env, _ value.Value) (value.Value, error) {
	v, ok := env.Lookup(o.name)
	if !ok {
		return value.Null(), &value.OpError{Op: "$" + o.name, Msg: "variable is not defined"}
	}
	return v, nil
}

func (o *varOp) Describe() string { return "$" + o.name }

// --- Paths ---

type fieldOp struct {
	target Operation
	name   string
}

func (o *fieldOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.target.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	return value.Field(v, o.name)
}

func (o *fieldOp) Describe() string { return prefix(o.target) + "." + o.name }

type indexOp struct {
	target Operation
	index  Operation
}

func (o *indexOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.target.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	idx, err := o.index.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	return value.Index(v, idx)
}

func (o *indexOp) Describe() string {
	return prefix(o.target) + "[" + o.index.Describe() + "]"
}

type sliceOp struct {
	target   Operation
	from, to Operation // nil when open
}

func (o *sliceOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.target.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	from, to := value.Null(), value.Null()
	if o.from != nil {
		if from, err = o.from.Apply(env, in); err != nil {
			return value.Null(), err
		}
	}
	if o.to != nil {
		if to, err = o.to.Apply(env, in); err != nil {
			return value.Null(), err
		}
	}
	return value.Slice(v, from, to)
}

func (o *sliceOp) Describe() string {
	var sb strings.Builder
	sb.WriteString(prefix(o.target))
	sb.WriteString("[")
	if o.from != nil {
		sb.WriteString(o.from.Describe())
	}
	sb.WriteString(":")
	if o.to != nil {
		sb.WriteString(o.to.Describe())
	}
	sb.WriteString("]")
	return sb.String()
}

func prefix(op Operation) string {
	if _, ok := op.(identityOp); ok {
		return ""
	}
	return op.Describe()
}

// eachOp iterates the output of src and applies body to every element,
// collecting the results into an Array. Everything after an iteration in
// the same pipe runs inside body.
type eachOp struct {
	src  Operation
	body Operation
}

func (o *eachOp) Apply(env *Env, in value.Value) (value.Value, error) {
	out, err := o.yield(env, in)
	if err != nil {
		return value.Null(), err
	}
	return value.ArrayVal(out), nil
}

func (o *eachOp) yield(env *Env, in value.Value) ([]value.Value, error) {
	src, err := o.src.Apply(env, in)
	if err != nil {
		return nil, err
	}
	elems, err := value.Iterate(src)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, 0, len(elems))
	for _, e := range elems {
		out, err = appendResult(out, o.body, env, e)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *eachOp) Describe() string {
	if _, ok := o.body.(identityOp); ok {
		return prefix(o.src) + "[]"
	}
	return prefix(o.src) + "[] | " + o.body.Describe()
}

// appendResult applies op to in and appends its output, splicing nested
// iterations and skipping empty results.
func appendResult(out []value.Value, op Operation, env *Env, in value.Value) ([]value.Value, error) {
	if each, ok := op.(*eachOp); ok {
		vs, err := each.yield(env, in)
		if err != nil {
			return nil, err
		}
		return append(out, vs...), nil
	}
	v, err := op.Apply(env, in)
	if errors.Is(err, errEmpty) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return append(out, v), nil
}

// then composes a and b so that b consumes the output of a. When a
// iterates, b joins its per-element body.
func then(a, b Operation) Operation {
	if _, ok := b.(identityOp); ok {
		return a
	}
	switch x := a.(type) {
	case identityOp:
		return b
	case *eachOp:
		return &eachOp{src: x.src, body: then(x.body, b)}
	}
	return &pipeOp{left: a, right: b}
}

// --- Construction ---

type arrayOp struct {
	elems []Operation
}

func (o *arrayOp) Apply(env *Env, in value.Value) (value.Value, error) {
	out := make([]value.Value, 0, len(o.elems))
	for _, e := range o.elems {
		var err error
		out, err = appendResult(out, e, env, in)
		if err != nil {
			return value.Null(), err
		}
	}
	return value.ArrayVal(out), nil
}

func (o *arrayOp) Describe() string {
	return "[" + describeAll(o.elems, ", ") + "]"
}

type objectEntry struct {
	key, val Operation
}

type objectOp struct {
	entries []objectEntry
}

func (o *objectOp) Apply(env *Env, in value.Value) (value.Value, error) {
	obj := make(map[string]value.Value, len(o.entries))
	for _, e := range o.entries {
		k, err := e.key.Apply(env, in)
		if err != nil {
			return value.Null(), err
		}
		if k.Kind != value.KindString {
			return value.Null(), &value.TypeError{Op: "object", Kind: k.Kind, Msg: fmt.Sprintf("object keys must be strings, got %s", k.TypeName())}
		}
		v, err := e.val.Apply(env, in)
		if err != nil {
			return value.Null(), err
		}
		obj[k.Str] = v
	}
	return value.ObjectVal(obj), nil
}

func (o *objectOp) Describe() string {
	parts := make([]string, len(o.entries))
	for i, e := range o.entries {
		parts[i] = e.key.Describe() + ": " + e.val.Describe()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// --- Operators ---

type notOp struct {
	operand Operation
}

func (o *notOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.operand.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	if v.Kind == value.KindColumn {
		cells := make([]table.Cell, v.Col.Len())
		for i := range cells {
			c := v.Col.Get(i)
			if c.IsNull() {
				cells[i] = table.Null()
				continue
			}
			cells[i] = table.BoolVal(!c.Truthy())
		}
		return value.ColumnVal(table.NewColumn(v.Col.Name(), cells)), nil
	}
	return value.BoolVal(!v.Truthy()), nil
}

func (o *notOp) Describe() string { return "not " + o.operand.Describe() }

type negOp struct {
	operand Operation
}

func (o *negOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.operand.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	switch {
	case v.IsNull():
		return v, nil
	case v.IsNumber():
		return value.Sub(value.IntVal(0), v)
	case v.Kind == value.KindColumn:
		return value.Binary(table.OpMul, v, value.IntVal(-1))
	}
	return value.Null(), &value.TypeError{Op: "-", Kind: v.Kind}
}

func (o *negOp) Describe() string { return "-" + o.operand.Describe() }

type binaryOp struct {
	op          string
	left, right Operation
	apply       func(a, b value.Value) (value.Value, error)
}

func (o *binaryOp) Apply(env *Env, in value.Value) (value.Value, error) {
	l, err := o.left.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	r, err := o.right.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	return o.apply(l, r)
}

func (o *binaryOp) Describe() string {
	return "(" + o.left.Describe() + " " + o.op + " " + o.right.Describe() + ")"
}

// logicOp short-circuits and/or on truthiness. Column operands are combined
// element-wise, so both sides are evaluated.
type logicOp struct {
	and         bool
	left, right Operation
}

func (o *logicOp) Apply(env *Env, in value.Value) (value.Value, error) {
	l, err := o.left.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	op := table.OpOr
	if o.and {
		op = table.OpAnd
	}
	if l.Kind != value.KindColumn {
		if o.and && !l.Truthy() {
			return value.BoolVal(false), nil
		}
		if !o.and && l.Truthy() {
			return value.BoolVal(true), nil
		}
	}
	r, err := o.right.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	if l.Kind == value.KindColumn || r.Kind == value.KindColumn {
		return value.Binary(op, l, r)
	}
	return value.BoolVal(r.Truthy()), nil
}

func (o *logicOp) Describe() string {
	name := "or"
	if o.and {
		name = "and"
	}
	return "(" + o.left.Describe() + " " + name + " " + o.right.Describe() + ")"
}

// altOp is `a // b`: a unless it fails, is null or is false.
type altOp struct {
	left, right Operation
}

func (o *altOp) Apply(env *Env, in value.Value) (value.Value, error) {
	l, err := o.left.Apply(env, in)
	if err == nil && !l.IsNull() && !(l.Kind == value.KindBool && !l.Bool) {
		return l, nil
	}
	return o.right.Apply(env, in)
}

func (o *altOp) Describe() string {
	return "(" + o.left.Describe() + " // " + o.right.Describe() + ")"
}

// --- Assignment ---

type assignOp struct {
	op     string
	path   []Operation
	rhs    Operation
	update func(old, rhs value.Value) (value.Value, error) // nil for plain =
	pipe   bool                                            // |= feeds the old value to rhs
}

func (o *assignOp) Apply(env *Env, in value.Value) (value.Value, error) {
	keys, err := evalPath(o.path, env, in)
	if err != nil {
		return value.Null(), err
	}
	var nv value.Value
	switch {
	case o.pipe:
		old, err := value.GetPath(in, keys)
		if err != nil {
			return value.Null(), err
		}
		nv, err = o.rhs.Apply(env, old)
		if err != nil {
			return value.Null(), err
		}
	default:
		nv, err = o.rhs.Apply(env, in)
		if err != nil {
			return value.Null(), err
		}
		if o.update != nil {
			old, err := value.GetPath(in, keys)
			if err != nil {
				return value.Null(), err
			}
			if nv, err = o.update(old, nv); err != nil {
				return value.Null(), err
			}
		}
	}
	return value.SetPath(in, keys, nv)
}

func (o *assignOp) Describe() string {
	return describePath(o.path) + " " + o.op + " " + o.rhs.Describe()
}

type deleteOp struct {
	path []Operation
}

func (o *deleteOp) Apply(env *Env, in value.Value) (value.Value, error) {
	keys, err := evalPath(o.path, env, in)
	if err != nil {
		return value.Null(), err
	}
	return value.DeletePath(in, keys)
}

func (o *deleteOp) Describe() string { return "del " + describePath(o.path) }

func evalPath(path []Operation, env *Env, in value.Value) ([]value.Value, error) {
	keys := make([]value.Value, len(path))
	for i, p := range path {
		k, err := p.Apply(env, in)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

func describePath(path []Operation) string {
	if len(path) == 0 {
		return "."
	}
	var sb strings.Builder
	for _, p := range path {
		if lit, ok := p.(*literalOp); ok && lit.v.Kind == value.KindString {
			sb.WriteString("." + lit.v.Str)
			continue
		}
		sb.WriteString("[" + p.Describe() + "]")
	}
	return sb.String()
}

// --- Control flow ---

type pipeOp struct {
	left, right Operation
}

func (o *pipeOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.left.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	return o.right.Apply(env, v)
}

func (o *pipeOp) Describe() string { return o.left.Describe() + " | " + o.right.Describe() }

type bindOp struct {
	src  Operation
	name string
	body Operation
}

func (o *bindOp) Apply(env *Env, in value.Value) (value.Value, error) {
	v, err := o.src.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	return o.body.Apply(env.Bind(o.name, v), in)
}

func (o *bindOp) Describe() string {
	return o.src.Describe() + " as $" + o.name + " | " + o.body.Describe()
}

type ifOp struct {
	cond, then, els Operation // els nil returns the input
}

func (o *ifOp) Apply(env *Env, in value.Value) (value.Value, error) {
	c, err := o.cond.Apply(env, in)
	if err != nil {
		return value.Null(), err
	}
	if c.Kind == value.KindColumn {
		return value.Null(), &value.TypeError{Op: "if", Kind: c.Kind, Msg: "condition is a column; use filter or with_column"}
	}
	if c.Truthy() {
		return o.then.Apply(env, in)
	}
	if o.els == nil {
		return in, nil
	}
	return o.els.Apply(env, in)
}

func (o *ifOp) Describe() string {
	s := "if " + o.cond.Describe() + " then " + o.then.Describe()
	if o.els != nil {
		s += " else " + o.els.Describe()
	}
	return s + " end"
}

// lambdaOp binds its parameter to the input and evaluates the body against
// it, so both `x` and `.` refer to the argument.
type lambdaOp struct {
	param string
	body  Operation
}

func (o *lambdaOp) Apply(env *Env, in value.Value) (value.Value, error) {
	return o.body.Apply(env.Bind(o.param, in), in)
}

func (o *lambdaOp) Describe() string { return o.param + " => " + o.body.Describe() }

// callOp invokes a registry builtin with arguments evaluated against the
// input.
type callOp struct {
	fn   *Builtin
	args []Operation
}

func (o *callOp) Apply(env *Env, in value.Value) (value.Value, error) {
	args := make([]value.Value, len(o.args))
	for i, a := range o.args {
		v, err := a.Apply(env, in)
		if err != nil {
			return value.Null(), err
		}
		args[i] = v
	}
	return o.fn.Fn(in, args)
}

func (o *callOp) Describe() string {
	if len(o.args) == 0 {
		return o.fn.Name
	}
	return o.fn.Name + "(" + describeAll(o.args, ", ") + ")"
}

func describeAll(ops []Operation, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.Describe()
	}
	return strings.Join(parts, sep)
}
