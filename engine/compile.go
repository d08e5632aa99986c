package engine

import (
	"fmt"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/parser"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// Option configures a compiled Pipeline.
type Option func(*Pipeline)

// WithLazy compiles the pipeline in lazy mode.
func WithLazy(lazy bool) Option {
	return func(p *Pipeline) { p.lazy = lazy }
}

// Parse parses a query, rejecting calls to functions the registry does not
// know.
func Parse(query string) (ast.Expr, error) {
	return parser.ParseWith(query, parser.Options{Known: Known})
}

// CompileQuery parses and compiles a query.
func CompileQuery(query string, opts ...Option) (*Pipeline, error) {
	expr, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return Compile(expr, opts...)
}

// Compile turns an expression into a Pipeline. Its top-level pipe stages
// become the pipeline stages.
func Compile(expr ast.Expr, opts ...Option) (*Pipeline, error) {
	c := &compiler{}
	stages, err := c.compileStages(ast.Pipeline(expr))
	if err != nil {
		return nil, err
	}
	p := &Pipeline{stages: stages}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type compiler struct{}

// compileStages compiles pipe stages, fusing group_by | aggregate and
// folding everything after an iteration into its body.
func (c *compiler) compileStages(exprs []ast.Expr) ([]Operation, error) {
	var out []Operation
	for i := 0; i < len(exprs); i++ {
		var op Operation
		var err error
		if g, a, ok := groupAggregatePair(exprs, i); ok {
			op, err = compileGroupAggregate(c, g, a)
			i++
		} else {
			op, err = c.compile(exprs[i])
		}
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 {
			if each, ok := out[n-1].(*eachOp); ok {
				out[n-1] = then(each, op)
				continue
			}
		}
		if _, ok := op.(identityOp); ok && len(out) > 0 {
			continue
		}
		out = append(out, op)
	}
	if len(out) == 0 {
		out = append(out, identityOp{})
	}
	return out, nil
}

func groupAggregatePair(exprs []ast.Expr, i int) (*ast.CallExpr, *ast.CallExpr, bool) {
	if i+1 >= len(exprs) {
		return nil, nil, false
	}
	g, ok1 := exprs[i].(*ast.CallExpr)
	a, ok2 := exprs[i+1].(*ast.CallExpr)
	if !ok1 || !ok2 || g.Name != "group_by" || a.Name != "aggregate" {
		return nil, nil, false
	}
	return g, a, true
}

func (c *compiler) compilePipe(expr ast.Expr) (Operation, error) {
	stages, err := c.compileStages(ast.Pipeline(expr))
	if err != nil {
		return nil, err
	}
	op := stages[0]
	for _, s := range stages[1:] {
		op = then(op, s)
	}
	return op, nil
}

func (c *compiler) compile(expr ast.Expr) (Operation, error) {
	switch e := expr.(type) {
	case *ast.IdentityExpr:
		return identityOp{}, nil
	case *ast.LiteralExpr:
		return &literalOp{v: e.Value}, nil
	case *ast.VarExpr:
		return &varOp{name: e.Name}, nil
	case *ast.FieldExpr:
		return c.postfix(e.Target, func(t Operation) Operation {
			return &fieldOp{target: t, name: e.Name}
		})
	case *ast.IndexExpr:
		idx, err := c.compile(e.Index)
		if err != nil {
			return nil, err
		}
		return c.postfix(e.Target, func(t Operation) Operation {
			return &indexOp{target: t, index: idx}
		})
	case *ast.SliceExpr:
		var from, to Operation
		var err error
		if e.From != nil {
			if from, err = c.compile(e.From); err != nil {
				return nil, err
			}
		}
		if e.To != nil {
			if to, err = c.compile(e.To); err != nil {
				return nil, err
			}
		}
		return c.postfix(e.Target, func(t Operation) Operation {
			return &sliceOp{target: t, from: from, to: to}
		})
	case *ast.IterateExpr:
		return c.postfix(e.Target, func(t Operation) Operation {
			return &eachOp{src: t, body: identityOp{}}
		})
	case *ast.ArrayExpr:
		elems, err := c.compileAll(e.Elems)
		if err != nil {
			return nil, err
		}
		return &arrayOp{elems: elems}, nil
	case *ast.ObjectExpr:
		entries := make([]objectEntry, len(e.Entries))
		for i, ent := range e.Entries {
			k, err := c.compile(ent.Key)
			if err != nil {
				return nil, err
			}
			v, err := c.compile(ent.Value)
			if err != nil {
				return nil, err
			}
			entries[i] = objectEntry{key: k, val: v}
		}
		return &objectOp{entries: entries}, nil
	case *ast.UnaryExpr:
		return c.compileUnary(e)
	case *ast.BinaryExpr:
		return c.compileBinary(e)
	case *ast.AssignExpr:
		return c.compileAssign(e)
	case *ast.CallExpr:
		return c.compileCall(e)
	case *ast.LambdaExpr:
		body, err := c.compilePipe(e.Body)
		if err != nil {
			return nil, err
		}
		return &lambdaOp{param: e.Param, body: body}, nil
	case *ast.PipeExpr:
		return c.compilePipe(e)
	case *ast.BindExpr:
		src, err := c.compile(e.Source)
		if err != nil {
			return nil, err
		}
		body, err := c.compilePipe(e.Body)
		if err != nil {
			return nil, err
		}
		return &bindOp{src: src, name: e.Name, body: body}, nil
	case *ast.IfExpr:
		return c.compileIf(e)
	default:
		return nil, fmt.Errorf("compile: unsupported expression %T", expr)
	}
}

func (c *compiler) compileAll(exprs []ast.Expr) ([]Operation, error) {
	ops := make([]Operation, len(exprs))
	for i, e := range exprs {
		op, err := c.compilePipe(e)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

// postfix applies mk to the compiled target. A postfix on an iteration
// applies to each element.
func (c *compiler) postfix(target ast.Expr, mk func(Operation) Operation) (Operation, error) {
	t, err := c.compile(target)
	if err != nil {
		return nil, err
	}
	if each, ok := t.(*eachOp); ok {
		return then(each, mk(identityOp{})), nil
	}
	return mk(t), nil
}

func (c *compiler) compileUnary(e *ast.UnaryExpr) (Operation, error) {
	if e.Op == "del" {
		path, err := c.compilePath(e.Operand)
		if err != nil {
			return nil, err
		}
		return &deleteOp{path: path}, nil
	}
	operand, err := c.compile(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "not":
		return &notOp{operand: operand}, nil
	case "-":
		return &negOp{operand: operand}, nil
	}
	return nil, fmt.Errorf("compile: unknown unary operator %q", e.Op)
}

func (c *compiler) compileBinary(e *ast.BinaryExpr) (Operation, error) {
	l, err := c.compile(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.compile(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "and", "or":
		return &logicOp{and: e.Op == "and", left: l, right: r}, nil
	case "//":
		return &altOp{left: l, right: r}, nil
	case "%":
		return &binaryOp{op: e.Op, left: l, right: r, apply: value.Mod}, nil
	}
	op, ok := table.ParseBinOp(e.Op)
	if !ok {
		return nil, fmt.Errorf("compile: unknown operator %q", e.Op)
	}
	return &binaryOp{op: e.Op, left: l, right: r, apply: func(a, b value.Value) (value.Value, error) {
		return value.Binary(op, a, b)
	}}, nil
}

var compoundOps = map[string]table.BinOp{
	"+=": table.OpAdd,
	"-=": table.OpSub,
	"*=": table.OpMul,
	"/=": table.OpDiv,
}

func (c *compiler) compileAssign(e *ast.AssignExpr) (Operation, error) {
	path, err := c.compilePath(e.Target)
	if err != nil {
		return nil, err
	}
	rhs, err := c.compile(e.Value)
	if err != nil {
		return nil, err
	}
	op := &assignOp{op: e.Op, path: path, rhs: rhs}
	switch e.Op {
	case "=":
	case "|=":
		op.pipe = true
	default:
		bin, ok := compoundOps[e.Op]
		if !ok {
			return nil, fmt.Errorf("compile: unknown assignment %q", e.Op)
		}
		op.update = func(old, rhs value.Value) (value.Value, error) {
			return value.Binary(bin, old, rhs)
		}
	}
	return op, nil
}

func (c *compiler) compilePath(e ast.Expr) ([]Operation, error) {
	keys, ok := ast.Path(e)
	if !ok {
		return nil, fmt.Errorf("compile: %s is not a path", e)
	}
	ops := make([]Operation, len(keys))
	for i, k := range keys {
		op, err := c.compile(k)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

func (c *compiler) compileIf(e *ast.IfExpr) (Operation, error) {
	cond, err := c.compilePipe(e.Cond)
	if err != nil {
		return nil, err
	}
	th, err := c.compilePipe(e.Then)
	if err != nil {
		return nil, err
	}
	op := &ifOp{cond: cond, then: th}
	if e.Else != nil {
		if op.els, err = c.compilePipe(e.Else); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func (c *compiler) compileCall(e *ast.CallExpr) (Operation, error) {
	if t, ok := transforms[e.Name]; ok && accepts(t.MinArgs, t.MaxArgs, e.Arity()) {
		return t.Compile(c, e)
	}
	b, ok := builtins[e.Name]
	if !ok {
		if _, isTransform := transforms[e.Name]; isTransform {
			return nil, arityError(e)
		}
		return nil, &value.OpError{Op: e.Name, Msg: "unknown function"}
	}
	if !accepts(b.MinArgs, b.MaxArgs, e.Arity()) {
		return nil, arityError(e)
	}
	if len(e.Named) > 0 {
		return nil, &value.OpError{Op: e.Name, Msg: fmt.Sprintf("does not take named arguments (got %s=)", e.Named[0].Name)}
	}
	args, err := c.compileAll(e.Args)
	if err != nil {
		return nil, err
	}
	return &callOp{fn: b, args: args}, nil
}

func arityError(e *ast.CallExpr) error {
	return &value.OpError{Op: e.Name, Msg: fmt.Sprintf("wrong number of arguments: %d", e.Arity())}
}
