package parser

import (
	"errors"
	"testing"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/value"
)

func mustParse(t *testing.T, input string) ast.Expr {
	t.Helper()
	e, err := Parse(input)
	if err != nil {
		t.Fatalf("%s: %v", input, err)
	}
	return e
}

func expectKind(t *testing.T, input string, kind ErrorKind) *ParseError {
	t.Helper()
	_, err := Parse(input)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("%s: expected *ParseError, got %v", input, err)
	}
	if perr.Kind != kind {
		t.Fatalf("%s: expected %s, got %s (%v)", input, kind, perr.Kind, perr)
	}
	return perr
}

func TestParseField(t *testing.T) {
	e := mustParse(t, ".name")
	f, ok := e.(*ast.FieldExpr)
	if !ok {
		t.Fatalf("expected FieldExpr, got %T", e)
	}
	if f.Name != "name" {
		t.Errorf("expected 'name', got %q", f.Name)
	}
	if _, ok := f.Target.(*ast.IdentityExpr); !ok {
		t.Errorf("expected identity target, got %T", f.Target)
	}
}

func TestParsePipeline(t *testing.T) {
	e := mustParse(t, `.users | select(.age > 20) | head(5)`)
	stages := ast.Pipeline(e)
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	if _, ok := stages[0].(*ast.FieldExpr); !ok {
		t.Errorf("stage 0: expected FieldExpr, got %T", stages[0])
	}
	sel, ok := stages[1].(*ast.CallExpr)
	if !ok || sel.Name != "select" || len(sel.Args) != 1 {
		t.Fatalf("stage 1: expected select/1, got %v", stages[1])
	}
	if _, ok := sel.Args[0].(*ast.BinaryExpr); !ok {
		t.Errorf("select argument: expected BinaryExpr, got %T", sel.Args[0])
	}
	head := stages[2].(*ast.CallExpr)
	if head.Name != "head" {
		t.Errorf("expected head, got %q", head.Name)
	}
}

func TestParsePipeIsLeftAssociative(t *testing.T) {
	e := mustParse(t, ".a | .b | .c")
	p, ok := e.(*ast.PipeExpr)
	if !ok {
		t.Fatalf("expected PipeExpr, got %T", e)
	}
	if _, ok := p.Left.(*ast.PipeExpr); !ok {
		t.Errorf("expected left-nested pipe, got %s", e)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"10 / 2 % 3", "((10 / 2) % 3)"},
		{".a > 1 and .b < 2 or .c", "(((.a > 1) and (.b < 2)) or .c)"},
		{".a // .b // 1", "((.a // .b) // 1)"},
		{".a or .b // 0", "((.a or .b) // 0)"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
	}
	for _, tt := range tests {
		got := mustParse(t, tt.input).String()
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.input, tt.want, got)
		}
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		input string
		kind  value.Kind
		str   string
	}{
		{"42", value.KindInt, "42"},
		{"-7", value.KindInt, "-7"},
		{"2.5", value.KindFloat, "2.5"},
		{"1e3", value.KindFloat, "1000"},
		{"9223372036854775808", value.KindBigInt, "9223372036854775808"},
		{"-9223372036854775808", value.KindInt, "-9223372036854775808"},
		{`"hi"`, value.KindString, `"hi"`},
		{"true", value.KindBool, "true"},
		{"null", value.KindNull, "null"},
	}
	for _, tt := range tests {
		e := mustParse(t, tt.input)
		lit, ok := e.(*ast.LiteralExpr)
		if !ok {
			t.Fatalf("%s: expected LiteralExpr, got %T", tt.input, e)
		}
		if lit.Value.Kind != tt.kind {
			t.Errorf("%s: expected kind %s, got %s", tt.input, tt.kind, lit.Value.Kind)
		}
		if lit.Value.String() != tt.str {
			t.Errorf("%s: expected %s, got %s", tt.input, tt.str, lit.Value.String())
		}
	}
}

func TestParseIndexSliceIterate(t *testing.T) {
	if _, ok := mustParse(t, ".[0]").(*ast.IndexExpr); !ok {
		t.Error(".[0]: expected IndexExpr")
	}
	s, ok := mustParse(t, ".items[1:]").(*ast.SliceExpr)
	if !ok {
		t.Fatal(".items[1:]: expected SliceExpr")
	}
	if s.From == nil || s.To != nil {
		t.Errorf("expected open upper bound, got %s", s)
	}
	s = mustParse(t, ".[:-1]").(*ast.SliceExpr)
	if s.From != nil || s.To == nil {
		t.Errorf("expected open lower bound, got %s", s)
	}
	it, ok := mustParse(t, ".items[].name").(*ast.FieldExpr)
	if !ok {
		t.Fatal("expected FieldExpr on top of iteration")
	}
	if _, ok := it.Target.(*ast.IterateExpr); !ok {
		t.Errorf("expected IterateExpr target, got %T", it.Target)
	}
	q := mustParse(t, `."first name"`).(*ast.FieldExpr)
	if q.Name != "first name" {
		t.Errorf("expected quoted field, got %q", q.Name)
	}
}

func TestParseArrayAndObject(t *testing.T) {
	arr := mustParse(t, `[1, .a, "x"]`).(*ast.ArrayExpr)
	if len(arr.Elems) != 3 {
		t.Errorf("expected 3 elements, got %d", len(arr.Elems))
	}
	if len(mustParse(t, "[]").(*ast.ArrayExpr).Elems) != 0 {
		t.Error("expected empty array")
	}

	obj := mustParse(t, `{name, "full name": .n, (.k): 1, $v, if: 2}`).(*ast.ObjectExpr)
	if len(obj.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(obj.Entries))
	}
	if f, ok := obj.Entries[0].Value.(*ast.FieldExpr); !ok || f.Name != "name" {
		t.Errorf("shorthand entry: expected .name, got %s", obj.Entries[0].Value)
	}
	if _, ok := obj.Entries[2].Key.(*ast.FieldExpr); !ok {
		t.Errorf("computed key: expected FieldExpr, got %T", obj.Entries[2].Key)
	}
	if v, ok := obj.Entries[3].Value.(*ast.VarExpr); !ok || v.Name != "v" {
		t.Errorf("variable shorthand: expected $v, got %s", obj.Entries[3].Value)
	}
	if k := obj.Entries[4].Key.(*ast.LiteralExpr); k.Value.Str != "if" {
		t.Errorf("keyword key: got %s", k.Value)
	}
}

func TestParseNamedArguments(t *testing.T) {
	call := mustParse(t, `join($right, on=["id"], type="inner")`).(*ast.CallExpr)
	if len(call.Args) != 1 || len(call.Named) != 2 {
		t.Fatalf("expected 1 positional and 2 named args, got %s", call)
	}
	if call.Arity() != 3 {
		t.Errorf("expected arity 3, got %d", call.Arity())
	}
	if call.Arg("type", -1) == nil || call.Arg("how", -1) != nil {
		t.Error("named argument lookup failed")
	}
}

func TestParseSemicolonArguments(t *testing.T) {
	call := mustParse(t, `sub("a"; "b")`).(*ast.CallExpr)
	if len(call.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(call.Args))
	}
}

func TestParseMethodCall(t *testing.T) {
	e := mustParse(t, `group_by(["dept"]).aggregate([Sum("salary")])`)
	p, ok := e.(*ast.PipeExpr)
	if !ok {
		t.Fatalf("expected PipeExpr, got %T", e)
	}
	if c := p.Left.(*ast.CallExpr); c.Name != "group_by" {
		t.Errorf("expected group_by, got %q", c.Name)
	}
	agg := p.Right.(*ast.CallExpr)
	if agg.Name != "aggregate" {
		t.Errorf("expected aggregate, got %q", agg.Name)
	}
	inner := agg.Args[0].(*ast.ArrayExpr).Elems[0].(*ast.CallExpr)
	if inner.Name != "sum" {
		t.Errorf("expected lower-cased name 'sum', got %q", inner.Name)
	}
}

func TestParseLambda(t *testing.T) {
	call := mustParse(t, "filter(x => x > 2)").(*ast.CallExpr)
	lam, ok := call.Args[0].(*ast.LambdaExpr)
	if !ok {
		t.Fatalf("expected LambdaExpr, got %T", call.Args[0])
	}
	if lam.Param != "x" {
		t.Errorf("expected param x, got %q", lam.Param)
	}
	bin := lam.Body.(*ast.BinaryExpr)
	if v, ok := bin.Left.(*ast.VarExpr); !ok || v.Name != "x" {
		t.Errorf("expected parameter reference, got %s", bin.Left)
	}
}

func TestParseParameterOutOfScope(t *testing.T) {
	e := mustParse(t, "map(x => x) | x")
	p := e.(*ast.PipeExpr)
	if _, ok := p.Right.(*ast.CallExpr); !ok {
		t.Errorf("expected x to be a call outside the lambda, got %T", p.Right)
	}
}

func TestParseIf(t *testing.T) {
	e := mustParse(t, `if .a then 1 elif .b then 2 else 3 end`)
	outer := e.(*ast.IfExpr)
	inner, ok := outer.Else.(*ast.IfExpr)
	if !ok {
		t.Fatalf("expected elif to nest, got %T", outer.Else)
	}
	if inner.Else == nil {
		t.Error("expected else branch")
	}
	noElse := mustParse(t, `if .a then 1 end`).(*ast.IfExpr)
	if noElse.Else != nil {
		t.Error("expected nil else")
	}
}

func TestParseAssignment(t *testing.T) {
	for _, op := range []string{"=", "|=", "+=", "-=", "*=", "/="} {
		e := mustParse(t, ".a.b "+op+" 1")
		a, ok := e.(*ast.AssignExpr)
		if !ok {
			t.Fatalf("%s: expected AssignExpr, got %T", op, e)
		}
		if a.Op != op {
			t.Errorf("expected %s, got %s", op, a.Op)
		}
	}
	expectKind(t, "1 = 2", Syntax)
}

func TestParseBinding(t *testing.T) {
	e := mustParse(t, `.x as $v | .items | length`)
	b, ok := e.(*ast.BindExpr)
	if !ok {
		t.Fatalf("expected BindExpr, got %T", e)
	}
	if b.Name != "v" {
		t.Errorf("expected $v, got %q", b.Name)
	}
	if len(ast.Pipeline(b.Body)) != 2 {
		t.Errorf("expected body to take the rest of the pipe, got %s", b.Body)
	}
}

func TestParseUnary(t *testing.T) {
	n := mustParse(t, "not .active").(*ast.UnaryExpr)
	if n.Op != "not" {
		t.Errorf("expected not, got %q", n.Op)
	}
	bare := mustParse(t, ".active | not").(*ast.PipeExpr).Right.(*ast.UnaryExpr)
	if _, ok := bare.Operand.(*ast.IdentityExpr); !ok {
		t.Errorf("expected bare not to apply to input, got %s", bare.Operand)
	}
	d := mustParse(t, "del(.a)").(*ast.UnaryExpr)
	if f, ok := d.Operand.(*ast.FieldExpr); !ok || f.Name != "a" {
		t.Errorf("expected del operand .a, got %s", d.Operand)
	}
	expectKind(t, "del(1)", Syntax)
	if u := mustParse(t, "del .a").(*ast.UnaryExpr); u.Op != "del" {
		t.Errorf("expected del, got %q", u.Op)
	}
	if u := mustParse(t, "-.a").(*ast.UnaryExpr); u.Op != "-" {
		t.Errorf("expected negation, got %q", u.Op)
	}
}

func TestParseErrors(t *testing.T) {
	expectKind(t, "", EmptyInput)
	expectKind(t, "   # just a comment", EmptyInput)
	expectKind(t, `.a == "oops`, UnterminatedString)
	expectKind(t, "007", InvalidNumber)
	expectKind(t, "select(.a > 1", MismatchedBracket)
	expectKind(t, "[1, 2)", MismatchedBracket)
	expectKind(t, ".a)", MismatchedBracket)
	expectKind(t, ".a |", Syntax)
	expectKind(t, "if .a then 1", Syntax)
	expectKind(t, "1 2", Syntax)
}

func TestParseErrorOffset(t *testing.T) {
	perr := expectKind(t, ".a | 1 +", Syntax)
	if perr.Offset != 8 {
		t.Errorf("expected offset 8, got %d", perr.Offset)
	}
	perr = expectKind(t, "[1, 2)", MismatchedBracket)
	if perr.Offset != 5 {
		t.Errorf("expected offset 5, got %d", perr.Offset)
	}
	if perr.Token != ")" {
		t.Errorf("expected token ')', got %q", perr.Token)
	}
}

func TestParseUnknownFunction(t *testing.T) {
	known := func(name string, arity int) bool {
		return name == "length" && arity == 0
	}
	if _, err := ParseWith(".a | length", Options{Known: known}); err != nil {
		t.Fatal(err)
	}
	_, err := ParseWith(".a | lenght", Options{Known: known})
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Kind != UnknownFunction {
		t.Fatalf("expected unknown function error, got %v", err)
	}
	if perr.Offset != 5 {
		t.Errorf("expected offset 5, got %d", perr.Offset)
	}
	if _, err := ParseWith("length(1)", Options{Known: known}); err == nil {
		t.Error("expected arity mismatch to be rejected")
	}
}

func TestParseStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		`.a.b`,
		`.[0]`,
		`.items[]`,
		`select((.age > 20))`,
		`map(x => (x * 2))`,
	} {
		e := mustParse(t, in)
		again := mustParse(t, e.String())
		if e.String() != again.String() {
			t.Errorf("%s: rendering is not stable: %s vs %s", in, e, again)
		}
	}
}
