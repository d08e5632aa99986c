// Package ast defines the expression tree produced by the parser. Nodes are
// immutable once built and render back to query text with String.
package ast

import (
	"strconv"
	"strings"

	"github.com/datasetq/datasetq/lexer"
	"github.com/datasetq/datasetq/value"
)

// Expr represents any node of a query.
type Expr interface {
	exprNode()
	String() string
}

// IdentityExpr is `.`, the current input.
type IdentityExpr struct{}

func (e *IdentityExpr) exprNode()      {}
func (e *IdentityExpr) String() string { return "." }

// LiteralExpr is a number, string, boolean or null.
type LiteralExpr struct {
	Value value.Value
}

func (e *LiteralExpr) exprNode()      {}
func (e *LiteralExpr) String() string { return e.Value.String() }

// FieldExpr is Target.Name.
type FieldExpr struct {
	Target Expr
	Name   string
}

func (e *FieldExpr) exprNode() {}
func (e *FieldExpr) String() string {
	return withTarget(e.Target) + "." + fieldName(e.Name)
}

// IndexExpr is Target[Index].
type IndexExpr struct {
	Target Expr
	Index  Expr
}

func (e *IndexExpr) exprNode() {}
func (e *IndexExpr) String() string {
	return postfixBase(e.Target) + "[" + e.Index.String() + "]"
}

// SliceExpr is Target[From:To]; a nil bound is open.
type SliceExpr struct {
	Target   Expr
	From, To Expr
}

func (e *SliceExpr) exprNode() {}
func (e *SliceExpr) String() string {
	var sb strings.Builder
	sb.WriteString(postfixBase(e.Target))
	sb.WriteString("[")
	if e.From != nil {
		sb.WriteString(e.From.String())
	}
	sb.WriteString(":")
	if e.To != nil {
		sb.WriteString(e.To.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// IterateExpr is Target[].
type IterateExpr struct {
	Target Expr
}

func (e *IterateExpr) exprNode()      {}
func (e *IterateExpr) String() string { return postfixBase(e.Target) + "[]" }

// ArrayExpr is [e1, e2, ...].
type ArrayExpr struct {
	Elems []Expr
}

func (e *ArrayExpr) exprNode() {}
func (e *ArrayExpr) String() string {
	return "[" + joinExprs(e.Elems) + "]"
}

// ObjectEntry is one key/value pair of an object constructor. Key is a
// string literal for fixed keys.
type ObjectEntry struct {
	Key   Expr
	Value Expr
}

// ObjectExpr is {k: v, ...}.
type ObjectExpr struct {
	Entries []ObjectEntry
}

func (e *ObjectExpr) exprNode() {}
func (e *ObjectExpr) String() string {
	parts := make([]string, len(e.Entries))
	for i, ent := range e.Entries {
		key := "(" + ent.Key.String() + ")"
		if lit, ok := ent.Key.(*LiteralExpr); ok && lit.Value.Kind == value.KindString {
			key = fieldName(lit.Value.Str)
		}
		parts[i] = key + ": " + ent.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// VarExpr is $name, or a lambda parameter.
type VarExpr struct {
	Name string
}

func (e *VarExpr) exprNode()      {}
func (e *VarExpr) String() string { return "$" + e.Name }

// UnaryExpr is not, del or negation.
type UnaryExpr struct {
	Op      string // "not", "del", "-"
	Operand Expr
}

func (e *UnaryExpr) exprNode() {}
func (e *UnaryExpr) String() string {
	if e.Op == "-" {
		return "-" + e.Operand.String()
	}
	return e.Op + " " + e.Operand.String()
}

// BinaryExpr represents a binary operation: a op b.
type BinaryExpr struct {
	Op    string // + - * / % == != < <= > >= and or //
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) exprNode() {}
func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// AssignExpr is a path update: Target op Value.
type AssignExpr struct {
	Op     string // "=", "|=", "+=", "-=", "*=", "/="
	Target Expr
	Value  Expr
}

func (e *AssignExpr) exprNode() {}
func (e *AssignExpr) String() string {
	return e.Target.String() + " " + e.Op + " " + e.Value.String()
}

// NamedArg is a name=value call argument.
type NamedArg struct {
	Name  string
	Value Expr
}

// CallExpr is a builtin call. Name is lower-cased.
type CallExpr struct {
	Name  string
	Args  []Expr
	Named []NamedArg
}

func (e *CallExpr) exprNode() {}
func (e *CallExpr) String() string {
	if len(e.Args) == 0 && len(e.Named) == 0 {
		return e.Name
	}
	parts := make([]string, 0, len(e.Args)+len(e.Named))
	for _, a := range e.Args {
		parts = append(parts, a.String())
	}
	for _, n := range e.Named {
		parts = append(parts, n.Name+"="+n.Value.String())
	}
	return e.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Arity is the total number of arguments.
func (e *CallExpr) Arity() int { return len(e.Args) + len(e.Named) }

// Arg returns the named argument, or positional argument i when the name
// is absent.
func (e *CallExpr) Arg(name string, i int) Expr {
	for _, n := range e.Named {
		if n.Name == name {
			return n.Value
		}
	}
	if i >= 0 && i < len(e.Args) {
		return e.Args[i]
	}
	return nil
}

// LambdaExpr is `x => body`.
type LambdaExpr struct {
	Param string
	Body  Expr
}

func (e *LambdaExpr) exprNode()      {}
func (e *LambdaExpr) String() string { return e.Param + " => " + e.Body.String() }

// PipeExpr feeds the output of Left into Right.
type PipeExpr struct {
	Left, Right Expr
}

func (e *PipeExpr) exprNode()      {}
func (e *PipeExpr) String() string { return e.Left.String() + " | " + e.Right.String() }

// BindExpr is `Source as $Name | Body`.
type BindExpr struct {
	Source Expr
	Name   string
	Body   Expr
}

func (e *BindExpr) exprNode() {}
func (e *BindExpr) String() string {
	return e.Source.String() + " as $" + e.Name + " | " + e.Body.String()
}

// IfExpr is `if Cond then Then else Else end`. Else is nil when omitted.
type IfExpr struct {
	Cond, Then, Else Expr
}

func (e *IfExpr) exprNode() {}
func (e *IfExpr) String() string {
	s := "if " + e.Cond.String() + " then " + e.Then.String()
	if e.Else != nil {
		s += " else " + e.Else.String()
	}
	return s + " end"
}

// Pipeline splits a query into its top-level pipe stages.
func Pipeline(e Expr) []Expr {
	if p, ok := e.(*PipeExpr); ok {
		return append(Pipeline(p.Left), Pipeline(p.Right)...)
	}
	return []Expr{e}
}

// Path returns the chain of field and index keys of a path expression
// rooted at the input, or false if e is not a simple path.
func Path(e Expr) ([]Expr, bool) {
	switch n := e.(type) {
	case *IdentityExpr:
		return nil, true
	case *FieldExpr:
		p, ok := Path(n.Target)
		if !ok {
			return nil, false
		}
		return append(p, &LiteralExpr{Value: value.StrVal(n.Name)}), true
	case *IndexExpr:
		p, ok := Path(n.Target)
		if !ok {
			return nil, false
		}
		return append(p, n.Index), true
	}
	return nil, false
}

func withTarget(t Expr) string {
	if _, ok := t.(*IdentityExpr); ok || t == nil {
		return ""
	}
	return postfixBase(t)
}

func postfixBase(t Expr) string {
	switch t.(type) {
	case nil:
		return "."
	case *IdentityExpr, *FieldExpr, *IndexExpr, *SliceExpr, *IterateExpr, *VarExpr, *ArrayExpr, *ObjectExpr, *LiteralExpr:
		return t.String()
	case *CallExpr:
		return t.String()
	}
	return "(" + t.String() + ")"
}

func fieldName(name string) string {
	if isPlainName(name) {
		return name
	}
	return strconv.Quote(name)
}

func isPlainName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return !lexer.IsKeyword(s)
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
