package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/array"
)

// Expr is a column expression evaluated against a whole table at once.
type Expr interface {
	Eval(t *Table) (*Column, error)
	// Columns lists the input columns the expression reads.
	Columns() []string
	String() string
}

// BinOp is a binary operator usable in an Expr.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binOpSymbols = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "and", OpOr: "or",
}

func (op BinOp) String() string {
	if int(op) < len(binOpSymbols) {
		return binOpSymbols[op]
	}
	return "?"
}

// ParseBinOp maps an operator symbol to a BinOp.
func ParseBinOp(s string) (BinOp, bool) {
	for i, sym := range binOpSymbols {
		if sym == s {
			return BinOp(i), true
		}
	}
	return 0, false
}

func (op BinOp) arithmetic() bool { return op <= OpDiv }
func (op BinOp) comparison() bool { return op >= OpEq && op <= OpGe }

// UnaryOp is a unary operator usable in an Expr.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpIsNull
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "not"
	case OpNeg:
		return "-"
	case OpIsNull:
		return "is_null"
	}
	return "?"
}

// ColExpr reads a column.
type ColExpr struct {
	Name string
}

// Col references a column by name.
func Col(name string) *ColExpr { return &ColExpr{Name: name} }

func (e *ColExpr) Eval(t *Table) (*Column, error) {
	c, ok := t.Column(e.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, e.Name)
	}
	return c, nil
}

func (e *ColExpr) Columns() []string { return []string{e.Name} }
func (e *ColExpr) String() string    { return "col(" + e.Name + ")" }

// LitExpr is a constant broadcast to every row.
type LitExpr struct {
	Value Cell
}

// Lit wraps a constant cell.
func Lit(v Cell) *LitExpr { return &LitExpr{Value: v} }

func (e *LitExpr) Eval(t *Table) (*Column, error) {
	return Repeat("literal", e.Value, t.NumRows()), nil
}

func (e *LitExpr) Columns() []string { return nil }

func (e *LitExpr) String() string {
	if e.Value.Type == CellString {
		return fmt.Sprintf("%q", e.Value.Str)
	}
	return e.Value.AsString()
}

// BinaryExpr combines two expressions element-wise.
type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

// Binary builds a BinaryExpr.
func Binary(op BinOp, left, right Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

func (e *BinaryExpr) Eval(t *Table) (*Column, error) {
	l, err := e.Left.Eval(t)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.Eval(t)
	if err != nil {
		return nil, err
	}
	out, err := ApplyBinary(e.Op, l, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e, err)
	}
	return out, nil
}

func (e *BinaryExpr) Columns() []string {
	return appendUnique(e.Left.Columns(), e.Right.Columns()...)
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// UnaryExpr applies a unary operator element-wise.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

// Unary builds a UnaryExpr.
func Unary(op UnaryOp, operand Expr) *UnaryExpr {
	return &UnaryExpr{Op: op, Operand: operand}
}

func (e *UnaryExpr) Eval(t *Table) (*Column, error) {
	c, err := e.Operand.Eval(t)
	if err != nil {
		return nil, err
	}
	out := make([]Cell, c.Len())
	for i := range out {
		v := c.Get(i)
		switch e.Op {
		case OpNot:
			out[i] = BoolVal(!v.Truthy())
		case OpIsNull:
			out[i] = BoolVal(v.IsNull())
		case OpNeg:
			switch v.Type {
			case CellNull:
				out[i] = Null()
			case CellInt:
				if v.Int == math.MinInt64 {
					out[i] = FloatVal(-float64(v.Int))
				} else {
					out[i] = IntVal(-v.Int)
				}
			case CellFloat:
				out[i] = FloatVal(-v.Float)
			default:
				return nil, fmt.Errorf("cannot negate %s", v.Type)
			}
		}
	}
	return NewColumn(e.String(), out), nil
}

func (e *UnaryExpr) Columns() []string { return e.Operand.Columns() }

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Operand)
}

// FuncExpr maps a scalar function over the rows of its arguments.
type FuncExpr struct {
	Name string
	Args []Expr
	Fn   func(args []Cell) (Cell, error)
}

// Func builds a FuncExpr.
func Func(name string, fn func(args []Cell) (Cell, error), args ...Expr) *FuncExpr {
	return &FuncExpr{Name: name, Args: args, Fn: fn}
}

func (e *FuncExpr) Eval(t *Table) (*Column, error) {
	cols := make([]*Column, len(e.Args))
	for i, a := range e.Args {
		c, err := a.Eval(t)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	out := make([]Cell, t.NumRows())
	args := make([]Cell, len(cols))
	for row := range out {
		for i, c := range cols {
			args[i] = c.Get(row)
		}
		v, err := e.Fn(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		out[row] = v
	}
	return NewColumn(e.Name, out), nil
}

func (e *FuncExpr) Columns() []string {
	var cols []string
	for _, a := range e.Args {
		cols = appendUnique(cols, a.Columns()...)
	}
	return cols
}

func (e *FuncExpr) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Name + "(" + strings.Join(parts, ", ") + ")"
}

// OpaqueExpr computes a column with arbitrary Go code. Its inputs are
// unknown, so plans cannot prune columns beneath it.
type OpaqueExpr struct {
	Desc string
	Fn   func(t *Table) (*Column, error)
}

// Opaque builds an OpaqueExpr.
func Opaque(desc string, fn func(t *Table) (*Column, error)) *OpaqueExpr {
	return &OpaqueExpr{Desc: desc, Fn: fn}
}

func (e *OpaqueExpr) Eval(t *Table) (*Column, error) {
	c, err := e.Fn(t)
	if err != nil {
		return nil, err
	}
	if c.Len() != t.NumRows() {
		return nil, fmt.Errorf("%s: produced %d rows, expected %d", e.Desc, c.Len(), t.NumRows())
	}
	return c, nil
}

func (e *OpaqueExpr) Columns() []string { return nil }
func (e *OpaqueExpr) String() string    { return e.Desc }

// isOpaque reports whether an expression tree contains Go code whose inputs
// cannot be analysed.
func isOpaque(e Expr) bool {
	switch x := e.(type) {
	case *OpaqueExpr:
		return true
	case *BinaryExpr:
		return isOpaque(x.Left) || isOpaque(x.Right)
	case *UnaryExpr:
		return isOpaque(x.Operand)
	case *FuncExpr:
		for _, a := range x.Args {
			if isOpaque(a) {
				return true
			}
		}
	}
	return false
}

// ApplyBinary combines two columns element-wise. A length-one side is
// broadcast against the other.
func ApplyBinary(op BinOp, l, r *Column) (*Column, error) {
	n := l.Len()
	switch {
	case l.Len() == r.Len():
	case l.Len() == 1:
		n = r.Len()
		l = Repeat(l.Name(), l.Get(0), n)
	case r.Len() == 1:
		r = Repeat(r.Name(), r.Get(0), n)
	default:
		return nil, fmt.Errorf("length mismatch: %d and %d", l.Len(), r.Len())
	}

	if c, ok := numericKernel(op, l, r); ok {
		return c, nil
	}

	out := make([]Cell, n)
	for i := range out {
		v, err := BinaryCell(op, l.Get(i), r.Get(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return NewColumn(l.Name(), out), nil
}

// numericKernel runs arithmetic and comparisons directly on arrow arrays
// when both sides are numeric. It declines int64 results that overflow.
func numericKernel(op BinOp, l, r *Column) (*Column, bool) {
	if !isNumeric(l.dtype) || !isNumeric(r.dtype) || op == OpAnd || op == OpOr {
		return nil, false
	}
	n := l.Len()

	if op.comparison() {
		b := array.NewBooleanBuilder(alloc)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			if l.IsNull(i) || r.IsNull(i) {
				cmp := 0
				switch {
				case !l.IsNull(i):
					cmp = 1
				case !r.IsNull(i):
					cmp = -1
				}
				b.Append(cmpResult(op, cmp))
				continue
			}
			lf, rf := floatAt(l, i), floatAt(r, i)
			if l.dtype == TypeInt64 && r.dtype == TypeInt64 {
				li, ri := l.arr.(*array.Int64).Value(i), r.arr.(*array.Int64).Value(i)
				b.Append(cmpResult(op, cmpInts(li, ri)))
				continue
			}
			if math.IsNaN(lf) || math.IsNaN(rf) {
				switch op {
				case OpNe:
					b.Append(true)
				case OpEq:
					b.Append(false)
				default:
					// the cell path reports NaN as incomparable
					return nil, false
				}
				continue
			}
			b.Append(cmpResult(op, cmpFloats(lf, rf)))
		}
		return &Column{name: l.name, dtype: TypeBool, arr: b.NewBooleanArray(), n: n}, true
	}

	if l.dtype == TypeInt64 && r.dtype == TypeInt64 && op != OpDiv {
		la, ra := l.arr.(*array.Int64), r.arr.(*array.Int64)
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			if la.IsNull(i) || ra.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, ok := intArith(op, la.Value(i), ra.Value(i))
			if !ok {
				return nil, false
			}
			b.Append(v)
		}
		return &Column{name: l.name, dtype: TypeInt64, arr: b.NewInt64Array(), n: n}, true
	}

	if op == OpDiv {
		// exact integer quotients stay integral, so use the cell path
		return nil, false
	}
	b := array.NewFloat64Builder(alloc)
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if l.IsNull(i) || r.IsNull(i) {
			b.AppendNull()
			continue
		}
		lf, rf := floatAt(l, i), floatAt(r, i)
		switch op {
		case OpAdd:
			b.Append(lf + rf)
		case OpSub:
			b.Append(lf - rf)
		case OpMul:
			b.Append(lf * rf)
		}
	}
	return &Column{name: l.name, dtype: TypeFloat64, arr: b.NewFloat64Array(), n: n}, true
}

func isNumeric(d DataType) bool {
	return d == TypeInt64 || d == TypeFloat64
}

func floatAt(c *Column, i int) float64 {
	switch a := c.arr.(type) {
	case *array.Int64:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	}
	return math.NaN()
}

// BinaryCell applies op to two cells. Arithmetic propagates nulls, except
// that string concatenation treats null as empty. Int overflow promotes to
// float and division by zero is an error. Comparisons order null first.
func BinaryCell(op BinOp, a, b Cell) (Cell, error) {
	switch {
	case op.arithmetic():
		return arithCell(op, a, b)
	case op.comparison():
		return compareCell(op, a, b)
	case op == OpAnd:
		return BoolVal(a.Truthy() && b.Truthy()), nil
	case op == OpOr:
		return BoolVal(a.Truthy() || b.Truthy()), nil
	}
	return Null(), fmt.Errorf("unknown operator %d", op)
}

func arithCell(op BinOp, a, b Cell) (Cell, error) {
	if op == OpAdd && (a.Type == CellString || b.Type == CellString) {
		if (a.Type == CellString || a.IsNull()) && (b.Type == CellString || b.IsNull()) {
			return StrVal(a.Str + b.Str), nil
		}
	}
	if a.IsNull() || b.IsNull() {
		return Null(), nil
	}
	if a.Type == CellInt && b.Type == CellInt {
		if op == OpDiv {
			if b.Int == 0 {
				return Null(), ErrDivisionByZero
			}
			if a.Int%b.Int == 0 && !(a.Int == math.MinInt64 && b.Int == -1) {
				return IntVal(a.Int / b.Int), nil
			}
			return FloatVal(float64(a.Int) / float64(b.Int)), nil
		}
		if v, ok := intArith(op, a.Int, b.Int); ok {
			return IntVal(v), nil
		}
	}

	lf, lok := a.AsFloat()
	rf, rok := b.AsFloat()
	if !lok || !rok {
		return Null(), fmt.Errorf("cannot perform %s on %s and %s", op, a.Type, b.Type)
	}
	switch op {
	case OpAdd:
		return FloatVal(lf + rf), nil
	case OpSub:
		return FloatVal(lf - rf), nil
	case OpMul:
		return FloatVal(lf * rf), nil
	default:
		if rf == 0 {
			return Null(), ErrDivisionByZero
		}
		return FloatVal(lf / rf), nil
	}
}

// intArith reports false when the result does not fit in int64.
func intArith(op BinOp, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		c := a + b
		if (c > a) == (b > 0) {
			return c, true
		}
	case OpSub:
		c := a - b
		if (c < a) == (b > 0) {
			return c, true
		}
	case OpMul:
		if a == 0 || b == 0 {
			return 0, true
		}
		c := a * b
		if c/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64) {
			return c, true
		}
	}
	return 0, false
}

func compareCell(op BinOp, a, b Cell) (Cell, error) {
	switch op {
	case OpEq:
		return BoolVal(Equal(a, b)), nil
	case OpNe:
		return BoolVal(!Equal(a, b)), nil
	}
	cmp, err := Compare(a, b)
	if err != nil {
		return Null(), err
	}
	return BoolVal(cmpResult(op, cmp)), nil
}

func cmpResult(op BinOp, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpGt:
		return cmp > 0
	case OpLe:
		return cmp <= 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func cmpInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, n)
		}
	}
	return dst
}
