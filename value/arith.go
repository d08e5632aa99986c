package value

import (
	"math"
	"math/big"
	"strings"

	"github.com/datasetq/datasetq/table"
)

// Binary applies an arithmetic or comparison operator. Column operands are
// combined element-wise by the engine, broadcasting scalars; table operands
// are rejected.
func Binary(op table.BinOp, a, b Value) (Value, error) {
	if err := rejectTables(op, a, b); err != nil {
		return Null(), err
	}
	if a.Kind == KindColumn || b.Kind == KindColumn {
		return columnBinary(op, a, b)
	}
	switch op {
	case table.OpAdd:
		return Add(a, b)
	case table.OpSub:
		return Sub(a, b)
	case table.OpMul:
		return Mul(a, b)
	case table.OpDiv:
		return Div(a, b)
	case table.OpEq:
		return BoolVal(Equal(a, b)), nil
	case table.OpNe:
		return BoolVal(!Equal(a, b)), nil
	case table.OpLt, table.OpLe, table.OpGt, table.OpGe:
		c, err := Compare(a, b)
		if err != nil {
			return Null(), err
		}
		switch op {
		case table.OpLt:
			return BoolVal(c < 0), nil
		case table.OpLe:
			return BoolVal(c <= 0), nil
		case table.OpGt:
			return BoolVal(c > 0), nil
		default:
			return BoolVal(c >= 0), nil
		}
	case table.OpAnd:
		return BoolVal(a.Truthy() && b.Truthy()), nil
	case table.OpOr:
		return BoolVal(a.Truthy() || b.Truthy()), nil
	}
	return Null(), opErrf(op.String(), "unsupported operator")
}

func rejectTables(op table.BinOp, a, b Value) error {
	for _, v := range []Value{a, b} {
		if v.Kind == KindTable || v.Kind == KindDeferredTable {
			if op >= table.OpEq && op <= table.OpGe {
				return typeErrf(op.String(), v.Kind, "tables are not comparable; use a filter predicate")
			}
			return typeErrf(op.String(), v.Kind, "cannot apply %s to a table", op)
		}
	}
	return nil
}

func columnBinary(op table.BinOp, a, b Value) (Value, error) {
	name := ""
	if a.Kind == KindColumn {
		name = a.Col.Name()
	} else {
		name = b.Col.Name()
	}
	l, err := asColumn(op, name, a)
	if err != nil {
		return Null(), err
	}
	r, err := asColumn(op, name, b)
	if err != nil {
		return Null(), err
	}
	c, err := table.ApplyBinary(op, l, r)
	if err != nil {
		return Null(), opErr(op.String(), err)
	}
	return ColumnVal(c.Rename(name)), nil
}

func asColumn(op table.BinOp, name string, v Value) (*table.Column, error) {
	switch v.Kind {
	case KindColumn:
		return v.Col, nil
	case KindArray:
		return table.NewColumn(name, ToCells(v.Arr)), nil
	case KindObject:
		return nil, typeErrf(op.String(), v.Kind, "cannot combine object with column")
	}
	return table.Repeat(name, ToCell(v), 1), nil
}

// Add implements +. Null is the identity; strings and arrays concatenate;
// objects merge with the right side winning.
func Add(a, b Value) (Value, error) {
	switch {
	case a.IsNull():
		return b, nil
	case b.IsNull():
		return a, nil
	case a.IsNumber() && b.IsNumber():
		return numericOp(table.OpAdd, a, b)
	case a.Kind == KindString && b.Kind == KindString:
		return StrVal(a.Str + b.Str), nil
	case a.Kind == KindArray && b.Kind == KindArray:
		out := make([]Value, 0, len(a.Arr)+len(b.Arr))
		out = append(out, a.Arr...)
		return ArrayVal(append(out, b.Arr...)), nil
	case a.Kind == KindObject && b.Kind == KindObject:
		out := make(map[string]Value, len(a.Obj)+len(b.Obj))
		for k, v := range a.Obj {
			out[k] = v
		}
		for k, v := range b.Obj {
			out[k] = v
		}
		return ObjectVal(out), nil
	}
	return Null(), mismatch("+", a, b)
}

// Sub implements -. Arrays subtract every element equal to one in b.
func Sub(a, b Value) (Value, error) {
	switch {
	case a.IsNull() || b.IsNull():
		return Null(), nil
	case a.IsNumber() && b.IsNumber():
		return numericOp(table.OpSub, a, b)
	case a.Kind == KindArray && b.Kind == KindArray:
		drop := make(map[string]bool, len(b.Arr))
		for _, v := range b.Arr {
			drop[v.Key()] = true
		}
		out := make([]Value, 0, len(a.Arr))
		for _, v := range a.Arr {
			if !drop[v.Key()] {
				out = append(out, v)
			}
		}
		return ArrayVal(out), nil
	}
	return Null(), mismatch("-", a, b)
}

// Mul implements *. Objects merge recursively; a string times n repeats.
func Mul(a, b Value) (Value, error) {
	switch {
	case a.IsNull() || b.IsNull():
		return Null(), nil
	case a.IsNumber() && b.IsNumber():
		return numericOp(table.OpMul, a, b)
	case a.Kind == KindObject && b.Kind == KindObject:
		return deepMerge(a, b), nil
	case a.Kind == KindString && b.IsNumber():
		return repeatString(a.Str, b), nil
	case a.IsNumber() && b.Kind == KindString:
		return repeatString(b.Str, a), nil
	}
	return Null(), mismatch("*", a, b)
}

// Div implements /. Integer quotients stay integral when exact. A string
// divided by a string splits it.
func Div(a, b Value) (Value, error) {
	switch {
	case a.IsNull() || b.IsNull():
		return Null(), nil
	case a.IsNumber() && b.IsNumber():
		return numericOp(table.OpDiv, a, b)
	case a.Kind == KindString && b.Kind == KindString:
		parts := strings.Split(a.Str, b.Str)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = StrVal(p)
		}
		return ArrayVal(out), nil
	}
	return Null(), mismatch("/", a, b)
}

// Mod implements % on integers, truncating floats.
func Mod(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null(), nil
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Null(), mismatch("%", a, b)
	}
	if a.Kind == KindBigInt || b.Kind == KindBigInt {
		bb := toBigTrunc(b)
		if bb.Sign() == 0 {
			return Null(), &OpError{Op: "%", Err: ErrDivisionByZero}
		}
		return BigVal(new(big.Int).Rem(toBigTrunc(a), bb)), nil
	}
	x, y := truncInt(a), truncInt(b)
	if y == 0 {
		return Null(), &OpError{Op: "%", Err: ErrDivisionByZero}
	}
	if y == -1 {
		return IntVal(0), nil
	}
	return IntVal(x % y), nil
}

func numericOp(op table.BinOp, a, b Value) (Value, error) {
	if a.Kind == KindFloat || b.Kind == KindFloat {
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch op {
		case table.OpAdd:
			return FloatVal(x + y), nil
		case table.OpSub:
			return FloatVal(x - y), nil
		case table.OpMul:
			return FloatVal(x * y), nil
		case table.OpDiv:
			if y == 0 {
				return Null(), &OpError{Op: "/", Err: ErrDivisionByZero}
			}
			return FloatVal(x / y), nil
		}
	}
	if a.Kind == KindInt && b.Kind == KindInt && op != table.OpDiv {
		if r, ok := checkedInt(op, a.Int, b.Int); ok {
			return IntVal(r), nil
		}
	}
	x, y := toBig(a), toBig(b)
	switch op {
	case table.OpAdd:
		return BigVal(new(big.Int).Add(x, y)), nil
	case table.OpSub:
		return BigVal(new(big.Int).Sub(x, y)), nil
	case table.OpMul:
		return BigVal(new(big.Int).Mul(x, y)), nil
	case table.OpDiv:
		if y.Sign() == 0 {
			return Null(), &OpError{Op: "/", Err: ErrDivisionByZero}
		}
		q, r := new(big.Int).QuoRem(x, y, new(big.Int))
		if r.Sign() == 0 {
			return BigVal(q), nil
		}
		xf, _ := new(big.Float).SetInt(x).Float64()
		yf, _ := new(big.Float).SetInt(y).Float64()
		return FloatVal(xf / yf), nil
	}
	return Null(), opErrf(op.String(), "unsupported operator")
}

func checkedInt(op table.BinOp, a, b int64) (int64, bool) {
	switch op {
	case table.OpAdd:
		r := a + b
		return r, (r > a) == (b > 0)
	case table.OpSub:
		r := a - b
		return r, (r < a) == (b > 0)
	case table.OpMul:
		if a == 0 || b == 0 {
			return 0, true
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		return r, true
	}
	return 0, false
}

func truncInt(v Value) int64 {
	if v.Kind == KindFloat {
		return int64(v.Float)
	}
	return v.Int
}

func toBigTrunc(v Value) *big.Int {
	if v.Kind == KindFloat {
		b, _ := big.NewFloat(v.Float).Int(nil)
		return b
	}
	return toBig(v)
}

func deepMerge(a, b Value) Value {
	out := make(map[string]Value, len(a.Obj)+len(b.Obj))
	for k, v := range a.Obj {
		out[k] = v
	}
	for k, v := range b.Obj {
		if prev, ok := out[k]; ok && prev.Kind == KindObject && v.Kind == KindObject {
			out[k] = deepMerge(prev, v)
			continue
		}
		out[k] = v
	}
	return ObjectVal(out)
}

func repeatString(s string, n Value) Value {
	f, _ := n.AsFloat()
	if f <= 0 {
		return Null()
	}
	return StrVal(strings.Repeat(s, int(math.Ceil(f))))
}

func mismatch(op string, a, b Value) error {
	return typeErrf(op, a.Kind, "%s (%s) and %s (%s) cannot be combined", a.TypeName(), clip(a), b.TypeName(), clip(b))
}

func clip(v Value) string {
	s := v.String()
	if len(s) > 11 {
		return s[:10] + "..."
	}
	return s
}
