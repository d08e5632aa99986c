package engine

import (
	"errors"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// translate converts a row-wise expression into an engine expression so
// table stages run column-at-a-time. param names the lambda parameter that
// stands for the row, if any. It reports false for anything the engine
// cannot evaluate.
func translate(e ast.Expr, param string) (table.Expr, bool) {
	switch n := e.(type) {
	case *ast.FieldExpr:
		switch t := n.Target.(type) {
		case *ast.IdentityExpr:
			return table.Col(n.Name), true
		case *ast.VarExpr:
			if param != "" && t.Name == param {
				return table.Col(n.Name), true
			}
		}
	case *ast.LiteralExpr:
		switch n.Value.Kind {
		case value.KindNull, value.KindBool, value.KindInt, value.KindFloat, value.KindString:
			return table.Lit(value.ToCell(n.Value)), true
		}
	case *ast.BinaryExpr:
		op, ok := table.ParseBinOp(n.Op)
		if !ok {
			return nil, false
		}
		l, ok := translate(n.Left, param)
		if !ok {
			return nil, false
		}
		r, ok := translate(n.Right, param)
		if !ok {
			return nil, false
		}
		return table.Binary(op, l, r), true
	case *ast.UnaryExpr:
		var op table.UnaryOp
		switch n.Op {
		case "not":
			op = table.OpNot
		case "-":
			op = table.OpNeg
		default:
			return nil, false
		}
		x, ok := translate(n.Operand, param)
		if !ok {
			return nil, false
		}
		return table.Unary(op, x), true
	case *ast.LambdaExpr:
		return translate(n.Body, n.Param)
	case *ast.PipeExpr:
		if _, ok := n.Left.(*ast.IdentityExpr); ok {
			return translate(n.Right, param)
		}
	}
	return nil, false
}

// rowMask evaluates op against every row of t as an Object and returns the
// truthiness of each result as a boolean column.
func rowMask(env *Env, op Operation, t *table.Table) (*table.Column, error) {
	cells := make([]table.Cell, t.NumRows())
	err := value.EachRow(t, func(i int, row value.Value) error {
		v, err := op.Apply(env, row)
		if errors.Is(err, errEmpty) {
			cells[i] = table.BoolVal(false)
			return nil
		}
		if err != nil {
			return err
		}
		cells[i] = table.BoolVal(v.Truthy())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.NewColumn("mask", cells), nil
}

// rowValues evaluates op against every row of t and collects the results
// into a column.
func rowValues(env *Env, op Operation, t *table.Table, name string) (*table.Column, error) {
	cells := make([]table.Cell, t.NumRows())
	err := value.EachRow(t, func(i int, row value.Value) error {
		v, err := op.Apply(env, row)
		if errors.Is(err, errEmpty) {
			cells[i] = table.Null()
			return nil
		}
		if err != nil {
			return err
		}
		cells[i] = value.ToCell(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.NewColumn(name, cells), nil
}
