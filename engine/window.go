package engine

import (
	"fmt"
	"math"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// windowSpec is what the window builtins share: an optional min_periods
// and an optional target column, accepted in either order.
type windowSpec struct {
	minPeriods int
	column     string
}

func windowTail(op string, args []value.Value) (windowSpec, error) {
	s := windowSpec{minPeriods: table.DefaultMinPeriods}
	for _, a := range args {
		switch {
		case a.Kind == value.KindString:
			s.column = a.Str
		case a.IsNull():
		default:
			n, err := wantInt(op, a)
			if err != nil {
				return s, err
			}
			if n < 0 {
				return s, &value.TypeError{Op: op, Kind: a.Kind, Msg: "min_periods must not be negative"}
			}
			s.minPeriods = n
		}
	}
	return s, nil
}

func aggFuncArg(op string, v value.Value) (table.AggFunc, error) {
	name, err := wantString(op, v)
	if err != nil {
		return 0, err
	}
	fn, ok := table.ParseAggFunc(name)
	if !ok {
		return 0, &value.OpError{Op: op, Msg: fmt.Sprintf("unknown aggregation %q", name)}
	}
	return fn, nil
}

// windowExpr is a table window expression that also knows its output column.
type windowExpr interface {
	table.Expr
	OutputName() string
}

// applyWindow runs cellsFn over a numeric Array, or adds expr's column to a
// Table, DeferredTable or Array of Objects.
func applyWindow(op string, in value.Value, spec windowSpec, expr windowExpr, cellsFn func([]table.Cell) ([]table.Cell, error)) (value.Value, error) {
	if spec.column == "" {
		var cells []table.Cell
		switch in.Kind {
		case value.KindArray:
			cells = value.ToCells(in.Arr)
		case value.KindColumn:
			cells = in.Col.Cells()
		default:
			return value.Null(), &value.TypeError{Op: op, Kind: in.Kind, Msg: "name a column to apply a window to " + in.TypeName()}
		}
		out, err := cellsFn(cells)
		if err != nil {
			return value.Null(), &value.OpError{Op: op, Err: err}
		}
		if in.Kind == value.KindColumn {
			return value.ColumnVal(table.NewColumn(in.Col.Name(), out)), nil
		}
		return value.ArrayVal(value.FromCells(out)), nil
	}

	switch in.Kind {
	case value.KindTable:
		t, err := in.Table.WithExpr(expr.OutputName(), expr)
		if err != nil {
			return value.Null(), &value.OpError{Op: op, Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.WithColumn(expr.OutputName(), expr)), nil
	case value.KindArray:
		cells := make([]table.Cell, len(in.Arr))
		for i, e := range in.Arr {
			if e.Kind != value.KindObject {
				return value.Null(), &value.TypeError{Op: op, Kind: e.Kind, Msg: fmt.Sprintf("element %d is %s, not object", i, e.TypeName())}
			}
			cells[i] = value.ToCell(e.Obj[spec.column])
		}
		out, err := cellsFn(cells)
		if err != nil {
			return value.Null(), &value.OpError{Op: op, Err: err}
		}
		rows := make([]value.Value, len(in.Arr))
		for i, e := range in.Arr {
			m := copyObject(e, 1)
			m[expr.OutputName()] = value.FromCell(out[i])
			rows[i] = value.ObjectVal(m)
		}
		return value.ArrayVal(rows), nil
	}
	return value.Null(), &value.TypeError{Op: op, Kind: in.Kind}
}

// fnRolling is rolling(fn, window[, min_periods][, column]).
func fnRolling(in value.Value, args []value.Value) (value.Value, error) {
	fn, err := aggFuncArg("rolling", args[0])
	if err != nil {
		return value.Null(), err
	}
	return rolling("rolling", in, fn, args[1], args[2:])
}

// fnRollingStd is rolling_std(window[, min_periods][, column]).
func fnRollingStd(in value.Value, args []value.Value) (value.Value, error) {
	return rolling("rolling_std", in, table.AggStd, args[0], args[1:])
}

func rolling(op string, in value.Value, fn table.AggFunc, windowArg value.Value, rest []value.Value) (value.Value, error) {
	window, err := wantInt(op, windowArg)
	if err != nil {
		return value.Null(), err
	}
	if window <= 0 {
		return value.Null(), &value.TypeError{Op: op, Kind: windowArg.Kind, Msg: fmt.Sprintf("window must be positive, got %d", window)}
	}
	spec, err := windowTail(op, rest)
	if err != nil {
		return value.Null(), err
	}
	expr := &table.RollingExpr{Func: fn, Column: spec.column, Window: window, MinPeriods: spec.minPeriods}
	return applyWindow(op, in, spec, expr, func(cells []table.Cell) ([]table.Cell, error) {
		return table.RollingCells(fn, cells, window, spec.minPeriods)
	})
}

// fnCumulative is cumulative(fn[, min_periods][, column]).
func fnCumulative(in value.Value, args []value.Value) (value.Value, error) {
	fn, err := aggFuncArg("cumulative", args[0])
	if err != nil {
		return value.Null(), err
	}
	spec, err := windowTail("cumulative", args[1:])
	if err != nil {
		return value.Null(), err
	}
	expr := &table.CumulativeExpr{Func: fn, Column: spec.column, MinPeriods: spec.minPeriods}
	return applyWindow("cumulative", in, spec, expr, func(cells []table.Cell) ([]table.Cell, error) {
		return table.CumulativeCells(fn, cells, spec.minPeriods)
	})
}

// fnEWMA is ewma(alpha[, min_periods][, column]).
func fnEWMA(in value.Value, args []value.Value) (value.Value, error) {
	alpha, ok := args[0].AsFloat()
	if !ok {
		return value.Null(), &value.TypeError{Op: "ewma", Kind: args[0].Kind, Msg: fmt.Sprintf("alpha must be a number, got %s", args[0].TypeName())}
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return value.Null(), &value.TypeError{Op: "ewma", Kind: args[0].Kind, Msg: fmt.Sprintf("%v, got %g", table.ErrAlphaRange, alpha)}
	}
	spec, err := windowTail("ewma", args[1:])
	if err != nil {
		return value.Null(), err
	}
	expr := &table.EWMAExpr{Column: spec.column, Alpha: alpha, MinPeriods: spec.minPeriods}
	return applyWindow("ewma", in, spec, expr, func(cells []table.Cell) ([]table.Cell, error) {
		return table.EWMACells(cells, alpha, spec.minPeriods)
	})
}
