package table

import (
	"errors"
	"fmt"
	"math"
)

// ErrAlphaRange is returned for an EWMA smoothing factor outside [0, 1].
var ErrAlphaRange = errors.New("alpha must be within [0, 1]")

// DefaultMinPeriods selects each window function's own minimum: the window
// size for rolling windows and 1 otherwise. Zero is a valid minimum.
const DefaultMinPeriods = -1

// RollingCells applies fn over a trailing window of the given size. A cell
// whose window holds fewer than minPeriods non-null values is null.
func RollingCells(fn AggFunc, cells []Cell, window, minPeriods int) ([]Cell, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rolling: window must be positive, got %d", window)
	}
	if minPeriods < 0 {
		minPeriods = window
	}
	out := make([]Cell, len(cells))
	for i := range cells {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		v, err := windowValue(fn, cells[start:i+1], minPeriods)
		if err != nil {
			return nil, fmt.Errorf("rolling %s: %w", fn, err)
		}
		out[i] = v
	}
	return out, nil
}

// CumulativeCells applies fn over every prefix.
func CumulativeCells(fn AggFunc, cells []Cell, minPeriods int) ([]Cell, error) {
	if minPeriods < 0 {
		minPeriods = 1
	}
	out := make([]Cell, len(cells))
	for i := range cells {
		v, err := windowValue(fn, cells[:i+1], minPeriods)
		if err != nil {
			return nil, fmt.Errorf("cumulative %s: %w", fn, err)
		}
		out[i] = v
	}
	return out, nil
}

func windowValue(fn AggFunc, w []Cell, minPeriods int) (Cell, error) {
	n := 0
	for _, c := range w {
		if !c.IsNull() {
			n++
		}
	}
	if n < minPeriods {
		return Null(), nil
	}
	return Reduce(fn, w, "")
}

// EWMACells computes an exponentially weighted moving average with
// s[t] = alpha*x[t] + (1-alpha)*s[t-1], seeded with the first non-null value.
// A null input repeats the last computed value.
func EWMACells(cells []Cell, alpha float64, minPeriods int) ([]Cell, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("ewma: %w, got %g", ErrAlphaRange, alpha)
	}
	if minPeriods < 0 {
		minPeriods = 1
	}
	out := make([]Cell, len(cells))
	var (
		s    float64
		seen int
	)
	for i, c := range cells {
		if !c.IsNull() {
			x, ok := c.AsFloat()
			if !ok {
				return nil, fmt.Errorf("ewma: non-numeric value %s", c.Type)
			}
			if seen == 0 {
				s = x
			} else {
				s = alpha*x + (1-alpha)*s
			}
			seen++
		}
		if seen == 0 || seen < minPeriods {
			out[i] = Null()
			continue
		}
		out[i] = FloatVal(s)
	}
	return out, nil
}

// RollingExpr is a trailing-window aggregation over one column. MinPeriods
// takes DefaultMinPeriods for the window size.
type RollingExpr struct {
	Func       AggFunc
	Column     string
	Window     int
	MinPeriods int
}

func (e *RollingExpr) Eval(t *Table) (*Column, error) {
	src, ok := t.Column(e.Column)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, e.Column)
	}
	out, err := RollingCells(e.Func, src.Cells(), e.Window, e.MinPeriods)
	if err != nil {
		return nil, err
	}
	return NewColumn(e.OutputName(), out), nil
}

func (e *RollingExpr) Columns() []string { return []string{e.Column} }

// OutputName is {column}_rolling_{fn}.
func (e *RollingExpr) OutputName() string {
	return e.Column + "_rolling_" + e.Func.String()
}

func (e *RollingExpr) String() string {
	return fmt.Sprintf("rolling_%s(%s, %d)", e.Func, e.Column, e.Window)
}

// CumulativeExpr is a running aggregation over one column.
type CumulativeExpr struct {
	Func       AggFunc
	Column     string
	MinPeriods int
}

func (e *CumulativeExpr) Eval(t *Table) (*Column, error) {
	src, ok := t.Column(e.Column)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, e.Column)
	}
	out, err := CumulativeCells(e.Func, src.Cells(), e.MinPeriods)
	if err != nil {
		return nil, err
	}
	return NewColumn(e.OutputName(), out), nil
}

func (e *CumulativeExpr) Columns() []string { return []string{e.Column} }

// OutputName is {column}_cum_{fn}.
func (e *CumulativeExpr) OutputName() string {
	return e.Column + "_cum_" + e.Func.String()
}

func (e *CumulativeExpr) String() string {
	return fmt.Sprintf("cum_%s(%s)", e.Func, e.Column)
}

// EWMAExpr is an exponentially weighted moving average over one column.
type EWMAExpr struct {
	Column     string
	Alpha      float64
	MinPeriods int
}

func (e *EWMAExpr) Eval(t *Table) (*Column, error) {
	src, ok := t.Column(e.Column)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, e.Column)
	}
	out, err := EWMACells(src.Cells(), e.Alpha, e.MinPeriods)
	if err != nil {
		return nil, err
	}
	return NewColumn(e.OutputName(), out), nil
}

func (e *EWMAExpr) Columns() []string { return []string{e.Column} }

// OutputName is {column}_ewma.
func (e *EWMAExpr) OutputName() string { return e.Column + "_ewma" }

func (e *EWMAExpr) String() string {
	return fmt.Sprintf("ewma(%s, %g)", e.Column, e.Alpha)
}
