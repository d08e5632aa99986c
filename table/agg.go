package table

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// AggFunc is an aggregation function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggMean
	AggMedian
	AggMin
	AggMax
	AggStd
	AggVar
	AggFirst
	AggLast
	AggList
	AggCountUnique
	AggConcat
)

var aggNames = [...]string{
	AggCount:       "count",
	AggSum:         "sum",
	AggMean:        "mean",
	AggMedian:      "median",
	AggMin:         "min",
	AggMax:         "max",
	AggStd:         "std",
	AggVar:         "var",
	AggFirst:       "first",
	AggLast:        "last",
	AggList:        "list",
	AggCountUnique: "n_unique",
	AggConcat:      "concat",
}

var aggAliases = map[string]AggFunc{
	"avg":           AggMean,
	"count_unique":  AggCountUnique,
	"string_concat": AggConcat,
}

func (f AggFunc) String() string {
	if int(f) < len(aggNames) {
		return aggNames[f]
	}
	return "?"
}

// ParseAggFunc resolves a function name or alias.
func ParseAggFunc(name string) (AggFunc, bool) {
	for i, n := range aggNames {
		if n == name {
			return AggFunc(i), true
		}
	}
	f, ok := aggAliases[name]
	return f, ok
}

// AggExpr is one aggregation in a GroupBy.
type AggExpr struct {
	Func      AggFunc
	Column    string // empty only for a plain row count
	Alias     string
	Separator string // AggConcat only
}

// Agg builds an aggregation over a column.
func Agg(fn AggFunc, column string) AggExpr {
	return AggExpr{Func: fn, Column: column}
}

// Count counts rows.
func Count() AggExpr {
	return AggExpr{Func: AggCount}
}

// As sets the output column name.
func (a AggExpr) As(alias string) AggExpr {
	a.Alias = alias
	return a
}

// OutputName is the column the aggregation writes to.
func (a AggExpr) OutputName() string {
	switch {
	case a.Alias != "":
		return a.Alias
	case a.Func == AggCount && a.Column == "":
		return "count"
	default:
		return a.Column + "_" + a.Func.String()
	}
}

func (a AggExpr) String() string {
	arg := a.Column
	if a.Func == AggConcat {
		arg = fmt.Sprintf("%s, %q", a.Column, a.Separator)
	}
	return fmt.Sprintf("%s(%s) as %s", a.Func, arg, a.OutputName())
}

// Reduce folds cells with fn. Numeric reductions ignore nulls and return
// null when nothing is left; std and var need two values.
func Reduce(fn AggFunc, cells []Cell, sep string) (Cell, error) {
	switch fn {
	case AggCount:
		n := 0
		for _, c := range cells {
			if !c.IsNull() {
				n++
			}
		}
		return IntVal(int64(n)), nil
	case AggFirst:
		if len(cells) == 0 {
			return Null(), nil
		}
		return cells[0], nil
	case AggLast:
		if len(cells) == 0 {
			return Null(), nil
		}
		return cells[len(cells)-1], nil
	case AggList:
		return ListVal(append([]Cell{}, cells...)), nil
	case AggCountUnique:
		seen := make(map[string]bool)
		for _, c := range cells {
			if !c.IsNull() {
				seen[c.Key()] = true
			}
		}
		return IntVal(int64(len(seen))), nil
	case AggConcat:
		var parts []string
		for _, c := range cells {
			if !c.IsNull() {
				parts = append(parts, c.AsString())
			}
		}
		return StrVal(strings.Join(parts, sep)), nil
	case AggMin, AggMax:
		var best Cell
		found := false
		for _, c := range cells {
			if c.IsNull() {
				continue
			}
			if !found {
				best, found = c, true
				continue
			}
			cmp := SortCompare(c, best)
			if (fn == AggMin && cmp < 0) || (fn == AggMax && cmp > 0) {
				best = c
			}
		}
		if !found {
			return Null(), nil
		}
		return best, nil
	case AggSum:
		return sumCells(cells)
	}

	nums, err := numericCells(fn, cells)
	if err != nil {
		return Null(), err
	}
	switch fn {
	case AggMean:
		if len(nums) == 0 {
			return Null(), nil
		}
		return FloatVal(mean(nums)), nil
	case AggMedian:
		if len(nums) == 0 {
			return Null(), nil
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return FloatVal(nums[mid]), nil
		}
		return FloatVal((nums[mid-1] + nums[mid]) / 2), nil
	case AggVar, AggStd:
		if len(nums) < 2 {
			return Null(), nil
		}
		v := variance(nums)
		if fn == AggStd {
			v = math.Sqrt(v)
		}
		return FloatVal(v), nil
	}
	return Null(), fmt.Errorf("unknown aggregation %d", fn)
}

// sumCells adds numeric cells. An integer sum that overflows int64 continues
// as a *big.Int stored opaquely; any float operand makes the sum a float.
func sumCells(cells []Cell) (Cell, error) {
	var (
		isum   int64
		bsum   *big.Int
		fsum   float64
		floaty bool
		found  bool
	)
	for _, c := range cells {
		switch c.Type {
		case CellNull:
			continue
		case CellInt:
			found = true
			switch {
			case floaty:
				fsum += float64(c.Int)
			case bsum != nil:
				bsum.Add(bsum, big.NewInt(c.Int))
			default:
				if s, ok := intArith(OpAdd, isum, c.Int); ok {
					isum = s
				} else {
					bsum = new(big.Int).Add(big.NewInt(isum), big.NewInt(c.Int))
				}
			}
		case CellFloat:
			found = true
			if !floaty {
				floaty = true
				if bsum != nil {
					fsum, _ = new(big.Float).SetInt(bsum).Float64()
				} else {
					fsum = float64(isum)
				}
			}
			fsum += c.Float
		default:
			return Null(), fmt.Errorf("sum: non-numeric value %s", c.Type)
		}
	}
	switch {
	case !found:
		return Null(), nil
	case floaty:
		return FloatVal(fsum), nil
	case bsum != nil:
		if bsum.IsInt64() {
			return IntVal(bsum.Int64()), nil
		}
		return OpaqueVal(bsum), nil
	default:
		return IntVal(isum), nil
	}
}

func numericCells(fn AggFunc, cells []Cell) ([]float64, error) {
	nums := make([]float64, 0, len(cells))
	for _, c := range cells {
		if c.IsNull() {
			continue
		}
		f, ok := c.AsFloat()
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric value %s", fn, c.Type)
		}
		nums = append(nums, f)
	}
	return nums, nil
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// variance is the sample variance (ddof=1).
func variance(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// groups partitions rows by the key columns in first-seen order.
func (t *Table) groups(keys []string) ([][]int, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c, ok := t.Column(k)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, k)
		}
		cols[i] = c
	}
	if len(keys) == 0 {
		all := make([]int, t.nrows)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}, nil
	}

	index := make(map[string]int)
	var out [][]int
	for i := 0; i < t.nrows; i++ {
		key := rowKey(cols, i)
		g, ok := index[key]
		if !ok {
			g = len(out)
			index[key] = g
			out = append(out, nil)
		}
		out[g] = append(out[g], i)
	}
	return out, nil
}

// GroupBy partitions rows by keys and reduces every group with aggs. With no
// keys the whole table is one group, so the result has exactly one row.
func (t *Table) GroupBy(keys []string, aggs []AggExpr) (*Table, error) {
	groups, err := t.groups(keys)
	if err != nil {
		return nil, fmt.Errorf("group_by: %w", err)
	}
	for _, a := range aggs {
		if a.Column == "" {
			if a.Func != AggCount {
				return nil, fmt.Errorf("group_by: %s needs a column", a.Func)
			}
			continue
		}
		if t.ColIndex(a.Column) < 0 {
			return nil, fmt.Errorf("group_by: %s: %w: %q", a.Func, ErrColumnNotFound, a.Column)
		}
	}

	cols := make([]*Column, 0, len(keys)+len(aggs))
	if len(keys) > 0 {
		firsts := make([]int, len(groups))
		for g, rows := range groups {
			firsts[g] = rows[0]
		}
		keyTable, _ := t.Select(keys...)
		cols = append(cols, keyTable.Take(firsts).cols...)
	}

	aggCols := make([]*Column, len(aggs))
	errs := make([]error, len(aggs))
	forEachColumn(len(aggs), func(i int) {
		aggCols[i], errs[i] = t.reduceGroups(groups, aggs[i])
	})
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("group_by: %w", err)
		}
	}
	out, err := New(append(cols, aggCols...)...)
	if err != nil {
		return nil, fmt.Errorf("group_by: %w", err)
	}
	out.nrows = len(groups)
	return out, nil
}

func (t *Table) reduceGroups(groups [][]int, a AggExpr) (*Column, error) {
	out := make([]Cell, len(groups))
	if a.Column == "" {
		for g, rows := range groups {
			out[g] = IntVal(int64(len(rows)))
		}
		return NewColumn(a.OutputName(), out), nil
	}
	src, _ := t.Column(a.Column)
	for g, rows := range groups {
		cells := make([]Cell, len(rows))
		for i, r := range rows {
			cells[i] = src.Get(r)
		}
		v, err := Reduce(a.Func, cells, a.Separator)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.OutputName(), err)
		}
		out[g] = v
	}
	return NewColumn(a.OutputName(), out), nil
}
