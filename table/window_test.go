package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ints(vs ...int64) []Cell {
	out := make([]Cell, len(vs))
	for i, v := range vs {
		out[i] = IntVal(v)
	}
	return out
}

func TestRollingCells(t *testing.T) {
	got, err := RollingCells(AggSum, ints(1, 2, 3, 4), 2, DefaultMinPeriods)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), IntVal(3), IntVal(5), IntVal(7)}, got)

	got, err = RollingCells(AggMean, ints(1, 2, 3, 4), 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []Cell{FloatVal(1), FloatVal(1.5), FloatVal(2), FloatVal(3)}, got)

	got, err = RollingCells(AggSum, []Cell{IntVal(1), Null(), IntVal(3)}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), Null(), Null()}, got)

	_, err = RollingCells(AggSum, ints(1), 0, DefaultMinPeriods)
	assert.Error(t, err)
}

func TestZeroMinPeriods(t *testing.T) {
	got, err := RollingCells(AggSum, ints(1, 2, 3, 4), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []Cell{IntVal(1), IntVal(3), IntVal(5), IntVal(7)}, got)

	got, err = CumulativeCells(AggSum, []Cell{Null(), IntVal(2)}, 0)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), IntVal(2)}, got)

	got, err = EWMACells([]Cell{Null(), IntVal(4)}, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), FloatVal(4)}, got)
}

func TestCumulativeCells(t *testing.T) {
	got, err := CumulativeCells(AggSum, []Cell{IntVal(1), Null(), IntVal(2)}, DefaultMinPeriods)
	require.NoError(t, err)
	assert.Equal(t, []Cell{IntVal(1), IntVal(1), IntVal(3)}, got)

	got, err = CumulativeCells(AggMax, ints(3, 1, 4), 2)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), IntVal(3), IntVal(4)}, got)
}

func TestEWMACells(t *testing.T) {
	got, err := EWMACells([]Cell{IntVal(7)}, 0.3, DefaultMinPeriods)
	require.NoError(t, err)
	assert.Equal(t, []Cell{FloatVal(7)}, got)

	got, err = EWMACells([]Cell{Null(), IntVal(10), Null(), IntVal(20)}, 0.5, DefaultMinPeriods)
	require.NoError(t, err)
	assert.Equal(t, []Cell{Null(), FloatVal(10), FloatVal(10), FloatVal(15)}, got)

	got, err = EWMACells(ints(1, 2, 3), 0.5, 2)
	require.NoError(t, err)
	assert.True(t, got[0].IsNull())
	assert.Equal(t, FloatVal(1.5), got[1])

	_, err = EWMACells(ints(1), 1.5, 0)
	assert.ErrorIs(t, err, ErrAlphaRange)
	_, err = EWMACells(ints(1), -0.1, 0)
	assert.ErrorIs(t, err, ErrAlphaRange)
}

func TestWindowExprs(t *testing.T) {
	users := usersTable(t)

	got, err := users.WithExpr("age_rolling_sum", &RollingExpr{Func: AggSum, Column: "age", Window: 2})
	require.NoError(t, err)
	assert.True(t, got.Get(0, "age_rolling_sum").IsNull())
	assert.Equal(t, IntVal(55), got.Get(1, "age_rolling_sum"))

	cum := &CumulativeExpr{Func: AggSum, Column: "age"}
	assert.Equal(t, "age_cum_sum", cum.OutputName())
	c, err := cum.Eval(users)
	require.NoError(t, err)
	assert.Equal(t, IntVal(180), c.Get(5))

	ewma := &EWMAExpr{Column: "age", Alpha: 1}
	assert.Equal(t, "age_ewma", ewma.OutputName())
	c, err = ewma.Eval(users)
	require.NoError(t, err)
	assert.Equal(t, FloatVal(40), c.Get(5))

	rs := &RollingExpr{Func: AggStd, Column: "age", Window: 3}
	assert.Equal(t, "age_rolling_std", rs.OutputName())
	_, err = (&RollingExpr{Func: AggSum, Column: "nope", Window: 2}).Eval(users)
	assert.ErrorIs(t, err, ErrColumnNotFound)
}
