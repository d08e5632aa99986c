package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyPredicatePushdown(t *testing.T) {
	lf := usersTable(t).Lazy().
		Sort(SortKey{Column: "age"}).
		Filter(Binary(OpGt, Col("age"), Lit(IntVal(25)))).
		Select("name", "age")

	assert.Equal(t, []string{
		"scan 3 columns, 6 rows project [name, age]",
		"filter (col(age) > 25)",
		"sort [age]",
		"select [name, age]",
	}, lf.Explain())

	got, err := lf.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, got.Columns())
	assert.Equal(t, []string{"Diana", "Alice", "Charlie", "Frank"}, names(got))
}

func TestLazyFilterStaysAboveDependentSteps(t *testing.T) {
	lf := usersTable(t).Lazy().
		WithColumn("older", Binary(OpAdd, Col("age"), Lit(IntVal(10)))).
		Head(3).
		Filter(Binary(OpGt, Col("older"), Lit(IntVal(36))))

	plan := lf.Explain()
	assert.Equal(t, "filter (col(older) > 36)", plan[len(plan)-1])

	got, err := lf.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Charlie"}, names(got))
}

func TestLazyFiltersKeepOrder(t *testing.T) {
	lf := usersTable(t).Lazy().
		Filter(Binary(OpEq, Col("city"), Lit(StrVal("NY")))).
		Sort(SortKey{Column: "age", Descending: true}).
		Filter(Binary(OpLt, Col("age"), Lit(IntVal(40))))

	assert.Equal(t, []string{
		"scan 3 columns, 6 rows",
		`filter (col(city) == "NY")`,
		"filter (col(age) < 40)",
		"sort [age desc]",
	}, lf.Explain())

	got, err := lf.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie", "Alice"}, names(got))
}

func TestLazySliceFusion(t *testing.T) {
	lf := usersTable(t).Lazy().Head(4).Slice(1, 2).Head(1)
	assert.Equal(t, []string{
		"scan 3 columns, 6 rows",
		"slice offset 1 length 1",
	}, lf.Explain())

	got, err := lf.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(got))

	got, err = usersTable(t).Lazy().Tail(4).Tail(2).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Eve", "Frank"}, names(got))
}

func TestLazyGroupByProjection(t *testing.T) {
	lf := usersTable(t).Lazy().
		GroupBy("city").
		Agg(Agg(AggSum, "age"))

	plan := lf.Explain()
	assert.Equal(t, "scan 3 columns, 6 rows project [age, city]", plan[0])

	got, err := lf.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "age_sum"}, got.Columns())
	assert.Equal(t, 3, got.NumRows())
}

func TestLazyMatchesEager(t *testing.T) {
	users := usersTable(t)
	eager, err := users.FilterExpr(Binary(OpGe, Col("age"), Lit(IntVal(28))))
	require.NoError(t, err)
	eager, err = eager.Rename("city", "town")
	require.NoError(t, err)

	lazy, err := users.Lazy().
		Rename("city", "town").
		Filter(Binary(OpGe, Col("age"), Lit(IntVal(28)))).
		Collect()
	require.NoError(t, err)
	assert.True(t, eager.Equal(lazy))
}

func TestLazyJoinAndErrors(t *testing.T) {
	left, right := joinSides(t)
	got, err := left.Lazy().Join(right.Lazy(), JoinOptions{LeftOn: []string{"id"}}).Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumRows())

	_, err = usersTable(t).Lazy().Select("nope").Collect()
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestLazyFilterFunc(t *testing.T) {
	got, err := usersTable(t).Lazy().
		FilterFunc("name starts with C", func(t *Table) (*Column, error) {
			c, _ := t.Column("name")
			out := make([]Cell, c.Len())
			for i := range out {
				out[i] = BoolVal(c.Get(i).Str[0] == 'C')
			}
			return NewColumn("mask", out), nil
		}).
		Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie"}, names(got))
}
