package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func TestLazyPipelineBuilders(t *testing.T) {
	p := NewLazyPipeline().
		Filter(table.Binary(table.OpGt, table.Col("age"), table.Lit(table.IntVal(24)))).
		Sort(table.SortKey{Column: "age", Descending: true}).
		Select("name", "age").
		Head(2)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, "select name, age", p.Describe()[2])
	assert.Equal(t, "head 2", p.Describe()[3])

	out, err := p.Execute(usersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, out.Columns())
	assert.Equal(t, []string{"Frank", "Charlie"}, names(t, value.TableVal(out)))
}

func TestLazyPipelineIsPersistent(t *testing.T) {
	base := NewLazyPipeline().Select("name")
	a := base.Head(1)
	b := base.Tail(1)
	assert.Equal(t, 1, base.Len())

	ta, err := a.Execute(usersTable(t))
	require.NoError(t, err)
	tb, err := b.Execute(usersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(t, value.TableVal(ta)))
	assert.Equal(t, []string{"Frank"}, names(t, value.TableVal(tb)))
}

func TestLazyPipelineGroupBy(t *testing.T) {
	p := NewLazyPipeline().GroupBy([]string{"city"}, table.Count())
	assert.Equal(t, "group_by [city] agg [count() as count]", p.Describe()[0])

	out, err := p.Execute(usersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "count"}, out.Columns())
	assert.Equal(t, 3, out.NumRows())
}

func TestLazyPipelineColumnSteps(t *testing.T) {
	p := NewLazyPipeline().
		WithColumn("double", table.Binary(table.OpMul, table.Col("age"), table.Lit(table.IntVal(2)))).
		DropColumns("city").
		Rename("name", "who").
		Unique("who")
	out, err := p.Execute(usersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"who", "age", "double"}, out.Columns())
	assert.Equal(t, int64(60), out.Get(0, "double").Int)
}

func TestLazyPipelineJoin(t *testing.T) {
	cities, err := table.New(
		table.NewColumn("city", []table.Cell{table.StrVal("SF")}),
		table.NewColumn("coast", []table.Cell{table.StrVal("west")}),
	)
	require.NoError(t, err)
	p := NewLazyPipeline().Join(cities.Lazy(), table.JoinOptions{LeftOn: []string{"city"}})
	assert.Equal(t, "inner join on city", p.Describe()[0])

	out, err := p.Execute(usersTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Diana"}, names(t, value.TableVal(out)))
}

func TestExecuteAndCollect(t *testing.T) {
	p := NewLazyPipeline().Head(1)

	out, err := p.ExecuteAndCollect(value.TableVal(usersTable(t)))
	require.NoError(t, err)
	assert.Equal(t, 1, tableOf(t, out).NumRows())

	out, err = p.ExecuteAndCollect(value.DeferredVal(usersTable(t).Lazy()))
	require.NoError(t, err)
	assert.Equal(t, 1, tableOf(t, out).NumRows())

	_, err = p.ExecuteAndCollect(value.ArrayVal(nil))
	var te *value.TypeError
	assert.ErrorAs(t, err, &te)
}

func TestLoweringFallsBack(t *testing.T) {
	// map has no plan form, so the lazy pipeline threads a deferred value
	// through the stages and still matches eager execution.
	q := `filter(.age > 30) | map(.name)`
	eager, err := CompileQuery(q)
	require.NoError(t, err)
	lazy, err := CompileQuery(q, WithLazy(true))
	require.NoError(t, err)

	env := NewEnv(nil)
	_, ok := lazy.lower(env)
	assert.False(t, ok)

	want, err := eager.Execute(value.TableVal(usersTable(t)))
	require.NoError(t, err)
	got, err := lazy.Execute(value.TableVal(usersTable(t)))
	require.NoError(t, err)
	assertJSON(t, `["Charlie","Frank"]`, want)
	assertJSON(t, `["Charlie","Frank"]`, got)
}
