package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func usersTable(t *testing.T) *table.Table {
	t.Helper()
	b := table.NewBuilder([]string{"name", "age", "city"})
	b.AddRow([]table.Cell{table.StrVal("Alice"), table.IntVal(30), table.StrVal("NY")})
	b.AddRow([]table.Cell{table.StrVal("Bob"), table.IntVal(25), table.StrVal("LA")})
	b.AddRow([]table.Cell{table.StrVal("Charlie"), table.IntVal(35), table.StrVal("NY")})
	b.AddRow([]table.Cell{table.StrVal("Diana"), table.IntVal(28), table.StrVal("SF")})
	b.AddRow([]table.Cell{table.StrVal("Eve"), table.IntVal(22), table.StrVal("LA")})
	b.AddRow([]table.Cell{table.StrVal("Frank"), table.IntVal(40), table.StrVal("NY")})
	tbl, err := b.Build()
	require.NoError(t, err)
	return tbl
}

func jsonValue(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func runQuery(t *testing.T, in value.Value, query string) value.Value {
	t.Helper()
	p, err := CompileQuery(query)
	require.NoError(t, err, "compile %q", query)
	out, err := p.Execute(in)
	require.NoError(t, err, "execute %q", query)
	return out
}

func runQueryWith(t *testing.T, in value.Value, query string, vars map[string]value.Value) value.Value {
	t.Helper()
	p, err := CompileQuery(query)
	require.NoError(t, err, "compile %q", query)
	out, err := p.ExecuteWith(in, vars)
	require.NoError(t, err, "execute %q", query)
	return out
}

// assertJSON compares got with the JSON text want. Tables compare as
// their rows.
func assertJSON(t *testing.T, want string, got value.Value) {
	t.Helper()
	if got.Kind == value.KindTable {
		got = value.TableToArray(got.Table)
	}
	w := jsonValue(t, want)
	assert.True(t, value.Equal(w, got), "want %s, got %s", want, value.Format(got, ""))
}

func tableOf(t *testing.T, v value.Value) *table.Table {
	t.Helper()
	require.Equal(t, value.KindTable, v.Kind, "got %s", v.TypeName())
	return v.Table
}

func names(t *testing.T, v value.Value) []string {
	t.Helper()
	c, ok := tableOf(t, v).Column("name")
	require.True(t, ok)
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Get(i).Str
	}
	return out
}

func TestFieldOnObject(t *testing.T) {
	out := runQuery(t, jsonValue(t, `{"name":"Alice","age":30}`), ".name")
	assert.Equal(t, value.StrVal("Alice"), out)
}

func TestIdentity(t *testing.T) {
	in := jsonValue(t, `{"a":[1,2]}`)
	assertJSON(t, `{"a":[1,2]}`, runQuery(t, in, "."))
}

func TestSelectColumnsOnTable(t *testing.T) {
	b := table.NewBuilder([]string{"id", "name", "email"})
	b.AddRow([]table.Cell{table.IntVal(1), table.StrVal("a"), table.StrVal("a@x")})
	tbl, err := b.Build()
	require.NoError(t, err)

	out := runQuery(t, value.TableVal(tbl), `select(["id", "name"])`)
	assert.Equal(t, []string{"id", "name"}, tableOf(t, out).Columns())
}

func TestSelectMissingColumn(t *testing.T) {
	p, err := CompileQuery(`select("name") | select("nope")`)
	require.NoError(t, err)
	_, err = p.Execute(value.TableVal(usersTable(t)))
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestSelectAsFilter(t *testing.T) {
	in := jsonValue(t, `[{"n":1},{"n":5},{"n":3}]`)
	assertJSON(t, `[{"n":5},{"n":3}]`, runQuery(t, in, `map(select(.n > 2))`))
}

func TestGroupByAggregateRecords(t *testing.T) {
	in := jsonValue(t, `[{"dept":"A","salary":10},{"dept":"B","salary":5},{"dept":"A","salary":20}]`)
	want := `[{"dept":"A","salary_sum":30},{"dept":"B","salary_sum":5}]`

	assertJSON(t, want, runQuery(t, in, `group_by(["dept"]) | aggregate([sum("salary")])`))
	assertJSON(t, want, runQuery(t, in, `group_by(["dept"]).aggregate([Sum("salary")])`))
}

func TestGroupByAggregateTable(t *testing.T) {
	out := runQuery(t, value.TableVal(usersTable(t)), `group_by("city") | aggregate(count(), max("age"), total = sum("age"))`)
	tbl := tableOf(t, out)
	assert.Equal(t, []string{"city", "count", "age_max", "total"}, tbl.Columns())
	assert.Equal(t, 3, tbl.NumRows())

	byCity := map[string][]table.Cell{}
	for i := 0; i < tbl.NumRows(); i++ {
		row := tbl.Row(i)
		byCity[row[0].Str] = row[1:]
	}
	assert.Equal(t, int64(3), byCity["NY"][0].Int)
	assert.Equal(t, int64(40), byCity["NY"][1].Int)
	assert.Equal(t, int64(47), byCity["LA"][2].Int)
	assert.Equal(t, int64(1), byCity["SF"][0].Int)
}

func TestAggregateWithoutGroups(t *testing.T) {
	out := runQuery(t, value.TableVal(usersTable(t)), `aggregate(min("age"), max("age"))`)
	assertJSON(t, `[{"age_min":22,"age_max":40}]`, out)
}

func TestGroupByWithoutAggregate(t *testing.T) {
	in := jsonValue(t, `[{"k":1,"v":"a"},{"k":2,"v":"b"},{"k":1,"v":"c"}]`)
	assertJSON(t, `[[{"k":1,"v":"a"},{"k":1,"v":"c"}],[{"k":2,"v":"b"}]]`, runQuery(t, in, `group_by(.k)`))
}

func TestFilterLambda(t *testing.T) {
	assertJSON(t, `[3,4]`, runQuery(t, jsonValue(t, `[1,2,3,4]`), `filter(x => x > 2)`))
}

func TestFilterTable(t *testing.T) {
	out := runQuery(t, value.TableVal(usersTable(t)), `filter(.age > 28)`)
	assert.Equal(t, []string{"Alice", "Charlie", "Frank"}, names(t, out))

	out = runQuery(t, value.TableVal(usersTable(t)), `filter(r => r.city == "LA")`)
	assert.Equal(t, []string{"Bob", "Eve"}, names(t, out))
}

func TestFilterTableRowWise(t *testing.T) {
	// contains has no column form, so this runs per row.
	out := runQuery(t, value.TableVal(usersTable(t)), `filter(.name | contains("a"))`)
	assert.Equal(t, []string{"Charlie", "Diana", "Frank"}, names(t, out))
}

func TestJoinWithVariable(t *testing.T) {
	left := jsonValue(t, `[{"id":1,"v":"a"},{"id":2,"v":"c"}]`)
	right := jsonValue(t, `[{"id":1,"w":"b"}]`)
	vars := map[string]value.Value{"right": right}

	out := runQueryWith(t, left, `join($right, on=["id"], type="inner")`, vars)
	assertJSON(t, `[{"id":1,"v":"a","w":"b"}]`, out)

	out = runQueryWith(t, left, `join($right, on="id", type="left")`, vars)
	assertJSON(t, `[{"id":1,"v":"a","w":"b"},{"id":2,"v":"c","w":null}]`, out)
}

func TestJoinBothSidesAsArguments(t *testing.T) {
	vars := map[string]value.Value{
		"l": jsonValue(t, `[{"id":1,"v":"a"}]`),
		"r": jsonValue(t, `[{"id":1,"w":"b"}]`),
	}
	out := runQueryWith(t, value.Null(), `join($l, $r, on=["id"], type="inner")`, vars)
	assertJSON(t, `[{"id":1,"v":"a","w":"b"}]`, out)
}

func TestJoinTables(t *testing.T) {
	cities, err := table.New(
		table.NewColumn("city", []table.Cell{table.StrVal("NY"), table.StrVal("LA")}),
		table.NewColumn("state", []table.Cell{table.StrVal("New York"), table.StrVal("California")}),
	)
	require.NoError(t, err)
	vars := map[string]value.Value{"cities": value.TableVal(cities)}

	out := runQueryWith(t, value.TableVal(usersTable(t)), `join($cities, on="city")`, vars)
	tbl := tableOf(t, out)
	assert.Equal(t, []string{"name", "age", "city", "state"}, tbl.Columns())
	assert.Equal(t, 5, tbl.NumRows())
}

func TestJoinValidationFailure(t *testing.T) {
	vars := map[string]value.Value{"r": jsonValue(t, `[{"id":1},{"id":1}]`)}
	p, err := CompileQuery(`join($r, on="id", validate="1:1")`)
	require.NoError(t, err)
	_, err = p.ExecuteWith(jsonValue(t, `[{"id":1}]`), vars)
	assert.ErrorIs(t, err, table.ErrJoinValidation)
}

func TestStringJoin(t *testing.T) {
	assert.Equal(t, value.StrVal("a, b"), runQuery(t, jsonValue(t, `["a","b"]`), `join(", ")`))
}

func TestHead(t *testing.T) {
	users := value.TableVal(usersTable(t))
	once := runQuery(t, users, `head(2)`)
	twice := runQuery(t, users, `head(2) | head(2)`)
	assert.True(t, tableOf(t, once).Equal(tableOf(t, twice)))
	assert.Equal(t, []string{"Alice", "Bob"}, names(t, once))

	empty := runQuery(t, users, `head(0)`)
	assert.Equal(t, 0, tableOf(t, empty).NumRows())
	assert.Equal(t, 3, tableOf(t, empty).NumCols())

	assertJSON(t, `[1,2,3]`, runQuery(t, jsonValue(t, `[1,2,3]`), `head(10)`))
	assertJSON(t, `[2,3]`, runQuery(t, jsonValue(t, `[1,2,3]`), `tail(2)`))
	assertJSON(t, `[]`, runQuery(t, jsonValue(t, `[1,2,3]`), `limit(-1)`))
}

func TestSortStable(t *testing.T) {
	users := value.TableVal(usersTable(t))
	out := runQuery(t, users, `sort_by("city")`)
	assert.Equal(t, []string{"Bob", "Eve", "Alice", "Charlie", "Frank", "Diana"}, names(t, out))

	out = runQuery(t, users, `sort_by("-age")`)
	assert.Equal(t, []string{"Frank", "Charlie", "Alice", "Diana", "Bob", "Eve"}, names(t, out))

	out = runQuery(t, users, `sort_by(desc(.city), .age)`)
	assert.Equal(t, []string{"Diana", "Alice", "Charlie", "Frank", "Eve", "Bob"}, names(t, out))
}

func TestDescendingSortKeepsNullsFirst(t *testing.T) {
	in := jsonValue(t, `[{"a":1},{"a":null},{"a":2}]`)
	assertJSON(t, `[{"a":null},{"a":2},{"a":1}]`, runQuery(t, in, `sort_by(desc(.a))`))
	assertJSON(t, `[{"a":null},{"a":1},{"a":2}]`, runQuery(t, in, `sort_by(.a)`))

	b := table.NewBuilder([]string{"name", "score"})
	b.AddRow([]table.Cell{table.StrVal("x"), table.IntVal(1)})
	b.AddRow([]table.Cell{table.StrVal("y"), table.Null()})
	b.AddRow([]table.Cell{table.StrVal("z"), table.IntVal(2)})
	tbl, err := b.Build()
	require.NoError(t, err)
	scores := value.TableVal(tbl)

	assert.Equal(t, []string{"y", "z", "x"}, names(t, runQuery(t, scores, `sort_by(desc(.score))`)))
	assert.Equal(t, []string{"y", "z", "x"}, names(t, runQuery(t, scores, `sort_by("-score")`)))

	p, err := CompileQuery(`sort_by("-score")`, WithLazy(true))
	require.NoError(t, err)
	out, err := p.Execute(scores)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z", "x"}, names(t, out))
}

func TestSortArrays(t *testing.T) {
	assertJSON(t, `[null,1,2,3]`, runQuery(t, jsonValue(t, `[3,null,1,2]`), `sort`))

	in := jsonValue(t, `[{"k":2,"i":0},{"k":1,"i":1},{"k":2,"i":2}]`)
	assertJSON(t, `[{"k":1,"i":1},{"k":2,"i":0},{"k":2,"i":2}]`, runQuery(t, in, `sort_by(.k)`))
}

func TestMinMaxUniqueBy(t *testing.T) {
	in := jsonValue(t, `[{"k":2,"i":0},{"k":1,"i":1},{"k":2,"i":2},{"k":1,"i":3}]`)
	assertJSON(t, `{"k":1,"i":1}`, runQuery(t, in, `min_by(.k)`))
	assertJSON(t, `{"k":2,"i":2}`, runQuery(t, in, `max_by(.k)`))
	assertJSON(t, `[{"k":1,"i":1},{"k":2,"i":0}]`, runQuery(t, in, `unique_by(.k)`))
}

func TestEWMA(t *testing.T) {
	assertJSON(t, `[5]`, runQuery(t, jsonValue(t, `[5]`), `ewma(0.5)`))
	assertJSON(t, `[1,1,2]`, runQuery(t, jsonValue(t, `[1,null,3]`), `ewma(0.5)`))

	p, err := CompileQuery(`ewma(1.5)`)
	require.NoError(t, err)
	_, err = p.Execute(jsonValue(t, `[1]`))
	var te *value.TypeError
	assert.True(t, errors.As(err, &te))
}

func TestRollingAndCumulative(t *testing.T) {
	assertJSON(t, `[null,3,5,7]`, runQuery(t, jsonValue(t, `[1,2,3,4]`), `rolling("sum", 2)`))
	assertJSON(t, `[1,3,5,7]`, runQuery(t, jsonValue(t, `[1,2,3,4]`), `rolling("sum", 2, 1)`))
	assertJSON(t, `[1,3,5,7]`, runQuery(t, jsonValue(t, `[1,2,3,4]`), `rolling("sum", 2, 0)`))
	assertJSON(t, `[1,3,6,10]`, runQuery(t, jsonValue(t, `[1,2,3,4]`), `cumulative("sum")`))

	out := runQuery(t, value.TableVal(usersTable(t)), `rolling("max", 2, "age")`)
	col, ok := tableOf(t, out).Column("age_rolling_max")
	require.True(t, ok)
	assert.True(t, col.Get(0).IsNull())
	assert.Equal(t, int64(30), col.Get(1).Int)
	assert.Equal(t, int64(35), col.Get(2).Int)
}

func TestWithColumnAndRename(t *testing.T) {
	users := value.TableVal(usersTable(t))
	out := runQuery(t, users, `with_column("next", .age + 1) | rename("name", "who") | drop("city")`)
	tbl := tableOf(t, out)
	assert.Equal(t, []string{"who", "age", "next"}, tbl.Columns())
	assert.Equal(t, int64(31), tbl.Get(0, "next").Int)
}

func TestWithColumnOnRecords(t *testing.T) {
	in := jsonValue(t, `[{"a":1},{"a":2}]`)
	assertJSON(t, `[{"a":1,"b":"1"},{"a":2,"b":"2"}]`, runQuery(t, in, `with_column("b", .a | tostring)`))
}

func TestDistinct(t *testing.T) {
	out := runQuery(t, value.TableVal(usersTable(t)), `distinct("city")`)
	assert.Equal(t, []string{"Alice", "Bob", "Diana"}, names(t, out))

	assertJSON(t, `[3,1,2]`, runQuery(t, jsonValue(t, `[3,1,3,2,1]`), `distinct`))
}

func TestPivotAndUnpivot(t *testing.T) {
	in := jsonValue(t, `[
		{"day":"mon","metric":"x","v":1},
		{"day":"mon","metric":"y","v":2},
		{"day":"tue","metric":"x","v":3}
	]`)
	out := runQuery(t, in, `pivot(["day"], "metric", "v")`)
	assertJSON(t, `[{"day":"mon","x":1,"y":2},{"day":"tue","x":3,"y":null}]`, out)

	back := runQuery(t, out, `unpivot(["day"]) | filter(.value != null)`)
	assert.Len(t, back.Arr, 3)
}

func TestScalarFunctions(t *testing.T) {
	cases := []struct {
		in, query, want string
	}{
		{`"  Hi "`, `trim | upper`, `"HI"`},
		{`"hello"`, `substr(1, 3)`, `"ell"`},
		{`"2024-03-15"`, `year`, `2024`},
		{`-2.5`, `abs`, `2.5`},
		{`2.4`, `ceil`, `3`},
		{`"42"`, `tonumber`, `42`},
		{`[1,[2,[3]]]`, `flatten`, `[1,2,3]`},
		{`{"b":1,"a":2}`, `keys`, `["a","b"]`},
		{`[null,2]`, `coalesce(.[0], .[1])`, `2`},
		{`"Hello World"`, `slug`, `"hello-world"`},
		{`null`, `range(3)`, `[0,1,2]`},
		{`[{"key":"a","value":1}]`, `from_entries`, `{"a":1}`},
		{`{"a":1}`, `has("a")`, `true`},
		{`{"a":{"b":1}}`, `.a.b = 2`, `{"a":{"b":2}}`},
		{`{"a":1,"b":2}`, `del(.a)`, `{"b":2}`},
		{`5`, `if . > 3 then "big" else "small" end`, `"big"`},
		{`{"a":null}`, `.a // "d"`, `"d"`},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			assertJSON(t, tc.want, runQuery(t, jsonValue(t, tc.in), tc.query))
		})
	}
}

func TestUnknownFunction(t *testing.T) {
	_, err := CompileQuery(`frobnicate(1)`)
	assert.Error(t, err)

	_, err = CompileQuery(`head(1, 2, 3)`)
	assert.Error(t, err)
}

func TestStageError(t *testing.T) {
	p, err := CompileQuery(`.name | error("boom")`)
	require.NoError(t, err)
	_, err = p.Execute(jsonValue(t, `{"name":"x"}`))
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	var oe *value.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "error", oe.Op)
}

func TestEmptyYieldsNull(t *testing.T) {
	assert.True(t, runQuery(t, jsonValue(t, `1`), `empty`).IsNull())
	assertJSON(t, `[2,3]`, runQuery(t, jsonValue(t, `[1,2,3]`), `[.[] | select(. > 1)]`))
}

func TestExecuteInPlace(t *testing.T) {
	p, err := CompileQuery(`.a`)
	require.NoError(t, err)
	v := jsonValue(t, `{"a":7}`)
	require.NoError(t, p.ExecuteInPlace(&v))
	assertJSON(t, `7`, v)

	bad, err := CompileQuery(`error("x")`)
	require.NoError(t, err)
	assert.Error(t, bad.ExecuteInPlace(&v))
	assertJSON(t, `7`, v)
}

func TestLazyMatchesEager(t *testing.T) {
	queries := []string{
		`filter(.age > 24) | select(["name", "age"]) | head(3)`,
		`sort_by("-age") | tail(2)`,
		`group_by("city") | aggregate(mean("age"))`,
		`with_column("older", .age + 10) | filter(.older > 40)`,
		`filter(.name | contains("a")) | drop("city")`,
		`distinct("city") | rename("city", "town")`,
		`.[:-1]`,
		`.[:-2]`,
		`.[-3:-1]`,
		`.[1:-1]`,
		`filter(.age > 24) | .[:-1]`,
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			eager, err := CompileQuery(q)
			require.NoError(t, err)
			lazy, err := CompileQuery(q, WithLazy(true))
			require.NoError(t, err)
			assert.True(t, lazy.IsLazy())

			want, err := eager.Execute(value.TableVal(usersTable(t)))
			require.NoError(t, err)
			got, err := lazy.Execute(value.TableVal(usersTable(t)))
			require.NoError(t, err)
			assert.True(t, tableOf(t, want).Equal(tableOf(t, got)), "eager %s\nlazy %s", want.Table, got.Table)
		})
	}
}

func TestLazyErrorNamesFailingStage(t *testing.T) {
	q := `select(["nope"]) | head(1)`
	eager, err := CompileQuery(q)
	require.NoError(t, err)
	lazy, err := CompileQuery(q, WithLazy(true))
	require.NoError(t, err)

	_, eagerErr := eager.Execute(value.TableVal(usersTable(t)))
	_, lazyErr := lazy.Execute(value.TableVal(usersTable(t)))

	var es, ls *StageError
	require.True(t, errors.As(eagerErr, &es))
	require.True(t, errors.As(lazyErr, &ls))
	assert.Equal(t, 0, ls.Index)
	assert.Equal(t, es.Index, ls.Index)
	assert.Equal(t, es.Stage, ls.Stage)
	assert.Contains(t, ls.Stage, "select")
	assert.ErrorIs(t, lazyErr, table.ErrColumnNotFound)
}

func TestLazyBuiltinDefersTable(t *testing.T) {
	out := runQuery(t, value.TableVal(usersTable(t)), `lazy | filter(.age > 30) | select("name")`)
	require.Equal(t, value.KindDeferredTable, out.Kind)

	collected := runQuery(t, out, `collect`)
	assert.Equal(t, []string{"Charlie", "Frank"}, names(t, collected))
}

func TestExplain(t *testing.T) {
	p, err := CompileQuery(`filter(.age > 30) | select(["name"]) | head(1)`, WithLazy(true))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Len(t, p.Describe(), 3)

	plan := p.Explain(value.TableVal(usersTable(t)), nil)
	require.NotEmpty(t, plan)
	assert.Contains(t, plan[0], "scan")

	// non-table input falls back to the stage list
	assert.Equal(t, p.Describe(), p.Explain(jsonValue(t, `[]`), nil))
}
