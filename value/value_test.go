package value

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetq/datasetq/table"
)

func obj(kv ...any) Value {
	m := make(map[string]Value, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = FromGo(kv[i+1])
	}
	return ObjectVal(m)
}

func arr(vs ...any) Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = FromGo(v)
	}
	return ArrayVal(out)
}

func people(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.NewColumn("id", []table.Cell{table.IntVal(1), table.IntVal(2), table.IntVal(3)}),
		table.NewColumn("name", []table.Cell{table.StrVal("Alice"), table.StrVal("Bob"), table.Null()}),
		table.NewColumn("score", []table.Cell{table.FloatVal(9.5), table.FloatVal(7), table.FloatVal(8.25)}),
	)
	require.NoError(t, err)
	return tbl
}

func TestTruthy(t *testing.T) {
	falsy := []Value{Null(), BoolVal(false), IntVal(0), FloatVal(0), StrVal(""), ArrayVal(nil), ObjectVal(nil)}
	for _, v := range falsy {
		assert.False(t, v.Truthy(), v.String())
	}
	truthy := []Value{BoolVal(true), IntVal(-1), FloatVal(0.1), StrVal("0"), arr(nil), obj("a", nil)}
	for _, v := range truthy {
		assert.True(t, v.Truthy(), v.String())
	}
	assert.True(t, TableVal(table.Empty(nil)).Truthy())
}

func TestCompareReflexive(t *testing.T) {
	values := []Value{
		Null(), BoolVal(true), IntVal(3), FloatVal(2.5), StrVal("x"),
		BigVal(new(big.Int).Lsh(big.NewInt(1), 80)), arr(1, "a"),
	}
	for _, v := range values {
		c, err := Compare(v, v)
		require.NoError(t, err, v.String())
		assert.Equal(t, 0, c, v.String())
	}

	_, err := Compare(FloatVal(math.NaN()), FloatVal(math.NaN()))
	assert.ErrorIs(t, err, ErrIncomparable)
	_, err = Compare(FloatVal(math.NaN()), IntVal(1))
	assert.ErrorIs(t, err, ErrIncomparable)
}

func TestCompareOrdering(t *testing.T) {
	c, err := Compare(Null(), IntVal(-100))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(IntVal(1), FloatVal(1.5))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(arr(1, 2), arr(1, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	_, err = Compare(StrVal("1"), IntVal(1))
	assert.ErrorIs(t, err, ErrIncomparable)
	assert.Equal(t, 0, SortCompare(StrVal("1"), IntVal(1)))

	_, err = Compare(TableVal(people(t)), TableVal(people(t)))
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestEqualAndKey(t *testing.T) {
	assert.True(t, Equal(IntVal(1), FloatVal(1.0)))
	assert.Equal(t, IntVal(1).Key(), FloatVal(1.0).Key())
	assert.False(t, Equal(IntVal(1), StrVal("1")))
	assert.NotEqual(t, IntVal(1).Key(), StrVal("1").Key())

	a := obj("x", 1, "y", []any{true, nil})
	b := obj("y", []any{true, nil}, "x", 1.0)
	assert.True(t, Equal(a, b))
	assert.Equal(t, a.Key(), b.Key())

	big1 := BigVal(new(big.Int).Lsh(big.NewInt(1), 70))
	assert.Equal(t, KindBigInt, big1.Kind)
	assert.Equal(t, KindInt, BigVal(big.NewInt(5)).Kind)
	assert.True(t, Equal(TableVal(people(t)), TableVal(people(t))))
}

func TestFieldAccess(t *testing.T) {
	v, err := Field(obj("name", "Alice", "age", 30), "name")
	require.NoError(t, err)
	assert.Equal(t, StrVal("Alice"), v)

	v, err = Field(obj("name", "Alice"), "missing")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Field(arr(1, 2), "name")
	var te *TypeError
	assert.ErrorAs(t, err, &te)

	v, err = Field(TableVal(people(t)), "score")
	require.NoError(t, err)
	require.Equal(t, KindColumn, v.Kind)
	assert.Equal(t, 3, v.Col.Len())

	_, err = Field(TableVal(people(t)), "nope")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestIndexAndSlice(t *testing.T) {
	a := arr(10, 20, 30, 40)
	v, err := Index(a, IntVal(-1))
	require.NoError(t, err)
	assert.Equal(t, IntVal(40), v)

	v, err = Index(a, IntVal(9))
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = Index(StrVal("héllo"), IntVal(1))
	require.NoError(t, err)
	assert.Equal(t, StrVal("é"), v)

	v, err = Index(TableVal(people(t)), IntVal(1))
	require.NoError(t, err)
	assert.True(t, Equal(obj("id", 2, "name", "Bob", "score", 7.0), v))

	v, err = Slice(a, IntVal(1), IntVal(100))
	require.NoError(t, err)
	assert.True(t, Equal(arr(20, 30, 40), v))

	v, err = Slice(a, IntVal(-2), Null())
	require.NoError(t, err)
	assert.True(t, Equal(arr(30, 40), v))

	v, err = Slice(StrVal("abcdef"), IntVal(2), IntVal(4))
	require.NoError(t, err)
	assert.Equal(t, StrVal("cd"), v)

	v, err = Slice(TableVal(people(t)), Null(), IntVal(2))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Table.NumRows())

	v, err = Slice(DeferredVal(people(t).Lazy()), IntVal(1), Null())
	require.NoError(t, err)
	got, err := v.Lazy.Collect()
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())
}

func TestDeferredSliceFromEnd(t *testing.T) {
	cases := []struct {
		from, to Value
		ids      []int64
	}{
		{Null(), IntVal(-1), []int64{1, 2}},
		{Null(), IntVal(-2), []int64{1}},
		{IntVal(-2), IntVal(-1), []int64{2}},
		{IntVal(1), IntVal(-1), []int64{2}},
		{IntVal(-5), Null(), []int64{1, 2, 3}},
	}
	for _, tc := range cases {
		v, err := Slice(DeferredVal(people(t).Lazy()), tc.from, tc.to)
		require.NoError(t, err)
		got, err := v.Lazy.Collect()
		require.NoError(t, err)

		want, err := Slice(TableVal(people(t)), tc.from, tc.to)
		require.NoError(t, err)
		assert.True(t, want.Table.Equal(got), "slice %s:%s", tc.from, tc.to)

		ids, _ := got.Column("id")
		require.Equal(t, len(tc.ids), ids.Len(), "slice %s:%s", tc.from, tc.to)
		for i, id := range tc.ids {
			assert.Equal(t, id, ids.Get(i).Int)
		}
	}
}

func TestIterate(t *testing.T) {
	vs, err := Iterate(obj("b", 2, "a", 1))
	require.NoError(t, err)
	assert.Equal(t, []Value{IntVal(1), IntVal(2)}, vs)

	vs, err = Iterate(TableVal(people(t)))
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, StrVal("Alice"), vs[0].Obj["name"])

	_, err = Iterate(IntVal(1))
	assert.Error(t, err)
}

func TestTableRoundTrip(t *testing.T) {
	src := people(t)
	rows := TableToArray(src)
	require.Len(t, rows.Arr, 3)

	back, err := ArrayToTable(rows.Arr, src.Columns()...)
	require.NoError(t, err)
	assert.True(t, src.Equal(back))

	inferred, err := ArrayToTable([]Value{obj("b", 1), obj("a", 2, "c", 3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, inferred.Columns())
	assert.True(t, inferred.Get(0, "a").IsNull())

	_, err = ArrayToTable([]Value{IntVal(1)})
	assert.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	v, err := Add(IntVal(math.MaxInt64), IntVal(1))
	require.NoError(t, err)
	require.Equal(t, KindBigInt, v.Kind)
	assert.Equal(t, "9223372036854775808", v.AsString())

	v, err = Sub(v, IntVal(1))
	require.NoError(t, err)
	assert.Equal(t, IntVal(math.MaxInt64), v)

	v, err = Add(IntVal(1), FloatVal(0.5))
	require.NoError(t, err)
	assert.Equal(t, FloatVal(1.5), v)

	v, err = Div(IntVal(6), IntVal(3))
	require.NoError(t, err)
	assert.Equal(t, IntVal(2), v)

	v, err = Div(IntVal(7), IntVal(2))
	require.NoError(t, err)
	assert.Equal(t, FloatVal(3.5), v)

	_, err = Div(IntVal(1), IntVal(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
	var oe *OpError
	assert.ErrorAs(t, err, &oe)

	v, err = Add(Null(), StrVal("x"))
	require.NoError(t, err)
	assert.Equal(t, StrVal("x"), v)

	v, err = Sub(arr(1, 2, 3, 2), arr(2))
	require.NoError(t, err)
	assert.True(t, Equal(arr(1, 3), v))

	v, err = Add(obj("a", 1, "b", 2), obj("b", 3))
	require.NoError(t, err)
	assert.True(t, Equal(obj("a", 1, "b", 3), v))

	v, err = Mul(obj("a", map[string]any{"x": 1}), obj("a", map[string]any{"y": 2}))
	require.NoError(t, err)
	assert.True(t, Equal(obj("a", map[string]any{"x": 1, "y": 2}), v))

	_, err = Add(StrVal("a"), IntVal(1))
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestBinaryOnColumns(t *testing.T) {
	score, err := Field(TableVal(people(t)), "score")
	require.NoError(t, err)

	mask, err := Binary(table.OpGt, score, IntVal(8))
	require.NoError(t, err)
	require.Equal(t, KindColumn, mask.Kind)
	assert.Equal(t, []Value{BoolVal(true), BoolVal(false), BoolVal(true)}, ColumnValues(mask.Col))

	_, err = Binary(table.OpEq, TableVal(people(t)), TableVal(people(t)))
	var te *TypeError
	assert.ErrorAs(t, err, &te)
}

func TestSetAndDeletePath(t *testing.T) {
	v, err := SetPath(obj("a", map[string]any{"b": 1}), []Value{StrVal("a"), StrVal("c")}, IntVal(2))
	require.NoError(t, err)
	assert.True(t, Equal(obj("a", map[string]any{"b": 1, "c": 2}), v))

	v, err = SetPath(Null(), []Value{IntVal(2)}, StrVal("x"))
	require.NoError(t, err)
	assert.True(t, Equal(arr(nil, nil, "x"), v))

	v, err = SetPath(TableVal(people(t)), []Value{StrVal("flag")}, BoolVal(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score", "flag"}, v.Table.Columns())

	v, err = DeletePath(v, []Value{StrVal("name")})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score", "flag"}, v.Table.Columns())

	v, err = DeletePath(arr(1, 2, 3), []Value{IntVal(0)})
	require.NoError(t, err)
	assert.True(t, Equal(arr(2, 3), v))
}

func TestSetPathRejectsHugeIndex(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	for _, idx := range []Value{IntVal(MaxArrayIndex + 1), FloatVal(1e18), BigVal(huge)} {
		_, err := SetPath(Null(), []Value{idx}, IntVal(1))
		var oe *OpError
		assert.ErrorAs(t, err, &oe, "index %s", idx)
	}

	v, err := Index(arr(1, 2), BigVal(huge))
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = SetPath(arr(1), []Value{FloatVal(2.7)}, IntVal(9))
	require.NoError(t, err)
	assert.True(t, Equal(arr(1, nil, 9), v))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `{"a":[1,2.5,"x<y"],"b":null}`, obj("b", nil, "a", []any{1, 2.5, "x<y"}).String())
	assert.Equal(t, `[{"id":1,"name":"Alice","score":9.5}]`, TableVal(people(t).Head(1)).String())
	assert.Equal(t, "{\n  \"a\": 1\n}", Format(obj("a", 1), "  "))

	v, err := ParseJSON([]byte(`{"n": 12345678901234567890, "f": 1.5, "i": 2}`))
	require.NoError(t, err)
	assert.Equal(t, KindBigInt, v.Obj["n"].Kind)
	assert.Equal(t, FloatVal(1.5), v.Obj["f"])
	assert.Equal(t, IntVal(2), v.Obj["i"])
}
