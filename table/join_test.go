package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinSides(t *testing.T) (*Table, *Table) {
	t.Helper()
	lb := NewBuilder([]string{"id", "v"})
	lb.AddRow([]Cell{IntVal(1), StrVal("a")})
	lb.AddRow([]Cell{IntVal(2), StrVal("b")})
	lb.AddRow([]Cell{Null(), StrVal("c")})
	left, err := lb.Build()
	require.NoError(t, err)

	rb := NewBuilder([]string{"id", "w"})
	rb.AddRow([]Cell{IntVal(1), StrVal("x")})
	rb.AddRow([]Cell{IntVal(3), StrVal("y")})
	rb.AddRow([]Cell{Null(), StrVal("z")})
	right, err := rb.Build()
	require.NoError(t, err)
	return left, right
}

func column(t *testing.T, tbl *Table, name string) []Cell {
	t.Helper()
	c, ok := tbl.Column(name)
	require.True(t, ok, "missing column %q", name)
	return c.Cells()
}

func TestJoinTypes(t *testing.T) {
	left, right := joinSides(t)

	tests := []struct {
		how  JoinType
		ids  []Cell
		v    []Cell
		w    []Cell
		rows int
	}{
		{InnerJoin, []Cell{IntVal(1)}, []Cell{StrVal("a")}, []Cell{StrVal("x")}, 1},
		{LeftJoin,
			[]Cell{IntVal(1), IntVal(2), Null()},
			[]Cell{StrVal("a"), StrVal("b"), StrVal("c")},
			[]Cell{StrVal("x"), Null(), Null()}, 3},
		{RightJoin,
			[]Cell{IntVal(1), IntVal(3), Null()},
			[]Cell{StrVal("a"), Null(), Null()},
			[]Cell{StrVal("x"), StrVal("y"), StrVal("z")}, 3},
		{OuterJoin,
			[]Cell{IntVal(1), IntVal(2), Null(), IntVal(3), Null()},
			[]Cell{StrVal("a"), StrVal("b"), StrVal("c"), Null(), Null()},
			[]Cell{StrVal("x"), Null(), Null(), StrVal("y"), StrVal("z")}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.how.String(), func(t *testing.T) {
			got, err := left.Join(right, JoinOptions{How: tt.how, LeftOn: []string{"id"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "v", "w"}, got.Columns())
			assert.Equal(t, tt.rows, got.NumRows())
			assert.Equal(t, tt.ids, column(t, got, "id"))
			assert.Equal(t, tt.v, column(t, got, "v"))
			assert.Equal(t, tt.w, column(t, got, "w"))
		})
	}
}

func TestJoinDifferentKeyNamesAndSuffix(t *testing.T) {
	left, err := New(
		NewColumn("uid", []Cell{IntVal(1), IntVal(2)}),
		NewColumn("name", []Cell{StrVal("ann"), StrVal("bo")}),
	)
	require.NoError(t, err)
	right, err := New(
		NewColumn("user_id", []Cell{IntVal(2), IntVal(1), IntVal(1)}),
		NewColumn("name", []Cell{StrVal("B"), StrVal("A1"), StrVal("A2")}),
	)
	require.NoError(t, err)

	got, err := left.Join(right, JoinOptions{LeftOn: []string{"uid"}, RightOn: []string{"user_id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"uid", "name", "name_right"}, got.Columns())
	assert.Equal(t, []Cell{IntVal(1), IntVal(1), IntVal(2)}, column(t, got, "uid"))
	assert.Equal(t, []Cell{StrVal("A1"), StrVal("A2"), StrVal("B")}, column(t, got, "name_right"))
}

func TestJoinValidation(t *testing.T) {
	left, err := New(NewColumn("id", []Cell{IntVal(1), IntVal(2)}))
	require.NoError(t, err)
	right, err := New(NewColumn("id", []Cell{IntVal(1), IntVal(1)}))
	require.NoError(t, err)

	_, err = left.Join(right, JoinOptions{LeftOn: []string{"id"}, Validate: OneToOne})
	assert.ErrorIs(t, err, ErrJoinValidation)
	_, err = left.Join(right, JoinOptions{LeftOn: []string{"id"}, Validate: ManyToOne})
	assert.ErrorIs(t, err, ErrJoinValidation)
	_, err = left.Join(right, JoinOptions{LeftOn: []string{"id"}, Validate: OneToMany})
	assert.NoError(t, err)
	_, err = right.Join(left, JoinOptions{LeftOn: []string{"id"}, Validate: OneToMany})
	assert.ErrorIs(t, err, ErrJoinValidation)
}

func TestJoinMissingKey(t *testing.T) {
	left, right := joinSides(t)
	_, err := left.Join(right, JoinOptions{LeftOn: []string{"nope"}})
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestParseJoinOptions(t *testing.T) {
	j, err := ParseJoinType("FULL")
	require.NoError(t, err)
	assert.Equal(t, OuterJoin, j)
	_, err = ParseJoinType("cross")
	assert.Error(t, err)

	v, err := ParseJoinValidation("m:1")
	require.NoError(t, err)
	assert.Equal(t, ManyToOne, v)
}
