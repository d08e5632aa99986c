package loader

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func usersTable(t *testing.T) *table.Table {
	t.Helper()
	b := table.NewBuilder([]string{"name", "age", "city", "score"})
	b.AddRow([]table.Cell{table.StrVal("Alice"), table.IntVal(30), table.StrVal("NY"), table.FloatVal(1.5)})
	b.AddRow([]table.Cell{table.StrVal("Bob"), table.IntVal(25), table.StrVal("LA"), table.Null()})
	b.AddRow([]table.Cell{table.StrVal("Charlie"), table.IntVal(35), table.StrVal("NY"), table.FloatVal(3)})
	tbl, err := b.Build()
	require.NoError(t, err)
	return tbl
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readTable(t *testing.T, path string, opts Options) *table.Table {
	t.Helper()
	v, err := Read(path, opts)
	require.NoError(t, err)
	require.Equal(t, value.KindTable, v.Kind, "got %s", v.TypeName())
	return v.Table
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.csv", CSV},
		{"dir/b.JSON", JSON},
		{"c.ndjson", JSONL},
		{"d.yml", YAML},
		{"e.avro", Avro},
		{"f.parquet", Parquet},
		{"g.db#users", SQLite},
		{"h.sqlite", SQLite},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := DetectFormat("notes.txt")
	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)

	f, err = ParseFormat(".jsonl")
	require.NoError(t, err)
	assert.Equal(t, JSONL, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "users.csv", "name, age, active, score\nAlice, 30, true, 1.5\nBob, 25, false,\n")

	tbl := readTable(t, path, Options{})
	assert.Equal(t, []string{"name", "age", "active", "score"}, tbl.Columns())
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, table.IntVal(30), tbl.Get(0, "age"))
	assert.Equal(t, table.BoolVal(false), tbl.Get(1, "active"))
	assert.Equal(t, table.FloatVal(1.5), tbl.Get(0, "score"))
	assert.True(t, tbl.Get(1, "score").IsNull())
}

func TestReadOptions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "n.csv", "a,b\n1,x\n2,y\n3,z\n4,w\n")

	tbl := readTable(t, path, Options{SkipRows: 1, MaxRows: 2, Columns: []string{"b"}})
	assert.Equal(t, []string{"b"}, tbl.Columns())
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, "y", tbl.Get(0, "b").Str)
	assert.Equal(t, "z", tbl.Get(1, "b").Str)

	_, err := Read(path, Options{Columns: []string{"missing"}})
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestReadJSONTree(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.json", `{"users":[{"name":"Alice"}],"count":12345678901234567890}`)

	v, err := Read(path, Options{})
	require.NoError(t, err)
	require.Equal(t, value.KindObject, v.Kind)
	assert.Equal(t, value.KindBigInt, v.Obj["count"].Kind)
	assert.Equal(t, "Alice", v.Obj["users"].Arr[0].Obj["name"].Str)
}

func TestReadJSONL(t *testing.T) {
	v, err := ReadFrom(strings.NewReader("{\"a\":1}\n\n{\"a\":2}\n{\"a\":3}\n"), JSONL, Options{MaxRows: 2})
	require.NoError(t, err)
	require.Len(t, v.Arr, 2)
	assert.Equal(t, int64(2), v.Arr[1].Obj["a"].Int)

	_, err = ReadFrom(strings.NewReader("{\"a\":1}\n{oops\n"), JSONL, Options{})
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "line 2")
}

func TestReadYAML(t *testing.T) {
	v, err := ReadFrom(strings.NewReader("name: dsq\ntags: [a, b]\nport: 8080\n"), YAML, Options{})
	require.NoError(t, err)
	assert.Equal(t, "dsq", v.Obj["name"].Str)
	assert.Equal(t, int64(8080), v.Obj["port"].Int)
	assert.Len(t, v.Obj["tags"].Arr, 2)
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{CSV, Avro, Parquet} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users."+string(format))
			require.NoError(t, Write(path, value.TableVal(usersTable(t)), DefaultOptions()))

			got := readTable(t, path, Options{})
			assert.ElementsMatch(t, []string{"name", "age", "city", "score"}, got.Columns())
			require.Equal(t, 3, got.NumRows())
			assert.Equal(t, "Charlie", got.Get(2, "name").AsString())
			assert.Equal(t, int64(35), got.Get(2, "age").Int)
			assert.True(t, got.Get(1, "score").IsNull())
			f, ok := got.Get(0, "score").AsFloat()
			assert.True(t, ok)
			assert.Equal(t, 1.5, f)
		})
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db") + "#users"
	require.NoError(t, Write(path, value.TableVal(usersTable(t)), DefaultOptions()))

	got := readTable(t, path, Options{})
	assert.Equal(t, []string{"name", "age", "city", "score"}, got.Columns())
	assert.Equal(t, 3, got.NumRows())
	assert.Equal(t, int64(25), got.Get(1, "age").Int)

	limited := readTable(t, path, Options{SkipRows: 1, MaxRows: 1, Columns: []string{"name"}})
	assert.Equal(t, []string{"name"}, limited.Columns())
	require.Equal(t, 1, limited.NumRows())
	assert.Equal(t, "Bob", limited.Get(0, "name").Str)

	assert.Error(t, Write(path, value.TableVal(usersTable(t)), DefaultOptions()))
	opts := DefaultOptions()
	opts.Overwrite = true
	assert.NoError(t, Write(path, value.TableVal(usersTable(t)), opts))
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "out.json", "{}")

	err := Write(path, value.ArrayVal(nil), Options{})
	assert.ErrorIs(t, err, fs.ErrExist)

	require.NoError(t, Write(path, value.ArrayVal(nil), Options{Overwrite: true}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteTo(t *testing.T) {
	rows := value.TableVal(usersTable(t))

	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, JSONL, rows, Options{}))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	buf.Reset()
	require.NoError(t, WriteTo(&buf, CSV, rows, Options{IncludeHeader: true}))
	assert.True(t, strings.HasPrefix(buf.String(), "name,age,city,score\n"))
	assert.Contains(t, buf.String(), "Bob,25,LA,\n")

	buf.Reset()
	require.NoError(t, WriteTo(&buf, YAML, rows, Options{}))
	assert.Contains(t, buf.String(), "name: Alice")

	err := WriteTo(&buf, SQLite, rows, Options{})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestReadGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, dir, "a.csv", "id,v\n1,x\n")
	writeFile(t, filepath.Join(dir, "nested"), "b.csv", "id,w\n2,y\n3,z\n")

	v, err := ReadGlob(context.Background(), filepath.Join(dir, "**", "*.csv"), Options{Concurrency: 2})
	require.NoError(t, err)
	require.Equal(t, value.KindTable, v.Kind)
	tbl := v.Table
	assert.Equal(t, []string{"id", "v", "w", FileColumn}, tbl.Columns())
	assert.Equal(t, 3, tbl.NumRows())
	assert.True(t, tbl.Get(0, "w").IsNull())
	assert.Equal(t, filepath.Join(dir, "a.csv"), tbl.Get(0, FileColumn).Str)

	_, err = ReadGlob(context.Background(), filepath.Join(dir, "*.parquet"), Options{})
	assert.Error(t, err)
}

func TestReadGlobCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "id\n1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadGlob(ctx, filepath.Join(dir, "*.csv"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
