package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetq/datasetq/config"
	"github.com/datasetq/datasetq/engine"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const usersCSV = `name,age,city
Alice,30,NY
Bob,25,LA
Charlie,35,NY
Diana,28,SF
Frank,40,NY
`

func TestStdinJSON(t *testing.T) {
	out, _, err := runCLI(t, `{"name":"Alice","age":30}`, ".name")
	require.NoError(t, err)
	assert.Equal(t, "\"Alice\"\n", out)
}

func TestStdinFormatOverride(t *testing.T) {
	out, _, err := runCLI(t, "a: 1\nb: [2, 3]\n", "-i", "yaml", "-c", ".b")
	require.NoError(t, err)
	assert.Equal(t, "[2,3]\n", out)
}

func TestQueryFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "users.csv", usersCSV)

	out, _, err := runCLI(t, "", "-c", `filter(.age > 30) | select(["name"])`, path)
	require.NoError(t, err)
	assert.Equal(t, "[{\"name\":\"Charlie\"},{\"name\":\"Frank\"}]\n", out)

	out, _, err = runCLI(t, "", "--lazy", "-c", `group_by("city") | aggregate(count()) | sort_by("city")`, path)
	require.NoError(t, err)
	assert.Equal(t, "[{\"city\":\"LA\",\"count\":1},{\"city\":\"NY\",\"count\":3},{\"city\":\"SF\",\"count\":1}]\n", out)
}

func TestArgJoin(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.csv", usersCSV)
	cities := writeFile(t, dir, "cities.csv", "city,state\nNY,New York\nLA,California\n")

	out, _, err := runCLI(t, "", "-c", "--arg", "cities="+cities,
		`join($cities, on="city") | select(["name", "state"]) | sort_by("name")`, users)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Alice","state":"New York"},{"name":"Bob","state":"California"},`+
		`{"name":"Charlie","state":"New York"},{"name":"Frank","state":"New York"}]`+"\n", out)

	_, _, err = runCLI(t, "", "--arg", "cities", ".", users)
	assert.ErrorContains(t, err, "expected name=file")
}

func TestExplainFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "users.csv", usersCSV)

	out, _, err := runCLI(t, "", "--explain", `filter(.age > 30) | select(["name"]) | head(1)`, path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "1. scan 3 columns, 5 rows"), lines[0])
}

func TestOutputFile(t *testing.T) {
	dir := t.TempDir()
	users := writeFile(t, dir, "users.csv", usersCSV)
	dest := filepath.Join(dir, "out.csv")

	out, _, err := runCLI(t, "", "-o", dest, `filter(.city == "NY") | select(["name"])`, users)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "name\nAlice\nCharlie\nFrank\n", string(data))

	_, _, err = runCLI(t, "", "-o", dest, ".", users)
	assert.ErrorContains(t, err, "file exists")

	_, _, err = runCLI(t, "", "-o", dest, "--overwrite", `head(1) | select(["age"])`, users)
	require.NoError(t, err)
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "age\n30\n", string(data))
}

func TestFormatFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "users.csv", usersCSV)

	out, _, err := runCLI(t, "", "--format", "csv", `tail(1)`, path)
	require.NoError(t, err)
	assert.Equal(t, "name,age,city\nFrank,40,NY\n", out)

	out, _, err = runCLI(t, "", "--format", "table", `head(2) | select(["name"])`, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "2 rows")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "dsq.toml", "[output]\ncompact = true\n")

	out, _, err := runCLI(t, `{"a":[1,2]}`, "--config", cfg, ".")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":[1,2]}\n", out)

	bad := writeFile(t, dir, "bad.toml", "[output]\ncolor = \"loud\"\n")
	_, _, err = runCLI(t, `{}`, "--config", bad, ".")
	assert.ErrorContains(t, err, "failed to load config")
}

func TestQueryErrors(t *testing.T) {
	_, _, err := runCLI(t, `{}`, "nosuchfunction(1)")
	assert.Error(t, err)

	_, _, err = runCLI(t, `{}`, ".a |")
	assert.Error(t, err)

	_, _, err = runCLI(t, `[1]`, `error("boom")`)
	var se *engine.StageError
	assert.ErrorAs(t, err, &se)

	_, _, err = runCLI(t, "", ".", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	b := table.NewBuilder([]string{"name", "tags"})
	b.AddRow([]table.Cell{table.StrVal("Alice"), table.ListVal([]table.Cell{table.IntVal(1), table.IntVal(2)})})
	b.AddRow([]table.Cell{table.Null(), table.Null()})
	tbl, err := b.Build()
	require.NoError(t, err)

	out := renderTable(tbl, false)
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "[1,2]")
	assert.Contains(t, out, "null")
	assert.True(t, strings.HasSuffix(out, "2 rows"))
}

func TestPrinterFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, format: "table", compact: true}
	require.NoError(t, p.print(value.ArrayVal([]value.Value{value.IntVal(1)})))
	assert.Equal(t, "[1]\n", buf.String())

	buf.Reset()
	p.format = "auto"
	require.NoError(t, p.print(value.StrVal("x")))
	assert.Equal(t, "\"x\"\n", buf.String())
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, assert.AnError, false)
	assert.Equal(t, "error: "+assert.AnError.Error()+"\n", buf.String())

	buf.Reset()
	printError(&buf, assert.AnError, true)
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestEvalLine(t *testing.T) {
	a := &app{cfg: config.Default(), logger: newLogger(io.Discard, slog.LevelError, "text")}
	a.cfg.Output.Compact = true
	input := value.ObjectVal(map[string]value.Value{"a": value.IntVal(7)})

	var out, errOut bytes.Buffer
	assert.False(t, a.evalLine(&out, &errOut, ".a + 1", input, nil))
	assert.Equal(t, "8\n", out.String())

	out.Reset()
	assert.False(t, a.evalLine(&out, &errOut, ".a |", input, nil))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "error:")

	assert.False(t, a.evalLine(&out, &errOut, ":lazy", input, nil))
	assert.True(t, a.cfg.Lazy)

	assert.True(t, a.evalLine(&out, &errOut, ":quit", input, nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo, "json")
	logger.Debug("hidden")
	logger.Info("shown", "k", 1)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
