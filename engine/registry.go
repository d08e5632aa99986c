package engine

import (
	"sort"

	"github.com/datasetq/datasetq/ast"
	"github.com/datasetq/datasetq/value"
)

// Builtin is a pure function of the input and its arguments, which are
// evaluated against the input before the call.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Fn      func(in value.Value, args []value.Value) (value.Value, error)
}

// Transform receives its arguments unevaluated and compiles them itself.
type Transform struct {
	Name    string
	MinArgs int
	MaxArgs int
	Compile func(c *compiler, call *ast.CallExpr) (Operation, error)
}

// The registry is filled once by init and read-only afterwards.
var (
	builtins   = map[string]*Builtin{}
	transforms = map[string]*Transform{}
)

func init() {
	for _, b := range builtinTable() {
		builtins[b.Name] = b
	}
	for _, t := range transformTable() {
		transforms[t.Name] = t
	}
}

func accepts(min, max, n int) bool {
	return n >= min && (max < 0 || n <= max)
}

// Known reports whether name is a builtin or transform taking arity
// arguments. It is the parser's unknown-function hook.
func Known(name string, arity int) bool {
	if t, ok := transforms[name]; ok && accepts(t.MinArgs, t.MaxArgs, arity) {
		return true
	}
	if b, ok := builtins[name]; ok && accepts(b.MinArgs, b.MaxArgs, arity) {
		return true
	}
	return false
}

// Functions lists every registered name in sorted order.
func Functions() []string {
	names := make([]string, 0, len(builtins)+len(transforms))
	for n := range builtins {
		names = append(names, n)
	}
	for n := range transforms {
		if _, dup := builtins[n]; !dup {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func transformTable() []*Transform {
	return []*Transform{
		{Name: "select", MinArgs: 1, MaxArgs: -1, Compile: compileSelect},
		{Name: "filter", MinArgs: 1, MaxArgs: 1, Compile: compileFilter},
		{Name: "map", MinArgs: 1, MaxArgs: 1, Compile: compileMap},
		{Name: "map_values", MinArgs: 1, MaxArgs: 1, Compile: compileMapValues},
		{Name: "sort", MinArgs: 0, MaxArgs: -1, Compile: compileSort},
		{Name: "sort_by", MinArgs: 1, MaxArgs: -1, Compile: compileSort},
		{Name: "asc", MinArgs: 1, MaxArgs: 1, Compile: compileSortKeyOutsideSort},
		{Name: "desc", MinArgs: 1, MaxArgs: 1, Compile: compileSortKeyOutsideSort},
		{Name: "group_by", MinArgs: 1, MaxArgs: -1, Compile: compileGroupBy},
		{Name: "aggregate", MinArgs: 1, MaxArgs: -1, Compile: compileAggregate},
		{Name: "unique_by", MinArgs: 1, MaxArgs: 1, Compile: compileUniqueBy},
		{Name: "min_by", MinArgs: 1, MaxArgs: 1, Compile: compileExtremeBy},
		{Name: "max_by", MinArgs: 1, MaxArgs: 1, Compile: compileExtremeBy},
		{Name: "join", MinArgs: 1, MaxArgs: -1, Compile: compileJoin},
		{Name: "with_column", MinArgs: 2, MaxArgs: 2, Compile: compileWithColumn},
		{Name: "drop", MinArgs: 1, MaxArgs: -1, Compile: compileDrop},
		{Name: "rename", MinArgs: 1, MaxArgs: 2, Compile: compileRename},
		{Name: "distinct", MinArgs: 0, MaxArgs: -1, Compile: compileDistinct},
	}
}

func builtinTable() []*Builtin {
	list := []*Builtin{
		{Name: "length", Fn: fnLength},
		{Name: "keys", Fn: fnKeys},
		{Name: "values", Fn: fnValues},
		{Name: "type", Fn: fnType},
		{Name: "tojson", Fn: fnToJSON},
		{Name: "fromjson", Fn: fnFromJSON},
		{Name: "add", Fn: fnAdd},
		{Name: "unique", Fn: fnUnique},
		{Name: "reverse", Fn: fnReverse},
		{Name: "flatten", MaxArgs: 1, Fn: fnFlatten},
		{Name: "has", MinArgs: 1, MaxArgs: 1, Fn: fnHas},
		{Name: "contains", MinArgs: 1, MaxArgs: 1, Fn: fnContains},
		{Name: "to_entries", Fn: fnToEntries},
		{Name: "from_entries", Fn: fnFromEntries},
		{Name: "split", MinArgs: 1, MaxArgs: 1, Fn: fnSplit},
		{Name: "coalesce", MinArgs: 1, MaxArgs: -1, Fn: fnCoalesce},
		{Name: "uuid", Fn: fnUUID},
		{Name: "columns", Fn: fnColumns},
		{Name: "to_table", MaxArgs: 1, Fn: fnToTable},
		{Name: "to_array", Fn: fnToArray},
		{Name: "lazy", Fn: fnLazy},
		{Name: "collect", Fn: fnCollect},
		{Name: "explain", Fn: fnExplain},
		{Name: "range", MinArgs: 1, MaxArgs: 3, Fn: fnRange},
		{Name: "empty", Fn: fnEmpty},
		{Name: "error", MinArgs: 1, MaxArgs: 1, Fn: fnError},
		{Name: "head", MinArgs: 1, MaxArgs: 1, Fn: fnHead},
		{Name: "limit", MinArgs: 1, MaxArgs: 1, Fn: fnHead},
		{Name: "tail", MinArgs: 1, MaxArgs: 1, Fn: fnTail},
		{Name: "rolling", MinArgs: 2, MaxArgs: 4, Fn: fnRolling},
		{Name: "rolling_std", MinArgs: 1, MaxArgs: 3, Fn: fnRollingStd},
		{Name: "cumulative", MinArgs: 1, MaxArgs: 3, Fn: fnCumulative},
		{Name: "ewma", MinArgs: 1, MaxArgs: 3, Fn: fnEWMA},
		{Name: "pivot", MinArgs: 3, MaxArgs: 4, Fn: fnPivot},
		{Name: "unpivot", MinArgs: 1, MaxArgs: 2, Fn: fnUnpivot},

		scalar("tostring", 0, fnToString),
		scalar("tonumber", 0, fnToNumber),
		scalar("upper", 0, fnUpper),
		scalar("lower", 0, fnLower),
		scalar("trim", 0, fnTrim),
		scalar("substr", 2, fnSubstr),
		scalar("year", 0, datePart("year")),
		scalar("month", 0, datePart("month")),
		scalar("day", 0, datePart("day")),
		scalar("slug", 0, fnSlug),
		scalar("floor", 0, mathFn("floor")),
		scalar("ceil", 0, mathFn("ceil")),
		scalar("round", 0, mathFn("round")),
		scalar("abs", 0, mathFn("abs")),
		scalar("sqrt", 0, mathFn("sqrt")),
	}
	for _, name := range aggregationNames {
		list = append(list, aggregationBuiltin(name))
	}
	return list
}
