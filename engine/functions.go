package engine

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

type scalarFunc func(v value.Value, args []value.Value) (value.Value, error)

// scalar registers a per-value function taking base arguments. Given one
// more argument than base, the first argument is the subject instead of the
// input, so both `.name | upper` and `upper(.name)` work. Null passes
// through and Columns are mapped cell by cell.
func scalar(name string, base int, fn scalarFunc) *Builtin {
	return &Builtin{
		Name:    name,
		MinArgs: base,
		MaxArgs: base + 1,
		Fn: func(in value.Value, args []value.Value) (value.Value, error) {
			if len(args) > base {
				in, args = args[0], args[1:]
			}
			return mapScalar(in, args, fn)
		},
	}
}

func mapScalar(v value.Value, args []value.Value, fn scalarFunc) (value.Value, error) {
	switch v.Kind {
	case value.KindNull:
		return v, nil
	case value.KindColumn:
		cells := make([]table.Cell, v.Col.Len())
		for i := range cells {
			c := v.Col.Get(i)
			if c.IsNull() {
				cells[i] = c
				continue
			}
			out, err := fn(value.FromCell(c), args)
			if err != nil {
				return value.Null(), err
			}
			cells[i] = value.ToCell(out)
		}
		return value.ColumnVal(table.NewColumn(v.Col.Name(), cells)), nil
	}
	return fn(v, args)
}

func wantString(op string, v value.Value) (string, error) {
	if v.Kind != value.KindString {
		return "", &value.TypeError{Op: op, Kind: v.Kind, Msg: fmt.Sprintf("expected a string, got %s", v.TypeName())}
	}
	return v.Str, nil
}

func wantInt(op string, v value.Value) (int, error) {
	n, ok := v.AsInt()
	if !ok {
		return 0, &value.TypeError{Op: op, Kind: v.Kind, Msg: fmt.Sprintf("expected an integer, got %s", v.AsString())}
	}
	return int(n), nil
}

func fnToString(v value.Value, _ []value.Value) (value.Value, error) {
	if v.Kind == value.KindString {
		return v, nil
	}
	return value.StrVal(v.AsString()), nil
}

func fnToNumber(v value.Value, _ []value.Value) (value.Value, error) {
	if v.IsNumber() {
		return v, nil
	}
	s, err := wantString("tonumber", v)
	if err != nil {
		return value.Null(), err
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.IntVal(n), nil
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return value.BigVal(b), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.FloatVal(f), nil
	}
	return value.Null(), &value.TypeError{Op: "tonumber", Kind: v.Kind, Msg: fmt.Sprintf("cannot parse %q as a number", s)}
}

func fnUpper(v value.Value, _ []value.Value) (value.Value, error) {
	s, err := wantString("upper", v)
	if err != nil {
		return value.Null(), err
	}
	return value.StrVal(strings.ToUpper(s)), nil
}

func fnLower(v value.Value, _ []value.Value) (value.Value, error) {
	s, err := wantString("lower", v)
	if err != nil {
		return value.Null(), err
	}
	return value.StrVal(strings.ToLower(s)), nil
}

func fnTrim(v value.Value, _ []value.Value) (value.Value, error) {
	s, err := wantString("trim", v)
	if err != nil {
		return value.Null(), err
	}
	return value.StrVal(strings.TrimSpace(s)), nil
}

// fnSubstr takes a start rune offset and a length.
func fnSubstr(v value.Value, args []value.Value) (value.Value, error) {
	s, err := wantString("substr", v)
	if err != nil {
		return value.Null(), err
	}
	start, err := wantInt("substr", args[0])
	if err != nil {
		return value.Null(), err
	}
	length, err := wantInt("substr", args[1])
	if err != nil {
		return value.Null(), err
	}
	runes := []rune(s)
	start = max(start, 0)
	if start >= len(runes) || length <= 0 {
		return value.StrVal(""), nil
	}
	end := min(start+length, len(runes))
	return value.StrVal(string(runes[start:end])), nil
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func datePart(part string) scalarFunc {
	return func(v value.Value, _ []value.Value) (value.Value, error) {
		s, err := wantString(part, v)
		if err != nil {
			return value.Null(), err
		}
		t, ok := parseDate(s)
		if !ok {
			return value.Null(), &value.TypeError{Op: part, Kind: v.Kind, Msg: fmt.Sprintf("cannot parse %q as a date", s)}
		}
		switch part {
		case "year":
			return value.IntVal(int64(t.Year())), nil
		case "month":
			return value.IntVal(int64(t.Month())), nil
		default:
			return value.IntVal(int64(t.Day())), nil
		}
	}
}

func fnSlug(v value.Value, _ []value.Value) (value.Value, error) {
	s, err := wantString("slug", v)
	if err != nil {
		return value.Null(), err
	}
	return value.StrVal(slug.Make(s)), nil
}

// mathFn returns Ints for integral results that fit.
func mathFn(name string) scalarFunc {
	return func(v value.Value, _ []value.Value) (value.Value, error) {
		switch v.Kind {
		case value.KindInt:
			if name == "abs" {
				if v.Int == math.MinInt64 {
					return value.BigVal(new(big.Int).Neg(big.NewInt(v.Int))), nil
				}
				if v.Int < 0 {
					return value.IntVal(-v.Int), nil
				}
			}
			if name != "sqrt" {
				return v, nil
			}
		case value.KindBigInt:
			switch name {
			case "abs":
				return value.BigVal(new(big.Int).Abs(v.Big)), nil
			case "floor", "ceil", "round":
				return v, nil
			}
		case value.KindFloat:
		default:
			return value.Null(), &value.TypeError{Op: name, Kind: v.Kind, Msg: fmt.Sprintf("expected a number, got %s", v.TypeName())}
		}
		f, _ := v.AsFloat()
		var r float64
		switch name {
		case "floor":
			r = math.Floor(f)
		case "ceil":
			r = math.Ceil(f)
		case "round":
			r = math.Round(f)
		case "abs":
			return value.FloatVal(math.Abs(f)), nil
		case "sqrt":
			if f < 0 {
				return value.Null(), &value.TypeError{Op: name, Kind: v.Kind, Msg: fmt.Sprintf("domain error: sqrt of %s", v.AsString())}
			}
			return value.FloatVal(math.Sqrt(f)), nil
		}
		if r >= math.MinInt64 && r < math.MaxInt64 {
			return value.IntVal(int64(r)), nil
		}
		return value.FloatVal(r), nil
	}
}

func fnLength(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindInt:
		if in.Int < 0 {
			return mathFn("abs")(in, nil)
		}
		return in, nil
	case value.KindBigInt:
		return value.BigVal(new(big.Int).Abs(in.Big)), nil
	case value.KindFloat:
		return value.FloatVal(math.Abs(in.Float)), nil
	case value.KindDeferredTable:
		t, err := value.AsTable("length", in)
		if err != nil {
			return value.Null(), err
		}
		return value.IntVal(int64(t.NumRows())), nil
	}
	n, ok := in.Len()
	if !ok {
		return value.Null(), &value.TypeError{Op: "length", Kind: in.Kind}
	}
	return value.IntVal(int64(n)), nil
}

func stringArray(ss []string) value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.StrVal(s)
	}
	return value.ArrayVal(out)
}

func fnKeys(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindObject:
		return stringArray(in.SortedKeys()), nil
	case value.KindArray:
		out := make([]value.Value, len(in.Arr))
		for i := range out {
			out[i] = value.IntVal(int64(i))
		}
		return value.ArrayVal(out), nil
	case value.KindTable, value.KindDeferredTable:
		return fnColumns(in, nil)
	}
	return value.Null(), &value.TypeError{Op: "keys", Kind: in.Kind}
}

func fnValues(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindObject, value.KindArray, value.KindColumn:
		vs, err := value.Iterate(in)
		if err != nil {
			return value.Null(), err
		}
		return value.ArrayVal(vs), nil
	}
	return value.Null(), &value.TypeError{Op: "values", Kind: in.Kind}
}

func fnType(in value.Value, _ []value.Value) (value.Value, error) {
	return value.StrVal(in.TypeName()), nil
}

func fnToJSON(in value.Value, _ []value.Value) (value.Value, error) {
	if in.Kind == value.KindDeferredTable {
		t, err := value.AsTable("tojson", in)
		if err != nil {
			return value.Null(), err
		}
		in = value.TableVal(t)
	}
	return value.StrVal(in.String()), nil
}

func fnFromJSON(in value.Value, _ []value.Value) (value.Value, error) {
	s, err := wantString("fromjson", in)
	if err != nil {
		return value.Null(), err
	}
	v, err := value.ParseJSON([]byte(s))
	if err != nil {
		return value.Null(), &value.OpError{Op: "fromjson", Err: err}
	}
	return v, nil
}

// fnAdd folds the elements with +. The sum of nothing is null.
func fnAdd(in value.Value, _ []value.Value) (value.Value, error) {
	if in.Kind == value.KindTable || in.Kind == value.KindDeferredTable {
		return value.Null(), &value.TypeError{Op: "add", Kind: in.Kind, Msg: "use aggregate(sum(...)) on tables"}
	}
	elems, err := value.Iterate(in)
	if err != nil {
		return value.Null(), err
	}
	acc := value.Null()
	for _, e := range elems {
		if acc, err = value.Add(acc, e); err != nil {
			return value.Null(), err
		}
	}
	return acc, nil
}

func fnUnique(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindTable:
		t, err := in.Table.Unique()
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.Unique()), nil
	case value.KindArray, value.KindColumn:
		elems, err := value.Iterate(in)
		if err != nil {
			return value.Null(), err
		}
		return value.ArrayVal(dedupeSorted(elems)), nil
	}
	return value.Null(), &value.TypeError{Op: "unique", Kind: in.Kind}
}

func dedupeSorted(elems []value.Value) []value.Value {
	seen := make(map[string]bool, len(elems))
	out := make([]value.Value, 0, len(elems))
	for _, e := range elems {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return value.SortCompare(out[i], out[j]) < 0
	})
	return out
}

func fnReverse(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindNull:
		return value.ArrayVal(nil), nil
	case value.KindString:
		r := []rune(in.Str)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return value.StrVal(string(r)), nil
	case value.KindArray:
		out := make([]value.Value, len(in.Arr))
		for i, e := range in.Arr {
			out[len(out)-1-i] = e
		}
		return value.ArrayVal(out), nil
	case value.KindTable:
		n := in.Table.NumRows()
		idx := make([]int, n)
		for i := range idx {
			idx[i] = n - 1 - i
		}
		return value.TableVal(in.Table.Take(idx)), nil
	}
	return value.Null(), &value.TypeError{Op: "reverse", Kind: in.Kind}
}

func fnFlatten(in value.Value, args []value.Value) (value.Value, error) {
	if in.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Op: "flatten", Kind: in.Kind}
	}
	depth := math.MaxInt
	if len(args) == 1 {
		d, err := wantInt("flatten", args[0])
		if err != nil {
			return value.Null(), err
		}
		if d < 0 {
			return value.Null(), &value.TypeError{Op: "flatten", Kind: args[0].Kind, Msg: "depth must not be negative"}
		}
		depth = d
	}
	return value.ArrayVal(flatten(nil, in.Arr, depth)), nil
}

func flatten(dst, elems []value.Value, depth int) []value.Value {
	for _, e := range elems {
		if e.Kind == value.KindArray && depth > 0 {
			dst = flatten(dst, e.Arr, depth-1)
			continue
		}
		dst = append(dst, e)
	}
	return dst
}

func fnHas(in value.Value, args []value.Value) (value.Value, error) {
	key := args[0]
	switch in.Kind {
	case value.KindObject:
		if key.Kind != value.KindString {
			break
		}
		_, ok := in.Obj[key.Str]
		return value.BoolVal(ok), nil
	case value.KindArray:
		i, ok := key.AsInt()
		if !ok {
			break
		}
		return value.BoolVal(i >= 0 && int(i) < len(in.Arr)), nil
	case value.KindTable:
		if key.Kind != value.KindString {
			break
		}
		_, ok := in.Table.Column(key.Str)
		return value.BoolVal(ok), nil
	default:
		return value.Null(), &value.TypeError{Op: "has", Kind: in.Kind}
	}
	return value.Null(), &value.TypeError{Op: "has", Kind: key.Kind, Msg: fmt.Sprintf("cannot check whether %s has a %s key", in.TypeName(), key.TypeName())}
}

func fnContains(in value.Value, args []value.Value) (value.Value, error) {
	ok, err := contains(in, args[0])
	if err != nil {
		return value.Null(), err
	}
	return value.BoolVal(ok), nil
}

// contains is jq's containment: substrings, every element of b contained in
// some element of a, every key of b contained in a's value for that key.
func contains(a, b value.Value) (bool, error) {
	if a.Kind != b.Kind && !(a.IsNumber() && b.IsNumber()) {
		return false, &value.TypeError{Op: "contains", Kind: a.Kind, Msg: fmt.Sprintf("%s and %s cannot have their containment checked", a.TypeName(), b.TypeName())}
	}
	switch a.Kind {
	case value.KindString:
		return strings.Contains(a.Str, b.Str), nil
	case value.KindArray:
		for _, be := range b.Arr {
			found := false
			for _, ae := range a.Arr {
				if ae.Kind != be.Kind && !(ae.IsNumber() && be.IsNumber()) {
					continue
				}
				ok, err := contains(ae, be)
				if err != nil {
					return false, err
				}
				if ok {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case value.KindObject:
		for k, bv := range b.Obj {
			av, ok := a.Obj[k]
			if !ok {
				return false, nil
			}
			if ok, err := contains(av, bv); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return value.Equal(a, b), nil
}

func fnToEntries(in value.Value, _ []value.Value) (value.Value, error) {
	if in.Kind != value.KindObject {
		return value.Null(), &value.TypeError{Op: "to_entries", Kind: in.Kind}
	}
	keys := in.SortedKeys()
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = value.ObjectVal(map[string]value.Value{
			"key":   value.StrVal(k),
			"value": in.Obj[k],
		})
	}
	return value.ArrayVal(out), nil
}

var (
	entryKeyNames   = []string{"key", "k", "name", "Key", "Name"}
	entryValueNames = []string{"value", "v", "Value"}
)

func fnFromEntries(in value.Value, _ []value.Value) (value.Value, error) {
	if in.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Op: "from_entries", Kind: in.Kind}
	}
	out := make(map[string]value.Value, len(in.Arr))
	for _, e := range in.Arr {
		if e.Kind != value.KindObject {
			return value.Null(), &value.TypeError{Op: "from_entries", Kind: e.Kind, Msg: fmt.Sprintf("entry is %s, not object", e.TypeName())}
		}
		key, ok := firstField(e, entryKeyNames)
		if !ok || key.IsNull() {
			return value.Null(), &value.OpError{Op: "from_entries", Msg: "entry has no key"}
		}
		v, _ := firstField(e, entryValueNames)
		out[key.AsString()] = v
	}
	return value.ObjectVal(out), nil
}

func firstField(obj value.Value, names []string) (value.Value, bool) {
	for _, n := range names {
		if v, ok := obj.Obj[n]; ok {
			return v, true
		}
	}
	return value.Null(), false
}

func fnSplit(in value.Value, args []value.Value) (value.Value, error) {
	if in.IsNull() {
		return in, nil
	}
	s, err := wantString("split", in)
	if err != nil {
		return value.Null(), err
	}
	sep, err := wantString("split", args[0])
	if err != nil {
		return value.Null(), err
	}
	if s == "" {
		return value.ArrayVal(nil), nil
	}
	return stringArray(strings.Split(s, sep)), nil
}

// fnCoalesce returns the first non-null argument. Column arguments are
// coalesced row by row.
func fnCoalesce(_ value.Value, args []value.Value) (value.Value, error) {
	n := -1
	name := "coalesce"
	for _, a := range args {
		if a.Kind == value.KindColumn {
			n, name = a.Col.Len(), a.Col.Name()
			break
		}
	}
	if n < 0 {
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null(), nil
	}
	cells := make([]table.Cell, n)
	for i := range cells {
		cells[i] = table.Null()
		for _, a := range args {
			var c table.Cell
			if a.Kind == value.KindColumn {
				if a.Col.Len() != n {
					return value.Null(), &value.OpError{Op: "coalesce", Msg: fmt.Sprintf("column %q has %d rows, want %d", a.Col.Name(), a.Col.Len(), n)}
				}
				c = a.Col.Get(i)
			} else {
				c = value.ToCell(a)
			}
			if !c.IsNull() {
				cells[i] = c
				break
			}
		}
	}
	return value.ColumnVal(table.NewColumn(name, cells)), nil
}

func fnUUID(value.Value, []value.Value) (value.Value, error) {
	return value.StrVal(uuid.NewString()), nil
}

func fnColumns(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindTable, value.KindDeferredTable:
		t, err := value.AsTable("columns", in)
		if err != nil {
			return value.Null(), err
		}
		return stringArray(t.Columns()), nil
	case value.KindObject:
		return stringArray(in.SortedKeys()), nil
	case value.KindArray:
		var names []string
		seen := make(map[string]bool)
		for _, e := range in.Arr {
			if e.Kind != value.KindObject {
				return value.Null(), &value.TypeError{Op: "columns", Kind: e.Kind, Msg: fmt.Sprintf("element is %s, not object", e.TypeName())}
			}
			for _, k := range e.SortedKeys() {
				if !seen[k] {
					seen[k] = true
					names = append(names, k)
				}
			}
		}
		return stringArray(names), nil
	}
	return value.Null(), &value.TypeError{Op: "columns", Kind: in.Kind}
}

func stringList(op string, v value.Value) ([]string, error) {
	switch v.Kind {
	case value.KindString:
		return []string{v.Str}, nil
	case value.KindArray:
		out := make([]string, len(v.Arr))
		for i, e := range v.Arr {
			s, err := wantString(op, e)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, &value.TypeError{Op: op, Kind: v.Kind, Msg: fmt.Sprintf("expected a column name or a list of names, got %s", v.TypeName())}
}

// fnToTable converts records, or an object of equal-length arrays, into a
// Table. An optional list fixes the column order.
func fnToTable(in value.Value, args []value.Value) (value.Value, error) {
	var order []string
	if len(args) == 1 {
		var err error
		if order, err = stringList("to_table", args[0]); err != nil {
			return value.Null(), err
		}
	}
	switch in.Kind {
	case value.KindTable, value.KindDeferredTable:
		t, err := value.AsTable("to_table", in)
		if err != nil {
			return value.Null(), err
		}
		if len(order) > 0 {
			if t, err = t.Select(order...); err != nil {
				return value.Null(), &value.OpError{Op: "to_table", Err: err}
			}
		}
		return value.TableVal(t), nil
	case value.KindArray:
		t, err := value.ArrayToTable(in.Arr, order...)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(t), nil
	case value.KindObject:
		return columnarTable(in, order)
	}
	return value.Null(), &value.TypeError{Op: "to_table", Kind: in.Kind}
}

func columnarTable(in value.Value, order []string) (value.Value, error) {
	if len(order) == 0 {
		order = in.SortedKeys()
	}
	cols := make([]*table.Column, len(order))
	for i, name := range order {
		v, ok := in.Obj[name]
		if !ok {
			return value.Null(), &value.OpError{Op: "to_table", Msg: fmt.Sprintf("no key %q", name), Err: value.ErrMissingColumn}
		}
		if v.Kind != value.KindArray {
			return value.Null(), &value.TypeError{Op: "to_table", Kind: v.Kind, Msg: fmt.Sprintf("column %q is %s, not array", name, v.TypeName())}
		}
		cols[i] = table.NewColumn(name, value.ToCells(v.Arr))
	}
	t, err := table.New(cols...)
	if err != nil {
		return value.Null(), &value.OpError{Op: "to_table", Err: err}
	}
	return value.TableVal(t), nil
}

func fnToArray(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindArray:
		return in, nil
	case value.KindTable, value.KindDeferredTable, value.KindColumn:
		vs, err := value.Iterate(in)
		if err != nil {
			return value.Null(), err
		}
		return value.ArrayVal(vs), nil
	}
	return value.Null(), &value.TypeError{Op: "to_array", Kind: in.Kind}
}

func fnLazy(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindTable:
		return value.DeferredVal(in.Table.Lazy()), nil
	case value.KindDeferredTable:
		return in, nil
	case value.KindArray:
		t, err := value.AsTable("lazy", in)
		if err != nil {
			return value.Null(), err
		}
		return value.DeferredVal(t.Lazy()), nil
	}
	return value.Null(), &value.TypeError{Op: "lazy", Kind: in.Kind}
}

func fnCollect(in value.Value, _ []value.Value) (value.Value, error) {
	if in.Kind != value.KindDeferredTable {
		return in, nil
	}
	t, err := in.Lazy.Collect()
	if err != nil {
		return value.Null(), &value.OpError{Op: "collect", Err: err}
	}
	return value.TableVal(t), nil
}

func fnExplain(in value.Value, _ []value.Value) (value.Value, error) {
	switch in.Kind {
	case value.KindDeferredTable:
		return stringArray(in.Lazy.Explain()), nil
	case value.KindTable:
		return stringArray(in.Table.Lazy().Explain()), nil
	}
	return value.Null(), &value.TypeError{Op: "explain", Kind: in.Kind}
}

// fnRange is range(to), range(from; to) or range(from; to; step). Integer
// bounds give Ints.
func fnRange(_ value.Value, args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !a.IsNumber() {
			return value.Null(), &value.TypeError{Op: "range", Kind: a.Kind, Msg: fmt.Sprintf("expected a number, got %s", a.TypeName())}
		}
	}
	from, to, step := value.IntVal(0), args[0], value.IntVal(1)
	if len(args) > 1 {
		from, to = args[0], args[1]
	}
	if len(args) > 2 {
		step = args[2]
	}
	f0, _ := from.AsFloat()
	f1, _ := to.AsFloat()
	fs, _ := step.AsFloat()
	if fs == 0 {
		return value.Null(), &value.OpError{Op: "range", Msg: "step must not be zero"}
	}
	ints := from.Kind == value.KindInt && to.Kind == value.KindInt && step.Kind == value.KindInt
	var out []value.Value
	for x := f0; (fs > 0 && x < f1) || (fs < 0 && x > f1); x += fs {
		if ints {
			out = append(out, value.IntVal(int64(x)))
		} else {
			out = append(out, value.FloatVal(x))
		}
	}
	return value.ArrayVal(out), nil
}

func fnEmpty(value.Value, []value.Value) (value.Value, error) {
	return value.Null(), errEmpty
}

func fnError(_ value.Value, args []value.Value) (value.Value, error) {
	return value.Null(), &value.OpError{Op: "error", Msg: args[0].AsString()}
}

func fnHead(in value.Value, args []value.Value) (value.Value, error) {
	return window("head", in, args[0], true)
}

func fnTail(in value.Value, args []value.Value) (value.Value, error) {
	return window("tail", in, args[0], false)
}

// window takes the first or last n elements. n saturates at the length and
// negative n counts as zero.
func window(op string, in, nv value.Value, head bool) (value.Value, error) {
	n, err := wantInt(op, nv)
	if err != nil {
		return value.Null(), err
	}
	n = max(n, 0)
	bounds := func(length int) (int, int) {
		k := min(n, length)
		if head {
			return 0, k
		}
		return length - k, length
	}
	switch in.Kind {
	case value.KindNull:
		return in, nil
	case value.KindArray:
		lo, hi := bounds(len(in.Arr))
		return value.ArrayVal(in.Arr[lo:hi]), nil
	case value.KindString:
		r := []rune(in.Str)
		lo, hi := bounds(len(r))
		return value.StrVal(string(r[lo:hi])), nil
	case value.KindTable:
		if head {
			return value.TableVal(in.Table.Head(n)), nil
		}
		return value.TableVal(in.Table.Tail(n)), nil
	case value.KindDeferredTable:
		if head {
			return value.DeferredVal(in.Lazy.Head(n)), nil
		}
		return value.DeferredVal(in.Lazy.Tail(n)), nil
	case value.KindColumn:
		lo, hi := bounds(in.Col.Len())
		return value.ColumnVal(in.Col.Slice(lo, hi)), nil
	}
	return value.Null(), &value.TypeError{Op: op, Kind: in.Kind}
}

func (o *callOp) lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool) {
	switch o.fn.Name {
	case "head", "limit", "tail":
		v, ok := constant(env, o.args[0])
		if !ok {
			return nil, false
		}
		n, ok := v.AsInt()
		if !ok {
			return nil, false
		}
		n = max(n, 0)
		if o.fn.Name == "tail" {
			return p.Tail(int(n)), true
		}
		return p.Head(int(n)), true
	case "lazy", "collect":
		return p, true
	}
	return nil, false
}
