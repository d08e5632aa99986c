package engine

import (
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// onTable runs fn on the table behind in. Deferred input stays deferred;
// Arrays of Objects are bridged through a Table and back.
func onTable(op string, in value.Value, fn func(*table.Table) (*table.Table, error)) (value.Value, error) {
	switch in.Kind {
	case value.KindTable:
		t, err := fn(in.Table)
		if err != nil {
			return value.Null(), &value.OpError{Op: op, Err: err}
		}
		return value.TableVal(t), nil
	case value.KindDeferredTable:
		return value.DeferredVal(in.Lazy.Map(op, fn)), nil
	case value.KindArray:
		t, err := value.ArrayToTable(in.Arr)
		if err != nil {
			return value.Null(), err
		}
		out, err := fn(t)
		if err != nil {
			return value.Null(), &value.OpError{Op: op, Err: err}
		}
		return value.TableToArray(out), nil
	}
	return value.Null(), &value.TypeError{Op: op, Kind: in.Kind}
}

// fnPivot is pivot(index, columns, values[, agg]); agg defaults to first.
func fnPivot(in value.Value, args []value.Value) (value.Value, error) {
	var index []string
	if !args[0].IsNull() {
		var err error
		if index, err = stringList("pivot", args[0]); err != nil {
			return value.Null(), err
		}
	}
	columns, err := wantString("pivot", args[1])
	if err != nil {
		return value.Null(), err
	}
	values, err := wantString("pivot", args[2])
	if err != nil {
		return value.Null(), err
	}
	agg := table.AggFirst
	if len(args) == 4 {
		if agg, err = aggFuncArg("pivot", args[3]); err != nil {
			return value.Null(), err
		}
	}
	return onTable("pivot", in, func(t *table.Table) (*table.Table, error) {
		return t.Pivot(index, columns, values, agg)
	})
}

// fnUnpivot is unpivot(ids[, values]).
func fnUnpivot(in value.Value, args []value.Value) (value.Value, error) {
	ids, err := stringList("unpivot", args[0])
	if err != nil {
		return value.Null(), err
	}
	var values []string
	if len(args) == 2 {
		if values, err = stringList("unpivot", args[1]); err != nil {
			return value.Null(), err
		}
	}
	return onTable("unpivot", in, func(t *table.Table) (*table.Table, error) {
		return t.Unpivot(ids, values)
	})
}
