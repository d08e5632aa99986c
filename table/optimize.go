package table

// optimize rewrites a plan without changing its result: predicates move
// toward the scan, adjacent row windows fuse, and the scan reads only the
// columns the plan needs.
func optimize(lf *LazyFrame) *LazyFrame {
	ops := make([]LazyOperation, len(lf.operations))
	copy(ops, lf.operations)

	ops = pushDownPredicates(ops)
	ops = fuseSlices(ops)

	out := &LazyFrame{source: lf.source, projection: lf.projection, operations: ops}
	if lf.source != nil && lf.projection == nil {
		out.projection = pruneScan(lf.source, ops)
	}
	return out
}

// pushDownPredicates moves each filter below the operations it commutes
// with. Filters never pass each other, so a later predicate still only
// sees rows an earlier one kept.
func pushDownPredicates(ops []LazyOperation) []LazyOperation {
	for i := range ops {
		f, ok := ops[i].(*filterOp)
		if !ok || !rowWise(f.predicate) {
			continue
		}
		refs := f.predicate.Columns()
		for j := i; j > 0 && commutes(ops[j-1], refs); j-- {
			ops[j-1], ops[j] = ops[j], ops[j-1]
		}
	}
	return ops
}

func commutes(op LazyOperation, refs []string) bool {
	switch o := op.(type) {
	case *sortOp:
		return true
	case *selectOp:
		return containsAll(o.columns, refs)
	case *dropOp:
		return !containsAny(o.columns, refs)
	case *renameOp:
		return !containsAny([]string{o.old, o.new}, refs)
	case *withColumnOp:
		return rowWise(o.expr) && !containsAny([]string{o.name}, refs)
	}
	return false
}

// rowWise reports whether each output cell depends only on its own row.
func rowWise(e Expr) bool {
	switch x := e.(type) {
	case *ColExpr, *LitExpr:
		return true
	case *BinaryExpr:
		return rowWise(x.Left) && rowWise(x.Right)
	case *UnaryExpr:
		return rowWise(x.Operand)
	case *FuncExpr:
		for _, a := range x.Args {
			if !rowWise(a) {
				return false
			}
		}
		return true
	}
	return false
}

// fuseSlices merges consecutive heads, offset slices and tails.
func fuseSlices(ops []LazyOperation) []LazyOperation {
	var out []LazyOperation
	for _, op := range ops {
		cur, ok := op.(*sliceOp)
		if !ok || len(out) == 0 {
			out = append(out, op)
			continue
		}
		prev, ok := out[len(out)-1].(*sliceOp)
		if !ok || prev.fromEnd != cur.fromEnd {
			out = append(out, op)
			continue
		}
		if cur.fromEnd {
			out[len(out)-1] = &sliceOp{length: min(max(prev.length, 0), max(cur.length, 0)), fromEnd: true}
			continue
		}
		plen := max(prev.length, 0)
		length := min(max(cur.length, 0), max(plen-cur.offset, 0))
		out[len(out)-1] = &sliceOp{offset: prev.offset + min(cur.offset, plen), length: length}
	}
	return out
}

// pruneScan walks the plan backwards collecting the columns each step
// needs. It returns nil when every column may be observed.
func pruneScan(source *Table, ops []LazyOperation) []string {
	var required map[string]bool // nil means all columns
	need := func(names ...string) {
		if required != nil {
			for _, n := range names {
				required[n] = true
			}
		}
	}

	for i := len(ops) - 1; i >= 0; i-- {
		switch o := ops[i].(type) {
		case *selectOp:
			required = set(o.columns)
		case *groupByOp:
			required = set(o.keys)
			for _, a := range o.aggs {
				if a.Column != "" {
					required[a.Column] = true
				}
			}
		case *dropOp:
			need(o.columns...)
		case *renameOp:
			need(o.old, o.new)
		case *sortOp:
			for _, k := range o.keys {
				need(k.Column)
			}
		case *sliceOp:
		case *filterOp:
			if isOpaque(o.predicate) {
				required = nil
			} else {
				need(o.predicate.Columns()...)
			}
		case *withColumnOp:
			if isOpaque(o.expr) {
				required = nil
			} else {
				need(o.name)
				need(o.expr.Columns()...)
			}
		case *uniqueOp:
			if len(o.columns) == 0 {
				required = nil
			} else {
				need(o.columns...)
			}
		default:
			required = nil
		}
	}

	if required == nil {
		return nil
	}
	var projection []string
	for _, name := range source.Columns() {
		if required[name] {
			projection = append(projection, name)
		}
	}
	if len(projection) == source.NumCols() {
		return nil
	}
	return projection
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func containsAll(have, want []string) bool {
	s := set(have)
	for _, w := range want {
		if !s[w] {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	s := set(have)
	for _, w := range want {
		if s[w] {
			return true
		}
	}
	return false
}
