package engine

import (
	"fmt"
	"strings"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// LazyStage maps one deferred plan to the next.
type LazyStage func(*table.LazyFrame) (*table.LazyFrame, error)

// LazyPipeline is a list of plan-building steps. Nothing touches data until
// Execute or ExecuteAndCollect, so the engine can optimize the whole plan.
// Builders return a new pipeline and leave the receiver unchanged.
type LazyPipeline struct {
	stages []LazyStage
	descs  []string
}

// NewLazyPipeline returns an empty pipeline.
func NewLazyPipeline() *LazyPipeline {
	return &LazyPipeline{}
}

func (p *LazyPipeline) with(desc string, s LazyStage) *LazyPipeline {
	n := len(p.stages)
	out := &LazyPipeline{
		stages: make([]LazyStage, n, n+1),
		descs:  make([]string, n, n+1),
	}
	copy(out.stages, p.stages)
	copy(out.descs, p.descs)
	out.stages = append(out.stages, s)
	out.descs = append(out.descs, desc)
	return out
}

// Then appends an arbitrary step.
func (p *LazyPipeline) Then(desc string, s LazyStage) *LazyPipeline {
	return p.with(desc, s)
}

func (p *LazyPipeline) Select(columns ...string) *LazyPipeline {
	return p.with("select "+strings.Join(columns, ", "), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Select(columns...), nil
	})
}

func (p *LazyPipeline) Filter(pred table.Expr) *LazyPipeline {
	return p.with("filter "+pred.String(), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Filter(pred), nil
	})
}

// FilterFunc filters with a mask computed by Go code. The optimizer cannot
// move it.
func (p *LazyPipeline) FilterFunc(desc string, fn func(*table.Table) (*table.Column, error)) *LazyPipeline {
	return p.with("filter "+desc, func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.FilterFunc(desc, fn), nil
	})
}

func (p *LazyPipeline) Sort(keys ...table.SortKey) *LazyPipeline {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return p.with("sort "+strings.Join(parts, ", "), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Sort(keys...), nil
	})
}

func (p *LazyPipeline) Head(n int) *LazyPipeline {
	return p.with(fmt.Sprintf("head %d", n), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Head(n), nil
	})
}

func (p *LazyPipeline) Tail(n int) *LazyPipeline {
	return p.with(fmt.Sprintf("tail %d", n), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Tail(n), nil
	})
}

func (p *LazyPipeline) GroupBy(keys []string, aggs ...table.AggExpr) *LazyPipeline {
	parts := make([]string, len(aggs))
	for i, a := range aggs {
		parts[i] = a.String()
	}
	desc := fmt.Sprintf("group_by [%s] agg [%s]", strings.Join(keys, ", "), strings.Join(parts, ", "))
	return p.with(desc, func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.GroupBy(keys...).Agg(aggs...), nil
	})
}

func (p *LazyPipeline) WithColumn(name string, e table.Expr) *LazyPipeline {
	return p.with("with_column "+name+" = "+e.String(), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.WithColumn(name, e), nil
	})
}

func (p *LazyPipeline) DropColumns(columns ...string) *LazyPipeline {
	return p.with("drop "+strings.Join(columns, ", "), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Drop(columns...), nil
	})
}

func (p *LazyPipeline) Rename(old, new string) *LazyPipeline {
	return p.with("rename "+old+" -> "+new, func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Rename(old, new), nil
	})
}

func (p *LazyPipeline) Unique(columns ...string) *LazyPipeline {
	return p.with("unique "+strings.Join(columns, ", "), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Unique(columns...), nil
	})
}

func (p *LazyPipeline) Join(right *table.LazyFrame, opts table.JoinOptions) *LazyPipeline {
	return p.with(opts.String(), func(lf *table.LazyFrame) (*table.LazyFrame, error) {
		return lf.Join(right, opts), nil
	})
}

// Len is the number of steps.
func (p *LazyPipeline) Len() int { return len(p.stages) }

// Describe lists the steps as added, before optimization.
func (p *LazyPipeline) Describe() []string {
	return append([]string(nil), p.descs...)
}

// Build composes the steps on top of src without executing anything.
func (p *LazyPipeline) Build(src *table.LazyFrame) (*table.LazyFrame, error) {
	lf := src
	for i, s := range p.stages {
		var err error
		if lf, err = s(lf); err != nil {
			return nil, fmt.Errorf("%s: %w", p.descs[i], err)
		}
	}
	return lf, nil
}

// Execute builds the plan over t and materializes it.
func (p *LazyPipeline) Execute(t *table.Table) (*table.Table, error) {
	lf, err := p.Build(t.Lazy())
	if err != nil {
		return nil, err
	}
	return lf.Collect()
}

// ExecuteAndCollect accepts a Table or a DeferredTable and returns the
// materialized Table.
func (p *LazyPipeline) ExecuteAndCollect(v value.Value) (value.Value, error) {
	var src *table.LazyFrame
	switch v.Kind {
	case value.KindTable:
		src = v.Table.Lazy()
	case value.KindDeferredTable:
		src = v.Lazy
	default:
		return value.Null(), &value.TypeError{Op: "collect", Kind: v.Kind, Msg: "expected a table or deferred table, got " + v.TypeName()}
	}
	lf, err := p.Build(src)
	if err != nil {
		return value.Null(), err
	}
	t, err := lf.Collect()
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

// lowerable is implemented by operations with a deferred-plan form.
type lowerable interface {
	lower(env *Env, p *LazyPipeline) (*LazyPipeline, bool)
}

func (identityOp) lower(_ *Env, p *LazyPipeline) (*LazyPipeline, bool) { return p, true }

// constant evaluates op when its result cannot depend on the input.
func constant(env *Env, op Operation) (value.Value, bool) {
	switch o := op.(type) {
	case *literalOp:
		return o.v, true
	case *varOp:
		v, ok := env.Lookup(o.name)
		return v, ok
	case *arrayOp:
		for _, e := range o.elems {
			if _, ok := constant(env, e); !ok {
				return value.Null(), false
			}
		}
	case *objectOp:
		for _, e := range o.entries {
			if _, ok := constant(env, e.key); !ok {
				return value.Null(), false
			}
			if _, ok := constant(env, e.val); !ok {
				return value.Null(), false
			}
		}
	case *negOp:
		if _, ok := constant(env, o.operand); !ok {
			return value.Null(), false
		}
	default:
		return value.Null(), false
	}
	v, err := op.Apply(env, value.Null())
	return v, err == nil
}
