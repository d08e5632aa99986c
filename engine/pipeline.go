package engine

import (
	"errors"
	"fmt"

	"github.com/datasetq/datasetq/value"
)

// Pipeline is an ordered list of compiled stages. It holds no state between
// runs and may be executed concurrently.
type Pipeline struct {
	stages []Operation
	lazy   bool
}

// StageError reports the stage that aborted a run.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Execute runs the pipeline on in.
func (p *Pipeline) Execute(in value.Value) (value.Value, error) {
	return p.ExecuteWith(in, nil)
}

// ExecuteInPlace replaces *v with the pipeline's output. On failure *v is
// left unchanged.
func (p *Pipeline) ExecuteInPlace(v *value.Value) error {
	out, err := p.Execute(*v)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ExecuteWith runs the pipeline with $name variables bound.
func (p *Pipeline) ExecuteWith(in value.Value, vars map[string]value.Value) (value.Value, error) {
	env := NewEnv(vars)
	if p.lazy {
		return p.executeLazy(env, in)
	}
	return p.run(env, in)
}

func (p *Pipeline) run(env *Env, in value.Value) (value.Value, error) {
	cur := in
	for i, stage := range p.stages {
		next, err := stage.Apply(env, cur)
		if errors.Is(err, errEmpty) {
			return value.Null(), nil
		}
		if err != nil {
			return value.Null(), &StageError{Index: i, Stage: stage.Describe(), Err: err}
		}
		cur = next
	}
	return cur, nil
}

// executeLazy defers table input. When every stage has a plan form the
// whole pipeline becomes one deferred plan, collected once; otherwise the
// deferred value is threaded through the stages and collected at the end.
func (p *Pipeline) executeLazy(env *Env, in value.Value) (value.Value, error) {
	if in.Kind != value.KindTable && in.Kind != value.KindDeferredTable {
		return p.run(env, in)
	}
	if lp, ok := p.lower(env); ok {
		out, err := lp.ExecuteAndCollect(in)
		if err != nil {
			return value.Null(), p.attribute(env, in, err)
		}
		return out, nil
	}
	src := in
	if in.Kind == value.KindTable {
		in = value.DeferredVal(in.Table.Lazy())
	}
	out, err := p.run(env, in)
	if err != nil {
		return value.Null(), err
	}
	if out.Kind == value.KindDeferredTable {
		t, err := out.Lazy.Collect()
		if err != nil {
			return value.Null(), p.attribute(env, src, err)
		}
		return value.TableVal(t), nil
	}
	return out, nil
}

// attribute finds the stage behind a failed collect by replaying the
// pipeline eagerly, so lazy and eager runs report the same stage. When the
// replay succeeds, or the input itself cannot be collected, the collect
// error is reported against the last stage.
func (p *Pipeline) attribute(env *Env, in value.Value, collectErr error) error {
	fallback := &StageError{Index: len(p.stages) - 1, Stage: "collect", Err: collectErr}
	if in.Kind == value.KindDeferredTable {
		t, err := in.Lazy.Collect()
		if err != nil {
			return fallback
		}
		in = value.TableVal(t)
	}
	_, err := p.run(env, in)
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return fallback
}

// lower converts every stage into a deferred-plan step, or reports false.
func (p *Pipeline) lower(env *Env) (*LazyPipeline, bool) {
	lp := NewLazyPipeline()
	for _, s := range p.stages {
		l, ok := s.(lowerable)
		if !ok {
			return nil, false
		}
		if lp, ok = l.lower(env, lp); !ok {
			return nil, false
		}
	}
	return lp, true
}

// Lazy returns a copy of the pipeline in lazy mode.
func (p *Pipeline) Lazy() *Pipeline {
	return &Pipeline{stages: p.stages, lazy: true}
}

// IsLazy reports whether the pipeline defers table input.
func (p *Pipeline) IsLazy() bool { return p.lazy }

// Len is the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Describe lists the stages in order.
func (p *Pipeline) Describe() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Describe()
	}
	return out
}

// Explain describes how the pipeline would run on a table: the optimized
// deferred plan when every stage lowers, else the stage list.
func (p *Pipeline) Explain(in value.Value, vars map[string]value.Value) []string {
	if in.Kind == value.KindTable || in.Kind == value.KindDeferredTable {
		if lp, ok := p.lower(NewEnv(vars)); ok {
			src := in.Lazy
			if in.Kind == value.KindTable {
				src = in.Table.Lazy()
			}
			if lf, err := lp.Build(src); err == nil {
				return lf.Explain()
			}
		}
	}
	return p.Describe()
}
