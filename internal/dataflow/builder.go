package dataflow

import (
	"fmt"
	"slices"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/plan"
)

var _ plan.Builder = (*Builder)(nil)

// Handle references a step of the Builder that created it.
type Handle struct {
	step  int
	owner *Builder
}

// Step returns the id of the referenced step.
func (h Handle) Step() int { return h.step }

// Builder records operators into a Topology. It is not safe for concurrent
// use; use one Builder per compile pass.
type Builder struct {
	topo Topology
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Topology returns a copy of the steps recorded so far.
func (b *Builder) Topology() *Topology {
	steps := make([]Step, len(b.topo.Steps))
	for i, s := range b.topo.Steps {
		s.Inputs = slices.Clone(s.Inputs)
		s.Columns = slices.Clone(s.Columns)
		s.Keys = slices.Clone(s.Keys)
		steps[i] = s
	}
	return &Topology{Steps: steps}
}

func (b *Builder) add(s Step) plan.Handle {
	s.ID = len(b.topo.Steps) + 1
	b.topo.Steps = append(b.topo.Steps, s)
	return Handle{step: s.ID, owner: b}
}

func (b *Builder) input(h plan.Handle) (int, error) {
	dh, ok := h.(Handle)
	if !ok {
		return 0, fmt.Errorf("dataflow: handle of type %T was not created by this builder", h)
	}
	if dh.owner != b || dh.step < 1 || dh.step > len(b.topo.Steps) {
		return 0, fmt.Errorf("dataflow: handle for step %d was not created by this builder", dh.step)
	}
	if b.topo.Steps[dh.step-1].Op == OpSink {
		return 0, fmt.Errorf("dataflow: step %d is a sink and has no output", dh.step)
	}
	return dh.step, nil
}

func (b *Builder) Scan(stream string) (plan.Handle, error) {
	if stream == "" {
		return nil, fmt.Errorf("dataflow: scan requires a stream name")
	}
	return b.add(Step{Op: OpSource, Stream: stream}), nil
}

func (b *Builder) Filter(h plan.Handle, predicate expr.Expr) (plan.Handle, error) {
	in, err := b.input(h)
	if err != nil {
		return nil, err
	}
	return b.add(Step{Op: OpFilter, Inputs: []int{in}, Predicate: predicate.String()}), nil
}

func (b *Builder) Project(h plan.Handle, selects []expr.SelectExpression) (plan.Handle, error) {
	in, err := b.input(h)
	if err != nil {
		return nil, err
	}
	return b.add(Step{Op: OpProject, Inputs: []int{in}, Columns: selectStrings(selects)}), nil
}

func (b *Builder) Repartition(h plan.Handle, keys []expr.Expr, partitions int) (plan.Handle, error) {
	in, err := b.input(h)
	if err != nil {
		return nil, err
	}
	if partitions < 1 {
		return nil, fmt.Errorf("dataflow: repartition into %d partitions", partitions)
	}
	return b.add(Step{Op: OpRepartition, Inputs: []int{in}, Keys: exprStrings(keys), Partitions: partitions}), nil
}

func (b *Builder) Aggregate(h plan.Handle, spec plan.AggregateSpec) (plan.Handle, error) {
	in, err := b.input(h)
	if err != nil {
		return nil, err
	}
	return b.add(Step{
		Op:      OpAggregate,
		Inputs:  []int{in},
		Keys:    selectStrings(spec.GroupBy),
		Columns: selectStrings(spec.Aggregates),
		Window:  spec.Window.String(),
		Emit:    string(spec.Emit),
		Store:   spec.StoreName,
	}), nil
}

func (b *Builder) Join(left, right plan.Handle, spec plan.JoinSpec) (plan.Handle, error) {
	l, err := b.input(left)
	if err != nil {
		return nil, err
	}
	r, err := b.input(right)
	if err != nil {
		return nil, err
	}
	s := Step{
		Op:        OpJoin,
		Inputs:    []int{l, r},
		JoinType:  string(spec.Type),
		Condition: spec.Condition.String(),
		Store:     spec.StoreName,
	}
	if spec.Window.Windowed() {
		s.Window = spec.Window.String()
	}
	return b.add(s), nil
}

func (b *Builder) Sink(h plan.Handle, destination string) error {
	in, err := b.input(h)
	if err != nil {
		return err
	}
	b.add(Step{Op: OpSink, Inputs: []int{in}, Stream: destination})
	return nil
}
