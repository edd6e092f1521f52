// Package dataflow is a reference plan.Builder. Instead of running anything
// it records each operator as a step of a Topology, which can be printed,
// serialized and compared. The CLI and the scenario harness use it to show
// what a compiled query would execute.
package dataflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/streamplan/internal/expr"
)

// Op is the operator a step applies.
type Op string

const (
	OpSource      Op = "SOURCE"
	OpFilter      Op = "FILTER"
	OpProject     Op = "PROJECT"
	OpRepartition Op = "REPARTITION"
	OpAggregate   Op = "AGGREGATE"
	OpJoin        Op = "JOIN"
	OpSink        Op = "SINK"
)

// Step is one operator of a topology. Expressions are stored in their SQL
// rendering.
type Step struct {
	ID         int      `json:"id"`
	Op         Op       `json:"op"`
	Inputs     []int    `json:"inputs,omitempty"`
	Stream     string   `json:"stream,omitempty"`
	Predicate  string   `json:"predicate,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Keys       []string `json:"keys,omitempty"`
	Partitions int      `json:"partitions,omitempty"`
	JoinType   string   `json:"join_type,omitempty"`
	Condition  string   `json:"condition,omitempty"`
	Window     string   `json:"window,omitempty"`
	Emit       string   `json:"emit,omitempty"`
	Store      string   `json:"store,omitempty"`
}

// Topology is the ordered list of steps a compiled plan produced. Step ids
// are 1-based positions in Steps; inputs always precede their consumers.
type Topology struct {
	Steps []Step `json:"steps"`
}

// Stores returns the state store names in step order.
func (t *Topology) Stores() []string {
	var stores []string
	for _, s := range t.Steps {
		if s.Store != "" {
			stores = append(stores, s.Store)
		}
	}
	return stores
}

// Sinks returns the destinations written, in step order.
func (t *Topology) Sinks() []string {
	var sinks []string
	for _, s := range t.Steps {
		if s.Op == OpSink {
			sinks = append(sinks, s.Stream)
		}
	}
	return sinks
}

// Describe renders one line per step:
//
//	3 JOIN <- 2, 1 INNER on (o.id = c.id) store=j-Join-store
func (t *Topology) Describe() string {
	var sb strings.Builder
	for _, s := range t.Steps {
		sb.WriteString(strconv.Itoa(s.ID))
		sb.WriteByte(' ')
		sb.WriteString(string(s.Op))
		if len(s.Inputs) > 0 {
			ids := make([]string, len(s.Inputs))
			for i, in := range s.Inputs {
				ids[i] = strconv.Itoa(in)
			}
			sb.WriteString(" <- " + strings.Join(ids, ", "))
		}
		sb.WriteString(describeStep(s))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func describeStep(s Step) string {
	switch s.Op {
	case OpSource:
		return " " + s.Stream
	case OpFilter:
		return " where " + s.Predicate
	case OpProject:
		return " select " + strings.Join(s.Columns, ", ")
	case OpRepartition:
		return fmt.Sprintf(" by %s into %d", strings.Join(s.Keys, ", "), s.Partitions)
	case OpAggregate:
		return fmt.Sprintf(" group by %s compute %s window %s emit %s store=%s",
			strings.Join(s.Keys, ", "), strings.Join(s.Columns, ", "), s.Window, s.Emit, s.Store)
	case OpJoin:
		out := " " + s.JoinType + " on " + s.Condition
		if s.Window != "" {
			out += " window " + s.Window
		}
		return out + " store=" + s.Store
	case OpSink:
		return " into " + s.Stream
	default:
		return ""
	}
}

func selectStrings(selects []expr.SelectExpression) []string {
	out := make([]string, len(selects))
	for i, s := range selects {
		out[i] = s.String()
	}
	return out
}

func exprStrings(exprs []expr.Expr) []string {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		out[i] = e.String()
	}
	return out
}
