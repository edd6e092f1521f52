package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/streamplan/internal/dataflow"
)

// AssertionError is returned when an assertion fails.
// It includes the compiled topology to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Topology *dataflow.Topology
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Topology != nil {
		fmt.Fprintf(&buf, "\nTopology:\n")
		for _, line := range strings.Split(strings.TrimRight(e.Topology.Describe(), "\n"), "\n") {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertStepOrder:
		return assertStepOrder(result.Topology, a)
	case AssertStepCount:
		return assertStepCount(result.Topology, a)
	case AssertStores:
		return assertStores(result.Topology, a)
	case AssertSinkCreated:
		return assertSinkCreated(result, a)
	case AssertWarningContains:
		return assertWarningContains(result, a)
	case AssertNoWarnings:
		if len(result.Warnings) > 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: "no warnings",
				Actual:   strings.Join(result.Warnings, "; "),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func ops(topo *dataflow.Topology) []string {
	if topo == nil {
		return nil
	}
	out := make([]string, len(topo.Steps))
	for i, s := range topo.Steps {
		out[i] = string(s.Op)
	}
	return out
}

// assertStepOrder checks ops appear in the given order. Other steps may
// appear between them.
func assertStepOrder(topo *dataflow.Topology, a Assertion) error {
	actual := ops(topo)
	next := 0
	for _, op := range actual {
		if next < len(a.Ops) && op == a.Ops[next] {
			next++
		}
	}
	if next == len(a.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("ops in order: %v", a.Ops),
		Actual:   fmt.Sprintf("%v (matched %d of %d)", actual, next, len(a.Ops)),
		Topology: topo,
	}
}

func assertStepCount(topo *dataflow.Topology, a Assertion) error {
	count := 0
	for _, op := range ops(topo) {
		if op == a.Op {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s appears %d time(s)", a.Op, a.Count),
		Actual:   fmt.Sprintf("%s appears %d time(s)", a.Op, count),
		Topology: topo,
	}
}

func assertStores(topo *dataflow.Topology, a Assertion) error {
	var actual []string
	if topo != nil {
		actual = topo.Stores()
	}
	if slices.Equal(actual, a.Stores) || (len(actual) == 0 && len(a.Stores) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("stores %v", a.Stores),
		Actual:   fmt.Sprintf("stores %v", actual),
		Topology: topo,
	}
}

func assertSinkCreated(result *Result, a Assertion) error {
	for _, c := range result.Created {
		if c.Name != a.Destination {
			continue
		}
		if a.Partitions != 0 && c.Partitions != a.Partitions {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s with %d partitions", a.Destination, a.Partitions),
				Actual:   fmt.Sprintf("%s with %d partitions", c.Name, c.Partitions),
			}
		}
		return nil
	}
	names := make([]string, len(result.Created))
	for i, c := range result.Created {
		names[i] = c.Name
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("destination %s created", a.Destination),
		Actual:   fmt.Sprintf("created %v", names),
	}
}

func assertWarningContains(result *Result, a Assertion) error {
	for _, w := range result.Warnings {
		if strings.Contains(w, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a warning containing %q", a.Text),
		Actual:   fmt.Sprintf("warnings %q", result.Warnings),
	}
}
