package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the deterministic parts of a result as text: the
// topology, warnings, created destinations and error code. Fingerprints
// and query ids are left out.
func Snapshot(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)

	if result.Topology != nil {
		buf.WriteString("topology:\n")
		for _, line := range strings.Split(strings.TrimRight(result.Topology.Describe(), "\n"), "\n") {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}
	if len(result.Warnings) > 0 {
		buf.WriteString("warnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&buf, "  %s\n", w)
		}
	}
	if len(result.Created) > 0 {
		buf.WriteString("created:\n")
		for _, c := range result.Created {
			fmt.Fprintf(&buf, "  %s %s partitions=%d\n", c.Name, c.Schema, c.Partitions)
		}
	}
	if result.ErrorCode != "" {
		fmt.Fprintf(&buf, "error: %s\n", result.ErrorCode)
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
