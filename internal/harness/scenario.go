package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamplan/internal/dataflow"
	"github.com/roach88/streamplan/internal/plan"
)

// Scenario defines a planner test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a directory of CUE stream specs.
	// Relative paths are resolved against the scenario file location.
	Catalog string `yaml:"catalog"`

	// Plan is a plan document, YAML or JSON by extension.
	// Relative paths are resolved against the scenario file location.
	Plan string `yaml:"plan"`

	// Config is the compile configuration. An empty repartition policy
	// means allow.
	Config plan.Config `yaml:"config,omitempty"`

	// Expect, when set, says the plan must fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate a successful compile.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// QueryID is the id the compiled query is saved under.
	// Defaults to "test-query-default" for deterministic output.
	QueryID string `yaml:"query_id,omitempty"`
}

// ExpectClause describes an expected failure.
type ExpectClause struct {
	// Error is the expected error code: CONFIGURATION, QUERY_DEFINITION,
	// CO_PARTITIONING or STREAM_NOT_FOUND.
	Error string `yaml:"error"`

	// Contains is a substring the error message must contain.
	Contains string `yaml:"contains,omitempty"`
}

// Assertion validates the compiled output.
type Assertion struct {
	// Type specifies the assertion type:
	// - "step_order": Check ops appear in order
	// - "step_count": Check op appears exactly N times
	// - "stores": Check the exact state store names
	// - "sink_created": Check a destination was created
	// - "warning_contains": Check a validation warning mentions text
	// - "no_warnings": Check validation produced no warnings
	Type string `yaml:"type"`

	// Ops is the expected op order (used by step_order).
	Ops []string `yaml:"ops,omitempty"`

	// Op is the step op (used by step_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of steps (used by step_count).
	Count int `yaml:"count,omitempty"`

	// Stores are the expected state store names (used by stores).
	Stores []string `yaml:"stores,omitempty"`

	// Destination is the created stream (used by sink_created).
	Destination string `yaml:"destination,omitempty"`

	// Partitions is the expected partition count of Destination, if non-zero
	// (used by sink_created).
	Partitions int `yaml:"partitions,omitempty"`

	// Text is the expected warning substring (used by warning_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertStepOrder       = "step_order"
	AssertStepCount       = "step_count"
	AssertStores          = "stores"
	AssertSinkCreated     = "sink_created"
	AssertWarningContains = "warning_contains"
	AssertNoWarnings      = "no_warnings"
)

// Expected error codes beyond the plan error codes.
const (
	ErrCodeStreamNotFound = "STREAM_NOT_FOUND"
	ErrCodeOther          = "ERROR"
)

var knownErrorCodes = []string{
	string(plan.ErrCodeConfiguration),
	string(plan.ErrCodeQueryDefinition),
	string(plan.ErrCodeCoPartitioning),
	ErrCodeStreamNotFound,
	ErrCodeOther,
}

// LoadScenario reads and parses a scenario YAML file, resolving catalog and
// plan paths relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Catalog = resolve(base, scenario.Catalog)
	scenario.Plan = resolve(base, scenario.Plan)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if s.Plan == "" {
		return fmt.Errorf("plan is required")
	}
	if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
		return fmt.Errorf("catalog not found: %s", s.Catalog)
	}
	if _, err := os.Stat(s.Plan); os.IsNotExist(err) {
		return fmt.Errorf("plan not found: %s", s.Plan)
	}

	if s.Config.Repartition != "" {
		if err := s.Config.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if s.Expect != nil {
		if !slices.Contains(knownErrorCodes, s.Expect.Error) {
			return fmt.Errorf("expect: unknown error code %q", s.Expect.Error)
		}
		if len(s.Assertions) > 0 {
			return fmt.Errorf("assertions cannot be combined with an expected error")
		}
		return nil
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStepOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for step_order", index)
		}
		for _, op := range a.Ops {
			if !validOp(op) {
				return fmt.Errorf("assertions[%d]: unknown op %q", index, op)
			}
		}
	case AssertStepCount:
		if !validOp(a.Op) {
			return fmt.Errorf("assertions[%d]: unknown op %q for step_count", index, a.Op)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for step_count", index)
		}
	case AssertStores:
		if a.Stores == nil {
			return fmt.Errorf("assertions[%d]: stores list is required for stores", index)
		}
	case AssertSinkCreated:
		if a.Destination == "" {
			return fmt.Errorf("assertions[%d]: destination is required for sink_created", index)
		}
	case AssertWarningContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for warning_contains", index)
		}
	case AssertNoWarnings:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validOp(op string) bool {
	switch dataflow.Op(op) {
	case dataflow.OpSource, dataflow.OpFilter, dataflow.OpProject, dataflow.OpRepartition,
		dataflow.OpAggregate, dataflow.OpJoin, dataflow.OpSink:
		return true
	}
	return false
}
