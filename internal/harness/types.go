package harness

import (
	"github.com/roach88/streamplan/internal/dataflow"
)

// Created is a destination created while compiling.
type Created struct {
	Name       string `json:"name"`
	Schema     string `json:"schema"`
	Partitions int    `json:"partitions"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Topology is the compiled dataflow, nil if compiling failed.
	Topology *dataflow.Topology `json:"topology,omitempty"`

	// Warnings are the plan validation warnings.
	Warnings []string `json:"warnings"`

	// Created lists destinations created by sink nodes, by name.
	Created []Created `json:"created"`

	// Fingerprint is the plan document fingerprint.
	Fingerprint string `json:"fingerprint,omitempty"`

	// QueryID is the id the compiled query was saved under.
	QueryID string `json:"query_id,omitempty"`

	// ErrorCode and Error describe the compile failure, if any.
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Warnings: []string{},
		Created:  []Created{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
