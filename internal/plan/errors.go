package plan

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrStreamNotFound is returned by a PartitionOracle for an unknown stream.
var ErrStreamNotFound = errors.New("stream not found")

// Error is a plan construction or compilation failure.
//
// Plan errors fall into three categories:
//   - Configuration: malformed construction input or misuse of a compile pass
//   - Query definition: a semantically invalid plan
//   - Co-partitioning: a join or aggregate needs a repartition that policy forbids
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// NodeID identifies the node at fault.
	NodeID NodeID

	// Message is a human-readable description.
	Message string

	// Details contains the values named in Message, for diagnostics.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// ErrorCode categorizes plan errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates malformed construction input.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeQueryDefinition indicates a semantically invalid plan.
	ErrCodeQueryDefinition ErrorCode = "QUERY_DEFINITION"

	// ErrCodeCoPartitioning indicates sources that cannot be co-partitioned.
	ErrCodeCoPartitioning ErrorCode = "CO_PARTITIONING"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsConfigurationError returns true if err is a configuration error.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsQueryDefinitionError returns true if err is a query-definition error.
func IsQueryDefinitionError(err error) bool {
	return hasCode(err, ErrCodeQueryDefinition)
}

// IsCoPartitioningError returns true if err is a co-partitioning error.
func IsCoPartitioningError(err error) bool {
	return hasCode(err, ErrCodeCoPartitioning)
}

func configError(id NodeID, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		NodeID:  id,
		Message: fmt.Sprintf(format, args...),
	}
}

func queryError(id NodeID, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeQueryDefinition,
		NodeID:  id,
		Message: fmt.Sprintf(format, args...),
	}
}

// arityError reports a schema whose field count disagrees with the
// expressions supplied for it.
func arityError(id NodeID, fields, exprs int) *Error {
	return &Error{
		Code:    ErrCodeQueryDefinition,
		NodeID:  id,
		Message: fmt.Sprintf("schema has %d fields but %d expressions were given", fields, exprs),
		Details: map[string]string{
			"expected": strconv.Itoa(fields),
			"actual":   strconv.Itoa(exprs),
		},
	}
}

// NewCoPartitioningError creates an Error for join sides whose partition
// counts or keys differ while repartitioning is denied.
func NewCoPartitioningError(id NodeID, leftPartitions, rightPartitions int, leftKey, rightKey string) *Error {
	return &Error{
		Code:   ErrCodeCoPartitioning,
		NodeID: id,
		Message: fmt.Sprintf(
			"sources are not co-partitioned: left has %d partitions keyed by %q, right has %d partitions keyed by %q, and repartitioning is denied",
			leftPartitions, leftKey, rightPartitions, rightKey),
		Details: map[string]string{
			"left_partitions":  strconv.Itoa(leftPartitions),
			"right_partitions": strconv.Itoa(rightPartitions),
			"left_key":         leftKey,
			"right_key":        rightKey,
		},
	}
}
