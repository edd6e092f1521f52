// Package catalog holds stream metadata: names, schemas, key fields, output
// types and partition counts.
//
// Stream specs are declared in CUE:
//
//	stream: orders: {
//		type:       "STREAM"
//		key:        "id"
//		partitions: 6
//		fields: {
//			id:     "INT"
//			amount: "DOUBLE"
//			status: string
//		}
//	}
//
// A field is either a concrete SQL type name or a CUE type (string, int,
// bool, float, list, struct), mapped to the nearest SQL type. Field order
// is declaration order.
package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

// StreamSpec describes one stream or table.
type StreamSpec struct {
	Name       string          `json:"name"`
	Schema     *schema.Schema  `json:"schema"`
	KeyField   string          `json:"key_field,omitempty"`
	Type       plan.OutputType `json:"type"`
	Partitions int             `json:"partitions"`
}

// Validate checks the spec is internally consistent.
func (s *StreamSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stream name is required")
	}
	if s.Schema == nil || s.Schema.Len() == 0 {
		return fmt.Errorf("stream %s: at least one field is required", s.Name)
	}
	if s.Partitions < 1 {
		return fmt.Errorf("stream %s: partitions must be positive, got %d", s.Name, s.Partitions)
	}
	if s.Type != plan.Stream && s.Type != plan.Table {
		return fmt.Errorf("stream %s: type must be STREAM or TABLE, got %q", s.Name, s.Type)
	}
	if _, err := schema.KeyField(s.Schema, s.KeyField); err != nil {
		return fmt.Errorf("stream %s: %w", s.Name, err)
	}
	return nil
}

// CompileStream parses a CUE value into a StreamSpec.
//
// The CUE value should be the stream struct itself, e.g.:
//
//	v := ctx.CompileString(`stream: orders: { ... }`)
//	spec, err := CompileStream(v.LookupPath(cue.ParsePath("stream.orders")))
func CompileStream(v cue.Value) (*StreamSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &StreamSpec{Type: plan.Stream}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	partitionsVal := v.LookupPath(cue.ParsePath("partitions"))
	if !partitionsVal.Exists() {
		return nil, &CompileError{Field: "partitions", Message: "partitions is required", Pos: v.Pos()}
	}
	partitions, err := partitionsVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if partitions < 1 {
		return nil, &CompileError{Field: "partitions", Message: fmt.Sprintf("partitions must be positive, got %d", partitions), Pos: partitionsVal.Pos()}
	}
	spec.Partitions = int(partitions)

	if typeVal := v.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
		t, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch plan.OutputType(t) {
		case plan.Stream, plan.Table:
			spec.Type = plan.OutputType(t)
		default:
			return nil, &CompileError{Field: "type", Message: fmt.Sprintf("type must be STREAM or TABLE, got %q", t), Pos: typeVal.Pos()}
		}
	}

	spec.Schema, err = parseFields(v)
	if err != nil {
		return nil, err
	}

	if keyVal := v.LookupPath(cue.ParsePath("key")); keyVal.Exists() {
		key, err := keyVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if _, ok := spec.Schema.Field(key); !ok {
			return nil, &CompileError{Field: "key", Message: fmt.Sprintf("key %q is not a field of %s", key, spec.Name), Pos: keyVal.Pos()}
		}
		spec.KeyField = key
	}

	return spec, nil
}

// parseFields builds the schema from the fields struct, in declaration order.
func parseFields(v cue.Value) (*schema.Schema, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "fields are required", Pos: v.Pos()}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		t, err := extractType(iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, schema.Field{Name: iter.Label(), Type: t})
	}
	if len(fields) == 0 {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}

	s, err := schema.New(fields...)
	if err != nil {
		return nil, &CompileError{Field: "fields", Message: err.Error(), Pos: fieldsVal.Pos()}
	}
	return s, nil
}

// extractType maps a field value to a SQL type. Concrete strings name the
// type directly; CUE types map by kind.
func extractType(v cue.Value) (schema.Type, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		t := schema.Type(name)
		if !schema.ValidTypes[t] {
			return "", &CompileError{Field: "type", Message: fmt.Sprintf("unknown SQL type %q", name), Pos: v.Pos()}
		}
		return t, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.String, nil
	case cue.IntKind:
		return schema.Bigint, nil
	case cue.BoolKind:
		return schema.Boolean, nil
	case cue.FloatKind, cue.NumberKind:
		return schema.Double, nil
	case cue.ListKind:
		return schema.Array, nil
	case cue.StructKind:
		return schema.Struct, nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a stream spec error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
