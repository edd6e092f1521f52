// Package schema describes record shapes flowing through a streaming plan.
//
// A Schema is an ordered list of named, typed fields. Schemas are immutable
// once constructed: accessors hand out copies, never the backing slice.
// Field names are unique within one schema but may repeat across a plan tree.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the SQL type of a field.
type Type string

const (
	Boolean Type = "BOOLEAN"
	Int     Type = "INT"
	Bigint  Type = "BIGINT"
	Double  Type = "DOUBLE"
	String  Type = "STRING"
	Array   Type = "ARRAY"
	Map     Type = "MAP"
	Struct  Type = "STRUCT"
)

// ValidTypes lists the supported field types.
var ValidTypes = map[Type]bool{
	Boolean: true,
	Int:     true,
	Bigint:  true,
	Double:  true,
	String:  true,
	Array:   true,
	Map:     true,
	Struct:  true,
}

// Field is one named, typed column.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

func (f Field) String() string {
	return f.Name + " " + string(f.Type)
}

// Schema is an ordered, immutable sequence of fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// DuplicateFieldError reports a field name used twice in one schema.
type DuplicateFieldError struct {
	Name string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate field %q in schema", e.Name)
}

// New builds a schema from fields in order.
// Returns *DuplicateFieldError if a name repeats, or an error for an empty
// name or unknown type.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: name is required", i)
		}
		if !ValidTypes[f.Type] {
			return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, &DuplicateFieldError{Name: f.Name}
		}
		s.index[f.Name] = i
		s.fields[i] = f
	}
	return s, nil
}

// MustNew is New that panics on error. Intended for tests and literals.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldAt returns the i-th field.
func (s *Schema) FieldAt(i int) Field {
	return s.fields[i]
}

// Names returns field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Index returns the position of the named field, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Equal reports whether both schemas have the same fields in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// String renders the schema as "[a INT, b STRING]".
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MarshalJSON encodes the schema as an array of fields.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

// UnmarshalJSON decodes an array of fields, enforcing New's rules.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	parsed, err := New(fields...)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
