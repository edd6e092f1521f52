package schema

import "fmt"

// KeyField resolves a key field name against a schema.
//
// An empty name means the stream is unkeyed and yields nil. A name that is
// not a field of s is an error.
func KeyField(s *Schema, name string) (*Field, error) {
	if name == "" {
		return nil, nil
	}
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("key field %q not found in schema %s", name, s)
	}
	return &f, nil
}

// KeyName returns the key field's name, or "" for an unkeyed stream.
func KeyName(f *Field) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// SameKey reports whether two key fields reference the same field name.
func SameKey(a, b *Field) bool {
	return KeyName(a) == KeyName(b)
}
