package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/schema"
)

// marshalFields converts a schema to canonical JSON TEXT for storage.
func marshalFields(s *schema.Schema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	canonical, err := ir.CanonicalizeJSON(data)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(canonical), nil
}

// unmarshalFields parses stored field TEXT back into a schema, re-checking
// field names for duplicates.
func unmarshalFields(data string) (*schema.Schema, error) {
	var s schema.Schema
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return &s, nil
}
