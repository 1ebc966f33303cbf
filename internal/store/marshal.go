package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stepc/internal/ir"
)

// marshalSchema converts a schema to canonical JSON TEXT for storage.
// Entries are sorted by name, matching the fingerprint encoding.
func marshalSchema(schema ir.Schema) (string, error) {
	data, err := ir.MarshalCanonical(ir.SchemaValue(schema))
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), nil
}

// marshalSource converts statement text to canonical JSON TEXT.
func marshalSource(source []string) (string, error) {
	arr := make(ir.IRArray, len(source))
	for i, s := range source {
		arr[i] = ir.IRString(s)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal source: %w", err)
	}
	return string(data), nil
}

// unmarshalSchema parses canonical JSON TEXT to a schema.
func unmarshalSchema(data string) (ir.Schema, error) {
	var schema ir.Schema
	if err := json.Unmarshal([]byte(data), &schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return schema, nil
}

// unmarshalSource parses canonical JSON TEXT to statement text.
func unmarshalSource(data string) ([]string, error) {
	var source []string
	if err := json.Unmarshal([]byte(data), &source); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	return source, nil
}
