package sqlutil

import (
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go values and nullable JSON columns

// ToNullRawMessage encodes a metadata map for a nullable jsonb column.
// An empty map is stored as NULL.
func ToNullRawMessage(m map[string]any) (pqtype.NullRawMessage, error) {
	if len(m) == 0 {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage decodes a nullable jsonb column into a metadata map
func FromNullRawMessage(val pqtype.NullRawMessage) (map[string]any, error) {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(val.RawMessage, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}
