package template

import (
	"encoding/json"
	"fmt"
)

// Normalize converts an arbitrary Go value into the plain JSON shape the
// engine traverses (map[string]any, []any, string, json.Number, bool, nil).
// Values already in that shape are returned without copying.
func Normalize(value any) (any, error) {
	if isPlainJSON(value) {
		return value, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not representable as JSON: %w", err)
	}

	normalized, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode normalized value: %w", err)
	}

	return normalized, nil
}

func isPlainJSON(value any) bool {
	switch v := value.(type) {
	case nil, string, json.Number, bool:
		return true
	case map[string]any:
		for _, member := range v {
			if !isPlainJSON(member) {
				return false
			}
		}

		return true
	case []any:
		for _, member := range v {
			if !isPlainJSON(member) {
				return false
			}
		}

		return true
	default:
		return false
	}
}
