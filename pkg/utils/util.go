package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse attempts to parse a string response as JSON. Model output
// wrapped in a markdown code fence is unwrapped first, since judge models
// frequently fence their JSON even when told not to.
func ParseJSONResponse(response string) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := json.Unmarshal([]byte(StripCodeFence(response)), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return result, nil
}

// StripCodeFence removes a surrounding markdown code fence, including an
// optional language tag on the opening fence. Input without a fence is
// returned trimmed.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// GetFloat reads a numeric field from a decoded JSON object. JSON numbers
// decode as float64, but judge models occasionally quote them.
func GetFloat(obj map[string]interface{}, key string) (float64, bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
