// Package typeutil provides safe type-coercion helpers for the map[string]any
// bags that flow between handlers (entities, shared data, LLM JSON output).
// All helpers use the comma-ok idiom so malformed bags never panic.
package typeutil

// String asserts value to string.
func String(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// StringDefault asserts value to string with a fallback.
func StringDefault(value any, def string) string {
	if s, ok := String(value); ok {
		return s
	}
	return def
}

// Map asserts value to map[string]any.
func Map(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// Int asserts value to int. Handles float64, the usual shape of JSON numbers.
func Int(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Float64 asserts value to float64. Handles int types.
func Float64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool asserts value to bool.
func Bool(value any) (bool, bool) {
	if b, ok := value.(bool); ok {
		return b, true
	}
	return false, false
}

// StringSlice coerces []string or []any-of-strings into []string.
// Non-string elements are dropped.
func StringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// StringMap coerces map[string]string or map[string]any-of-strings into
// map[string]string. Non-string values are dropped.
func StringMap(value any) map[string]string {
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}
