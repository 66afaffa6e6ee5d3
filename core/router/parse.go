package router

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// =============================================================================
// TOLERANT JSON PARSING
// =============================================================================

// stripFences removes markdown code fences the model may wrap around JSON.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

// extractDelimited returns the first balanced open..close run in text.
func extractDelimited(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func unmarshalTolerant(raw string, v any) bool {
	if json.Unmarshal([]byte(raw), v) == nil {
		return true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(repaired), v) == nil
}

// parseJSONArray pulls a JSON array out of model output, repairing
// malformed JSON when needed.
func parseJSONArray(text string) ([]any, bool) {
	text = stripFences(text)
	var arr []any
	if unmarshalTolerant(text, &arr) {
		return arr, true
	}
	if raw, ok := extractDelimited(text, '[', ']'); ok && unmarshalTolerant(raw, &arr) {
		return arr, true
	}
	return nil, false
}

// parseJSONObject pulls a JSON object out of model output, repairing
// malformed JSON when needed.
func parseJSONObject(text string) (map[string]any, bool) {
	text = stripFences(text)
	var obj map[string]any
	if unmarshalTolerant(text, &obj) {
		return obj, true
	}
	if raw, ok := extractDelimited(text, '{', '}'); ok && unmarshalTolerant(raw, &obj) {
		return obj, true
	}
	return nil, false
}
