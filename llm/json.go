package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSON removes the Markdown code fences models like to wrap JSON in.
//
//	"```json\n{\"a\":1}\n```" -> "{\"a\":1}"
func CleanJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, "`")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	// A fence trimmed down to its backticks leaves the language tag behind.
	if rest, ok := strings.CutPrefix(s, "json"); ok && (rest == "" || strings.ContainsAny(rest[:1], "\n\r\t {[")) {
		s = strings.TrimSpace(rest)
	}
	return s
}

// ParseJSONObject cleans text and decodes it as a JSON object.
func ParseJSONObject(text string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(text)), &out); err != nil {
		return nil, fmt.Errorf("model reply is not a JSON object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("model reply is not a JSON object: null")
	}
	return out, nil
}
