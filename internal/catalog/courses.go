// Package catalog resolves a learner's registered courses into the subjects,
// quizzes and questions of an assessment.
package catalog

import (
	"encoding/json"
	"strings"
)

// NormalizeCourses accepts a registered-course field in any of the shapes
// clients send (JSON array, JSON-encoded array string, comma string) and
// returns trimmed, de-duplicated course names in their original order.
func NormalizeCourses(raw json.RawMessage) []string {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return dedupe(list)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &list); err == nil {
			return dedupe(list)
		}
	}
	return dedupe(strings.Split(text, ","))
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.Trim(strings.TrimSpace(item), `"`)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
