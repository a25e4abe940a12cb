// Package normalize turns raw tool output into typed partial results and
// folds them into the job-level summary. Nothing is ever silently dropped:
// output that defeats every parser is retained verbatim.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

// Normalize applies the parsing fallback chain to one tool's output:
// whole-output JSON, embedded JSON substring, tool vocabulary extraction,
// raw retention.
func Normalize(tool string, raw []byte) api.PartialResult {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return api.PartialResult{Kind: api.ResultKindRaw}
	}

	if result, ok := parseWholeJSON(text); ok {
		return result
	}
	if result, ok := parseEmbeddedJSON(text); ok {
		return result
	}
	if result, ok := parseVocabulary(tool, text); ok {
		return result
	}

	return api.PartialResult{
		Kind:     api.ResultKindRaw,
		Unparsed: text,
	}
}

func parseWholeJSON(text string) (api.PartialResult, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return api.PartialResult{}, false
	}
	result := fromJSONObject(payload)
	result.Kind = api.ResultKindStructured
	return result, true
}

// parseEmbeddedJSON finds the first depth-balanced object inside surrounding
// noise and parses it. The noise is kept under Unparsed.
func parseEmbeddedJSON(text string) (api.PartialResult, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if candidate, end := balancedObject(text, start); candidate != "" {
			var payload map[string]any
			if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
				result := fromJSONObject(payload)
				result.Kind = api.ResultKindStructured
				noise := strings.TrimSpace(text[:start] + text[end:])
				result.Unparsed = noise
				return result, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return api.PartialResult{}, false
}

// balancedObject returns the substring from start to its matching closing
// brace, honoring strings and escapes.
func balancedObject(text string, start int) (string, int) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], i + 1
				}
			}
		}
	}
	return "", 0
}

// fromJSONObject maps a parsed object into the partial result shape:
// numbers become metrics, strings become fields, string arrays become
// artifacts.
func fromJSONObject(payload map[string]any) api.PartialResult {
	result := api.PartialResult{
		Metrics: map[string]int64{},
		Fields:  map[string]string{},
	}
	for key, value := range payload {
		switch v := value.(type) {
		case float64:
			result.Metrics[key] = int64(v)
		case bool:
			result.Fields[key] = strconv.FormatBool(v)
		case string:
			result.Fields[key] = v
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					result.Artifacts = append(result.Artifacts, s)
				}
			}
		default:
			data, err := json.Marshal(v)
			if err == nil {
				result.Fields[key] = string(data)
			}
		}
	}
	if len(result.Metrics) == 0 {
		result.Metrics = nil
	}
	if len(result.Fields) == 0 {
		result.Fields = nil
	}
	return result
}
