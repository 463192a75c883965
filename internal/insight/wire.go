package insight

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
)

// ErrNoJSON is returned by ExtractJSON when the text holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// MissingFieldError reports a required field absent (or null) in a model response.
type MissingFieldError struct{ Field string }

func (e *MissingFieldError) Error() string { return fmt.Sprintf("missing required field %q", e.Field) }

// ExtractJSON returns the JSON object in a model response: the body of a
// ```json (or bare ```) fence when it holds an object, else the outermost
// balanced {...} in the text.
func ExtractJSON(text string) (string, error) {
	if body, ok := fenced(text); ok {
		return body, nil
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	if end := matchBrace(text, start); end > 0 {
		return text[start : end+1], nil
	}
	return "", ErrNoJSON
}

func fenced(text string) (string, bool) {
	rest := text
	for {
		i := strings.Index(rest, "```")
		if i < 0 {
			return "", false
		}
		rest = rest[i+3:]
		// optional language tag up to end of line
		nl := strings.IndexByte(rest, '\n')
		if nl >= 0 {
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || strings.EqualFold(tag, "json") {
				rest = rest[nl+1:]
			}
		}
		j := strings.Index(rest, "```")
		if j < 0 {
			return "", false
		}
		body := strings.TrimSpace(rest[:j])
		if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
			return body, true
		}
		rest = rest[j+3:]
	}
}

// matchBrace returns the index of the brace closing the one at start, skipping
// braces inside string literals, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type object map[string]json.RawMessage

// requireFields decodes raw as an object and checks that every field is present and
// non-null. The decoded object is returned even when a field is missing.
func requireFields(raw json.RawMessage, path string, fields ...string) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", orRoot(path), err)
	}
	if obj == nil {
		return nil, &MissingFieldError{Field: orRoot(path)}
	}
	for _, f := range fields {
		v, ok := obj[f]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return obj, &MissingFieldError{Field: join(path, f)}
		}
	}
	return obj, nil
}

// requireEach applies requireFields to every element of the array at obj[key].
func requireEach(obj object, path, key string, fields ...string) error {
	var items []json.RawMessage
	if err := json.Unmarshal(obj[key], &items); err != nil {
		return fmt.Errorf("%s: %w", join(path, key), err)
	}
	for i, it := range items {
		if _, err := requireFields(it, fmt.Sprintf("%s[%d]", join(path, key), i), fields...); err != nil {
			return err
		}
	}
	return nil
}

func join(path, f string) string {
	if path == "" {
		return f
	}
	return path + "." + f
}

func orRoot(path string) string {
	if path == "" {
		return "response"
	}
	return path
}

// prose reads the optional top-level "insight" string.
func prose(obj object) string {
	var s string
	if raw, ok := obj["insight"]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return strings.TrimSpace(s)
}

func decodeProcessing(raw []byte) (*recommend.ProcessingRecommendations, string, error) {
	obj, err := requireFields(raw, "", "columns_to_drop", "columns_to_keep", "cleaning_steps",
		"feature_engineering", "filtering_criteria", "explanation")
	text := prose(obj)
	if err != nil {
		return nil, text, err
	}
	if err := requireEach(obj, "", "cleaning_steps", "column_name", "action"); err != nil {
		return nil, text, err
	}
	if err := requireEach(obj, "", "feature_engineering", "new_column_name", "operation", "source_columns"); err != nil {
		return nil, text, err
	}
	var out recommend.ProcessingRecommendations
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, text, err
	}
	return &out, text, nil
}

func decodeVisualization(raw []byte) (*recommend.VisualizationRecommendations, string, error) {
	obj, err := requireFields(raw, "", "charts")
	text := prose(obj)
	if err != nil {
		return nil, text, err
	}
	if err := requireEach(obj, "", "charts", "chart_type", "x_axis", "y_axis"); err != nil {
		return nil, text, err
	}
	var out recommend.VisualizationRecommendations
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, text, err
	}
	return &out, text, nil
}

func decodeInsights(raw []byte) (*recommend.DatasetInsights, string, error) {
	obj, err := requireFields(raw, "", "summary", "key_observations", "potential_use_cases",
		"data_quality_issues", "recommended_columns")
	text := prose(obj)
	if err != nil {
		return nil, text, err
	}
	var out recommend.DatasetInsights
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, text, err
	}
	return &out, text, nil
}
