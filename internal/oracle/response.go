package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/metalagman/socratic/internal/model"
	"github.com/xeipuuv/gojsonschema"
)

// StripCodeFence removes a surrounding markdown code fence such as ```json ... ```.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string (e.g. "json")
		s = s[nl+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ExtractJSON returns the outermost JSON object or array embedded in raw text.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexAny(raw, "[{")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return "", false
	}
	candidate := raw[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// DecodeJSON parses an oracle response into v after validating it against the
// JSON schema. Any failure is returned as a model.ParseError for op.
func DecodeJSON(op, raw, schema string, v any) error {
	body := StripCodeFence(raw)
	if !json.Valid([]byte(body)) {
		extracted, ok := ExtractJSON(body)
		if !ok {
			return &model.ParseError{Op: op, Raw: raw, Err: errors.New("response is not valid JSON")}
		}
		body = extracted
	}

	if schema != "" {
		result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewStringLoader(body))
		if err != nil {
			return &model.ParseError{Op: op, Raw: raw, Err: fmt.Errorf("validate response: %w", err)}
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			sort.Strings(msgs)
			return &model.ParseError{Op: op, Raw: raw, Err: fmt.Errorf("unexpected response shape: %s", strings.Join(msgs, "; "))}
		}
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &model.ParseError{Op: op, Raw: raw, Err: err}
	}
	return nil
}
