package anno

import (
	"encoding/json"
	"errors"
	"strings"
)

// Vision models rarely return bare JSON. The reply is usually wrapped in a
// code fence, prefixed with prose ("Here is the analysis you asked for:"),
// or occasionally truncated mid-object. ExtractJSON digs the first complete
// JSON object out of whatever came back.

var (
	// ErrNoJSON means the reply contains no JSON object at all.
	ErrNoJSON = errors.New("no_json_found")
	// ErrMalformedJSON means we found what looks like JSON, but no complete
	// object could be decoded from it (typically a truncated reply).
	ErrMalformedJSON = errors.New("malformed_json")
)

// ExtractJSON returns the first complete JSON object found in raw.
// Surrounding prose and markdown code fences are ignored. If several objects
// are present, the first complete one wins; we never backtrack to try later
// candidates once an object decodes.
//
// A failure here is not fatal to the caller's pipeline: the frame is still
// recorded with schema defaults, and the error lands in the record's
// diagnostic field.
func ExtractJSON(raw string) (map[string]any, error) {
	text := stripFences(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	// Walk the candidate '{' positions left to right. json.Decoder stops at
	// the end of the first value, so trailing prose does not hurt.
	for i := start; i >= 0 && i < len(text); {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += 1 + next
	}
	return nil, ErrMalformedJSON
}

// stripFences removes markdown code fences around the reply, keeping the
// fence body. ```json and plain ``` are both handled.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// Skip a language tag such as "json" on the fence line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}
