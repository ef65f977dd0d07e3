package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrShape marks a reply that parsed as JSON but is not the object asked for.
var ErrShape = errors.New("reply is not the expected JSON object")

// StripFences removes markdown code fences (``` or ```json) around a model
// reply and trims surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		if tag := strings.TrimSpace(s[:nl]); tag == "" || !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON strips fences and unmarshals the reply into v.
func DecodeJSON(content string, v any) error {
	return json.Unmarshal([]byte(StripFences(content)), v)
}

// DecodeObject is DecodeJSON for replies that must be a JSON object holding
// every required key with a non-null value. null, arrays, scalars and
// objects missing a key fail with ErrShape.
func DecodeObject(content string, v any, required ...string) error {
	raw := []byte(StripFences(content))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("%w: null", ErrShape)
	}
	for _, k := range required {
		val, ok := fields[k]
		if !ok || bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
			return fmt.Errorf("%w: missing %q", ErrShape, k)
		}
	}
	return json.Unmarshal(raw, v)
}
