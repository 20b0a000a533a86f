package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when a reply contains no well-formed JSON object.
var ErrNoObject = errors.New("no JSON object found in completion")

// ExtractObject returns the first balanced {...} span in text that is valid
// JSON. Braces inside JSON strings do not count towards balance, and a span
// that balances but does not parse is skipped.
func ExtractObject(text string) (string, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoObject
}

// matchBrace finds the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// DecodeObject extracts the first JSON object from text and parses it into an
// untyped tree.
func DecodeObject(text string) (map[string]any, error) {
	raw, err := ExtractObject(text)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("parsing completion object: %w", err)
	}
	return obj, nil
}

// Decode extracts, validates against schema and then binds the first JSON
// object in text to T.
func Decode[T any](text string, schema Schema) (T, error) {
	var out T

	obj, err := DecodeObject(text)
	if err != nil {
		return out, err
	}
	if err := schema.Validate(obj); err != nil {
		return out, err
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return out, fmt.Errorf("re-encoding completion object: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("binding completion object: %w", err)
	}
	return out, nil
}
