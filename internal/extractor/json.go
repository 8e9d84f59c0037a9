package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON signals that no JSON object could be recovered from an LLM
// response, even after the fallback scan.
var ErrNoJSON = errors.New("no JSON object in LLM response")

// DecodeObject parses a JSON object out of an LLM text response into v.
// Models sometimes wrap their output in prose or code fences, so a direct
// parse is tried first and then exactly one fallback scan for the first
// balanced {...} span.
func DecodeObject(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	span := firstObjectSpan(trimmed)
	if span == "" {
		return fmt.Errorf("%w: %.200s", ErrNoJSON, trimmed)
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("parse extracted JSON span: %w", err)
	}
	return nil
}

// firstObjectSpan returns the first brace-balanced object in text, honoring
// string literals and escapes. Empty string when no balanced object exists.
func firstObjectSpan(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
