package extract

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNoJSONFound is returned when the generated text holds no JSON object.
var ErrNoJSONFound = errors.New("no JSON object found in generated text")

// ExtractJSONBlock isolates the first JSON object in text.
//
// The object is located with a brace-depth scan that honours string literals
// and escapes. When the scan cannot balance the braces (for example a
// truncated completion) the lazy MatchFirstObject pattern is tried instead.
func ExtractJSONBlock(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSONFound
	}
	if block, ok := scanObject(text[start:]); ok {
		return block, nil
	}
	if block, ok := MatchFirstObject(text); ok {
		return block, nil
	}
	return "", ErrNoJSONFound
}

// scanObject returns the balanced object that s starts with.
func scanObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
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
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// MatchFirstObject applies the lazy pattern used by the first dashboard:
// from the first '{' up to the shortest '}' that is followed only by
// whitespace and then either another '{' or the end of text. It knows nothing
// about nesting or strings, so a '}' inside a string value or a nested object
// followed by prose will truncate or miss the object.
func MatchFirstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	for i := start + 1; i < len(text); i++ {
		if text[i] != '}' {
			continue
		}
		rest := strings.TrimLeftFunc(text[i+1:], unicode.IsSpace)
		if rest == "" || rest[0] == '{' {
			return text[start : i+1], true
		}
	}
	return "", false
}
