package forecast

import (
	"fmt"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// ExtractJSON returns the first balanced JSON object embedded in text.
// Model replies often wrap the object in prose or markdown fences, so the
// scanner walks from the first '{' and tracks brace depth, skipping braces
// that appear inside string literals.
func ExtractJSON(text string) (string, error) {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in reply", domain.ErrExtraction)
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
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON object in reply", domain.ErrExtraction)
}
