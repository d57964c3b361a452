// Package sanitize bounds and defangs free-text input before it reaches
// validation, storage or log output.
package sanitize

import (
	"strings"
	"unicode"
)

// MaxInputLength is the maximum number of characters kept by Input.
const MaxInputLength = 10000

// RedactedValue replaces the value of any sensitive key in ForLogging output.
const RedactedValue = "[REDACTED]"

// MaxDepthValue replaces values nested deeper than maxDepth.
const MaxDepthValue = "[MAX_DEPTH]"

const maxDepth = 32

// sensitiveKeywords are matched as substrings of the lowercased key.
var sensitiveKeywords = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"credit_card",
	"card_number",
	"cvv",
	"ssn",
}

var htmlReplacer = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Input trims surrounding whitespace and truncates the result to
// MaxInputLength characters. Interior whitespace and case are preserved.
func Input(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= MaxInputLength {
		return text
	}

	runes := []rune(text)
	if len(runes) <= MaxInputLength {
		return text
	}

	// Truncation can expose trailing whitespace; trim it so Input stays idempotent.
	return strings.TrimRightFunc(string(runes[:MaxInputLength]), unicode.IsSpace)
}

// HTML escapes <, >, ", ' and / to their entity equivalents.
func HTML(text string) string {
	return htmlReplacer.Replace(text)
}

// IsSensitiveKey reports whether a map key names a credential or
// payment secret that must never be logged.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ForLogging returns a copy of value with every sensitive key redacted.
// Maps and slices are walked recursively; scalars are returned unchanged.
func ForLogging(value any) any {
	return redact(value, 0)
}

func redact(value any, depth int) any {
	if depth > maxDepth {
		return MaxDepthValue
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			if IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redact(inner, depth+1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, inner := range v {
			if IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = inner
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redact(inner, depth+1)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redact(inner, depth+1)
		}
		return out
	default:
		return value
	}
}

// UserInput applies Input to every string leaf of a decoded JSON value.
// Non-string leaves pass through untouched.
func UserInput(value any) any {
	return clean(value, 0)
}

func clean(value any, depth int) any {
	if depth > maxDepth {
		return nil
	}

	switch v := value.(type) {
	case string:
		return Input(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = clean(inner, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = clean(inner, depth+1)
		}
		return out
	default:
		return value
	}
}
