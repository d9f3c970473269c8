package forms

import (
	"regexp"
	"unicode/utf8"
)

const (
	MaxStringLen = 5000
	MaxListLen   = 100
	MaxDepth     = 5
)

var dangerousRe = regexp.MustCompile(`(?i)<script|<iframe|javascript:`)

// Sanitize возвращает очищенную копию данных формы
func Sanitize(data map[string]any) map[string]any {
	return sanitizeMap(data, 0)
}

func sanitizeMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if clean, ok := sanitizeValue(v, depth+1); ok {
			out[k] = clean
		}
	}
	return out
}

// sanitizeValue false означает, что значение выбрасывается
func sanitizeValue(v any, depth int) (any, bool) {
	if depth > MaxDepth {
		return nil, false
	}
	switch x := v.(type) {
	case nil:
		return nil, true
	case string:
		return sanitizeString(x), true
	case bool, float64, float32, int, int64:
		return x, true
	case []any:
		if len(x) > MaxListLen {
			x = x[:MaxListLen]
		}
		out := make([]any, 0, len(x))
		for _, item := range x {
			if clean, ok := sanitizeValue(item, depth+1); ok {
				out = append(out, clean)
			}
		}
		return out, true
	case []string:
		if len(x) > MaxListLen {
			x = x[:MaxListLen]
		}
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, sanitizeString(item))
		}
		return out, true
	case map[string]any:
		return sanitizeMap(x, depth), true
	}
	return "", true
}

func sanitizeString(s string) string {
	// повторяем, пока "<scr<scriptipt" не перестанет собираться обратно
	for dangerousRe.MatchString(s) {
		s = dangerousRe.ReplaceAllString(s, "")
	}
	if utf8.RuneCountInString(s) > MaxStringLen {
		runes := []rune(s)
		s = string(runes[:MaxStringLen])
	}
	return s
}
