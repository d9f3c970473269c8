package forms

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// Validate проверяет данные формы по шаблону. Ошибки полей собираются все сразу;
// ошибка возвращается только для неизвестной категории или вида работ.
// Пустая карта означает, что данные валидны.
func Validate(schema Schema, categorySlug, jobTypeSlug string, data map[string]any) (map[string]string, error) {
	fields, err := schema.Fields(categorySlug, jobTypeSlug)
	if err != nil {
		return nil, err
	}

	errs := map[string]string{}
	for _, f := range fields {
		value := data[f.Name]
		if isEmpty(value) {
			if f.Required {
				errs[f.Name] = f.label() + " is required"
			}
			continue
		}
		if msg := checkValue(f, value); msg != "" {
			errs[f.Name] = f.label() + " " + msg
		}
	}
	return errs, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func checkValue(f Field, value any) string {
	switch f.Type {
	case FieldNumber:
		n, ok := toNumber(value)
		if !ok {
			return "must be a number"
		}
		if f.Min != nil && n < *f.Min {
			return "must be at least " + formatBound(*f.Min)
		} else if f.Max != nil && n > *f.Max {
			return "must be at most " + formatBound(*f.Max)
		}
	case FieldDate:
		s, ok := value.(string)
		if !ok || !isDate(s) {
			return "is an invalid date"
		}
	case FieldSelect:
		s, ok := value.(string)
		if !ok || !contains(f.Options, s) {
			return "has an invalid option"
		}
	case FieldMultiselect:
		list, ok := toStrings(value)
		if !ok {
			return "has invalid options"
		}
		for _, s := range list {
			if !contains(f.Options, s) {
				return "has invalid options"
			}
		}
	case FieldEmail:
		s, ok := value.(string)
		if !ok || !emailRe.MatchString(s) {
			return "is not a valid email"
		}
	case FieldPhone:
		s, ok := value.(string)
		if !ok || !phoneRe.MatchString(s) {
			return "is not a valid phone number"
		}
	default:
		if _, ok := value.(string); !ok {
			return "must be text"
		}
	}
	return ""
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil && !math.IsNaN(n)
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func isDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
