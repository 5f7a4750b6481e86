package core

import (
	"strconv"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StringField reads a document field as a trimmed string.
// Numbers are formatted; absent, null and any other type read as "".
func StringField(data map[string]interface{}, field string) string {
	switch v := data[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// BoolField reports whether a document field holds the boolean true.
func BoolField(data map[string]interface{}, field string) bool {
	b, ok := data[field].(bool)
	return ok && b
}

// MapField reads a nested object field.
func MapField(data map[string]interface{}, field string) (map[string]interface{}, bool) {
	m, ok := data[field].(map[string]interface{})
	return m, ok
}
