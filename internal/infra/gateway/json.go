package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Helpers for reading loosely typed gateway payloads. Ids arrive as JSON
// numbers but some deployments return them as strings.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		return int64(f), err == nil
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// errorMessage extracts the gateway's "error" or "errors" member. error may
// be a string or an object with a message; errors may be a list or a
// string.
func errorMessage(m map[string]any) (string, bool) {
	if v, ok := m["error"]; ok && v != nil {
		switch t := v.(type) {
		case string:
			return t, true
		case map[string]any:
			if msg, ok := t["message"].(string); ok {
				return msg, true
			}
		}
		b, _ := json.Marshal(v)
		return string(b), true
	}
	if v, ok := m["errors"]; ok && v != nil {
		if list, ok := v.([]any); ok {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
					continue
				}
				b, _ := json.Marshal(item)
				parts = append(parts, string(b))
			}
			return strings.Join(parts, ", "), true
		}
		return asString(v), true
	}
	return "", false
}
