package config

import (
	"net/url"
	"sort"
	"strings"
)

// maskers hide the secret part of a value for display, keyed by dot path.
var maskers = map[string]func(string) string{
	"telegram.token": maskToken,
	"webhook.token":  maskToken,
	"server.url":     maskURL,
}

// IsSecretKey reports whether the value at key is masked when listed.
func IsSecretKey(key string) bool {
	_, ok := maskers[key]
	return ok
}

// MaskValue masks a single value the way MaskSecrets does.
func MaskValue(key, s string) string {
	if mask, ok := maskers[key]; ok && s != "" {
		return mask(s)
	}
	return s
}

// maskToken keeps the last four characters: "123456:ABCdef" -> "***Cdef".
func maskToken(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}

// maskURL hides a password embedded in the agent server URL.
func maskURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	return u.Redacted()
}

// Flatten turns nested config JSON into dot keys:
// {"server": {"url": "http://agent:8000"}} becomes {"server.url": "http://agent:8000"}.
// Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	walk("", m, out)
	return out
}

func walk(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			walk(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten is the inverse of Flatten. A key that passes through a non-map
// value replaces it with a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		setPath(out, strings.Split(k, "."), v)
	}
	return out
}

func setPath(m map[string]any, path []string, v any) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// MaskSecrets returns a copy of flat with secret values masked. Empty and
// non-string values are left as they are.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok {
			out[k] = MaskValue(k, s)
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the keys of flat in sorted order.
func Keys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
