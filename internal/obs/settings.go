package obs

import (
	"reflect"
	"strings"
)

// Settings is an input's settings blob. OBS owns the schema; callers treat it
// as opaque except for the keys they manage, and push the whole blob back on
// update so unknown keys survive round trips.
type Settings map[string]any

// Clone returns a deep copy. Mutating the copy never leaks into the source,
// so before/after comparisons against the original stay meaningful.
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return val
	}
}

// Equal compares two blobs by content.
func (s Settings) Equal(other Settings) bool {
	if len(s) != len(other) {
		return false
	}
	return reflect.DeepEqual(map[string]any(s), map[string]any(other))
}

// String returns the value under key when it is a string, or "".
func (s Settings) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// UnversionedKind strips the version suffix from an input kind, e.g.
// "window_capture_v2" becomes "window_capture".
func UnversionedKind(kind string) string {
	if i := strings.LastIndex(kind, "_v"); i > 0 {
		if isDigits(kind[i+2:]) {
			return kind[:i]
		}
	}
	return kind
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsWindowCaptureKind reports whether an input kind captures a single window:
// window_capture on most platforms, xcomposite_input on X11.
func IsWindowCaptureKind(kind string) bool {
	switch UnversionedKind(kind) {
	case "window_capture", "xcomposite_input":
		return true
	}
	return false
}
