package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolver provides data for condition evaluation.
type Resolver interface {
	Resolve(path []string) (any, bool)
}

// Params resolves dotted paths against a nested parameter map.
type Params map[string]any

// Resolve implements Resolver by descending the map segment by segment.
// A nil value anywhere on the path counts as missing.
func (p Params) Resolve(path []string) (any, bool) {
	if len(path) == 0 || p == nil {
		return nil, false
	}
	return resolveMap(p, path)
}

func resolveMap(m map[string]any, path []string) (any, bool) {
	val, ok := m[path[0]]
	if !ok || val == nil {
		return nil, false
	}
	if len(path) == 1 {
		return val, true
	}
	switch sub := val.(type) {
	case map[string]any:
		return resolveMap(sub, path[1:])
	case Params:
		return resolveMap(sub, path[1:])
	case map[string]string:
		if len(path) != 2 {
			return nil, false
		}
		s, ok := sub[path[1]]
		return s, ok
	}
	return nil, false
}

// SplitPath splits a dotted field reference into its segments.
func SplitPath(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, ".")
}

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate replaces every ${a.b.c} in s with the referenced value.
// Unresolvable placeholders are left verbatim.
func Interpolate(s string, r Resolver) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		path := strings.TrimSpace(m[2 : len(m)-1])
		v, ok := r.Resolve(SplitPath(path))
		if !ok {
			return m
		}
		return Stringify(v)
	})
}

// resolveTemplate returns the raw referenced value when s is a single
// placeholder, otherwise the interpolated string.
func resolveTemplate(s string, r Resolver) any {
	trimmed := strings.TrimSpace(s)
	if loc := placeholderRe.FindStringIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		path := strings.TrimSpace(trimmed[2 : len(trimmed)-1])
		if v, ok := r.Resolve(SplitPath(path)); ok {
			return v
		}
		return s
	}
	return Interpolate(s, r)
}

// Stringify renders a context value as text for string and regex operators.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
