package variables

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// Resolve substitutes every placeholder in tmpl.
//
//	{{name}}                     value of name, or the placeholder itself
//	{{order.items[0].sku}}       nested path
//	{{nickname || "friend"}}     fallback when the path is missing or null
func (s *Scope) Resolve(tmpl string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		expr := placeholder.FindStringSubmatch(match)[1]
		path, fallback, hasFallback := splitFallback(expr)
		if v, ok := s.Lookup(path); ok && v != nil {
			return Stringify(v)
		}
		if hasFallback {
			return fallback
		}
		return match
	})
}

// Value resolves tmpl to a native value when it is a single placeholder,
// like "{{items}}". Otherwise it returns the resolved string.
// ok is false when a single placeholder has neither a value nor a fallback.
func (s *Scope) Value(tmpl string) (any, bool) {
	trimmed := strings.TrimSpace(tmpl)
	m := placeholder.FindStringSubmatchIndex(trimmed)
	if m != nil && m[0] == 0 && m[1] == len(trimmed) {
		path, fallback, hasFallback := splitFallback(trimmed[m[2]:m[3]])
		if v, ok := s.Lookup(path); ok && v != nil {
			return v, true
		}
		if hasFallback {
			return fallback, true
		}
		return nil, false
	}
	if !strings.Contains(trimmed, "{{") {
		if v, ok := s.Lookup(trimmed); ok {
			return v, true
		}
	}
	return s.Resolve(tmpl), true
}

func splitFallback(expr string) (path, fallback string, ok bool) {
	idx := strings.Index(expr, "||")
	if idx < 0 {
		return strings.TrimSpace(expr), "", false
	}
	path = strings.TrimSpace(expr[:idx])
	fallback = strings.TrimSpace(expr[idx+2:])
	if len(fallback) >= 2 {
		first, last := fallback[0], fallback[len(fallback)-1]
		if (first == '"' || first == '\'') && first == last {
			fallback = fallback[1 : len(fallback)-1]
		}
	}
	return path, fallback, true
}

// Stringify renders a value for string context. Structured values become
// JSON; whole numbers print without a decimal part.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
