package variables

import (
	"strconv"
	"strings"

	"github.com/aretw0/convoflow/pkg/schema"
)

// NormalizePath rewrites bracket indices as dot segments.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	r := strings.NewReplacer("[", ".", "]", "")
	path = r.Replace(path)
	path = strings.Trim(path, ".")
	for strings.Contains(path, "..") {
		path = strings.ReplaceAll(path, "..", ".")
	}
	return path
}

// Segments splits a path into its normalised segments.
func Segments(path string) []string {
	p := NormalizePath(path)
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// Walk descends into value following segments. JSON text met along the way
// is parsed before descending further.
func Walk(value any, segments []string) (any, bool) {
	cur := value
	for _, seg := range segments {
		if s, ok := cur.(string); ok {
			parsed, ok := schema.ParseJSON(s)
			if !ok {
				return nil, false
			}
			cur = parsed
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
