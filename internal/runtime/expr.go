package runtime

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/convoflow/internal/variables"
	"github.com/aretw0/convoflow/pkg/domain"
)

// compare applies op to two resolved operands. Ordering operators compare
// numerically when both sides are numbers and lexically otherwise.
func compare(left string, op domain.Operator, right string) bool {
	switch op {
	case domain.OpEquals:
		if l, r, ok := numbers(left, right); ok {
			return l == r
		}
		return left == right
	case domain.OpNotEquals:
		if l, r, ok := numbers(left, right); ok {
			return l != r
		}
		return left != right
	case domain.OpContains:
		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case domain.OpGreaterThan:
		if l, r, ok := numbers(left, right); ok {
			return l > r
		}
		return left > right
	case domain.OpLessThan:
		if l, r, ok := numbers(left, right); ok {
			return l < r
		}
		return left < right
	case domain.OpRegexMatch:
		re, err := regexp.Compile(right)
		return err == nil && re.MatchString(left)
	}
	return false
}

func numbers(left, right string) (float64, float64, bool) {
	l, err := strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return 0, 0, false
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return 0, 0, false
	}
	return l, r, true
}

// Branch expression operators, longest first so ">=" wins over ">".
var exprOperators = []struct {
	token string
	eval  func(l, r string) bool
}{
	{" contains ", func(l, r string) bool { return compare(l, domain.OpContains, r) }},
	{" matches ", func(l, r string) bool { return compare(l, domain.OpRegexMatch, r) }},
	{"==", func(l, r string) bool { return compare(l, domain.OpEquals, r) }},
	{"!=", func(l, r string) bool { return compare(l, domain.OpNotEquals, r) }},
	{">=", func(l, r string) bool { return !compare(l, domain.OpLessThan, r) }},
	{"<=", func(l, r string) bool { return !compare(l, domain.OpGreaterThan, r) }},
	{">", func(l, r string) bool { return compare(l, domain.OpGreaterThan, r) }},
	{"<", func(l, r string) bool { return compare(l, domain.OpLessThan, r) }},
}

// evalExpression evaluates "left <op> right" against scope. Operands may be
// templates, quoted literals, numbers or bare variable paths. An expression
// without an operator is true when it resolves to a truthy value.
func evalExpression(scope *variables.Scope, expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	for _, op := range exprOperators {
		if idx := strings.Index(expr, op.token); idx > 0 {
			left := operand(scope, expr[:idx])
			right := operand(scope, expr[idx+len(op.token):])
			return op.eval(left, right)
		}
	}
	return truthy(operand(scope, expr))
}

func operand(scope *variables.Scope, raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' || first == '\'') && first == last {
			return scope.Resolve(raw[1 : len(raw)-1])
		}
	}
	if strings.Contains(raw, "{{") {
		return scope.Resolve(raw)
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return raw
	}
	if v, ok := scope.Lookup(raw); ok {
		return variables.Stringify(v)
	}
	return raw
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "null", "undefined":
		return false
	}
	return !strings.Contains(s, "{{")
}
