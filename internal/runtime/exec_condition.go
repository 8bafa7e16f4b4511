package runtime

import (
	"github.com/aretw0/convoflow/pkg/domain"
)

type conditionExecutor struct {
	cfg *domain.ConditionConfig
}

// execute takes "true" when the primary comparison holds, otherwise the
// first matching branch, otherwise the default branch ("false").
func (x conditionExecutor) execute(rc *runContext) (outcome, error) {
	if x.cfg.LeftOperand != "" || x.cfg.Operator != "" {
		left := operand(rc.scope, x.cfg.LeftOperand)
		right := operand(rc.scope, x.cfg.RightOperand)
		if compare(left, x.cfg.Operator, right) {
			return advance(domain.HandleTrue), nil
		}
	}
	for i, b := range x.cfg.Branches {
		if evalExpression(rc.scope, b.Expression) {
			return advance(domain.BranchHandle(i)), nil
		}
	}
	return advance(domain.HandleFalse), nil
}
