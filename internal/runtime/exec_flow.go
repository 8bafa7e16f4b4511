package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

type startExecutor struct{}

func (startExecutor) execute(*runContext) (outcome, error) {
	return advance(domain.HandleDefault), nil
}

type messageExecutor struct {
	cfg *domain.MessageConfig
}

func (x messageExecutor) execute(rc *runContext) (outcome, error) {
	rc.sendText(rc.resolve(x.cfg.Body()))
	return advance(domain.HandleDefault), nil
}

type delayExecutor struct {
	cfg *domain.DelayConfig
}

func (x delayExecutor) execute(rc *runContext) (outcome, error) {
	d := delayDuration(x.cfg)
	if d <= 0 {
		return advance(domain.HandleDefault), nil
	}
	return pause(rc.engine.now().Add(d)), nil
}

func (delayExecutor) resume(*runContext) (outcome, error) {
	return advance(domain.HandleDefault), nil
}

func delayDuration(cfg *domain.DelayConfig) time.Duration {
	unit := time.Second
	switch cfg.DelayUnit {
	case domain.DelayMinutes:
		unit = time.Minute
	case domain.DelayHours:
		unit = time.Hour
	}
	return time.Duration(cfg.Amount()) * unit
}

type endExecutor struct {
	cfg *domain.EndConfig
}

func (x endExecutor) execute(rc *runContext) (outcome, error) {
	rc.sendText(rc.resolve(x.cfg.FinalMessage))
	action := x.cfg.SessionAction
	if action == "" {
		action = domain.SessionKeepActive
	}
	return end(action), nil
}

type subflowExecutor struct {
	cfg *domain.SubflowConfig
}

// execute switches to the production version of the target flow, or its
// draft for test sessions. The caller resumes at the node's default successor.
func (x subflowExecutor) execute(rc *runContext) (outcome, error) {
	fv, err := rc.engine.flows.Resolve(rc.ctx, x.cfg.TargetFlowID, rc.session.IsTest)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: %s: %v", ErrFlowNotFound, x.cfg.TargetFlowID, err)
	}
	return call(fv, rc.flow.Resolve(rc.node, domain.HandleDefault)), nil
}
