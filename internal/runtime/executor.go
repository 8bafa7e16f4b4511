package runtime

import (
	"fmt"

	"github.com/aretw0/convoflow/pkg/domain"
)

// executor runs one node type.
type executor interface {
	execute(rc *runContext) (outcome, error)
}

// resumer is implemented by node types that suspend the run. resume is
// called instead of execute when the session comes back to the node.
type resumer interface {
	resume(rc *runContext) (outcome, error)
}

func executorFor(n *domain.Node) (executor, error) {
	switch cfg := n.Config.(type) {
	case *domain.StartConfig:
		return startExecutor{}, nil
	case *domain.MessageConfig:
		return messageExecutor{cfg: cfg}, nil
	case *domain.ButtonConfig:
		return buttonExecutor{cfg: cfg}, nil
	case *domain.ListConfig:
		return listExecutor{cfg: cfg}, nil
	case *domain.InputConfig:
		return inputExecutor{cfg: cfg}, nil
	case *domain.ConditionConfig:
		return conditionExecutor{cfg: cfg}, nil
	case *domain.DelayConfig:
		return delayExecutor{cfg: cfg}, nil
	case *domain.APIConfig:
		return apiExecutor{cfg: cfg}, nil
	case *domain.AIConfig:
		return aiExecutor{cfg: cfg}, nil
	case *domain.LoopConfig:
		return loopExecutor{cfg: cfg}, nil
	case *domain.EndConfig:
		return endExecutor{cfg: cfg}, nil
	case *domain.SubflowConfig:
		return subflowExecutor{cfg: cfg}, nil
	case nil:
		return nil, fmt.Errorf("%w: %s has no configuration", ErrUnknownNodeType, n.Type)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, n.Type)
}
