package runtime

import (
	"errors"
	"fmt"

	"github.com/aretw0/convoflow/pkg/domain"
)

var (
	// ErrNodeNotFound is returned when a run reaches a node id absent from its flow version.
	ErrNodeNotFound = errors.New("node not found")
	// ErrFlowNotFound is returned when a subflow target cannot be resolved.
	ErrFlowNotFound = domain.ErrFlowNotFound
	// ErrStepLimit is returned when a single run executes too many nodes.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrCallDepth is returned when subflow calls nest too deep.
	ErrCallDepth = errors.New("subflow call depth exceeded")
	// ErrUnknownNodeType is returned for nodes without an executor.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrLoopSource is returned when a FOR_EACH source is not an array.
	ErrLoopSource = errors.New("loop source is not an array")
	// ErrEmptyLoopSource is returned for an empty FOR_EACH source configured to fail.
	ErrEmptyLoopSource = errors.New("loop source is empty")
)

// NodeError is an unrecoverable failure of one node. The session that hit it
// is marked FAILED.
type NodeError struct {
	NodeID   string
	NodeType domain.NodeType
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node '%s' (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
