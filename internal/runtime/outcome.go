package runtime

import (
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

type outcomeKind int

const (
	outcomeAdvance outcomeKind = iota
	outcomeWaitInput
	outcomePause
	outcomeEnd
	outcomeCall
)

// outcome tells the run loop what a node decided.
type outcome struct {
	kind outcomeKind

	// advance
	handle string
	target string
	direct bool

	resumeAt time.Time
	action   domain.SessionAction

	// call
	flow         *domain.FlowVersion
	returnNodeID string
}

// advance follows the successor behind handle.
func advance(handle string) outcome {
	return outcome{kind: outcomeAdvance, handle: handle}
}

// jump goes to target directly. An empty target ends the flow.
func jump(target string) outcome {
	return outcome{kind: outcomeAdvance, target: target, direct: true}
}

func waitInput() outcome {
	return outcome{kind: outcomeWaitInput}
}

func pause(at time.Time) outcome {
	return outcome{kind: outcomePause, resumeAt: at}
}

func end(action domain.SessionAction) outcome {
	return outcome{kind: outcomeEnd, action: action}
}

func call(fv *domain.FlowVersion, returnNodeID string) outcome {
	return outcome{kind: outcomeCall, flow: fv, returnNodeID: returnNodeID}
}

// String is the label written to the execution log.
func (o outcome) String() string {
	switch o.kind {
	case outcomeAdvance:
		if o.direct {
			return "jump"
		}
		if o.handle == "" {
			return "next"
		}
		return "next:" + o.handle
	case outcomeWaitInput:
		return "wait_input"
	case outcomePause:
		return "pause"
	case outcomeEnd:
		return "end"
	case outcomeCall:
		return "call"
	}
	return "unknown"
}
