// Package runtime executes flow graphs against persisted sessions.
//
// A run starts from the session's current node and keeps executing nodes
// until one of them suspends (waiting for input or for a timer), the flow
// ends, or an unrecoverable error marks the session FAILED. Each node type
// has one executor; nodes that suspend also implement a resume step.
package runtime
