package domain

import "time"

// NodeType identifies the behaviour of a node.
type NodeType string

const (
	NodeStart   NodeType = "START"
	NodeMessage NodeType = "MESSAGE"
	NodeButton  NodeType = "BUTTON"
	NodeList    NodeType = "LIST"
	NodeInput   NodeType = "INPUT"
	// NodeCondition branches on a comparison without emitting anything.
	NodeCondition NodeType = "CONDITION"
	NodeDelay     NodeType = "DELAY"
	NodeAPI       NodeType = "API"
	NodeAI        NodeType = "AI"
	NodeLoop      NodeType = "LOOP"
	NodeEnd       NodeType = "END"
	// NodeSubflow jumps into another flow and returns when that flow ends.
	NodeSubflow NodeType = "GOTO_SUBFLOW"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	NodeStart, NodeMessage, NodeButton, NodeList, NodeInput, NodeCondition,
	NodeDelay, NodeAPI, NodeAI, NodeLoop, NodeEnd, NodeSubflow,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Position is the editor canvas location of a node. The engine ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single step of a flow.
type Node struct {
	ID          string     `json:"nodeId" yaml:"nodeId"`
	Type        NodeType   `json:"nodeType" yaml:"nodeType"`
	Position    Position   `json:"position" yaml:"position"`
	Label       string     `json:"label,omitempty" yaml:"label,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Config      NodeConfig `json:"config" yaml:"config"`
}

// Name returns the label shown to operators, falling back to the node id.
func (n *Node) Name() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Edge connects two nodes. SourceHandle names the output of the source node
// the edge hangs from (a button id, "true", "loop-body", ...).
type Edge struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"sourceNodeId" yaml:"sourceNodeId"`
	Target       string `json:"targetNodeId" yaml:"targetNodeId"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// FlowVersion is an immutable snapshot of a flow graph.
// Sessions are bound to a version, never to a mutable flow.
type FlowVersion struct {
	ID            string    `json:"id" yaml:"id"`
	FlowID        string    `json:"flowId" yaml:"flowId"`
	VersionNumber int       `json:"versionNumber" yaml:"versionNumber"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	IsDraft       bool      `json:"isDraft" yaml:"isDraft"`
	IsProduction  bool      `json:"isProduction" yaml:"isProduction"`
	Nodes         []*Node   `json:"nodes" yaml:"nodes"`
	Edges         []Edge    `json:"edges" yaml:"edges"`
	CreatedAt     time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// DisplayName returns the flow name, falling back to the flow id.
func (f *FlowVersion) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.FlowID
}

// Node returns the node with the given id.
func (f *FlowVersion) Node(id string) (*Node, bool) {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// NodesOfType returns the nodes of type t in declaration order.
func (f *FlowVersion) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for _, n := range f.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// StartNode returns the first START node of the graph.
func (f *FlowVersion) StartNode() (*Node, bool) {
	starts := f.NodesOfType(NodeStart)
	if len(starts) == 0 {
		return nil, false
	}
	return starts[0], true
}

// OutgoingEdges returns the edges whose source is nodeID.
func (f *FlowVersion) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
