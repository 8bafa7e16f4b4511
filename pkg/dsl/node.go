package dsl

import (
	"fmt"

	"github.com/aretw0/convoflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    *domain.Node
	builder *Builder
}

// Label sets the display label of the node.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Go adds an unlabeled edge to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.On(domain.HandleDefault, target)
}

// On adds an edge leaving through handle.
func (n *NodeBuilder) On(handle, target string) *NodeBuilder {
	b := n.builder
	b.edges = append(b.edges, domain.Edge{
		ID:           fmt.Sprintf("e%d-%s-%s", len(b.edges)+1, n.node.ID, target),
		Source:       n.node.ID,
		Target:       target,
		SourceHandle: handle,
	})
	return n
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() *domain.Node {
	return n.node
}

func (b *Builder) Start(id string) *NodeBuilder {
	return b.Node(id, &domain.StartConfig{})
}

func (b *Builder) Message(id, text string) *NodeBuilder {
	return b.Node(id, &domain.MessageConfig{Text: text})
}

// Buttons adds a BUTTON node. Each button leaves through its id.
func (b *Builder) Buttons(id, text string, buttons ...domain.Button) *NodeBuilder {
	return b.Node(id, &domain.ButtonConfig{MessageText: text, Buttons: buttons})
}

func (b *Builder) List(id, text, buttonText string, sections ...domain.ListSection) *NodeBuilder {
	return b.Node(id, &domain.ListConfig{MessageText: text, ButtonText: buttonText, Sections: sections})
}

// Input adds an INPUT node storing the answer in variable.
func (b *Builder) Input(id, prompt, variable string) *NodeBuilder {
	return b.Node(id, &domain.InputConfig{PromptText: prompt, VariableName: variable, InputType: domain.InputText})
}

func (b *Builder) Condition(id, left string, op domain.Operator, right string) *NodeBuilder {
	return b.Node(id, &domain.ConditionConfig{LeftOperand: left, Operator: op, RightOperand: right})
}

func (b *Builder) Delay(id string, amount int, unit domain.DelayUnit) *NodeBuilder {
	return b.Node(id, &domain.DelayConfig{DelaySeconds: amount, DelayUnit: unit})
}

func (b *Builder) API(id string, cfg *domain.APIConfig) *NodeBuilder {
	return b.Node(id, cfg)
}

func (b *Builder) AI(id string, cfg *domain.AIConfig) *NodeBuilder {
	return b.Node(id, cfg)
}

func (b *Builder) Loop(id string, cfg *domain.LoopConfig) *NodeBuilder {
	return b.Node(id, cfg)
}

// End adds an END node that keeps the session reusable.
func (b *Builder) End(id string) *NodeBuilder {
	return b.Node(id, &domain.EndConfig{SessionAction: domain.SessionKeepActive})
}

// Close adds an END node that closes the session.
func (b *Builder) Close(id, finalMessage string) *NodeBuilder {
	return b.Node(id, &domain.EndConfig{SessionAction: domain.SessionClose, FinalMessage: finalMessage})
}

func (b *Builder) Subflow(id, targetFlowID string) *NodeBuilder {
	return b.Node(id, &domain.SubflowConfig{TargetFlowID: targetFlowID})
}
