package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convoflow/pkg/domain"
)

func node(id string, cfg domain.NodeConfig) *domain.Node {
	return &domain.Node{ID: id, Type: cfg.NodeType(), Config: cfg}
}

func flow(nodes []*domain.Node, edges ...domain.Edge) *domain.FlowVersion {
	return &domain.FlowVersion{ID: "v1", FlowID: "f1", Name: "Support", Nodes: nodes, Edges: edges}
}

func edge(from, to string) domain.Edge {
	return domain.Edge{ID: from + "-" + to, Source: from, Target: to}
}

func TestValidate_StartCount(t *testing.T) {
	t.Run("no start", func(t *testing.T) {
		res := Validate(flow([]*domain.Node{node("end", &domain.EndConfig{})}))
		require.False(t, res.IsValid)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "Flow must have exactly one Start node", res.Errors[0].Message)
		assert.Equal(t, "Support", res.Errors[0].FlowName)
	})

	t.Run("two starts", func(t *testing.T) {
		res := Validate(flow([]*domain.Node{
			node("s1", &domain.StartConfig{}),
			node("s2", &domain.StartConfig{}),
			node("end", &domain.EndConfig{}),
		}))
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0].Message, "2 Start nodes")
	})

	t.Run("exactly one start is valid", func(t *testing.T) {
		res := Validate(flow([]*domain.Node{
			node("start", &domain.StartConfig{}),
			node("end", &domain.EndConfig{}),
		}, edge("start", "end")))
		assert.True(t, res.IsValid)
		assert.Empty(t, res.Errors)
		assert.Empty(t, res.Warnings)
	})
}

func TestValidate_NoEndIsWarning(t *testing.T) {
	res := Validate(flow([]*domain.Node{node("start", &domain.StartConfig{})}))
	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "no End node")
}

func TestValidate_RequiredFields(t *testing.T) {
	long := strings.Repeat("x", 25)
	items := make([]domain.ListItem, 11)
	for i := range items {
		items[i] = domain.ListItem{ID: string(rune('a' + i)), Title: "Item"}
	}

	tests := []struct {
		name  string
		cfg   domain.NodeConfig
		field string
	}{
		{"message text", &domain.MessageConfig{}, "text"},
		{"button message text", &domain.ButtonConfig{Buttons: []domain.Button{{ID: "b", Label: "B"}}}, "messageText"},
		{"button message too long", &domain.ButtonConfig{MessageText: strings.Repeat("m", 1025), Buttons: []domain.Button{{ID: "b", Label: "B"}}}, "messageText"},
		{"no buttons", &domain.ButtonConfig{MessageText: "Pick"}, "buttons"},
		{"too many buttons", &domain.ButtonConfig{MessageText: "Pick", Buttons: []domain.Button{
			{ID: "1", Label: "1"}, {ID: "2", Label: "2"}, {ID: "3", Label: "3"}, {ID: "4", Label: "4"},
		}}, "buttons"},
		{"button label too long", &domain.ButtonConfig{MessageText: "Pick", Buttons: []domain.Button{{ID: "b", Label: long}}}, "buttons[0]"},
		{"list button text", &domain.ListConfig{MessageText: "Pick", Sections: []domain.ListSection{{Items: []domain.ListItem{{ID: "i", Title: "I"}}}}}, "buttonText"},
		{"list no sections", &domain.ListConfig{MessageText: "Pick", ButtonText: "Open"}, "sections"},
		{"list empty section", &domain.ListConfig{MessageText: "Pick", ButtonText: "Open", Sections: []domain.ListSection{{Title: "S"}}}, "sections[0]"},
		{"list item title too long", &domain.ListConfig{MessageText: "Pick", ButtonText: "Open", Sections: []domain.ListSection{{Items: []domain.ListItem{{ID: "i", Title: long}}}}}, "sections[0].items[0]"},
		{"list description too long", &domain.ListConfig{MessageText: "Pick", ButtonText: "Open", Sections: []domain.ListSection{{Items: []domain.ListItem{{ID: "i", Title: "I", Description: strings.Repeat("d", 73)}}}}}, "sections[0].items[0]"},
		{"list too many items", &domain.ListConfig{MessageText: "Pick", ButtonText: "Open", Sections: []domain.ListSection{{Items: items}}}, "sections"},
		{"input prompt", &domain.InputConfig{VariableName: "email"}, "promptText"},
		{"input variable", &domain.InputConfig{PromptText: "Email?"}, "variableName"},
		{"condition left operand", &domain.ConditionConfig{Operator: domain.OpEquals}, "leftOperand"},
		{"condition operator", &domain.ConditionConfig{LeftOperand: "{{x}}"}, "operator"},
		{"delay duration", &domain.DelayConfig{}, "delaySeconds"},
		{"api url", &domain.APIConfig{Method: "GET"}, "url"},
		{"ai user message", &domain.AIConfig{ResponseVariable: "answer"}, "userMessage"},
		{"ai response variable", &domain.AIConfig{UserMessage: "hi"}, "responseVariable"},
		{"for each array", &domain.LoopConfig{}, "arrayVariable"},
		{"count based count", &domain.LoopConfig{LoopType: domain.LoopCountBased}, "iterationCount"},
		{"condition based condition", &domain.LoopConfig{LoopType: domain.LoopConditionBased}, "continueCondition"},
		{"subflow target", &domain.SubflowConfig{}, "targetFlowId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(flow([]*domain.Node{
				node("start", &domain.StartConfig{NextNodeID: "n"}),
				node("n", tt.cfg),
			}))
			require.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.field, res.Errors[0].Field)
			assert.Equal(t, "n", res.Errors[0].NodeID)
			assert.Equal(t, tt.cfg.NodeType(), res.Errors[0].NodeType)
		})
	}
}

func TestValidate_CountBasedAcceptsMaxIterations(t *testing.T) {
	res := Validate(flow([]*domain.Node{
		node("start", &domain.StartConfig{NextNodeID: "loop"}),
		node("loop", &domain.LoopConfig{LoopType: domain.LoopCountBased, MaxIterations: 5}),
	}))
	assert.True(t, res.IsValid)
}

func TestValidate_Edges(t *testing.T) {
	res := Validate(flow([]*domain.Node{
		node("start", &domain.StartConfig{}),
		node("end", &domain.EndConfig{}),
		node("after", &domain.MessageConfig{Text: "unreachable in practice"}),
	}, edge("start", "end"), edge("end", "after"), edge("start", "ghost")))

	require.False(t, res.IsValid)
	var messages []string
	for _, e := range res.Errors {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "End node cannot have outgoing edges")
	assert.Contains(t, messages, "Edge start-ghost references non-existent target node ghost")
}

func TestValidate_Reachability(t *testing.T) {
	res := Validate(flow([]*domain.Node{
		node("start", &domain.StartConfig{NextNodeID: "ask"}),
		node("ask", &domain.ButtonConfig{MessageText: "Pick", Buttons: []domain.Button{
			{ID: "a", Label: "A", NextNodeID: "via-config"},
			{ID: "b", Label: "B"},
		}}),
		node("via-config", &domain.EndConfig{}),
		node("via-edge", &domain.EndConfig{}),
		{ID: "orphan", Type: domain.NodeMessage, Label: "Lost", Config: &domain.MessageConfig{Text: "hi"}},
	}, domain.Edge{ID: "e1", Source: "ask", Target: "via-edge", SourceHandle: "b"}))

	assert.True(t, res.IsValid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "orphan", res.Warnings[0].NodeID)
	assert.Equal(t, `Node "Lost" is not reachable from Start node`, res.Warnings[0].Message)
}

func TestValidate_ConfigMismatch(t *testing.T) {
	res := Validate(flow([]*domain.Node{
		node("start", &domain.StartConfig{}),
		{ID: "bad", Type: domain.NodeMessage, Config: &domain.DelayConfig{DelaySeconds: 1}},
	}))
	require.False(t, res.IsValid)
	assert.Equal(t, "config", res.Errors[0].Field)
}
