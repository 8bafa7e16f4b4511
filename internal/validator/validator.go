// Package validator checks flow versions for structural and configuration
// problems before they are published or simulated.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Limits imposed by interactive channel messages.
const (
	MaxMessageText     = 1024
	MaxButtons         = 3
	MaxButtonLabel     = 20
	MaxListButtonText  = 20
	MaxListItems       = 10
	MaxListItemTitle   = 24
	MaxListDescription = 72
)

// Issue is a single validation finding.
type Issue struct {
	NodeID   string          `json:"nodeId,omitempty"`
	NodeName string          `json:"nodeName,omitempty"`
	NodeType domain.NodeType `json:"nodeType,omitempty"`
	FlowName string          `json:"flowName,omitempty"`
	Field    string          `json:"field,omitempty"`
	Message  string          `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.NodeID != "" {
		fmt.Fprintf(&b, "[%s] ", i.NodeName)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, "%s: ", i.Field)
	}
	b.WriteString(i.Message)
	return b.String()
}

// Result is the outcome of Validate. The flow is valid when it has no errors;
// warnings never block.
type Result struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Error returns the errors as a single error value, or nil when valid.
func (r Result) Error() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(r.Errors), strings.Join(msgs, "\n- "))
}

type checker struct {
	fv       *domain.FlowVersion
	errors   []Issue
	warnings []Issue
}

func (c *checker) issue(n *domain.Node, field, msg string) Issue {
	is := Issue{FlowName: c.fv.DisplayName(), Field: field, Message: msg}
	if n != nil {
		is.NodeID = n.ID
		is.NodeName = n.Name()
		is.NodeType = n.Type
	}
	return is
}

func (c *checker) errorf(n *domain.Node, field, format string, args ...any) {
	c.errors = append(c.errors, c.issue(n, field, fmt.Sprintf(format, args...)))
}

func (c *checker) warnf(n *domain.Node, format string, args ...any) {
	c.warnings = append(c.warnings, c.issue(n, "", fmt.Sprintf(format, args...)))
}

// Validate inspects fv without modifying it.
func Validate(fv *domain.FlowVersion) Result {
	c := &checker{fv: fv}

	starts := fv.NodesOfType(domain.NodeStart)
	switch {
	case len(starts) == 0:
		c.errorf(nil, "", "Flow must have exactly one Start node")
	case len(starts) > 1:
		c.errorf(nil, "", "Flow has %d Start nodes, only one is allowed", len(starts))
	}

	ends := fv.NodesOfType(domain.NodeEnd)
	if len(ends) == 0 {
		c.warnf(nil, "Flow has no End node. Flows should terminate properly.")
	}

	for _, n := range fv.Nodes {
		c.checkNode(n)
	}

	if len(starts) == 1 {
		reachable := make(map[string]bool)
		c.walk(starts[0].ID, reachable)
		for _, n := range fv.Nodes {
			if !reachable[n.ID] {
				c.warnf(n, "Node %q is not reachable from Start node", n.Name())
			}
		}
	}

	for _, e := range fv.Edges {
		if _, ok := fv.Node(e.Source); !ok {
			c.errorf(nil, "", "Edge %s references non-existent source node %s", e.ID, e.Source)
		}
		if _, ok := fv.Node(e.Target); !ok {
			c.errorf(nil, "", "Edge %s references non-existent target node %s", e.ID, e.Target)
		}
	}

	for _, n := range ends {
		if len(fv.OutgoingEdges(n.ID)) > 0 {
			c.errorf(n, "", "End node cannot have outgoing edges")
		}
	}

	return Result{
		IsValid:  len(c.errors) == 0,
		Errors:   nonNil(c.errors),
		Warnings: nonNil(c.warnings),
	}
}

// walk marks every node reachable from id over the unified successor set.
func (c *checker) walk(id string, seen map[string]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	n, ok := c.fv.Node(id)
	if !ok {
		return
	}
	for _, s := range c.fv.Successors(n) {
		c.walk(s.Target, seen)
	}
}

func (c *checker) checkNode(n *domain.Node) {
	if !n.Type.Valid() {
		c.errorf(n, "nodeType", "Unknown node type %q", n.Type)
		return
	}
	cfg := n.Config
	if cfg == nil {
		cfg = domain.NewConfig(n.Type)
	}
	if cfg.NodeType() != n.Type {
		c.errorf(n, "config", "Configuration of type %s does not match node type", cfg.NodeType())
		return
	}

	switch cfg := cfg.(type) {
	case *domain.MessageConfig:
		if blank(cfg.Body()) {
			c.errorf(n, "text", "Message content is required")
		}
	case *domain.ButtonConfig:
		c.checkMessageText(n, cfg.MessageText, "Button message text is required")
		if len(cfg.Buttons) == 0 {
			c.errorf(n, "buttons", "At least one button is required")
			break
		}
		if len(cfg.Buttons) > MaxButtons {
			c.errorf(n, "buttons", "Maximum %d buttons allowed", MaxButtons)
		}
		for i, b := range cfg.Buttons {
			field := fmt.Sprintf("buttons[%d]", i)
			if blank(b.Label) {
				c.errorf(n, field, "Button %d: label is required", i+1)
			} else if runes(b.Label) > MaxButtonLabel {
				c.errorf(n, field, "Button %d: label must not exceed %d characters", i+1, MaxButtonLabel)
			}
		}
	case *domain.ListConfig:
		c.checkList(n, cfg)
	case *domain.InputConfig:
		if blank(cfg.Prompt()) {
			c.errorf(n, "promptText", "Prompt message is required")
		}
		if blank(cfg.VariableName) {
			c.errorf(n, "variableName", "Variable name is required")
		}
	case *domain.ConditionConfig:
		if blank(cfg.LeftOperand) {
			c.errorf(n, "leftOperand", "Left operand is required")
		}
		if cfg.Operator == "" {
			c.errorf(n, "operator", "Operator is required")
		}
	case *domain.DelayConfig:
		if cfg.Amount() <= 0 {
			c.errorf(n, "delaySeconds", "Delay duration must be greater than 0")
		}
	case *domain.APIConfig:
		if blank(cfg.URL) {
			c.errorf(n, "url", "API URL is required")
		}
	case *domain.AIConfig:
		if blank(cfg.UserMessage) {
			c.errorf(n, "userMessage", "User message template is required")
		}
		if blank(cfg.ResponseVariable) {
			c.errorf(n, "responseVariable", "Response variable name is required")
		}
	case *domain.LoopConfig:
		switch cfg.Mode() {
		case domain.LoopForEach:
			if blank(cfg.ArrayVariable) {
				c.errorf(n, "arrayVariable", "Array variable is required for For Each loops")
			}
		case domain.LoopCountBased:
			if cfg.IterationCount <= 0 && cfg.MaxIterations <= 0 && blank(cfg.CountFrom) {
				c.errorf(n, "iterationCount", "Iteration count must be set for Count Based loops")
			}
		case domain.LoopConditionBased:
			if blank(cfg.ContinueCondition) {
				c.errorf(n, "continueCondition", "Continue condition is required for Condition Based loops")
			}
		default:
			c.errorf(n, "loopType", "Unknown loop type %q", cfg.LoopType)
		}
	case *domain.SubflowConfig:
		if blank(cfg.TargetFlowID) {
			c.errorf(n, "targetFlowId", "Target subflow must be selected")
		}
	}
}

func (c *checker) checkMessageText(n *domain.Node, text, required string) {
	if blank(text) {
		c.errorf(n, "messageText", "%s", required)
	} else if runes(text) > MaxMessageText {
		c.errorf(n, "messageText", "Message text must not exceed %d characters", MaxMessageText)
	}
}

func (c *checker) checkList(n *domain.Node, cfg *domain.ListConfig) {
	c.checkMessageText(n, cfg.MessageText, "List message text is required")
	if blank(cfg.ButtonText) {
		c.errorf(n, "buttonText", "List button text is required")
	} else if runes(cfg.ButtonText) > MaxListButtonText {
		c.errorf(n, "buttonText", "Button text must not exceed %d characters", MaxListButtonText)
	}
	if len(cfg.Sections) == 0 {
		c.errorf(n, "sections", "At least one section is required")
		return
	}
	total := 0
	for si, s := range cfg.Sections {
		if len(s.Items) == 0 {
			c.errorf(n, fmt.Sprintf("sections[%d]", si), "Section %d: at least one item is required", si+1)
			continue
		}
		total += len(s.Items)
		for ii, item := range s.Items {
			field := fmt.Sprintf("sections[%d].items[%d]", si, ii)
			if blank(item.Title) {
				c.errorf(n, field, "Section %d, Item %d: title is required", si+1, ii+1)
			} else if runes(item.Title) > MaxListItemTitle {
				c.errorf(n, field, "Section %d, Item %d: title must not exceed %d characters", si+1, ii+1, MaxListItemTitle)
			}
			if runes(item.Description) > MaxListDescription {
				c.errorf(n, field, "Section %d, Item %d: description must not exceed %d characters", si+1, ii+1, MaxListDescription)
			}
		}
	}
	if total > MaxListItems {
		c.errorf(n, "sections", "Total list items (%d) exceeds maximum of %d", total, MaxListItems)
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func runes(s string) int { return utf8.RuneCountInString(s) }

func nonNil(in []Issue) []Issue {
	if in == nil {
		return []Issue{}
	}
	return in
}
