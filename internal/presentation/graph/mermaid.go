package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/convoflow/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromExecutions marks every executed node as visited and the last
// one as current.
func OverlayFromExecutions(records []domain.ExecutionRecord, current string) *GraphOverlay {
	o := &GraphOverlay{CurrentNode: current}
	for _, r := range records {
		o.VisitedNodes = append(o.VisitedNodes, r.NodeID)
	}
	if o.CurrentNode == "" && len(records) > 0 {
		o.CurrentNode = records[len(records)-1].NodeID
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of a flow version.
// It applies semantic styling:
// - Start and End: ((Circle))
// - Subflow calls: [[Subroutine]]
// - Waiting for the user (input, button, list): [/Parallelogram/]
// - Conditions and loops: {Rhombus}
// - Default: [Rectangle]
// Edges are labeled with the handle they leave through. Subflow calls get a
// dotted edge to the called flow.
func GenerateMermaid(fv *domain.FlowVersion, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range fv.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeStart, domain.NodeEnd:
			opener, closer = "((", "))"
		case domain.NodeSubflow:
			opener, closer = "[[", "]]"
		case domain.NodeInput, domain.NodeButton, domain.NodeList:
			opener, closer = "[/", "/]"
		case domain.NodeCondition, domain.NodeLoop:
			opener, closer = "{", "}"
		}

		text := escape(node.Name())
		if d, ok := node.Config.(*domain.DelayConfig); ok {
			text = fmt.Sprintf("%s <br/> ⏱️ %d %s", text, d.Amount(), strings.ToLower(string(d.DelayUnit)))
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, text, closer)

		for _, s := range fv.Successors(node) {
			safeTo := sanitizeMermaidID(s.Target)
			if s.Handle == domain.HandleDefault {
				fmt.Fprintf(&sb, "    %s --> %s\n", safeID, safeTo)
				continue
			}
			arrow := "--"
			if s.Handle == domain.HandleError || s.Handle == domain.HandleFailure || s.Handle == domain.HandleFallback {
				arrow = "-."
			}
			closing := "-->"
			if arrow == "-." {
				closing = ".->"
			}
			fmt.Fprintf(&sb, "    %s %s \"%s\" %s %s\n", safeID, arrow, escape(s.Handle), closing, safeTo)
		}

		if sub, ok := node.Config.(*domain.SubflowConfig); ok && sub.TargetFlowID != "" {
			flowNode := "flow_" + sanitizeMermaidID(sub.TargetFlowID)
			fmt.Fprintf(&sb, "    %s[(\"%s\")]\n", flowNode, escape(sub.TargetFlowID))
			fmt.Fprintf(&sb, "    %s -. call .-> %s\n", safeID, flowNode)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast on any theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
