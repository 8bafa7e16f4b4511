package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/convoflow/internal/presentation/graph"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/dsl"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		flow     func(b *dsl.Builder)
		contains []string
	}{
		{
			name: "Start And End Shape",
			flow: func(b *dsl.Builder) {
				b.Start("start").Go("bye")
				b.End("bye")
			},
			contains: []string{
				`start(("start"))`,
				`bye(("bye"))`,
				"start --> bye",
			},
		},
		{
			name: "Waiting Node Shape",
			flow: func(b *dsl.Builder) {
				b.Input("ask-name", "Name?", "name").Label("Ask name")
				b.Buttons("menu", "Pick", domain.Button{ID: "b1", Label: "One", NextNodeID: "ask-name"})
			},
			contains: []string{
				`ask_name[/"Ask name"/]`,
				`menu[/"menu"/]`,
				`menu -- "b1" --> ask_name`,
			},
		},
		{
			name: "Failure Edges Are Dotted",
			flow: func(b *dsl.Builder) {
				b.API("call", &domain.APIConfig{URL: "http://x", SuccessNextNodeID: "ok", FailureNextNodeID: "ko"})
				b.Message("ok", "ok")
				b.Message("ko", "ko")
			},
			contains: []string{
				`call -- "success" --> ok`,
				`call -. "error" .-> ko`,
			},
		},
		{
			name: "Delay Annotation",
			flow: func(b *dsl.Builder) {
				b.Delay("wait", 5, domain.DelayMinutes)
			},
			contains: []string{`wait["wait <br/> ⏱️ 5 minutes"]`},
		},
		{
			name: "Subflow Call",
			flow: func(b *dsl.Builder) {
				b.Subflow("jump", "billing")
			},
			contains: []string{
				`jump[["jump"]]`,
				`flow_billing[("billing")]`,
				"jump -. call .-> flow_billing",
			},
		},
		{
			name: "Label Escaping",
			flow: func(b *dsl.Builder) {
				b.Condition("check", "{{x}}", domain.OpEquals, "1").Label(`is "x" one`)
			},
			contains: []string{`check{"is 'x' one"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dsl.New("f")
			tt.flow(b)
			fv, err := b.Build()
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			got := graph.GenerateMermaid(fv, nil)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	b := dsl.New("f")
	b.Start("start").Go("hello")
	b.Message("hello", "hi").Go("end")
	b.End("end")
	fv := b.MustBuild()

	overlay := graph.OverlayFromExecutions([]domain.ExecutionRecord{
		{NodeID: "start"}, {NodeID: "hello"}, {NodeID: "hello"},
	}, "")
	got := graph.GenerateMermaid(fv, overlay)

	if strings.Count(got, "class hello visited;") != 1 {
		t.Errorf("visited nodes must be deduplicated:\n%s", got)
	}
	if !strings.Contains(got, "class start visited;") {
		t.Errorf("missing visited style for start:\n%s", got)
	}
	if !strings.Contains(got, "class hello current;") {
		t.Errorf("last executed node must be current:\n%s", got)
	}
}
