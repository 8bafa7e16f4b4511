package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/persistence/middleware"
	"github.com/aretw0/convoflow/pkg/schema"
)

func TestTypedMiddleware_RejectsMismatch(t *testing.T) {
	store := middleware.Variables(memory.NewVariables(), middleware.NewTypedMiddleware())
	ctx := context.Background()

	err := store.SetSessionVariables(ctx, "sess-1",
		domain.Variable{Name: "age", Value: "forty", Type: domain.VarNumber},
		domain.Variable{Name: "missing", Value: nil, Type: domain.VarString},
	)
	if err == nil {
		t.Fatal("Expected a type error")
	}
	if errs := schema.ValidationErrors(err); len(errs) != 1 {
		t.Errorf("Expected 1 failure, got %v", errs)
	}

	err = store.SetSessionVariables(ctx, "sess-1",
		domain.Variable{Name: "age", Value: 40.0, Type: domain.VarNumber},
		domain.Variable{Name: "missing", Value: nil, Type: domain.VarString},
	)
	if err != nil {
		t.Fatalf("Valid write failed: %v", err)
	}
}

func TestTypedMiddleware_CoercesSeededText(t *testing.T) {
	underlying := memory.NewVariables()
	ctx := context.Background()
	// Seeded directly, bypassing the type check.
	if err := underlying.SetBotVariable(ctx, "bot-1", domain.Variable{Name: "limit", Value: "25", Type: domain.VarNumber}); err != nil {
		t.Fatal(err)
	}
	if err := underlying.SetBotVariable(ctx, "bot-1", domain.Variable{Name: "vip", Value: "maybe", Type: domain.VarBoolean}); err != nil {
		t.Fatal(err)
	}

	store := middleware.Variables(underlying, middleware.NewTypedMiddleware())
	vars, err := store.BotVariables(ctx, "bot-1")
	if err != nil {
		t.Fatal(err)
	}
	if vars["limit"].Value != 25.0 {
		t.Errorf("Expected 25.0, got %#v", vars["limit"].Value)
	}
	if vars["vip"].Value != "maybe" {
		t.Errorf("Unparseable values should be returned as stored, got %#v", vars["vip"].Value)
	}
}
