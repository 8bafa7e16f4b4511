package dsl

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Builder manages the flow construction.
type Builder struct {
	flowID  string
	version int
	name    string
	draft   bool
	nodes   []*NodeBuilder
	index   map[string]*NodeBuilder
	edges   []domain.Edge
	errs    []error
}

// New creates a builder for version 1 of flowID, marked as production.
func New(flowID string) *Builder {
	return &Builder{
		flowID:  flowID,
		version: 1,
		index:   make(map[string]*NodeBuilder),
	}
}

// Version sets the version number.
func (b *Builder) Version(n int) *Builder {
	b.version = n
	return b
}

// Draft marks the version as a draft instead of production.
func (b *Builder) Draft() *Builder {
	b.draft = true
	return b
}

// Name sets the display name of the version.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Node adds a node with an explicit configuration. Adding an id twice is
// reported by Build.
func (b *Builder) Node(id string, cfg domain.NodeConfig) *NodeBuilder {
	nb := &NodeBuilder{
		node:    &domain.Node{ID: id, Type: cfg.NodeType(), Config: cfg},
		builder: b,
	}
	if _, exists := b.index[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate node id %q", id))
		return nb
	}
	b.index[id] = nb
	b.nodes = append(b.nodes, nb)
	return nb
}

// Build compiles the flow version.
func (b *Builder) Build() (*domain.FlowVersion, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("failed to build flow %s: %w", b.flowID, errors.Join(b.errs...))
	}
	fv := &domain.FlowVersion{
		ID:            fmt.Sprintf("%s@%d", b.flowID, b.version),
		FlowID:        b.flowID,
		VersionNumber: b.version,
		Name:          b.name,
		IsDraft:       b.draft,
		IsProduction:  !b.draft,
		CreatedAt:     time.Now(),
	}
	for i, nb := range b.nodes {
		nb.node.Position = domain.Position{X: 0, Y: float64(i * 120)}
		fv.Nodes = append(fv.Nodes, nb.node)
	}
	fv.Edges = append(fv.Edges, b.edges...)
	return fv, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *domain.FlowVersion {
	fv, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fv
}
