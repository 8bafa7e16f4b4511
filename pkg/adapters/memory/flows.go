package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Flows implements ports.FlowRepository in memory.
type Flows struct {
	mu       sync.RWMutex
	versions map[string]*domain.FlowVersion
	byFlow   map[string][]*domain.FlowVersion
	main     map[string]string
}

// NewFlows creates a repository holding the given versions.
func NewFlows(versions ...*domain.FlowVersion) *Flows {
	f := &Flows{
		versions: make(map[string]*domain.FlowVersion),
		byFlow:   make(map[string][]*domain.FlowVersion),
		main:     make(map[string]string),
	}
	for _, v := range versions {
		if err := f.Add(v); err != nil {
			panic(err)
		}
	}
	return f
}

// Add registers a version. Marking it production demotes any other
// production version of the same flow.
func (f *Flows) Add(fv *domain.FlowVersion) error {
	if fv.ID == "" || fv.FlowID == "" {
		return fmt.Errorf("flow version needs both id and flowId")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if fv.IsProduction {
		for _, other := range f.byFlow[fv.FlowID] {
			if other.ID != fv.ID {
				other.IsProduction = false
			}
		}
	}
	if _, exists := f.versions[fv.ID]; !exists {
		f.byFlow[fv.FlowID] = append(f.byFlow[fv.FlowID], fv)
	} else {
		list := f.byFlow[fv.FlowID]
		for i, v := range list {
			if v.ID == fv.ID {
				list[i] = fv
			}
		}
	}
	f.versions[fv.ID] = fv
	return nil
}

// SetMainFlow chooses the flow new conversations of a bot start in.
func (f *Flows) SetMainFlow(botID, flowID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.main[botID] = flowID
}

// FlowIDs returns all flow ids with at least one version.
func (f *Flows) FlowIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.byFlow))
	for id := range f.byFlow {
		ids = append(ids, id)
	}
	return ids
}

func (f *Flows) Version(ctx context.Context, versionID string) (*domain.FlowVersion, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fv, ok := f.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, versionID)
	}
	return fv, nil
}

func (f *Flows) Resolve(ctx context.Context, flowID string, draft bool) (*domain.FlowVersion, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	list, ok := f.byFlow[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	var prod, newestDraft *domain.FlowVersion
	for _, v := range list {
		if v.IsProduction {
			prod = v
		}
		if v.IsDraft && (newestDraft == nil || v.VersionNumber > newestDraft.VersionNumber) {
			newestDraft = v
		}
	}
	if draft && newestDraft != nil {
		return newestDraft, nil
	}
	if prod != nil {
		return prod, nil
	}
	return nil, fmt.Errorf("%w: %s has no production version", domain.ErrVersionNotFound, flowID)
}

func (f *Flows) MainFlow(ctx context.Context, botID string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.main[botID]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoMainFlow, botID)
	}
	return id, nil
}
