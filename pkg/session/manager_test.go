package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/ports"
)

var testFlow = &domain.FlowVersion{ID: "v1", FlowID: "f", Nodes: []*domain.Node{{ID: "start", Type: domain.NodeStart}}}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_ = mgr.WithLock(ctx, fmt.Sprintf("session-%d", i), func(context.Context) error { return nil })
	}

	assert.Empty(t, mgr.locks, "locks must be released once unused")
}

func TestManager_WithLockSerialises(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.WithLock(ctx, "same", func(context.Context) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestManager_FindOrCreate(t *testing.T) {
	store := memory.NewStore()
	mgr := NewManager(store)
	ctx := context.Background()

	var creations atomic.Int32
	create := func() (*domain.Session, error) {
		creations.Add(1)
		return domain.NewSession("bot", "+1", testFlow, false, time.Now()), nil
	}

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := mgr.FindOrCreate(ctx, "bot", "+1", create)
			if assert.NoError(t, err) {
				ids[i] = s.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), creations.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

type countingLocker struct {
	locks, unlocks atomic.Int32
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.locks.Add(1)
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	mgr := NewManager(memory.NewStore(), WithLocker(locker))

	err := mgr.WithLock(context.Background(), "s1", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, int32(1), locker.locks.Load())
	assert.Equal(t, int32(1), locker.unlocks.Load())
}

func TestManager_LoadWaitsForHolder(t *testing.T) {
	store := memory.NewStore()
	mgr := NewManager(store)
	ctx := context.Background()

	s := domain.NewSession("bot", "+1", testFlow, false, time.Now())
	require.NoError(t, store.Create(ctx, s))

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, s.ID, func(ctx context.Context) error {
			close(entered)
			<-release
			s.CurrentNodeID = "after"
			return store.Save(ctx, s)
		})
	}()
	<-entered

	loaded := make(chan *domain.Session, 1)
	go func() {
		got, err := mgr.Load(ctx, s.ID)
		assert.NoError(t, err)
		loaded <- got
	}()

	select {
	case <-loaded:
		t.Fatal("Load returned while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, "after", (<-loaded).CurrentNodeID)

	_, err := mgr.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
