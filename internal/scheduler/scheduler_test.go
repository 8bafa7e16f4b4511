package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/convoflow/internal/runtime"
	"github.com/aretw0/convoflow/internal/scheduler"
	"github.com/aretw0/convoflow/pkg/adapters/memory"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/dsl"
	"github.com/aretw0/convoflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyVariables fails bot variable reads while down is set.
type flakyVariables struct {
	*memory.Variables
	down atomic.Bool
}

func (v *flakyVariables) BotVariables(ctx context.Context, botID string) (map[string]domain.Variable, error) {
	if v.down.Load() {
		return nil, errors.New("variables unavailable")
	}
	return v.Variables.BotVariables(ctx, botID)
}

type fixture struct {
	store  *memory.Store
	outbox *memory.Outbox
	vars   *flakyVariables
	engine *runtime.Engine
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := dsl.New("main")
	b.Start("start").Go("wait")
	b.Delay("wait", 30, domain.DelaySeconds).Go("after")
	b.Message("after", "Thanks for waiting").Go("end")
	b.End("end")

	flows := memory.NewFlows(b.MustBuild())
	flows.SetMainFlow("bot", "main")

	f := &fixture{
		store:  memory.NewStore(),
		outbox: memory.NewOutbox(),
		vars:   &flakyVariables{Variables: memory.NewVariables()},
		clock:  &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.engine = runtime.NewEngine(flows, session.NewManager(f.store), f.vars, memory.NewLogs(),
		runtime.WithTransport(f.outbox),
		runtime.WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) start(t *testing.T, address string) *domain.Session {
	t.Helper()
	res, err := f.engine.HandleInbound(context.Background(), domain.Inbound{BotID: "bot", Address: address, Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaused, res.Session.Status)
	return res.Session
}

func TestTick_BeforeAndAfterDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t, "+1")
	sched := scheduler.New(f.store, f.engine, scheduler.WithClock(f.clock.Now))

	f.clock.Advance(29 * time.Second)
	rep, err := sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{}, rep)
	assert.Empty(t, f.outbox.Deliveries())

	f.clock.Advance(time.Second)
	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 1, Resumed: 1}, rep)

	deliveries := f.outbox.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "Thanks for waiting", deliveries[0].Text)

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Due, "a resumed session is not due again")
}

func TestTick_ConcurrentSweepsResumeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const sessions = 5
	for i := range sessions {
		f.start(t, fmt.Sprintf("+%d", i))
	}
	f.clock.Advance(time.Minute)

	const workers = 4
	reports := make([]scheduler.Report, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sched := scheduler.New(f.store, f.engine, scheduler.WithClock(f.clock.Now))
			rep, err := sched.Tick(ctx)
			assert.NoError(t, err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	resumed := 0
	for _, rep := range reports {
		resumed += rep.Resumed
		assert.Zero(t, rep.Failed)
	}
	assert.Equal(t, sessions, resumed)
	assert.Len(t, f.outbox.Deliveries(), sessions)
}

type failingResumer struct{}

func (failingResumer) Resume(context.Context, string) (*domain.RunResult, error) {
	return nil, errors.New("boom")
}

func TestTick_FailuresDoNotAbortSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.start(t, "+1")
	f.start(t, "+2")
	f.clock.Advance(time.Minute)

	sched := scheduler.New(f.store, failingResumer{}, scheduler.WithClock(f.clock.Now))
	rep, err := sched.Tick(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 2, Failed: 2}, rep)
}

func TestTick_StalledClaimIsRecovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t, "+1")
	f.clock.Advance(time.Minute)

	rep, err := scheduler.New(f.store, failingResumer{}, scheduler.WithClock(f.clock.Now)).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 1, Failed: 1}, rep)

	sched := scheduler.New(f.store, f.engine, scheduler.WithClock(f.clock.Now))
	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Due, "a fresh claim is not taken over")

	f.clock.Advance(domain.ClaimLease)
	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 1, Resumed: 1}, rep)
	require.Len(t, f.outbox.Deliveries(), 1)

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	res, err := f.engine.HandleInbound(ctx, domain.Inbound{BotID: "bot", Address: "+1", Text: "hello again"})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, res.Session.ID, "the address can start a new conversation")
}

func TestTick_FailedResumeIsRequeued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t, "+1")
	f.clock.Advance(time.Minute)
	sched := scheduler.New(f.store, f.engine, scheduler.WithClock(f.clock.Now))

	f.vars.down.Store(true)
	rep, err := sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 1, Failed: 1}, rep)

	stored, err := f.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, stored.Status)
	require.NotNil(t, stored.ResumeAt)
	assert.True(t, f.clock.Now().Add(domain.ClaimLease).Equal(*stored.ResumeAt))
	assert.Empty(t, f.outbox.Deliveries())

	f.vars.down.Store(false)
	f.clock.Advance(domain.ClaimLease)
	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Report{Due: 1, Resumed: 1}, rep)
	require.Len(t, f.outbox.Deliveries(), 1)
	assert.Equal(t, "Thanks for waiting", f.outbox.Deliveries()[0].Text)
}

func TestTick_BatchSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := range 3 {
		f.start(t, fmt.Sprintf("+%d", i))
	}
	f.clock.Advance(time.Minute)

	sched := scheduler.New(f.store, f.engine, scheduler.WithClock(f.clock.Now), scheduler.WithBatchSize(2))
	rep, err := sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Resumed)

	rep, err = sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Resumed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.start(t, "+1")
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(f.store, f.engine,
		scheduler.WithClock(f.clock.Now),
		scheduler.WithInterval(10*time.Millisecond),
	)

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.outbox.Deliveries()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
