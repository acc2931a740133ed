package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/video-tracker/internal/adapter"
	"github.com/veranemoloko/video-tracker/internal/domain"
)

const testInterval = 5 * time.Millisecond

type step struct {
	raw string
	err error
}

// scriptedQuery replays steps in order and repeats the last one forever.
type scriptedQuery struct {
	mu    sync.Mutex
	steps []step
	calls int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (q *scriptedQuery) QueryStatus(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
	n := q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	for {
		m := q.maxInFlight.Load()
		if n <= m || q.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	q.mu.Lock()
	idx := q.calls
	if idx >= len(q.steps) {
		idx = len(q.steps) - 1
	}
	q.calls++
	s := q.steps[idx]
	q.mu.Unlock()

	time.Sleep(time.Millisecond)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.raw), nil
}

type recorder struct {
	mu    sync.Mutex
	snaps []domain.TaskSnapshot
}

func (r *recorder) observe(snap domain.TaskSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) states() []domain.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TaskState, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.State)
	}
	return out
}

func newTestPoller() *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(adapter.New(adapter.VideoShapes()), logger)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestPoller_PendingKeepsPolling(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"PENDING"}`}}}
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-a", q, Config{Interval: testInterval, Immediate: true}, rec.observe)
	defer p.Stop(s)

	require.Eventually(t, func() bool { return s.Queries() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.TaskStatePending, s.Last().State)
	assert.False(t, s.Terminal())
}

func TestPoller_StopsAtTerminalState(t *testing.T) {
	q := &scriptedQuery{steps: []step{
		{raw: `{"status":"PENDING"}`},
		{raw: `{"status":"PROGRESS","progress":{"current":3,"total":10,"status":"searching"}}`},
		{raw: `{"status":"SUCCESS","result":{"videos":[{"title":"v1"},{"title":"v2"}]}}`},
	}}
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-c", q, Config{Interval: testInterval, Immediate: true}, rec.observe)
	waitDone(t, s)

	assert.Equal(t, int64(3), s.Queries())
	time.Sleep(10 * testInterval)
	assert.Equal(t, int64(3), s.Queries(), "no query after terminal state")

	assert.Equal(t, []domain.TaskState{domain.TaskStatePending, domain.TaskStateRunning, domain.TaskStateSucceeded}, rec.states())
	assert.True(t, s.Terminal())
	assert.Equal(t, domain.TaskStateSucceeded, s.State())
	require.NotNil(t, s.Last().Result)
	assert.Len(t, s.Last().Result.Items, 2)
	assert.NoError(t, s.Err())
}

func TestPoller_FailureStopsPolling(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"FAILURE","error":"quota exceeded"}`}}}
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-d", q, Config{Interval: testInterval, Immediate: true}, rec.observe)
	waitDone(t, s)

	assert.Equal(t, int64(1), s.Queries())
	assert.Equal(t, domain.TaskStateFailed, s.State())
	assert.Equal(t, "quota exceeded", s.Last().ErrorMessage)
}

func TestPoller_TransportErrorKeepsPolling(t *testing.T) {
	q := &scriptedQuery{steps: []step{
		{raw: `{"status":"PENDING"}`},
		{err: errors.New("connection refused")},
		{raw: `{"status":"SUCCESS","result":[]}`},
	}}
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-e", q, Config{Interval: testInterval, Immediate: true}, rec.observe)
	waitDone(t, s)

	assert.Equal(t, int64(3), s.Queries())
	assert.Equal(t, []domain.TaskState{domain.TaskStatePending, domain.TaskStateSucceeded}, rec.states(),
		"the failed tick must not produce a snapshot")
	assert.Equal(t, domain.TaskStateSucceeded, s.State())
}

func TestPoller_UnknownStatusKeepsPolling(t *testing.T) {
	q := &scriptedQuery{steps: []step{
		{raw: `{"status":"RETRY"}`},
		{raw: `{"status":"SUCCESS"}`},
	}}
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-u", q, Config{Interval: testInterval, Immediate: true}, rec.observe)
	waitDone(t, s)

	assert.Equal(t, []domain.TaskState{domain.TaskStateUnknown, domain.TaskStateSucceeded}, rec.states())
}

func TestPoller_StateNeverRegresses(t *testing.T) {
	q := &scriptedQuery{steps: []step{
		{raw: `{"status":"PROGRESS"}`},
		{raw: `{"status":"PENDING"}`},
	}}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-r", q, Config{Interval: testInterval, Immediate: true}, nil)
	defer p.Stop(s)

	require.Eventually(t, func() bool { return s.Queries() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.TaskStateRunning, s.State())
	assert.Equal(t, domain.TaskStatePending, s.Last().State)
}

func TestPoller_DelayedFirstQuery(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"PENDING"}`}}}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-delay", q, Config{Interval: 200 * time.Millisecond}, nil)
	defer p.Stop(s)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), s.Queries())
}

func TestPoller_TicksNeverOverlap(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"PROGRESS"}`}}}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-seq", q, Config{Interval: time.Microsecond, Immediate: true}, nil)
	require.Eventually(t, func() bool { return s.Queries() >= 20 }, 2*time.Second, time.Millisecond)
	p.Stop(s)
	waitDone(t, s)

	assert.Equal(t, int32(1), q.maxInFlight.Load())
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"PENDING"}`}}}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-stop", q, Config{Interval: testInterval, Immediate: true}, nil)
	p.Stop(s)
	p.Stop(s)
	p.Stop(nil)
	waitDone(t, s)

	assert.ErrorIs(t, s.Err(), context.Canceled)

	n := s.Queries()
	time.Sleep(10 * testInterval)
	assert.Equal(t, n, s.Queries())
}

func TestPoller_StopAfterTerminal(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"SUCCESS"}`}}}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-done", q, Config{Interval: testInterval, Immediate: true}, nil)
	waitDone(t, s)

	assert.NotPanics(t, func() { p.Stop(s) })
	assert.NoError(t, s.Err())
	assert.True(t, s.Terminal())
}

func TestPoller_StopDiscardsInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	query := StatusQueryFunc(func(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		return []byte(`{"status":"SUCCESS"}`), nil
	})
	rec := &recorder{}
	p := newTestPoller()

	s := p.Start(context.Background(), "task-inflight", query, Config{Interval: testInterval, Immediate: true}, rec.observe)
	<-started
	p.Stop(s)
	close(release)
	waitDone(t, s)

	assert.Empty(t, rec.states())
	assert.False(t, s.Terminal())
	assert.Equal(t, int64(1), s.Queries())
}

func TestPoller_ParentContextCancel(t *testing.T) {
	q := &scriptedQuery{steps: []step{{raw: `{"status":"PENDING"}`}}}
	p := newTestPoller()

	ctx, cancel := context.WithCancel(context.Background())
	s := p.Start(ctx, "task-parent", q, Config{Interval: testInterval, Immediate: true}, nil)
	cancel()
	waitDone(t, s)

	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestPoller_SessionsAreIsolated(t *testing.T) {
	done := &scriptedQuery{steps: []step{{raw: `{"status":"SUCCESS"}`}}}
	pending := &scriptedQuery{steps: []step{{raw: `{"status":"PENDING"}`}}}
	p := newTestPoller()

	a := p.Start(context.Background(), "task-1", done, Config{Interval: testInterval, Immediate: true}, nil)
	b := p.Start(context.Background(), "task-2", pending, Config{Interval: testInterval, Immediate: true}, nil)
	defer p.Stop(b)

	waitDone(t, a)
	require.Eventually(t, func() bool { return b.Queries() >= 3 }, time.Second, time.Millisecond)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, domain.TaskHandle("task-2"), b.Handle())
	assert.Equal(t, domain.TaskStateSucceeded, a.State())
	assert.Equal(t, domain.TaskStatePending, b.State())
}
