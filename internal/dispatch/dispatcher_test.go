package dispatch

import (
	"context"
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
	"github.com/veranemoloko/video-tracker/internal/poller"
)

func newTestPoller() *poller.Poller {
	return poller.NewPoller(adapter.New(adapter.VideoShapes()), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// sequence answers with responses in order, repeating the last one.
func sequence(responses ...string) poller.StatusQuery {
	var mu sync.Mutex
	i := 0
	return poller.StatusQueryFunc(func(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return []byte(r), nil
	})
}

type counts struct {
	success  atomic.Int32
	failure  atomic.Int32
	reset    atomic.Int32
	snapshot atomic.Int32

	mu      sync.Mutex
	result  domain.TaskResult
	message string
}

func (c *counts) callbacks() Callbacks {
	return Callbacks{
		OnSnapshot: func(domain.TaskSnapshot) { c.snapshot.Add(1) },
		OnSuccess: func(r domain.TaskResult) {
			c.mu.Lock()
			c.result = r
			c.mu.Unlock()
			c.success.Add(1)
		},
		OnFailure: func(msg string) {
			c.mu.Lock()
			c.message = msg
			c.mu.Unlock()
			c.failure.Add(1)
		},
		OnReset: func() { c.reset.Add(1) },
	}
}

func TestDispatcher_SuccessDeliveredOnce(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks())

	success := domain.TaskSnapshot{State: domain.TaskStateSucceeded, Result: &domain.TaskResult{}}
	d.Observe(domain.TaskSnapshot{State: domain.TaskStateRunning})
	d.Observe(success)
	d.Observe(success)
	d.Observe(success)
	d.Observe(domain.TaskSnapshot{State: domain.TaskStateFailed, ErrorMessage: "late"})

	assert.Equal(t, int32(1), c.success.Load())
	assert.Equal(t, int32(0), c.failure.Load())
	assert.Equal(t, int32(2), c.snapshot.Load())
	assert.True(t, d.Delivered())
}

func TestDispatcher_FailureDeliveredOnce(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks())

	for i := 0; i < 5; i++ {
		d.Observe(domain.TaskSnapshot{State: domain.TaskStateFailed, ErrorMessage: "quota exceeded"})
	}

	assert.Equal(t, int32(1), c.failure.Load())
	assert.Equal(t, "quota exceeded", c.message)
}

func TestDispatcher_ConcurrentTerminalSnapshots(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), c.success.Load())
}

func TestDispatcher_SuccessWithoutResult(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks())

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})

	require.Equal(t, int32(1), c.success.Load())
	assert.NotNil(t, c.result.Items)
	assert.Empty(t, c.result.Items)
}

func TestStart_SuccessScenario(t *testing.T) {
	c := &counts{}
	p := newTestPoller()
	query := sequence(
		`{"status":"PENDING"}`,
		`{"status":"SUCCESS","result":{"videos":[{"title":"v1"},{"title":"v2"}]}}`,
	)

	d := Start(context.Background(), p, "task-c", query, poller.Config{Interval: 5 * time.Millisecond, Immediate: true}, c.callbacks())
	defer d.Close()

	require.Eventually(t, func() bool { return c.success.Load() == 1 }, time.Second, time.Millisecond)
	<-d.Session().Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	videos := c.result.Videos()
	require.Len(t, videos, 2)
	assert.Equal(t, "v1", videos[0].Title)
	assert.Equal(t, "v2", videos[1].Title)
	assert.Equal(t, int64(2), d.Session().Queries())
}

func TestStart_FailureScenario(t *testing.T) {
	c := &counts{}
	p := newTestPoller()
	query := sequence(`{"status":"FAILURE","error":"quota exceeded"}`)

	d := Start(context.Background(), p, "task-d", query, poller.Config{Interval: 5 * time.Millisecond, Immediate: true}, c.callbacks())
	<-d.Session().Done()

	assert.Equal(t, int32(1), c.failure.Load())
	assert.Equal(t, int32(0), c.success.Load())
	assert.Equal(t, int64(1), d.Session().Queries())
}

func TestDispatcher_CloseCancelsDelivery(t *testing.T) {
	c := &counts{}
	p := newTestPoller()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	query := poller.StatusQueryFunc(func(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		return []byte(`{"status":"SUCCESS"}`), nil
	})

	d := Start(context.Background(), p, "task-close", query, poller.Config{Interval: time.Millisecond, Immediate: true}, c.callbacks())
	<-started
	d.Close()
	d.Close()
	close(release)
	<-d.Session().Done()

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})

	assert.True(t, d.Closed())
	assert.Equal(t, int32(0), c.success.Load())
	assert.Equal(t, int32(0), c.snapshot.Load())
}

func TestDispatcher_AutoReset(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks(), WithAutoReset(10*time.Millisecond))

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})

	require.Eventually(t, func() bool { return c.reset.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), c.reset.Load())
}

func TestDispatcher_NoAutoResetAfterFailure(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks(), WithAutoReset(5*time.Millisecond))

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateFailed})

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), c.reset.Load())
}

func TestDispatcher_CloseCancelsAutoReset(t *testing.T) {
	c := &counts{}
	d := New(newTestPoller(), c.callbacks(), WithAutoReset(20*time.Millisecond))

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})
	d.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), c.reset.Load())
}

func TestDispatcher_NilCallbacks(t *testing.T) {
	d := New(newTestPoller(), Callbacks{}, WithAutoReset(time.Millisecond))

	assert.NotPanics(t, func() {
		d.Observe(domain.TaskSnapshot{State: domain.TaskStateRunning})
		d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})
		d.Close()
	})
	assert.Nil(t, d.Session())
}

func TestWithAutoReset_Default(t *testing.T) {
	d := New(newTestPoller(), Callbacks{}, WithAutoReset(0))
	assert.Equal(t, DefaultAutoReset, d.autoReset)

	d = New(newTestPoller(), Callbacks{})
	assert.Zero(t, d.autoReset)
}

func TestDispatcher_CloseDuringSnapshotSuppressesDelivery(t *testing.T) {
	c := &counts{}
	var d *Dispatcher
	cb := c.callbacks()
	cb.OnSnapshot = func(domain.TaskSnapshot) {
		c.snapshot.Add(1)
		closed := make(chan struct{})
		go func() {
			d.Close()
			close(closed)
		}()
		<-closed
	}
	d = New(newTestPoller(), cb, WithAutoReset(time.Millisecond))

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateSucceeded})

	assert.True(t, d.Closed())
	assert.True(t, d.Delivered())
	assert.Equal(t, int32(1), c.snapshot.Load())
	assert.Equal(t, int32(0), c.success.Load())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), c.reset.Load())
}

func TestDispatcher_CloseDuringSnapshotSuppressesFailure(t *testing.T) {
	c := &counts{}
	var d *Dispatcher
	cb := c.callbacks()
	cb.OnSnapshot = func(domain.TaskSnapshot) { d.Close() }
	d = New(newTestPoller(), cb)

	d.Observe(domain.TaskSnapshot{State: domain.TaskStateFailed, ErrorMessage: "boom"})

	assert.Equal(t, int32(0), c.failure.Load())
}
