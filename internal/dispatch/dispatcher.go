// Package dispatch delivers completion and failure notifications for a poll
// session at most once.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/veranemoloko/video-tracker/internal/domain"
	"github.com/veranemoloko/video-tracker/internal/poller"
)

// DefaultAutoReset is the delay before displayed state is cleared after a success.
const DefaultAutoReset = 3 * time.Second

// Callbacks are the consumer hooks. Any of them may be nil.
type Callbacks struct {
	OnSnapshot func(snap domain.TaskSnapshot)
	OnSuccess  func(result domain.TaskResult)
	OnFailure  func(message string)
	OnReset    func()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAutoReset schedules Callbacks.OnReset d after a successful delivery.
// A non-positive d selects DefaultAutoReset.
func WithAutoReset(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d <= 0 {
			d = DefaultAutoReset
		}
		dp.autoReset = d
	}
}

// Dispatcher wraps a poll session and guarantees that the success or failure
// callback runs at most once.
type Dispatcher struct {
	poller    *poller.Poller
	callbacks Callbacks
	autoReset time.Duration

	mu         sync.Mutex
	session    *poller.Session
	delivered  bool
	closed     bool
	resetTimer *time.Timer
}

// New creates a Dispatcher that is not yet attached to a session. Observe can
// be driven directly; Start attaches it to a live session.
func New(p *poller.Poller, cb Callbacks, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		poller:    p,
		callbacks: cb,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start creates a Dispatcher and begins polling handle through p.
func Start(ctx context.Context, p *poller.Poller, handle domain.TaskHandle, query poller.StatusQuery, cfg poller.Config, cb Callbacks, opts ...Option) *Dispatcher {
	d := New(p, cb, opts...)
	s := p.Start(ctx, handle, query, cfg, d.Observe)

	d.mu.Lock()
	d.session = s
	closed := d.closed
	d.mu.Unlock()

	if closed {
		p.Stop(s)
	}
	return d
}

// Observe handles one snapshot. Snapshots after the first terminal one, or
// after Close, are ignored. A Close that returns while OnSnapshot runs also
// suppresses the terminal callback. Close does not wait for a callback that
// has already started.
func (d *Dispatcher) Observe(snap domain.TaskSnapshot) {
	d.mu.Lock()
	if d.closed || d.delivered {
		d.mu.Unlock()
		return
	}

	terminal := snap.State.IsTerminal()
	if terminal {
		d.delivered = true
	}
	d.mu.Unlock()

	if d.callbacks.OnSnapshot != nil {
		d.callbacks.OnSnapshot(snap)
	}

	if !terminal || d.Closed() {
		return
	}

	switch snap.State {
	case domain.TaskStateSucceeded:
		if d.callbacks.OnSuccess != nil {
			result := domain.TaskResult{Items: []json.RawMessage{}}
			if snap.Result != nil {
				result = *snap.Result
			}
			d.callbacks.OnSuccess(result)
		}
		d.scheduleReset()
	case domain.TaskStateFailed:
		if d.callbacks.OnFailure != nil {
			d.callbacks.OnFailure(snap.ErrorMessage)
		}
	}
}

func (d *Dispatcher) scheduleReset() {
	if d.autoReset <= 0 || d.callbacks.OnReset == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.resetTimer = time.AfterFunc(d.autoReset, d.reset)
	}
}

func (d *Dispatcher) reset() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.resetTimer = nil
	d.mu.Unlock()

	d.callbacks.OnReset()
}

// Close stops the underlying session and cancels any pending delivery or
// auto-reset. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.resetTimer != nil {
		d.resetTimer.Stop()
		d.resetTimer = nil
	}
	s := d.session
	d.mu.Unlock()

	if s != nil {
		d.poller.Stop(s)
	}
}

// Session returns the attached poll session, nil before Start attaches one.
func (d *Dispatcher) Session() *poller.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Delivered reports whether a terminal notification has been delivered.
func (d *Dispatcher) Delivered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
