// Package poller runs the periodic status query loop for task handles.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/veranemoloko/video-tracker/internal/domain"
	"github.com/veranemoloko/video-tracker/internal/metrics"
)

// StatusQuery fetches the raw status payload for a task handle.
type StatusQuery interface {
	QueryStatus(ctx context.Context, handle domain.TaskHandle) ([]byte, error)
}

// StatusQueryFunc adapts a function to StatusQuery.
type StatusQueryFunc func(ctx context.Context, handle domain.TaskHandle) ([]byte, error)

func (f StatusQueryFunc) QueryStatus(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
	return f(ctx, handle)
}

// Parser turns a raw status payload into a snapshot. It must never fail.
type Parser interface {
	Parse(raw []byte) domain.TaskSnapshot
}

// Observer receives every snapshot a session produces, in order.
type Observer func(snap domain.TaskSnapshot)

// Config controls the schedule of a single session.
type Config struct {
	// Interval between the settlement of one query and the start of the next.
	Interval time.Duration
	// Immediate issues the first query right away instead of after Interval.
	Immediate bool
}

// Poller starts and stops poll sessions that share one Parser.
type Poller struct {
	parser Parser
	logger *slog.Logger
}

// NewPoller creates a Poller that feeds every response through parser.
func NewPoller(parser Parser, logger *slog.Logger) *Poller {
	return &Poller{
		parser: parser,
		logger: logger,
	}
}

// Start begins polling handle with query and returns the running session.
// The session ends when a terminal state is observed, Stop is called or ctx
// is cancelled.
func (p *Poller) Start(ctx context.Context, handle domain.TaskHandle, query StatusQuery, cfg Config, observer Observer) *Session {
	s := newSession(ctx, handle)

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Inc()

	p.logger.Debug("poll session started",
		"session_id", s.id,
		"task_id", handle,
		"interval", cfg.Interval,
		"immediate", cfg.Immediate,
	)

	go p.run(s, query, cfg, observer)
	return s
}

// Stop cancels any pending tick of s. It is safe to call more than once and
// on sessions that already finished.
func (p *Poller) Stop(s *Session) {
	if s == nil {
		return
	}
	if s.stop() {
		metrics.SessionsStopped.Inc()
		p.logger.Debug("poll session stopped", "session_id", s.id, "task_id", s.handle)
	}
}

func (p *Poller) run(s *Session, query StatusQuery, cfg Config, observer Observer) {
	defer close(s.done)
	defer metrics.ActiveSessions.Dec()
	defer s.cancel()

	if !cfg.Immediate && !s.wait(cfg.Interval) {
		return
	}

	for {
		if p.tick(s, query, observer) {
			return
		}
		if !s.wait(cfg.Interval) {
			return
		}
	}
}

// tick performs one query and reports whether polling must end.
func (p *Poller) tick(s *Session, query StatusQuery, observer Observer) bool {
	s.queries.Add(1)
	metrics.StatusQueries.Inc()

	start := time.Now()
	raw, err := query.QueryStatus(s.ctx, s.handle)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	if s.ctx.Err() != nil {
		return true
	}

	if err != nil {
		metrics.TransportErrors.Inc()
		p.logger.Warn("status query failed, will retry on next tick",
			"session_id", s.id,
			"task_id", s.handle,
			"error", err,
		)
		return false
	}

	snap := p.parser.Parse(raw)
	applied, terminal := s.apply(snap)
	if !applied {
		return true
	}

	if snap.State == domain.TaskStateUnknown {
		p.logger.Warn("unrecognized task status",
			"session_id", s.id,
			"task_id", s.handle,
			"status", snap.RawStatus,
		)
	}

	if observer != nil {
		observer(snap)
	}

	if terminal {
		switch s.State() {
		case domain.TaskStateSucceeded:
			metrics.SessionsSucceeded.Inc()
		case domain.TaskStateFailed:
			metrics.SessionsFailed.Inc()
		}
		p.logger.Info("task reached terminal state",
			"session_id", s.id,
			"task_id", s.handle,
			"state", s.State(),
			"queries", s.Queries(),
		)
	}

	return terminal
}

// wait blocks for d and reports false if the session was cancelled first.
func (s *Session) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
