// Package tracker hosts one tracked job per UI surface and renders its
// status into a PanelView.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veranemoloko/video-tracker/internal/adapter"
	"github.com/veranemoloko/video-tracker/internal/dispatch"
	"github.com/veranemoloko/video-tracker/internal/domain"
	errpkg "github.com/veranemoloko/video-tracker/internal/errors"
	"github.com/veranemoloko/video-tracker/internal/poller"
	"github.com/veranemoloko/video-tracker/internal/repository"
)

// Publisher receives every rendered view.
type Publisher interface {
	Publish(view domain.PanelView)
}

// SurfaceConfig configures how one surface polls its jobs.
type SurfaceConfig struct {
	Surface   domain.Surface
	Query     poller.StatusQuery
	Poll      poller.Config
	AutoReset time.Duration
}

type slot struct {
	surface domain.Surface
	cfg     SurfaceConfig
	rules   rules
	poller  *poller.Poller
	current *dispatch.Dispatcher
	gen     uint64
	view    domain.PanelView
}

// Tracker owns the active job of every configured surface.
type Tracker struct {
	mu     sync.Mutex
	slots  map[domain.Surface]*slot
	closed bool

	store     repository.PanelRepo
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Tracker for the given surfaces. publisher may be nil.
func New(configs []SurfaceConfig, store repository.PanelRepo, publisher Publisher, logger *slog.Logger) (*Tracker, error) {
	t := &Tracker{
		slots:     make(map[domain.Surface]*slot, len(configs)),
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}

	for _, cfg := range configs {
		if !cfg.Surface.Valid() {
			return nil, fmt.Errorf("%w: %q", errpkg.ErrUnknownSurface, cfg.Surface)
		}
		if cfg.Query == nil {
			return nil, fmt.Errorf("surface %s: status query is required", cfg.Surface)
		}
		if cfg.Poll.Interval <= 0 {
			return nil, fmt.Errorf("surface %s: poll interval must be positive", cfg.Surface)
		}

		r := rulesFor(cfg.Surface)
		surfaceLogger := logger.With("surface", cfg.Surface)
		t.slots[cfg.Surface] = &slot{
			surface: cfg.Surface,
			cfg:     cfg,
			rules:   r,
			poller:  poller.NewPoller(adapter.New(r.shapes), surfaceLogger),
			view:    domain.PanelView{Surface: cfg.Surface},
		}
	}

	return t, nil
}

// Track starts tracking handle on surface, replacing whatever the surface was
// tracking before. The session lives until it reaches a terminal state, the
// surface is closed or ctx is cancelled.
func (t *Tracker) Track(ctx context.Context, surface domain.Surface, handle domain.TaskHandle) (domain.PanelView, error) {
	if handle == "" {
		return domain.PanelView{}, errpkg.ErrEmptyTaskHandle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return domain.PanelView{}, errpkg.ErrServiceClosed
	}

	s, ok := t.slots[surface]
	if !ok {
		return domain.PanelView{}, fmt.Errorf("%w: %q", errpkg.ErrUnknownSurface, surface)
	}

	if s.current != nil {
		s.current.Close()
		t.logger.Info("replacing tracked task",
			"surface", surface,
			"previous_task_id", s.view.TaskID,
			"task_id", handle,
		)
	}

	s.gen++
	opts := []dispatch.Option{}
	if s.cfg.AutoReset > 0 {
		opts = append(opts, dispatch.WithAutoReset(s.cfg.AutoReset))
	}

	d := dispatch.Start(ctx, s.poller, handle, s.cfg.Query, s.cfg.Poll, t.callbacks(s, s.gen), opts...)
	s.current = d
	s.view = domain.PanelView{
		Surface:    surface,
		TaskID:     handle,
		SessionID:  d.Session().ID(),
		State:      domain.TaskStatePending,
		StatusText: StatusText(domain.TaskStatePending, ""),
		Active:     true,
	}
	t.commit(s)

	t.logger.Info("tracking task", "surface", surface, "task_id", handle, "session_id", s.view.SessionID)
	return s.view, nil
}

func (t *Tracker) callbacks(s *slot, gen uint64) dispatch.Callbacks {
	cb := dispatch.Callbacks{
		OnSnapshot: func(snap domain.TaskSnapshot) {
			t.render(s, gen, func(v *domain.PanelView) {
				applySnapshot(v, snap, s.rules)
			})
		},
		OnSuccess: func(result domain.TaskResult) {
			t.render(s, gen, func(v *domain.PanelView) {
				v.Active = false
				v.Result = result.Raw
				if s.rules.succeed != nil {
					s.rules.succeed(v, result)
				}
			})
		},
		OnFailure: func(message string) {
			t.render(s, gen, func(v *domain.PanelView) {
				v.Active = false
				v.Error = s.rules.fail(message)
			})
		},
	}
	if s.cfg.AutoReset > 0 {
		cb.OnReset = func() {
			t.render(s, gen, func(v *domain.PanelView) {
				*v = domain.PanelView{Surface: s.surface}
			})
		}
	}
	return cb
}

// render applies update to the surface view unless the session that produced
// it has since been replaced or closed.
func (t *Tracker) render(s *slot, gen uint64, update func(v *domain.PanelView)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.gen != gen {
		t.logger.Debug("dropping render from replaced session", "surface", s.surface)
		return
	}

	update(&s.view)
	t.commit(s)
}

// commit stores and publishes the current view. Callers hold t.mu.
func (t *Tracker) commit(s *slot) {
	s.view.UpdatedAt = t.now()

	if err := t.store.SavePanel(context.Background(), s.view); err != nil {
		t.logger.Error("failed to save panel", "surface", s.surface, "error", err)
	}
	if t.publisher != nil {
		t.publisher.Publish(s.view)
	}
}

// Close stops tracking on surface and removes its panel. Closing an idle
// surface is not an error.
func (t *Tracker) Close(ctx context.Context, surface domain.Surface) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[surface]
	if !ok {
		return fmt.Errorf("%w: %q", errpkg.ErrUnknownSurface, surface)
	}

	if s.current != nil {
		s.current.Close()
		s.current = nil
		t.logger.Info("tracking closed", "surface", surface, "task_id", s.view.TaskID)
	}

	s.gen++
	s.view = domain.PanelView{Surface: surface, UpdatedAt: t.now()}

	if err := t.store.DeletePanel(ctx, surface); err != nil {
		return fmt.Errorf("failed to delete panel: %w", err)
	}
	if t.publisher != nil {
		t.publisher.Publish(s.view)
	}
	return nil
}

// Get returns the current view of surface.
func (t *Tracker) Get(ctx context.Context, surface domain.Surface) (domain.PanelView, error) {
	if _, ok := t.slot(surface); !ok {
		return domain.PanelView{}, fmt.Errorf("%w: %q", errpkg.ErrUnknownSurface, surface)
	}
	return t.store.GetPanel(ctx, surface)
}

// List returns the views of every surface that has one.
func (t *Tracker) List(ctx context.Context) ([]domain.PanelView, error) {
	return t.store.ListPanels(ctx)
}

func (t *Tracker) slot(surface domain.Surface) (*slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[surface]
	return s, ok
}

// Shutdown closes every active session and waits for their loops to exit.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	var sessions []*poller.Session
	for _, s := range t.slots {
		if s.current == nil {
			continue
		}
		if sess := s.current.Session(); sess != nil {
			sessions = append(sessions, sess)
		}
		s.current.Close()
		s.current = nil
		s.gen++
	}
	t.mu.Unlock()

	t.logger.Info("shutting down tracker", "sessions", len(sessions))

	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			t.logger.Warn("tracker shutdown timed out")
			return ctx.Err()
		}
	}

	t.logger.Info("tracker shutdown completed")
	return nil
}
