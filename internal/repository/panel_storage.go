package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/veranemoloko/video-tracker/internal/domain"
	errpkg "github.com/veranemoloko/video-tracker/internal/errors"
)

// PanelStorage keeps the latest rendered view of every surface in memory.
type PanelStorage struct {
	mu     sync.RWMutex
	panels map[domain.Surface]domain.PanelView
	logger *slog.Logger
}

// NewPanelStorage creates an empty PanelStorage.
func NewPanelStorage(logger *slog.Logger) *PanelStorage {
	return &PanelStorage{
		panels: make(map[domain.Surface]domain.PanelView),
		logger: logger,
	}
}

// SavePanel replaces the stored view of view.Surface.
func (r *PanelStorage) SavePanel(ctx context.Context, view domain.PanelView) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.panels[view.Surface] = clonePanel(view)
	r.mu.Unlock()

	r.logger.Debug("panel saved",
		"surface", view.Surface,
		"task_id", view.TaskID,
		"state", view.State,
	)
	return nil
}

// GetPanel returns the stored view of surface.
func (r *PanelStorage) GetPanel(ctx context.Context, surface domain.Surface) (domain.PanelView, error) {
	if err := ctx.Err(); err != nil {
		return domain.PanelView{}, err
	}

	r.mu.RLock()
	view, ok := r.panels[surface]
	r.mu.RUnlock()

	if !ok {
		return domain.PanelView{}, errpkg.ErrPanelNotFound
	}
	return clonePanel(view), nil
}

// ListPanels returns every stored view ordered by surface.
func (r *PanelStorage) ListPanels(ctx context.Context) ([]domain.PanelView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	views := make([]domain.PanelView, 0, len(r.panels))
	for _, view := range r.panels {
		views = append(views, clonePanel(view))
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].Surface < views[j].Surface
	})
	return views, nil
}

// DeletePanel removes the view of surface. Deleting a missing panel is not an error.
func (r *PanelStorage) DeletePanel(ctx context.Context, surface domain.Surface) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.panels, surface)
	r.mu.Unlock()

	r.logger.Debug("panel deleted", "surface", surface)
	return nil
}

// clonePanel copies the slices and pointers of view so callers cannot mutate stored state.
func clonePanel(view domain.PanelView) domain.PanelView {
	if view.Percentage != nil {
		pct := *view.Percentage
		view.Percentage = &pct
	}
	if view.Videos != nil {
		view.Videos = append([]domain.Video(nil), view.Videos...)
	}
	if view.Scenes != nil {
		view.Scenes = append([]domain.Scene(nil), view.Scenes...)
	}
	if view.Result != nil {
		view.Result = append([]byte(nil), view.Result...)
	}
	return view
}
