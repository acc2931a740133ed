package repository

import (
	"context"

	"github.com/veranemoloko/video-tracker/internal/domain"
)

// PanelRepo defines the interface for panel view storage operations.
type PanelRepo interface {
	SavePanel(ctx context.Context, view domain.PanelView) error
	GetPanel(ctx context.Context, surface domain.Surface) (domain.PanelView, error)
	ListPanels(ctx context.Context) ([]domain.PanelView, error)
	DeletePanel(ctx context.Context, surface domain.Surface) error
}
