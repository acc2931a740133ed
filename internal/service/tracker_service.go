package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/veranemoloko/video-tracker/internal/domain"
	errpkg "github.com/veranemoloko/video-tracker/internal/errors"
	"github.com/veranemoloko/video-tracker/internal/metrics"
)

// JobSubmitter creates jobs on the worker and returns their task handles.
type JobSubmitter interface {
	SubmitCollection(ctx context.Context, req domain.CollectRequest) (domain.TaskHandle, error)
	SubmitDownload(ctx context.Context, req domain.DownloadRequest) (domain.TaskHandle, error)
	SubmitMultipleDownload(ctx context.Context, req domain.MultipleDownloadRequest) (domain.TaskHandle, error)
	SubmitSceneDetection(ctx context.Context, req domain.SceneDetectionRequest, video io.Reader) (domain.TaskHandle, error)
}

// PanelTracker tracks task handles per surface.
type PanelTracker interface {
	Track(ctx context.Context, surface domain.Surface, handle domain.TaskHandle) (domain.PanelView, error)
	Close(ctx context.Context, surface domain.Surface) error
	Get(ctx context.Context, surface domain.Surface) (domain.PanelView, error)
	List(ctx context.Context) ([]domain.PanelView, error)
	Shutdown(ctx context.Context) error
}

// TrackerService submits jobs to the worker and hands their task handles to
// the tracker.
type TrackerService struct {
	worker  JobSubmitter
	tracker PanelTracker
	logger  *slog.Logger

	// sessions outlive the request that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewTrackerService(worker JobSubmitter, tracker PanelTracker, logger *slog.Logger) *TrackerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &TrackerService{
		worker:  worker,
		tracker: tracker,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *TrackerService) CollectVideos(ctx context.Context, req domain.CollectRequest) (domain.SubmitResponse, error) {
	return s.submit(ctx, domain.SurfaceCollection, func() (domain.TaskHandle, error) {
		return s.worker.SubmitCollection(ctx, req)
	})
}

func (s *TrackerService) DownloadVideo(ctx context.Context, req domain.DownloadRequest) (domain.SubmitResponse, error) {
	return s.submit(ctx, domain.SurfaceDownload, func() (domain.TaskHandle, error) {
		return s.worker.SubmitDownload(ctx, req)
	})
}

func (s *TrackerService) DownloadVideos(ctx context.Context, req domain.MultipleDownloadRequest) (domain.SubmitResponse, error) {
	return s.submit(ctx, domain.SurfaceDownload, func() (domain.TaskHandle, error) {
		return s.worker.SubmitMultipleDownload(ctx, req)
	})
}

func (s *TrackerService) DetectScenes(ctx context.Context, req domain.SceneDetectionRequest, video io.Reader) (domain.SubmitResponse, error) {
	return s.submit(ctx, domain.SurfaceSceneDetection, func() (domain.TaskHandle, error) {
		return s.worker.SubmitSceneDetection(ctx, req, video)
	})
}

func (s *TrackerService) submit(ctx context.Context, surface domain.Surface, create func() (domain.TaskHandle, error)) (domain.SubmitResponse, error) {
	if s.isClosed() {
		return domain.SubmitResponse{}, errpkg.ErrServiceClosed
	}

	// the worker call may retry for a while and must not hold off Shutdown
	handle, err := create()
	if err != nil {
		s.logger.Error("failed to submit job", "surface", surface, "error", err)
		return domain.SubmitResponse{}, fmt.Errorf("failed to submit %s job: %w", surface, err)
	}
	metrics.JobsSubmitted.WithLabelValues(string(surface)).Inc()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("job submitted during shutdown, not tracking", "surface", surface, "task_id", handle)
		return domain.SubmitResponse{}, errpkg.ErrServiceClosed
	}

	if _, err := s.tracker.Track(s.ctx, surface, handle); err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("failed to track task %s: %w", handle, err)
	}

	s.logger.Info("job submitted", "surface", surface, "task_id", handle)
	return domain.SubmitResponse{TaskID: handle, Surface: surface}, nil
}

func (s *TrackerService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *TrackerService) GetPanel(ctx context.Context, surface domain.Surface) (domain.PanelView, error) {
	return s.tracker.Get(ctx, surface)
}

func (s *TrackerService) ListPanels(ctx context.Context) ([]domain.PanelView, error) {
	return s.tracker.List(ctx)
}

func (s *TrackerService) ClosePanel(ctx context.Context, surface domain.Surface) error {
	return s.tracker.Close(ctx, surface)
}

// Shutdown rejects new jobs, closes every tracking session and waits for
// them to stop.
func (s *TrackerService) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down tracker service")

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.tracker.Shutdown(ctx)
	s.cancel()

	if err != nil {
		s.logger.Warn("tracker service shutdown timed out")
		return err
	}
	s.logger.Info("tracker service shutdown completed")
	return nil
}
