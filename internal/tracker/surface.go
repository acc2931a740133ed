package tracker

import (
	"fmt"

	"github.com/veranemoloko/video-tracker/internal/adapter"
	"github.com/veranemoloko/video-tracker/internal/domain"
	"github.com/veranemoloko/video-tracker/internal/progress"
)

const (
	downloadProgressMessage = "Downloading..."
	downloadSuccessMessage  = "Download completed successfully!"
	defaultFailureMessage   = "The task failed."
)

// rules are the per-surface rendering differences.
type rules struct {
	shapes          []adapter.ListShape
	progressMessage string
	succeed         func(v *domain.PanelView, result domain.TaskResult)
	fail            func(message string) string
}

func rulesFor(surface domain.Surface) rules {
	switch surface {
	case domain.SurfaceCollection:
		return rules{
			shapes: adapter.VideoShapes(),
			succeed: func(v *domain.PanelView, result domain.TaskResult) {
				v.Videos = result.Videos()
				v.Message = fmt.Sprintf("%d videos collected", len(v.Videos))
			},
			fail: orDefault,
		}
	case domain.SurfaceDownload:
		return rules{
			progressMessage: downloadProgressMessage,
			succeed: func(v *domain.PanelView, _ domain.TaskResult) {
				pct := 100.0
				v.Percentage = &pct
				v.ProgressLabel = progress.Report{Percentage: &pct}.Label()
				v.Message = downloadSuccessMessage
			},
			fail: func(message string) string {
				return "Download failed: " + orDefault(message)
			},
		}
	case domain.SurfaceSceneDetection:
		return rules{
			shapes: adapter.SceneShapes(),
			succeed: func(v *domain.PanelView, result domain.TaskResult) {
				v.Scenes = result.Scenes()
				v.Message = fmt.Sprintf("%d scenes detected", len(v.Scenes))
			},
			fail: orDefault,
		}
	}
	return rules{fail: orDefault}
}

func orDefault(message string) string {
	if message == "" {
		return defaultFailureMessage
	}
	return message
}

// StatusText is the display text for a task state. Unknown states show the
// worker's raw status string.
func StatusText(state domain.TaskState, raw string) string {
	switch state {
	case domain.TaskStatePending:
		return "Waiting..."
	case domain.TaskStateRunning:
		return "Processing..."
	case domain.TaskStateSucceeded:
		return "Completed!"
	case domain.TaskStateFailed:
		return "Failed"
	default:
		return raw
	}
}

// applySnapshot renders one status snapshot onto v.
func applySnapshot(v *domain.PanelView, snap domain.TaskSnapshot, r rules) {
	v.Status = snap.RawStatus

	if snap.State == domain.TaskStateUnknown {
		v.StatusText = StatusText(snap.State, snap.RawStatus)
	} else {
		v.State = v.State.Advance(snap.State)
		v.StatusText = StatusText(v.State, snap.RawStatus)
	}

	if snap.Progress == nil {
		return
	}
	report := progress.Derive(snap.Progress)
	v.Percentage = report.Percentage
	v.ProgressLabel = report.Label()
	v.Message = report.Message
	if v.Message == "" {
		v.Message = r.progressMessage
	}
}
