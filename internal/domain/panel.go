package domain

import (
	"encoding/json"
	"time"
)

// Surface identifies one UI panel kind that tracks a job.
type Surface string

const (
	SurfaceCollection     Surface = "collection"
	SurfaceDownload       Surface = "download"
	SurfaceSceneDetection Surface = "scene-detection"
)

// Surfaces lists every known surface in display order.
func Surfaces() []Surface {
	return []Surface{SurfaceCollection, SurfaceDownload, SurfaceSceneDetection}
}

// Valid reports whether s is a known surface.
func (s Surface) Valid() bool {
	switch s {
	case SurfaceCollection, SurfaceDownload, SurfaceSceneDetection:
		return true
	}
	return false
}

// PanelView is the rendered state of a surface.
type PanelView struct {
	Surface       Surface         `json:"surface"`
	TaskID        TaskHandle      `json:"task_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	State         TaskState       `json:"state,omitempty"`
	Status        string          `json:"status,omitempty"`
	StatusText    string          `json:"status_text,omitempty"`
	Percentage    *float64        `json:"percentage,omitempty"`
	ProgressLabel string          `json:"progress_label,omitempty"`
	Message       string          `json:"message,omitempty"`
	Videos        []Video         `json:"videos,omitempty"`
	Scenes        []Scene         `json:"scenes,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Active        bool            `json:"active"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SubmitResponse is returned to callers after a job was accepted and is being tracked.
type SubmitResponse struct {
	TaskID  TaskHandle `json:"task_id"`
	Surface Surface    `json:"surface"`
}
