package domain

import (
	"encoding/json"
)

// TaskHandle is the opaque identifier returned by a job-creation call.
type TaskHandle string

func (h TaskHandle) String() string { return string(h) }

// ProgressSnapshot is the progress sub-structure reported by the worker.
type ProgressSnapshot struct {
	Current float64 `json:"current"`
	Total   float64 `json:"total"`
	Message string  `json:"status"`
}

// TaskResult holds a job's result payload. Items is the normalized list
// (videos or scenes depending on the job kind) and Raw the untouched payload.
type TaskResult struct {
	Items []json.RawMessage `json:"items"`
	Raw   json.RawMessage   `json:"raw,omitempty"`
}

// Videos decodes Items as videos, skipping entries that do not decode.
func (r *TaskResult) Videos() []Video {
	return decodeItems[Video](r)
}

// Scenes decodes Items as scenes, skipping entries that do not decode.
func (r *TaskResult) Scenes() []Scene {
	return decodeItems[Scene](r)
}

func decodeItems[T any](r *TaskResult) []T {
	if r == nil {
		return nil
	}
	out := make([]T, 0, len(r.Items))
	for _, item := range r.Items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// TaskSnapshot is the normalized view of a job's status at one tick.
type TaskSnapshot struct {
	State        TaskState         `json:"state"`
	RawStatus    string            `json:"raw_status,omitempty"`
	Progress     *ProgressSnapshot `json:"progress,omitempty"`
	Result       *TaskResult       `json:"result,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// Video is a single collected video as reported by the collection job.
type Video struct {
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	Channel    string `json:"channel,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	UploadDate string `json:"upload_date,omitempty"`
	URL        string `json:"url"`
}

// Scene is a single detected scene boundary pair.
type Scene struct {
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	Duration   float64 `json:"duration"`
}
