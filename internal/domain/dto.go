package domain

// CollectRequest represents the request body for starting a video collection.
type CollectRequest struct {
	Mode        string   `json:"mode" validate:"omitempty,oneof=manual auto"`
	SearchQuery string   `json:"search_query" validate:"required_if=Mode manual,max=200"`
	ChannelIDs  []string `json:"channel_ids,omitempty" validate:"omitempty,max=50,dive,required"`
	FilterBy    string   `json:"filter_by" validate:"omitempty,oneof=relevance date"`
	TimeRange   string   `json:"time_range" validate:"omitempty,oneof=any hour day week month year"`
	MaxDuration *int     `json:"max_duration,omitempty" validate:"omitempty,min=0"`
}

// Normalize fills the defaults the worker API assumes.
func (r *CollectRequest) Normalize() {
	if r.Mode == "" {
		r.Mode = "manual"
	}
	if r.FilterBy == "" {
		r.FilterBy = "relevance"
	}
	if r.TimeRange == "" {
		r.TimeRange = "any"
	}
}

// DownloadRequest represents the request body for downloading one video.
type DownloadRequest struct {
	VideoURL     string `json:"video_url" validate:"required,safe_url"`
	FormatChoice string `json:"format_choice" validate:"omitempty,max=32"`
}

// MultipleDownloadRequest represents the request body for downloading a batch of videos.
type MultipleDownloadRequest struct {
	VideoURLs    []string `json:"video_urls" validate:"required,min=1,max=50"`
	FormatChoice string   `json:"format_choice" validate:"omitempty,max=32"`
}

// SceneDetectionRequest carries the detection parameters sent alongside the video file.
type SceneDetectionRequest struct {
	FileName          string  `validate:"required"`
	Method            string  `validate:"omitempty,oneof=adaptive content"`
	AdaptiveThreshold float64 `validate:"gte=0"`
	ContentThreshold  float64 `validate:"gte=0"`
}

// Normalize fills the worker defaults for unset detection parameters.
func (r *SceneDetectionRequest) Normalize() {
	if r.Method == "" {
		r.Method = "adaptive"
	}
	if r.AdaptiveThreshold == 0 {
		r.AdaptiveThreshold = 3.0
	}
	if r.ContentThreshold == 0 {
		r.ContentThreshold = 27.0
	}
}

// CreateTaskResponse is the body every job-creation call returns.
type CreateTaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
