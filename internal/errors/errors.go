package errors

import "errors"

var (
	ErrPanelNotFound   = errors.New("panel not found")
	ErrUnknownSurface  = errors.New("unknown surface")
	ErrServiceClosed   = errors.New("service is shutting down")
	ErrEmptyTaskHandle = errors.New("worker returned an empty task id")
)
