// Package adapter normalizes loosely structured worker status payloads into
// canonical task snapshots.
package adapter

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/veranemoloko/video-tracker/internal/domain"
)

// ListShape is a JSON path whose target must be a list to match.
type ListShape []string

func (s ListShape) String() string { return strings.Join(s, ".") }

// VideoShapes lists where collection jobs put their video list, in priority order.
func VideoShapes() []ListShape {
	return []ListShape{
		{"result", "videos"},
		{"result"},
		{"result", "result", "videos"},
	}
}

// SceneShapes lists where scene-detection jobs put their scene list, in priority order.
func SceneShapes() []ListShape {
	return []ListShape{
		{"result", "scenes"},
		{"result"},
		{"result", "result", "scenes"},
	}
}

// Adapter parses raw status responses. It is stateless and safe for concurrent use.
type Adapter struct {
	shapes []ListShape
}

// New creates an Adapter that extracts result lists using shapes, first match wins.
func New(shapes []ListShape) *Adapter {
	return &Adapter{shapes: shapes}
}

// Parse converts a raw status payload into a TaskSnapshot. It never fails:
// undecodable input yields an Unknown snapshot and missing fields are skipped.
func (a *Adapter) Parse(raw []byte) domain.TaskSnapshot {
	fields, ok := object(raw)
	if !ok {
		return domain.TaskSnapshot{State: domain.TaskStateUnknown}
	}

	status, _ := str(fields["status"])
	snap := domain.TaskSnapshot{
		State:     MapStatus(status),
		RawStatus: status,
		Progress:  parseProgress(fields),
	}

	if snap.State == domain.TaskStateFailed {
		snap.ErrorMessage, _ = str(fields["error"])
	}

	if result, present := fields["result"]; (present && !isNull(result)) || snap.State == domain.TaskStateSucceeded {
		snap.Result = &domain.TaskResult{
			Items: a.extractList(fields),
			Raw:   fields["result"],
		}
	}

	return snap
}

// MapStatus maps a wire status string to a TaskState by exact, case-sensitive match.
func MapStatus(status string) domain.TaskState {
	switch status {
	case domain.WireStatusPending:
		return domain.TaskStatePending
	case domain.WireStatusProgress:
		return domain.TaskStateRunning
	case domain.WireStatusSuccess:
		return domain.TaskStateSucceeded
	case domain.WireStatusFailure:
		return domain.TaskStateFailed
	default:
		return domain.TaskStateUnknown
	}
}

func (a *Adapter) extractList(fields map[string]json.RawMessage) []json.RawMessage {
	for _, shape := range a.shapes {
		if items, ok := lookupList(fields, shape); ok {
			return items
		}
	}
	return []json.RawMessage{}
}

func lookupList(fields map[string]json.RawMessage, path ListShape) ([]json.RawMessage, bool) {
	if len(path) == 0 {
		return nil, false
	}

	current := fields
	for _, key := range path[:len(path)-1] {
		next, ok := object(current[key])
		if !ok {
			return nil, false
		}
		current = next
	}

	return list(current[path[len(path)-1]])
}

// parseProgress accepts the nested {current,total,status} object and the flat
// {progress: n, total: n, status_message} shape used by scene detection.
func parseProgress(fields map[string]json.RawMessage) *domain.ProgressSnapshot {
	raw, present := fields["progress"]
	if !present || isNull(raw) {
		return nil
	}

	if nested, ok := object(raw); ok {
		p := &domain.ProgressSnapshot{}
		p.Current, _ = number(nested["current"])
		p.Total, _ = number(nested["total"])
		p.Message, _ = str(nested["status"])
		return p
	}

	if current, ok := number(raw); ok {
		p := &domain.ProgressSnapshot{Current: current}
		p.Total, _ = number(fields["total"])
		p.Message, _ = str(fields["status_message"])
		return p
	}

	return nil
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func list(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func str(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return 0, false
	}
	return f, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
