// Package progress derives display-ready progress from worker progress reports.
package progress

import (
	"math"
	"strconv"

	"github.com/veranemoloko/video-tracker/internal/domain"
)

// Report is the human-facing progress derived from a ProgressSnapshot.
// Percentage is nil when it cannot be computed.
type Report struct {
	Percentage *float64 `json:"percentage,omitempty"`
	Message    string   `json:"message"`
}

// Derive computes the clamped percentage and passes the status text through.
func Derive(p *domain.ProgressSnapshot) Report {
	if p == nil {
		return Report{}
	}

	r := Report{Message: p.Message}
	if p.Total > 0 && !math.IsNaN(p.Current) {
		pct := clamp(p.Current / p.Total * 100)
		r.Percentage = &pct
	}
	return r
}

// Label formats the percentage for display, e.g. "30%". Empty when absent.
func (r Report) Label() string {
	if r.Percentage == nil {
		return ""
	}
	return strconv.FormatFloat(math.Round(*r.Percentage), 'f', 0, 64) + "%"
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
