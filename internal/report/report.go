// Package report summarizes one processing run.
package report

import (
	"time"

	"github.com/ibeckermayer/engage4me/internal/types"
)

// Halt reasons.
const (
	HaltExhausted = "feed_exhausted"
	HaltStalled   = "feed_stalled"
	HaltCancelled = "cancelled"
	HaltError     = "error"
)

// Run holds the counters and outcome of a single run.
type Run struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Ticks            int `json:"ticks"`
	Relevant         int `json:"relevant"`
	AlreadyProcessed int `json:"already_processed"`
	Engaged          int `json:"engaged"`
	SkippedNoComment int `json:"skipped_no_comment"`
	Failed           int `json:"failed"`
	Scrolls          int `json:"scrolls"`
	Breaks           int `json:"breaks"`

	HaltReason  string             `json:"halt_reason"`
	Engagements []types.Engagement `json:"engagements"`
	Errors      []string           `json:"errors,omitempty"`
}

// Duration is the wall-clock length of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddEngagement counts a confirmed engagement.
func (r *Run) AddEngagement(e types.Engagement) {
	r.Engaged++
	r.Engagements = append(r.Engagements, e)
}

// AddError counts an ordinal that failed and keeps its message.
func (r *Run) AddError(ordinal int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, formatError(ordinal, err))
}
