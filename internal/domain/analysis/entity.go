package analysis

import (
	"time"
)

// RunID identifier untuk satu AnalysisRun
type RunID string

// Status enum
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step a run is in; failures are reported by stage.
type Stage string

const (
	StageTrigger  Stage = "trigger"
	StageCapture  Stage = "capture"
	StageInfer    Stage = "inference"
	StageFeedback Stage = "feedback"
)

// FreeTextPosition is the sentinel position for inputs without enumerable choices.
const FreeTextPosition = -1

// Answer is one entry of the structured answer list returned by the inference service.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
}

// FreeText reports whether the answer has no positional choice.
// Any non-positive position is treated as free text, not only the -1 sentinel.
func (a Answer) FreeText() bool { return a.Position <= 0 }

// Capture hasil screenshot
type Capture struct {
	Data      []byte
	MediaType string
	Path      string
}

// Size in bytes
func (c Capture) Size() int { return len(c.Data) }

// Run is the unit of work for one accepted trigger.
// ID and TriggeredAt are fixed at creation. The other fields are written only by the worker
// executing the run; readers wait on Done first.
type Run struct {
	ID          RunID
	TriggeredAt time.Time
	FinishedAt  time.Time
	Status      Status
	CaptureSize int
	Answers     []Answer
	Pulses      int
	Warnings    int
	Err         error

	done chan struct{}
}

// NewRun creates a run in the running state.
func NewRun(id RunID, now time.Time) *Run {
	return &Run{
		ID:          id,
		TriggeredAt: now,
		Status:      StatusRunning,
		done:        make(chan struct{}),
	}
}

// Done is closed once the run reached a terminal status and the single-flight guard was released.
func (r *Run) Done() <-chan struct{} { return r.done }

// Finish records the terminal status. It must be called exactly once.
func (r *Run) Finish(now time.Time, err error) {
	r.FinishedAt = now
	r.Err = err
	if err != nil {
		r.Status = StatusFailed
	} else {
		r.Status = StatusSucceeded
	}
}

// Close signals waiters; called after Finish.
func (r *Run) Close() { close(r.done) }

// Summary is a read-only view of a run for status output.
type Summary struct {
	ID          RunID     `json:"id"`
	Status      Status    `json:"status"`
	TriggeredAt time.Time `json:"triggered_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Questions   int       `json:"questions"`
	Pulses      int       `json:"pulses"`
	Warnings    int       `json:"warnings"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Summarize builds the summary of a finished run.
func (r *Run) Summarize() Summary {
	s := Summary{
		ID:          r.ID,
		Status:      r.Status,
		TriggeredAt: r.TriggeredAt,
		FinishedAt:  r.FinishedAt,
		Questions:   len(r.Answers),
		Pulses:      r.Pulses,
		Warnings:    r.Warnings,
	}
	if !r.FinishedAt.IsZero() {
		s.DurationMS = r.FinishedAt.Sub(r.TriggeredAt).Milliseconds()
	}
	if r.Err != nil {
		s.ErrorKind = KindOf(r.Err).String()
		s.Error = r.Err.Error()
	}
	return s
}
