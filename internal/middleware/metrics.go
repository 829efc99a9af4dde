package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// Metrics stores agent counters. It records run outcomes for the orchestrator
// and request outcomes for the control API.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	runsTotal     atomic.Uint64
	runsRunning   atomic.Int64
	runsFailed    atomic.Uint64
	runsRejected  atomic.Uint64
	pulsesTotal   atomic.Uint64
	answersTotal  atomic.Uint64
	feedbackWarns atomic.Uint64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RunStarted() {
	m.runsTotal.Add(1)
	m.runsRunning.Add(1)
}

func (m *Metrics) RunFinished(run *domain.Run) {
	m.runsRunning.Add(-1)
	if run.Status == domain.StatusFailed {
		m.runsFailed.Add(1)
	}
	m.answersTotal.Add(uint64(len(run.Answers)))
	m.pulsesTotal.Add(uint64(run.Pulses))
	m.feedbackWarns.Add(uint64(run.Warnings))
}

func (m *Metrics) RunRejected() { m.runsRejected.Add(1) }

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.requestsTotal.Load(),
		"requests_in_progress": m.requestsInProgress.Load(),
		"requests_success":     m.requestsSuccess.Load(),
		"requests_failed":      m.requestsFailed.Load(),
		"runs_total":           m.runsTotal.Load(),
		"runs_running":         m.runsRunning.Load(),
		"runs_failed":          m.runsFailed.Load(),
		"runs_rejected":        m.runsRejected.Load(),
		"answers_total":        m.answersTotal.Load(),
		"pulses_total":         m.pulsesTotal.Load(),
		"feedback_warnings":    m.feedbackWarns.Load(),
		"uptime_seconds":       time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
