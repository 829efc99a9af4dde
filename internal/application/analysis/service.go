package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bryanwahyu/formpulse/internal/application"
	"github.com/bryanwahyu/formpulse/internal/application/feedback"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// Reporter receives the user-visible status lines of a run.
type Reporter interface {
	Rejected()
	Started(run *domain.Run)
	Stage(run *domain.Run, stage domain.Stage)
	Captured(run *domain.Run, c domain.Capture)
	Answers(run *domain.Run, answers []domain.Answer)
	Failed(run *domain.Run, err error)
	Finished(run *domain.Run)
}

// Deliverer turns answers into actuator feedback.
type Deliverer interface {
	Deliver(ctx context.Context, answers []domain.Answer) feedback.Report
}

// Recorder counts run outcomes (metrics).
type Recorder interface {
	RunStarted()
	RunFinished(run *domain.Run)
	RunRejected()
}

// Deps untuk Service. Archive and Metrics are optional.
type Deps struct {
	Capturer domain.Capturer
	Analyzer domain.Analyzer
	Feedback Deliverer
	Reporter Reporter
	Archive  domain.ArtifactStore
	Metrics  Recorder
	Clock    application.Clock
	NewID    func() domain.RunID
}

// Service is the analysis orchestrator. At most one run is in flight; triggers that arrive
// meanwhile are rejected, never queued. Runs execute on a dedicated worker goroutine.
type Service struct {
	deps Deps

	running atomic.Bool
	stopped atomic.Bool
	jobs    chan *domain.Run
	wg      sync.WaitGroup

	mu      sync.RWMutex
	current *domain.Run
	last    *domain.Summary
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = application.SystemClock{}
	}
	if deps.NewID == nil {
		deps.NewID = func() domain.RunID { return domain.RunID(uuid.New().String()) }
	}
	return &Service{deps: deps, jobs: make(chan *domain.Run, 1)}
}

// Start launches the worker. Runs started after ctx is done are finished as stopped.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait blocks until the worker has exited (after the Start context is done).
func (s *Service) Wait() { s.wg.Wait() }

// Trigger starts a run if none is active and returns immediately.
// It never blocks, so it is safe to call from the key listener loop.
func (s *Service) Trigger() (*domain.Run, error) {
	if s.stopped.Load() {
		return nil, domain.ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		s.deps.Reporter.Rejected()
		if s.deps.Metrics != nil {
			s.deps.Metrics.RunRejected()
		}
		return nil, domain.ErrAlreadyRunning
	}

	run := domain.NewRun(s.deps.NewID(), s.deps.Clock.Now())

	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		s.running.Store(false)
		return nil, domain.ErrStopped
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunStarted()
	}
	select {
	case s.jobs <- run:
		s.current = run
		s.mu.Unlock()
	default:
		// slot occupied although the guard was clear; should not happen
		s.mu.Unlock()
		s.running.Store(false)
		return nil, domain.NewError(domain.KindInternal, domain.StageTrigger, "enqueue", errors.New("worker slot busy"))
	}
	return run, nil
}

// Running reports whether a run is in flight.
func (s *Service) Running() bool { return s.running.Load() }

// State is a snapshot for status output.
type State struct {
	State   string          `json:"state"`
	Current *domain.Summary `json:"current,omitempty"`
	Last    *domain.Summary `json:"last,omitempty"`
}

func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{State: "idle", Last: s.last}
	if s.current != nil {
		st.State = string(domain.StatusRunning)
		st.Current = &domain.Summary{ID: s.current.ID, Status: domain.StatusRunning, TriggeredAt: s.current.TriggeredAt}
	}
	return st
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped.Store(true)
			s.mu.Unlock()
			s.drain()
			return
		case run := <-s.jobs:
			s.execute(ctx, run)
		}
	}
}

// drain finishes a run accepted concurrently with shutdown.
func (s *Service) drain() {
	for {
		select {
		case run := <-s.jobs:
			s.complete(run, domain.ErrStopped)
		default:
			return
		}
	}
}

// execute is the run boundary: every failure, including a panic, ends here and the guard is released.
func (s *Service) execute(ctx context.Context, run *domain.Run) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewError(domain.KindInternal, "", "run", fmt.Errorf("panic: %v", r))
		}
		s.complete(run, err)
	}()
	err = s.process(ctx, run)
}

func (s *Service) process(ctx context.Context, run *domain.Run) error {
	r := s.deps.Reporter
	r.Started(run)

	r.Stage(run, domain.StageCapture)
	capture, err := s.deps.Capturer.Capture(ctx)
	if err != nil {
		return classify(err, domain.KindCaptureFailure, domain.StageCapture)
	}
	run.CaptureSize = capture.Size()
	r.Captured(run, capture)
	s.archive(ctx, run, capture)

	r.Stage(run, domain.StageInfer)
	answers, err := s.deps.Analyzer.Analyze(ctx, capture)
	if err != nil {
		return classify(err, domain.KindTransportFailure, domain.StageInfer)
	}
	run.Answers = answers
	r.Answers(run, answers)

	r.Stage(run, domain.StageFeedback)
	rep := s.deps.Feedback.Deliver(ctx, answers)
	run.Pulses = rep.Pulses
	run.Warnings = rep.Skipped
	return nil
}

func (s *Service) archive(ctx context.Context, run *domain.Run, c domain.Capture) {
	if s.deps.Archive == nil {
		return
	}
	key := fmt.Sprintf("captures/%s/%s.%s", run.TriggeredAt.UTC().Format("2006-01-02"), run.ID, extension(c.MediaType))
	url, err := s.deps.Archive.Put(ctx, key, c.Data, c.MediaType)
	if err != nil {
		slog.Warn("capture archive failed", "run", run.ID, "key", key, "error", err)
		return
	}
	slog.Debug("capture archived", "run", run.ID, "url", url)
}

// extension maps a sniffed image type to a file extension, png when unknown.
func extension(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	}
	return "png"
}

// complete records the outcome and releases the single-flight guard before signalling Done.
func (s *Service) complete(run *domain.Run, err error) {
	run.Finish(s.deps.Clock.Now(), err)
	if err != nil {
		slog.Error("analysis run failed", "run", run.ID, "kind", domain.KindOf(err).String(), "stage", domain.StageOf(err), "error", err)
		s.deps.Reporter.Failed(run, err)
	} else {
		slog.Info("analysis run finished", "run", run.ID, "questions", len(run.Answers), "pulses", run.Pulses, "warnings", run.Warnings)
		s.deps.Reporter.Finished(run)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunFinished(run)
	}

	sum := run.Summarize()
	s.mu.Lock()
	s.current = nil
	s.last = &sum
	s.mu.Unlock()

	s.running.Store(false)
	run.Close()
}

// classify keeps an adapter's classification and fills in defaults for bare errors.
func classify(err error, fallback domain.Kind, stage domain.Stage) error {
	var e *domain.Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return err
	}
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return domain.NewError(fallback, stage, string(stage), err)
}
