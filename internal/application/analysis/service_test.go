package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bryanwahyu/formpulse/internal/application/feedback"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type recordingReporter struct {
	mu       sync.Mutex
	rejected int
	stages   []domain.Stage
	failed   []error
	finished int
	answers  int
}

func (r *recordingReporter) Rejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

func (r *recordingReporter) Started(*domain.Run) {}

func (r *recordingReporter) Stage(_ *domain.Run, s domain.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func (r *recordingReporter) Captured(*domain.Run, domain.Capture) {}

func (r *recordingReporter) Answers(_ *domain.Run, a []domain.Answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers += len(a)
}

func (r *recordingReporter) Failed(_ *domain.Run, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recordingReporter) Finished(*domain.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
}

func (r *recordingReporter) Answer(int, domain.Answer, int) {}
func (r *recordingReporter) Warn(error) {}

type fixture struct {
	capturer *domain.MockCapturer
	analyzer *domain.MockAnalyzer
	pulser   *domain.MockPulser
	archive  *domain.MockArtifactStore
	reporter *recordingReporter
	svc      *Service
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		capturer: domain.NewMockCapturer(ctrl),
		analyzer: domain.NewMockAnalyzer(ctrl),
		pulser:   domain.NewMockPulser(ctrl),
		reporter: &recordingReporter{},
	}
	deps := Deps{
		Capturer: f.capturer,
		Analyzer: f.analyzer,
		Feedback: &feedback.Translator{Pulser: f.pulser, Reporter: f.reporter, Clock: instantClock{}},
		Reporter: f.reporter,
		Clock:    instantClock{},
		NewID:    func() domain.RunID { return "run-1" },
	}
	if withArchive {
		f.archive = domain.NewMockArtifactStore(ctrl)
		deps.Archive = f.archive
	}
	f.svc = NewService(deps)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		f.svc.Wait()
	})
	return f
}

func wait(t *testing.T, run *domain.Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

var screenshot = domain.Capture{Data: []byte("png-bytes"), MediaType: "image/png"}

func TestRunDeliversPulsesForPositionalAnswer(t *testing.T) {
	f := newFixture(t, false)
	f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
	f.analyzer.EXPECT().Analyze(gomock.Any(), screenshot).Return([]domain.Answer{
		{Question: "Capital of France?", Answer: "Paris", Position: 2, Total: 4},
	}, nil)
	f.pulser.EXPECT().Pulse(gomock.Any(), 2).Return(nil).Times(1)

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)

	require.Equal(t, domain.StatusSucceeded, run.Status)
	require.NoError(t, run.Err)
	require.Equal(t, 2, run.Pulses)
	require.Len(t, run.Answers, 1)
	require.False(t, f.svc.Running())
	require.Equal(t, []domain.Stage{domain.StageCapture, domain.StageInfer, domain.StageFeedback}, f.reporter.stages)
	require.Equal(t, 1, f.reporter.finished)

	snap := f.svc.Snapshot()
	require.Equal(t, "idle", snap.State)
	require.NotNil(t, snap.Last)
	require.Equal(t, 1, snap.Last.Questions)
}

func TestRunFreeTextAnswerGivesSinglePulse(t *testing.T) {
	f := newFixture(t, false)
	f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
	f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return([]domain.Answer{
		{Question: "Name?", Answer: "Jean", Position: -1, Total: 0},
	}, nil)
	f.pulser.EXPECT().Pulse(gomock.Any(), 1).Return(nil).Times(1)

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)
	require.Equal(t, domain.StatusSucceeded, run.Status)
	require.Equal(t, "Jean", run.Answers[0].Answer)
}

func TestTriggerRejectedWhileRunning(t *testing.T) {
	f := newFixture(t, false)
	release := make(chan struct{})
	entered := make(chan struct{})
	f.capturer.EXPECT().Capture(gomock.Any()).DoAndReturn(func(context.Context) (domain.Capture, error) {
		close(entered)
		<-release
		return domain.Capture{}, domain.NewError(domain.KindCaptureFailure, domain.StageCapture, "screencapture", errors.New("exit code 1"))
	})

	first, err := f.svc.Trigger()
	require.NoError(t, err)
	<-entered

	second, err := f.svc.Trigger()
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	require.Nil(t, second)
	require.Equal(t, "running", f.svc.Snapshot().State)

	close(release)
	wait(t, first)
	require.Equal(t, domain.StatusFailed, first.Status)
	require.Equal(t, domain.KindCaptureFailure, domain.KindOf(first.Err))
	require.Equal(t, 1, f.reporter.rejected)

	// guard released after a failed run
	f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
	f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)
	third, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, third)
	require.Equal(t, domain.StatusSucceeded, third.Status)
}

func TestRunFailuresAreClassified(t *testing.T) {
	cases := map[string]struct {
		analyzeErr error
		want       domain.Kind
	}{
		"overload exhausted": {
			analyzeErr: &domain.Error{Kind: domain.KindOverloadFailure, Stage: domain.StageInfer, StatusCode: 529},
			want:       domain.KindOverloadFailure,
		},
		"parse failure": {
			analyzeErr: domain.NewError(domain.KindResponseParseFailure, domain.StageInfer, "decode answers", errors.New("invalid character")),
			want:       domain.KindResponseParseFailure,
		},
		"bare error": {
			analyzeErr: errors.New("connection reset by peer"),
			want:       domain.KindTransportFailure,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, false)
			f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
			f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, tc.analyzeErr)

			run, err := f.svc.Trigger()
			require.NoError(t, err)
			wait(t, run)
			require.Equal(t, domain.StatusFailed, run.Status)
			require.Equal(t, tc.want, domain.KindOf(run.Err))
			require.Equal(t, domain.StageInfer, domain.StageOf(run.Err))
			require.Len(t, f.reporter.failed, 1)
			require.False(t, f.svc.Running())
		})
	}
}

func TestRunPanicReleasesGuard(t *testing.T) {
	f := newFixture(t, false)
	f.capturer.EXPECT().Capture(gomock.Any()).DoAndReturn(func(context.Context) (domain.Capture, error) {
		panic("capture exploded")
	})

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)
	require.Equal(t, domain.KindInternal, domain.KindOf(run.Err))
	require.False(t, f.svc.Running())
}

func TestActuatorMissingStillSucceeds(t *testing.T) {
	f := newFixture(t, false)
	f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
	f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return([]domain.Answer{
		{Question: "A", Answer: "x", Position: 3, Total: 4},
		{Question: "B", Answer: "y", Position: -1},
	}, nil)
	missing := domain.NewError(domain.KindActuatorUnavailable, domain.StageFeedback, "./vibrate", domain.ErrActuatorUnavailable)
	f.pulser.EXPECT().Pulse(gomock.Any(), gomock.Any()).Return(missing).Times(2)

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)
	require.Equal(t, domain.StatusSucceeded, run.Status)
	require.Equal(t, 2, run.Warnings)
	require.Equal(t, 0, run.Pulses)
	require.False(t, f.svc.Running())
}

func TestArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	f.capturer.EXPECT().Capture(gomock.Any()).Return(screenshot, nil)
	f.archive.EXPECT().Put(gomock.Any(), "captures/2026-03-01/run-1.png", screenshot.Data, "image/png").
		Return("", errors.New("bucket unreachable"))
	f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)
	require.Equal(t, domain.StatusSucceeded, run.Status)
}

func TestArchiveKeyFollowsMediaType(t *testing.T) {
	f := newFixture(t, true)
	jpeg := domain.Capture{Data: []byte("\xff\xd8\xffjpeg"), MediaType: "image/jpeg"}
	f.capturer.EXPECT().Capture(gomock.Any()).Return(jpeg, nil)
	f.archive.EXPECT().Put(gomock.Any(), "captures/2026-03-01/run-1.jpg", jpeg.Data, "image/jpeg").
		Return("http://archive/run-1.jpg", nil)
	f.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, nil)

	run, err := f.svc.Trigger()
	require.NoError(t, err)
	wait(t, run)
	require.Equal(t, domain.StatusSucceeded, run.Status)
}

func TestExtension(t *testing.T) {
	require.Equal(t, "png", extension("image/png"))
	require.Equal(t, "jpg", extension("image/jpeg"))
	require.Equal(t, "gif", extension("image/gif"))
	require.Equal(t, "webp", extension("image/webp"))
	require.Equal(t, "png", extension(""))
}

func TestTriggerAfterStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewService(Deps{
		Capturer: domain.NewMockCapturer(ctrl),
		Analyzer: domain.NewMockAnalyzer(ctrl),
		Reporter: &recordingReporter{},
		Clock:    instantClock{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	cancel()
	svc.Wait()

	_, err := svc.Trigger()
	require.ErrorIs(t, err, domain.ErrStopped)
	require.False(t, svc.Running())
}
