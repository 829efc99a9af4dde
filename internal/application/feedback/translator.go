package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/bryanwahyu/formpulse/internal/application"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// DefaultPause separates the pulse bursts of consecutive questions.
const DefaultPause = 1500 * time.Millisecond

// Reporter receives per-answer status lines and non-fatal warnings.
type Reporter interface {
	Answer(index int, a domain.Answer, pulses int)
	Warn(err error)
}

// Report counts what was delivered for one answer list.
type Report struct {
	Delivered int // answers whose pulses reached the actuator
	Skipped   int // answers whose feedback failed
	Pulses    int
}

// Translator maps answers to pulse bursts.
type Translator struct {
	Pulser   domain.Pulser
	Reporter Reporter
	Clock    application.Clock
	Pause    time.Duration
}

// PulseCount: N-th choice from the top is N pulses; free text is a single attention pulse.
func PulseCount(a domain.Answer) int {
	if a.FreeText() {
		return 1
	}
	return a.Position
}

// Deliver drives the actuator for each answer in order, pausing between answers.
// Actuator failures are reported as warnings and never abort delivery.
func (t *Translator) Deliver(ctx context.Context, answers []domain.Answer) Report {
	var rep Report
	for i, a := range answers {
		n := PulseCount(a)
		t.Reporter.Answer(i, a, n)

		if err := t.Pulser.Pulse(ctx, n); err != nil {
			rep.Skipped++
			t.Reporter.Warn(err)
		} else {
			rep.Delivered++
			rep.Pulses += n
		}

		if i < len(answers)-1 {
			if err := t.Clock.Sleep(ctx, t.pause()); err != nil {
				// process shutdown; remaining answers are dropped
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					t.Reporter.Warn(err)
				}
				rep.Skipped += len(answers) - i - 1
				return rep
			}
		}
	}
	return rep
}

func (t *Translator) pause() time.Duration {
	if t.Pause <= 0 {
		return DefaultPause
	}
	return t.Pause
}
