package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/formpulse/internal/application"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// StatusOverloaded is the status the inference service uses to signal capacity exhaustion.
const StatusOverloaded = 529

// Policy retries overload failures with linearly increasing waits: Step, 2*Step, ... MaxRetries*Step.
type Policy struct {
	MaxRetries int
	Step       time.Duration

	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(retry int, wait time.Duration, err error)
}

// DefaultPolicy: 4 retries, 10s step.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 4, Step: 10 * time.Second}
}

// Backoff returns the wait before the given retry (1-based).
func (p Policy) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return time.Duration(retry) * p.Step
}

// Do runs fn, retrying only while fn fails with an overload error.
// Any other error, including parse failures after a successful call, is returned at once.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = application.SleepContext
	}
	for retry := 0; ; retry++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if domain.KindOf(err) != domain.KindOverloadFailure || retry >= p.MaxRetries {
			return out, err
		}
		wait := p.Backoff(retry + 1)
		if p.OnRetry != nil {
			p.OnRetry(retry+1, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			var zero T
			return zero, fmt.Errorf("%w (retry aborted: %v)", err, serr)
		}
	}
}

// ClassifyStatus maps a non-2xx HTTP status to an error kind.
func ClassifyStatus(code int) domain.Kind {
	if code == StatusOverloaded {
		return domain.KindOverloadFailure
	}
	return domain.KindTransportFailure
}

// StatusError builds the classified error for a non-2xx response.
func StatusError(op string, code int, body []byte) *domain.Error {
	return &domain.Error{
		Kind:       ClassifyStatus(code),
		Stage:      domain.StageInfer,
		Op:         op,
		StatusCode: code,
		Err:        errors.New(Excerpt(body, 200)),
	}
}

// Excerpt truncates b to n bytes for error messages.
func Excerpt(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	if len(b) == 0 {
		return "empty body"
	}
	return string(b)
}
