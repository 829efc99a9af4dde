package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bryanwahyu/formpulse/internal/application"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// DefaultDebounce is the minimum time between two accepted triggers.
const DefaultDebounce = 1500 * time.Millisecond

type EventKind int

const (
	Press EventKind = iota
	Release
)

// Event is a key press or release. Modifier marks the designated modifier key;
// otherwise Char holds the produced character (possibly a control code).
type Event struct {
	Kind     EventKind
	Modifier bool
	Char     rune
}

// KeySource delivers key events until closed. Events is closed when the source ends.
type KeySource interface {
	Events() <-chan Event
	Close() error
}

// Fire is the trigger entry point; it must not block.
type Fire func() (*domain.Run, error)

// Listener recognizes modifier+letter and applies the debounce window.
// State is owned by the goroutine calling Handle/Run.
type Listener struct {
	letter   rune
	control  rune
	debounce time.Duration
	clock    application.Clock
	fire     Fire

	held bool
	last time.Time
}

func NewListener(letter rune, debounce time.Duration, clock application.Clock, fire Fire) *Listener {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Listener{
		letter:   letter,
		control:  ControlCode(letter),
		debounce: debounce,
		clock:    clock,
		fire:     fire,
	}
}

// ControlCode returns the raw control character a terminal produces for Ctrl+letter
// ('b' -> 0x02), or 0 when letter is not an ASCII letter.
func ControlCode(letter rune) rune {
	switch {
	case letter >= 'a' && letter <= 'z':
		return letter - 'a' + 1
	case letter >= 'A' && letter <= 'Z':
		return letter - 'A' + 1
	}
	return 0
}

// Held reports whether the modifier is currently down.
func (l *Listener) Held() bool { return l.held }

// Handle applies one event and reports whether it produced an accepted trigger.
func (l *Listener) Handle(ev Event) bool {
	if ev.Modifier {
		l.held = ev.Kind == Press
		return false
	}
	if ev.Kind != Press || !l.held || !l.matches(ev.Char) {
		return false
	}
	now := l.clock.Now()
	if !l.last.IsZero() && now.Sub(l.last) <= l.debounce {
		slog.Debug("trigger debounced", "since_last", now.Sub(l.last))
		return false
	}
	l.last = now

	if _, err := l.fire(); err != nil && !errors.Is(err, domain.ErrAlreadyRunning) {
		slog.Warn("trigger not accepted", "error", err)
	}
	return true
}

func (l *Listener) matches(c rune) bool {
	return c == l.letter || (l.control != 0 && c == l.control)
}

// Run consumes src until ctx is done or the source ends, then closes src.
func (l *Listener) Run(ctx context.Context, src KeySource) error {
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("key source close failed", "error", err)
		}
	}()
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return errors.New("key source closed")
			}
			l.Handle(ev)
		}
	}
}
