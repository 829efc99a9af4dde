package keyboard

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/bryanwahyu/formpulse/internal/application/trigger"
)

const ctrlC = 0x03

// ErrNotTerminal is returned when stdin is not an interactive terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// Terminal reads keys from a raw-mode terminal. In raw mode Ctrl+<letter> arrives as a
// single control byte; it is delivered as modifier press, control char, modifier release.
type Terminal struct {
	fd          int
	state       *term.State
	events      chan trigger.Event
	done        chan struct{}
	once        sync.Once
	onInterrupt func()
}

// OpenTerminal puts f into raw mode. onInterrupt is called on Ctrl+C since raw mode disables SIGINT.
func OpenTerminal(f *os.File, onInterrupt func()) (*Terminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	t := newTerminal(onInterrupt)
	t.fd = fd
	t.state = state
	go t.read(f)
	return t, nil
}

func newTerminal(onInterrupt func()) *Terminal {
	return &Terminal{
		fd:          -1,
		events:      make(chan trigger.Event, 16),
		done:        make(chan struct{}),
		onInterrupt: onInterrupt,
	}
}

func (t *Terminal) Events() <-chan trigger.Event { return t.events }

// Close restores the terminal state. The blocked reader goroutine exits with the process.
func (t *Terminal) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		if t.state != nil {
			err = term.Restore(t.fd, t.state)
		}
	})
	return err
}

func (t *Terminal) read(r io.Reader) {
	defer close(t.events)
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("terminal read failed", "error", err)
			}
			return
		}
		if !t.translate(b) {
			return
		}
	}
}

// translate emits the events for one input byte; false means the source is closed.
func (t *Terminal) translate(b byte) bool {
	switch {
	case b == ctrlC:
		if t.onInterrupt != nil {
			t.onInterrupt()
		}
		return true
	case b < 0x20 && b != '\r' && b != '\n' && b != '\t' && b != 0x1b:
		return t.emit(trigger.Event{Kind: trigger.Press, Modifier: true}) &&
			t.emit(trigger.Event{Kind: trigger.Press, Char: rune(b)}) &&
			t.emit(trigger.Event{Kind: trigger.Release, Modifier: true})
	default:
		return t.emit(trigger.Event{Kind: trigger.Press, Char: rune(b)})
	}
}

func (t *Terminal) emit(ev trigger.Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}
