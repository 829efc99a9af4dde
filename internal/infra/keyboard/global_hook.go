//go:build cgo && (darwin || windows || globalhook)

package keyboard

import (
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/bryanwahyu/formpulse/internal/application/trigger"
)

// charUndefined is what the hook reports for keys without a character.
const charUndefined rune = 0xFFFF

// GlobalAvailable reports whether this build can intercept system-wide key events.
const GlobalAvailable = true

// Global intercepts key events system-wide through a native event hook.
type Global struct {
	modifiers map[uint16]bool
	events    chan trigger.Event
	done      chan struct{}
	once      sync.Once
}

// OpenGlobal starts the hook. modifier names a key of the hook's keycode table, e.g. "cmd" or "ctrl";
// its right-hand variant ("rcmd") is matched too.
func OpenGlobal(modifier string) (trigger.KeySource, error) {
	g := &Global{
		modifiers: map[uint16]bool{},
		events:    make(chan trigger.Event, 32),
		done:      make(chan struct{}),
	}
	for _, name := range []string{modifier, "r" + modifier} {
		if code, ok := hook.Keycode[name]; ok {
			g.modifiers[code] = true
		}
	}
	go g.pump(hook.Start())
	return g, nil
}

func (g *Global) Events() <-chan trigger.Event { return g.events }

// Close stops the native hook.
func (g *Global) Close() error {
	g.once.Do(func() {
		close(g.done)
		hook.End()
	})
	return nil
}

func (g *Global) pump(in chan hook.Event) {
	defer close(g.events)
	for {
		select {
		case <-g.done:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			out, ok := g.translate(ev)
			if !ok {
				continue
			}
			select {
			case g.events <- out:
			case <-g.done:
				return
			}
		}
	}
}

// KeyHold is the raw press, KeyDown the typed character, KeyUp the release.
func (g *Global) translate(ev hook.Event) (trigger.Event, bool) {
	mod := g.modifiers[ev.Keycode]
	switch ev.Kind {
	case hook.KeyHold:
		if mod {
			return trigger.Event{Kind: trigger.Press, Modifier: true}, true
		}
	case hook.KeyUp:
		if mod {
			return trigger.Event{Kind: trigger.Release, Modifier: true}, true
		}
	case hook.KeyDown:
		if !mod && ev.Keychar != charUndefined && ev.Keychar != 0 {
			return trigger.Event{Kind: trigger.Press, Char: ev.Keychar}, true
		}
	}
	return trigger.Event{}, false
}
