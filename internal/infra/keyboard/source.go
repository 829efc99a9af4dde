package keyboard

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bryanwahyu/formpulse/internal/application/trigger"
)

const (
	SourceAuto     = "auto"
	SourceGlobal   = "global"
	SourceTerminal = "terminal"
)

// Open picks a key source. "auto" prefers the global hook and falls back to the terminal.
// The second return value reports whether the terminal was put into raw mode.
func Open(source, modifier string, onInterrupt func()) (trigger.KeySource, bool, error) {
	switch source {
	case SourceGlobal:
		src, err := OpenGlobal(modifier)
		return src, false, err
	case SourceTerminal:
		src, err := OpenTerminal(os.Stdin, onInterrupt)
		if err != nil {
			return nil, false, err
		}
		return src, true, nil
	case SourceAuto, "":
		if GlobalAvailable {
			src, err := OpenGlobal(modifier)
			if err == nil {
				return src, false, nil
			}
			slog.Warn("global key hook unavailable, using terminal", "error", err)
		}
		src, err := OpenTerminal(os.Stdin, onInterrupt)
		if err != nil {
			return nil, false, err
		}
		return src, true, nil
	}
	return nil, false, fmt.Errorf("unknown trigger source %q", source)
}
