//go:build !(cgo && (darwin || windows || globalhook))

package keyboard

import (
	"errors"

	"github.com/bryanwahyu/formpulse/internal/application/trigger"
)

// GlobalAvailable reports whether this build can intercept system-wide key events.
const GlobalAvailable = false

// ErrGlobalUnavailable is returned by builds without the native hook (build with -tags globalhook on Linux).
var ErrGlobalUnavailable = errors.New("global key hook not compiled in")

// OpenGlobal is unavailable in this build.
func OpenGlobal(string) (trigger.KeySource, error) {
	return nil, ErrGlobalUnavailable
}
