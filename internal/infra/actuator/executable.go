package actuator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

const DefaultTimeout = 10 * time.Second

// Executable drives the pulse actuator: `<Path> <count>`.
type Executable struct {
	Path    string
	Timeout time.Duration
}

func NewExecutable(path string, timeout time.Duration) *Executable {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executable{Path: path, Timeout: timeout}
}

// DefaultPath is the "vibrate" binary next to the running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "vibrate"
	}
	return filepath.Join(filepath.Dir(exe), "vibrate")
}

// Pulse runs the actuator with count pulses. count <= 0 makes no call.
func (e *Executable) Pulse(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Path, strconv.Itoa(count))
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return domain.NewError(domain.KindActuatorUnavailable, domain.StageFeedback, e.Path,
			fmt.Errorf("%w: %v", domain.ErrActuatorUnavailable, err))
	}
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timed out after %s: %w", e.Timeout, err)
	} else if msg := strings.TrimSpace(string(out)); msg != "" {
		err = fmt.Errorf("%w: %s", err, msg)
	}
	return domain.NewError(domain.KindActuatorInvocationFailure, domain.StageFeedback, e.Path, err)
}

// Available reports whether the actuator executable exists.
func (e *Executable) Available() error {
	if strings.ContainsRune(e.Path, os.PathSeparator) || strings.ContainsRune(e.Path, '/') {
		info, err := os.Stat(e.Path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", e.Path)
		}
		return nil
	}
	_, err := exec.LookPath(e.Path)
	return err
}
