package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

const (
	DefaultPath    = "/tmp/fa_screen.png"
	defaultTimeout = 30 * time.Second
)

// Command runs an external screen capture utility that writes an image to Path.
// Path is appended as the last argument and is overwritten on every capture.
type Command struct {
	Name    string
	Args    []string
	Path    string
	Timeout time.Duration
}

// NewCommand builds a capture command from argv, e.g. ["screencapture", "-x"].
func NewCommand(argv []string, path string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("capture command is empty")
	}
	if path == "" {
		path = DefaultPath
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Command{Name: argv[0], Args: argv[1:], Path: path, Timeout: timeout}, nil
}

func (c *Command) Capture(ctx context.Context) (domain.Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	// a stale artifact must never be sent as this run's capture
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.Capture{}, c.fail(fmt.Errorf("remove previous artifact: %w", err))
	}

	args := append(append([]string{}, c.Args...), c.Path)
	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return domain.Capture{}, c.fail(fmt.Errorf("exit code %d: %s", ee.ExitCode(), strings.TrimSpace(string(out))))
		}
		return domain.Capture{}, c.fail(fmt.Errorf("run error: %w", err))
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return domain.Capture{}, c.fail(fmt.Errorf("read artifact: %w", err))
	}
	if len(data) == 0 {
		return domain.Capture{}, c.fail(fmt.Errorf("artifact %s is empty", c.Path))
	}
	return domain.Capture{Data: data, MediaType: MediaType(data), Path: c.Path}, nil
}

// Available reports whether the capture utility can be found.
func (c *Command) Available() error {
	_, err := exec.LookPath(c.Name)
	return err
}

func (c *Command) fail(err error) error {
	return domain.NewError(domain.KindCaptureFailure, domain.StageCapture, c.Name, err)
}

// MediaType sniffs the image type, defaulting to PNG.
func MediaType(data []byte) string {
	mt := http.DetectContentType(data)
	switch mt {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return mt
	}
	return "image/png"
}
