package analysis

import "context"

//go:generate go tool mockgen -source=port.go -destination=mock_port.go -package=analysis

// Capturer port (screen capture)
type Capturer interface {
	Capture(ctx context.Context) (Capture, error)
}

// Analyzer port (remote inference service)
type Analyzer interface {
	Analyze(ctx context.Context, c Capture) ([]Answer, error)
}

// Pulser port (physical actuator). count <= 0 is a no-op.
type Pulser interface {
	Pulse(ctx context.Context, count int) error
}

// ArtifactStore port (optional capture archive)
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
