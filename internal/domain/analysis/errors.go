package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a trigger arrives while a run is in flight.
	ErrAlreadyRunning = errors.New("analysis already in progress")
	// ErrStopped is returned once the orchestrator has shut down.
	ErrStopped = errors.New("analysis orchestrator stopped")
	// ErrActuatorUnavailable indicates the actuator executable does not exist.
	ErrActuatorUnavailable = errors.New("actuator executable not found")
	// ErrCredentialMissing indicates no API key could be found.
	ErrCredentialMissing = errors.New("api credential not found")
)

// Kind classifies failures of the pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	KindCredentialMissing
	KindCaptureFailure
	KindTransportFailure
	KindOverloadFailure
	KindResponseParseFailure
	KindActuatorUnavailable
	KindActuatorInvocationFailure
	KindAlreadyRunning
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:                   "Unknown",
	KindCredentialMissing:         "CredentialMissing",
	KindCaptureFailure:            "CaptureFailure",
	KindTransportFailure:          "TransportFailure",
	KindOverloadFailure:           "OverloadFailure",
	KindResponseParseFailure:      "ResponseParseFailure",
	KindActuatorUnavailable:       "ActuatorUnavailable",
	KindActuatorInvocationFailure: "ActuatorInvocationFailure",
	KindAlreadyRunning:            "AlreadyRunning",
	KindInternal:                  "Internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the classified error returned by adapters.
type Error struct {
	Kind       Kind
	Stage      Stage
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors that correspond to a kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAlreadyRunning:
		return e.Kind == KindAlreadyRunning
	case ErrActuatorUnavailable:
		return e.Kind == KindActuatorUnavailable
	case ErrCredentialMissing:
		return e.Kind == KindCredentialMissing
	}
	return false
}

// NewError wraps err with a kind and stage.
func NewError(kind Kind, stage Stage, op string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Err: err}
}

// KindOf extracts the kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, ErrActuatorUnavailable):
		return KindActuatorUnavailable
	case errors.Is(err, ErrCredentialMissing):
		return KindCredentialMissing
	}
	return KindInternal
}

// StageOf returns the stage recorded on err, or "" when unknown.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
