package domain

import (
	"errors"
	"fmt"
)

// Camera errors. Adapters wrap these with %w so callers can classify with errors.Is.
var (
	ErrCameraPermission   = errors.New("camera permission denied")
	ErrCameraNotFound     = errors.New("no camera found")
	ErrCameraInUse        = errors.New("camera in use by another application")
	ErrCameraBusy         = errors.New("camera busy or not readable")
	ErrDecoderUnavailable = errors.New("qr decoder unavailable")
)

// Session errors.
var (
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrSessionClosed     = errors.New("scan session closed")
	ErrNoSwitchTarget    = errors.New("no other camera to switch to")
)

// IsTransientCameraError reports whether a camera start failure may be retried.
func IsTransientCameraError(err error) bool {
	return errors.Is(err, ErrCameraBusy) || errors.Is(err, ErrCameraInUse)
}

// CameraErrorMessage maps a camera error to the text shown to the operator.
func CameraErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCameraPermission):
		return "Camera permission denied. Allow camera access in your system settings and refresh."
	case errors.Is(err, ErrCameraNotFound):
		return "No camera found on this device."
	case errors.Is(err, ErrCameraInUse):
		return "Camera is already in use by another application. Close it and refresh."
	case errors.Is(err, ErrCameraBusy):
		return "Camera is busy. Close other applications using the camera and refresh."
	case errors.Is(err, ErrDecoderUnavailable):
		return "QR scanner failed to load. Refresh to try again."
	}
	return fmt.Sprintf("Failed to start camera: %v", err)
}

// FailureKind distinguishes how a verification failed.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureRejected  FailureKind = "rejected"
	FailureMalformed FailureKind = "malformed"
)

// VerificationError is returned by verifiers for every failed verification.
type VerificationError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("verification %s: %s", e.Kind, e.Message)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
