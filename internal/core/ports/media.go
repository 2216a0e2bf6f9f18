package ports

import (
	"context"

	"github.com/byteom/scanstation/internal/core/domain"
)

// StreamHandle is an acquired camera stream. Only the capture session holds one.
type StreamHandle interface {
	DeviceID() string
}

// MediaDevices is the platform camera boundary.
type MediaDevices interface {
	// EnumerateDevices lists capture devices in platform order.
	EnumerateDevices(ctx context.Context) ([]domain.CameraDevice, error)
	// AcquireStream opens a stream on the device. An empty id lets the platform pick.
	AcquireStream(ctx context.Context, deviceID string, c domain.StreamConstraints) (StreamHandle, error)
	// ReleaseStream stops all tracks of the handle. It blocks until the device is released.
	ReleaseStream(h StreamHandle) error
}

// StopFunc stops a decode loop and waits for it to exit.
type StopFunc func()

// Decoder runs the external decode primitive over an acquired stream.
// onExit is called at most once, only when the loop ends without its
// StopFunc being called.
type Decoder interface {
	DecodeLoop(h StreamHandle, onPayload func(payload string), onExit func(err error)) (StopFunc, error)
}

// CameraEnumerator discovers cameras and picks the default one.
type CameraEnumerator interface {
	ListCameras(ctx context.Context) ([]domain.CameraDevice, error)
	DefaultIndex(devices []domain.CameraDevice) int
}

// CaptureSession owns at most one active stream and its decode loop.
type CaptureSession interface {
	Start(ctx context.Context, deviceID string) error
	// Stop is idempotent and returns only after the stream is released.
	Stop() error
	Payloads() <-chan domain.Decoded
	// Faults reports decode loops that died on their own.
	Faults() <-chan domain.CaptureFault
	ActiveDevice() (string, bool)
}
