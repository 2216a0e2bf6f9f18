package camera

import "sync/atomic"

// CaptureState represents the current state of a capture session.
type CaptureState int32

const (
	StateIdle     CaptureState = iota // No stream held
	StateStarting                     // Acquiring the device
	StateRunning                      // Stream held and decode loop running
	StateStopping                     // Releasing the device
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	}
	return "Unknown"
}

// AtomicState wraps atomic operations for CaptureState
type AtomicState struct {
	v int32
}

func (a *AtomicState) Set(s CaptureState) {
	atomic.StoreInt32(&a.v, int32(s))
}

func (a *AtomicState) Get() CaptureState {
	return CaptureState(atomic.LoadInt32(&a.v))
}
