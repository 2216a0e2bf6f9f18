package domain

import (
	"regexp"
	"time"
)

// CameraDevice is a capture device discovered by enumeration.
// Devices are immutable once enumerated.
type CameraDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// StreamConstraints describes how a stream should be acquired.
type StreamConstraints struct {
	// Probe requests a throwaway handle used only to check access.
	Probe bool
	// Facing is a hint ("environment", "user") used when no device id is given.
	Facing string
}

// Decoded is one payload produced by the decode loop.
type Decoded struct {
	Payload  string    `json:"payload"`
	DeviceID string    `json:"device_id"`
	At       time.Time `json:"at"`
}

// CaptureFault reports a decode loop that ended while the camera was
// supposed to be streaming.
type CaptureFault struct {
	DeviceID string
	Err      error
}

var deviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9/_.:\-]+$`)

// IsValidDeviceID checks if the string is a safe device identifier.
func IsValidDeviceID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	return deviceIDRegex.MatchString(id)
}
