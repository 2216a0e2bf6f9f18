package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
)

// rearLabelHints mark environment-facing cameras.
var rearLabelHints = []string{"back", "rear", "environment"}

// DeviceEnumerator discovers cameras after checking access permission.
type DeviceEnumerator struct {
	media ports.MediaDevices
}

// NewDeviceEnumerator creates an enumerator over the platform media devices.
func NewDeviceEnumerator(media ports.MediaDevices) *DeviceEnumerator {
	return &DeviceEnumerator{media: media}
}

// ListCameras probes camera access and returns the available devices.
// The probe handle is released before enumeration. Errors wrap one of
// domain.ErrCameraPermission, domain.ErrCameraNotFound or domain.ErrCameraInUse
// when the platform reports them.
func (e *DeviceEnumerator) ListCameras(ctx context.Context) ([]domain.CameraDevice, error) {
	probe, err := e.media.AcquireStream(ctx, "", domain.StreamConstraints{Probe: true, Facing: "environment"})
	if err != nil {
		return nil, fmt.Errorf("camera permission probe: %w", err)
	}
	if err := e.media.ReleaseStream(probe); err != nil {
		slog.Warn("Failed to release probe stream", "error", err)
	}

	devices, err := e.media.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}

	slog.Info("Cameras enumerated", "count", len(devices))
	return devices, nil
}

// DefaultIndex picks the rear camera when a label says so, otherwise the
// last device, which is usually the rear camera on phones. Returns -1 for
// an empty list.
func (e *DeviceEnumerator) DefaultIndex(devices []domain.CameraDevice) int {
	return DefaultIndex(devices)
}

// DefaultIndex is the default-selection policy shared by enumerators.
func DefaultIndex(devices []domain.CameraDevice) int {
	if len(devices) == 0 {
		return -1
	}
	for i, d := range devices {
		label := strings.ToLower(d.Label)
		for _, hint := range rearLabelHints {
			if strings.Contains(label, hint) {
				return i
			}
		}
	}
	return len(devices) - 1
}
