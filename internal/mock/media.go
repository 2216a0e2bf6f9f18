package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
)

// DefaultDevices is a laptop with a user-facing and a world-facing camera.
var DefaultDevices = []domain.CameraDevice{
	{ID: "mock-front", Label: "Mock Front Camera"},
	{ID: "mock-back", Label: "Mock Back Camera"},
}

// MediaOptions configures the simulated camera stack.
type MediaOptions struct {
	Devices      []domain.CameraDevice
	BusyFailures int           // non-probe acquisitions that fail as busy before one succeeds
	Interval     time.Duration // time between simulated decodes
	Profile      string
	Script       []string
}

// Media simulates camera devices and a decoder. It enforces single
// ownership of each device like real hardware.
type Media struct {
	mu       sync.Mutex
	devices  []domain.CameraDevice
	busyLeft int
	inUse    map[string]bool

	interval time.Duration
	gen      *PayloadGenerator
}

// NewMedia creates a simulated media stack.
func NewMedia(opts MediaOptions) *Media {
	// An explicit empty list simulates a machine without cameras.
	devices := opts.Devices
	if devices == nil {
		devices = DefaultDevices
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Media{
		devices:  devices,
		busyLeft: opts.BusyFailures,
		inUse:    make(map[string]bool),
		interval: interval,
		gen:      NewPayloadGenerator(opts.Profile, opts.Script),
	}
}

type mockStream struct {
	id string
}

func (s *mockStream) DeviceID() string { return s.id }

func (m *Media) EnumerateDevices(ctx context.Context) ([]domain.CameraDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CameraDevice, len(m.devices))
	copy(out, m.devices)
	return out, nil
}

func (m *Media) AcquireStream(ctx context.Context, deviceID string, c domain.StreamConstraints) (ports.StreamHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.devices) == 0 {
		return nil, domain.ErrCameraNotFound
	}
	if deviceID == "" {
		deviceID = m.devices[len(m.devices)-1].ID
	}
	found := false
	for _, d := range m.devices {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrCameraNotFound, deviceID)
	}
	if m.inUse[deviceID] {
		return nil, fmt.Errorf("%w: %s", domain.ErrCameraInUse, deviceID)
	}
	if !c.Probe && m.busyLeft > 0 {
		m.busyLeft--
		return nil, fmt.Errorf("%w: %s (simulated)", domain.ErrCameraBusy, deviceID)
	}

	m.inUse[deviceID] = true
	return &mockStream{id: deviceID}, nil
}

func (m *Media) ReleaseStream(h ports.StreamHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inUse, h.DeviceID())
	return nil
}

// InUse reports whether any simulated device is held.
func (m *Media) InUse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inUse) > 0
}

// DecodeLoop emits a generated payload every interval until stopped. The
// simulated decoder never exits on its own, so onExit is unused.
func (m *Media) DecodeLoop(h ports.StreamHandle, onPayload func(string), onExit func(error)) (ports.StopFunc, error) {
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				onPayload(m.gen.Next())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}, nil
}

var (
	_ ports.MediaDevices = (*Media)(nil)
	_ ports.Decoder      = (*Media)(nil)
)
