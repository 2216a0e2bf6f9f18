package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
)

type fakeHandle struct {
	id    string
	probe bool
}

func (h *fakeHandle) DeviceID() string { return h.id }

// fakeMedia tracks acquire/release balance to detect double acquisition.
type fakeMedia struct {
	mu         sync.Mutex
	devices    []domain.CameraDevice
	enumErr    error
	acquireErr []error // consumed in order
	active     int
	maxActive  int
	acquires   int
	releases   int
	probes     int
}

func (m *fakeMedia) EnumerateDevices(ctx context.Context) ([]domain.CameraDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices, m.enumErr
}

func (m *fakeMedia) AcquireStream(ctx context.Context, deviceID string, c domain.StreamConstraints) (ports.StreamHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.acquireErr) > 0 {
		err := m.acquireErr[0]
		m.acquireErr = m.acquireErr[1:]
		if err != nil {
			return nil, err
		}
	}
	if c.Probe {
		m.probes++
	}
	m.acquires++
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	return &fakeHandle{id: deviceID, probe: c.Probe}, nil
}

func (m *fakeMedia) ReleaseStream(h ports.StreamHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		return errors.New("nil handle")
	}
	m.releases++
	m.active--
	return nil
}

func (m *fakeMedia) counts() (acquires, releases, maxActive int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires, m.releases, m.maxActive
}

// fakeDecoder hands the payload callback to the test.
type fakeDecoder struct {
	mu      sync.Mutex
	err     error
	emit    func(string)
	exit    func(error)
	stopped int
}

func (d *fakeDecoder) DecodeLoop(h ports.StreamHandle, onPayload func(string), onExit func(error)) (ports.StopFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.emit = onPayload
	d.exit = onExit
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stopped++
		d.emit = nil
	}, nil
}

func (d *fakeDecoder) send(payload string) bool {
	d.mu.Lock()
	emit := d.emit
	d.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(payload)
	return true
}

// die ends the current loop as if the decoder process exited on its own.
func (d *fakeDecoder) die(err error) func(error) {
	d.mu.Lock()
	exit := d.exit
	d.mu.Unlock()
	if exit != nil {
		exit(err)
	}
	return exit
}
