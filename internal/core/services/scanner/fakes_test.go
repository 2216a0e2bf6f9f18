package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type enumResult struct {
	devices []domain.CameraDevice
	err     error
}

// fakeEnumerator returns queued results; the last one repeats.
type fakeEnumerator struct {
	mu         sync.Mutex
	results    []enumResult
	calls      int
	defaultIdx int
}

func (e *fakeEnumerator) ListCameras(ctx context.Context) ([]domain.CameraDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	r := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	return r.devices, r.err
}

func (e *fakeEnumerator) DefaultIndex(devices []domain.CameraDevice) int {
	return e.defaultIdx
}

// fakeCapture records starts and detects a start while a stream is active.
// Its payload channel is unbuffered so a send returns only once the
// controller loop has taken the payload.
type fakeCapture struct {
	mu       sync.Mutex
	payloads chan domain.Decoded
	faults   chan domain.CaptureFault
	failures []error // consumed per start
	starts   []string
	stops    int
	overlaps int
	active   bool
	device   string
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{
		payloads: make(chan domain.Decoded),
		faults:   make(chan domain.CaptureFault),
	}
}

func (f *fakeCapture) Start(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, deviceID)
	if f.active {
		f.overlaps++
	}
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return err
		}
	}
	f.active = true
	f.device = deviceID
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.stops++
	}
	f.active = false
	f.device = ""
	return nil
}

func (f *fakeCapture) Payloads() <-chan domain.Decoded {
	return f.payloads
}

func (f *fakeCapture) Faults() <-chan domain.CaptureFault {
	return f.faults
}

func (f *fakeCapture) ActiveDevice() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device, f.active
}

func (f *fakeCapture) Starts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeCapture) Overlaps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

func (f *fakeCapture) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// fakeVerifier answers with respond. If gate is set each call blocks on it.
type fakeVerifier struct {
	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	gate        chan struct{}
	respond     func(payload string) (domain.ScanOutcome, error)
}

func (v *fakeVerifier) Verify(ctx context.Context, payload string) (domain.ScanOutcome, error) {
	v.mu.Lock()
	v.calls = append(v.calls, payload)
	v.inFlight++
	if v.inFlight > v.maxInFlight {
		v.maxInFlight = v.inFlight
	}
	gate := v.gate
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.inFlight--
		v.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ScanOutcome{}, ctx.Err()
		}
	}
	return v.respond(payload)
}

func (v *fakeVerifier) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// MaxInFlight is the highest number of concurrent Verify calls seen.
func (v *fakeVerifier) MaxInFlight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxInFlight
}

func checkedIn(payload string) (domain.ScanOutcome, error) {
	return domain.ScanOutcome{
		Kind:        domain.OutcomeSuccess,
		SubjectName: "Jane Doe",
		SubjectRef:  "V-17",
		Direction:   "ENTRY",
		Counter:     5,
	}, nil
}

// MockRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, rec domain.ScanRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		Cooldown:     5 * time.Second,
		SettleDelay:  time.Millisecond,
		RetryDelay:   5 * time.Millisecond,
		MaxRetries:   3,
		SuccessDwell: 20 * time.Millisecond,
		FailureDwell: 20 * time.Millisecond,
	}
}

type harness struct {
	c        *Controller
	enum     *fakeEnumerator
	capture  *fakeCapture
	verifier *fakeVerifier
	clock    *fakeClock
	views    *viewLog
}

type harnessOpt func(*Config, *Dependencies)

func withRecorder(r *MockRecorder) harnessOpt {
	return func(_ *Config, d *Dependencies) { d.Recorder = r }
}

func withConfig(fn func(*Config)) harnessOpt {
	return func(c *Config, _ *Dependencies) { fn(c) }
}

// startHarness runs a controller over fakes until the test ends.
func startHarness(t *testing.T, enum *fakeEnumerator, capture *fakeCapture, verifier *fakeVerifier, opts ...harnessOpt) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	deps := Dependencies{
		Enumerator: enum,
		Capture:    capture,
		Verifier:   verifier,
		Profile:    domain.ProfileVolunteer,
		Now:        clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	c := NewController(cfg, deps)
	views := recordViews(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{c: c, enum: enum, capture: capture, verifier: verifier, clock: clock, views: views}
}

func (h *harness) waitStatus(t *testing.T, status domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.c.View().Status == status
	}, 2*time.Second, time.Millisecond, "never reached %s (at %s)", status, h.c.View().Status)
}

// present hands a decoded payload to the controller and waits until the
// loop has handled it.
func (h *harness) present(t *testing.T, payload string) {
	t.Helper()
	select {
	case h.capture.payloads <- domain.Decoded{Payload: payload, DeviceID: "cam1", At: h.clock.Now()}:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not take payload %q", payload)
	}
	h.flush(t)
}

// fault reports a dead decode loop to the controller and waits until the
// loop has handled it.
func (h *harness) fault(t *testing.T, deviceID string, err error) {
	t.Helper()
	select {
	case h.capture.faults <- domain.CaptureFault{DeviceID: deviceID, Err: err}:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not take fault for %q", deviceID)
	}
	h.flush(t)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.do(context.Background(), func() error { return nil }))
}

// viewLog collects every published view model.
type viewLog struct {
	mu    sync.Mutex
	views []domain.ViewModel
}

func recordViews(c *Controller) *viewLog {
	l := &viewLog{}
	ch, _ := c.Subscribe()
	go func() {
		for vm := range ch {
			l.mu.Lock()
			l.views = append(l.views, vm)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *viewLog) Statuses() []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Status
	for _, vm := range l.views {
		if len(out) == 0 || out[len(out)-1] != vm.Status {
			out = append(out, vm.Status)
		}
	}
	return out
}

func (l *viewLog) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, vm := range l.views {
		if vm.Message != nil && (len(out) == 0 || out[len(out)-1] != *vm.Message) {
			out = append(out, *vm.Message)
		}
	}
	return out
}
