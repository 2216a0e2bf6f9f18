package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/byteom/scanstation/internal/telemetry"
	"github.com/google/uuid"
)

// Timer names.
const (
	timerSettle = "settle"
	timerRetry  = "retry"
	timerDwell  = "dwell"
)

const (
	queueSize        = 64
	subscriberBuffer = 16
	recordTimeout    = 5 * time.Second
)

// Config holds the session timings. All values are observed defaults that
// product may tune.
type Config struct {
	Cooldown     time.Duration
	SettleDelay  time.Duration
	RetryDelay   time.Duration
	MaxRetries   int
	SuccessDwell time.Duration
	FailureDwell time.Duration
}

// DefaultConfig returns the timings observed in the field.
func DefaultConfig() Config {
	return Config{
		Cooldown:     DefaultCooldown,
		SettleDelay:  350 * time.Millisecond,
		RetryDelay:   2 * time.Second,
		MaxRetries:   3,
		SuccessDwell: 1500 * time.Millisecond,
		FailureDwell: 2 * time.Second,
	}
}

// Dependencies are the collaborators of a Controller.
type Dependencies struct {
	Enumerator ports.CameraEnumerator
	Capture    ports.CaptureSession
	Verifier   ports.Verifier
	Recorder   ports.ScanRecorder // optional
	Profile    domain.Profile
	Now        func() time.Time
}

// Controller is the scan session state machine.
//
// All state below the loop-owned marker is touched only by the Run goroutine.
// Asynchronous work (enumeration, camera start, verification) runs in its own
// goroutine and posts a closure back to the loop. Each async result carries
// the epoch it was started in and is dropped if the session moved on.
type Controller struct {
	cfg       Config
	enum      ports.CameraEnumerator
	capture   ports.CaptureSession
	verifier  ports.Verifier
	recorder  ports.ScanRecorder
	profile   domain.Profile
	sessionID string
	now       func() time.Time

	guard *DuplicateGuard
	sched *Scheduler

	queue     chan func()
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
	running   atomic.Bool

	opCtx    context.Context
	opCancel context.CancelFunc

	// loop-owned
	status      domain.Status
	devices     []domain.CameraDevice
	deviceIdx   int
	retries     int
	processing  bool
	verifying   bool
	readyShown  bool
	message     string
	errText     string
	lastOutcome *domain.ScanOutcome
	epoch       uint64
	startCancel context.CancelFunc

	viewMu      sync.RWMutex
	view        domain.ViewModel
	viewDevices []domain.CameraDevice
	viewActive  string
	subs        map[int]chan domain.ViewModel
	nextSub     int
	subsClosed  bool
}

// NewController creates a controller. Call Run to start it.
func NewController(cfg Config, deps Dependencies) *Controller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	opCtx, opCancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		enum:      deps.Enumerator,
		capture:   deps.Capture,
		verifier:  deps.Verifier,
		recorder:  deps.Recorder,
		profile:   deps.Profile,
		sessionID: uuid.New().String(),
		now:       now,
		guard:     NewDuplicateGuard(cfg.Cooldown),
		queue:     make(chan func(), queueSize),
		done:      make(chan struct{}),
		opCtx:     opCtx,
		opCancel:  opCancel,
		status:    domain.StatusInitializing,
		subs:      make(map[int]chan domain.ViewModel),
	}
	c.sched = NewScheduler(c.post)
	c.alive.Store(true)
	c.view = Project(c.snapshot())
	return c
}

// SessionID identifies this station session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Run drives the state machine until ctx is cancelled or Teardown is called.
func (c *Controller) Run(ctx context.Context) error {
	if !c.alive.Load() {
		return domain.ErrSessionClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("scan session already running")
	}

	slog.Info("Scan session starting", "session", c.sessionID, "profile", c.profile)
	c.initialize()

	payloads := c.capture.Payloads()
	faults := c.capture.Faults()
	for {
		select {
		case <-ctx.Done():
			c.Teardown()
			return nil
		case <-c.done:
			return nil
		case fn := <-c.queue:
			if c.alive.Load() {
				fn()
			}
		case d := <-payloads:
			if c.alive.Load() {
				c.handleDecode(d)
			}
		case f := <-faults:
			if c.alive.Load() {
				c.handleFault(f)
			}
		}
	}
}

// Teardown force-stops the camera, cancels timers and in-flight work and
// stops the loop. It is idempotent and safe when nothing is active.
func (c *Controller) Teardown() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.sched.Close()
		c.opCancel()
		close(c.done)

		c.viewMu.Lock()
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.subsClosed = true
		c.viewMu.Unlock()

		slog.Info("Scan session torn down", "session", c.sessionID)
	})

	if err := c.capture.Stop(); err != nil {
		slog.Warn("Failed to stop camera on teardown", "error", err)
	}
}

// post hands fn to the loop. After teardown it is a no-op.
func (c *Controller) post(fn func()) {
	if !c.alive.Load() {
		return
	}
	select {
	case c.queue <- fn:
	case <-c.done:
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	if !c.alive.Load() {
		return domain.ErrSessionClosed
	}
	reply := make(chan error, 1)
	c.post(func() { reply <- fn() })

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rearm leaves the waiting gate and restarts scanning on the current camera.
func (c *Controller) Rearm(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.status != domain.StatusWaiting || !c.readyShown {
			return domain.ErrInvalidTransition
		}
		slog.Info("Scanner re-armed", "session", c.sessionID)
		c.readyShown = false
		c.guard.Release()
		c.lastOutcome = nil
		c.message = ""
		c.retries = 0
		c.enterStarting()
		return nil
	})
}

// SwitchCamera moves to the next camera in round-robin order.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.status != domain.StatusScanning {
			return domain.ErrInvalidTransition
		}
		if len(c.devices) < 2 {
			return domain.ErrNoSwitchTarget
		}

		c.setStatus(domain.StatusSwitching)
		c.stopCapture()
		c.deviceIdx = (c.deviceIdx + 1) % len(c.devices)
		c.retries = 0
		slog.Info("Switching camera", "device", c.devices[c.deviceIdx].ID)
		c.enterStarting()
		return nil
	})
}

// Reload is the manual recovery action: it drops all progress and starts
// over from enumeration. It is refused while a verification is in flight so
// two verifications never overlap. The cooldown pairing survives.
func (c *Controller) Reload(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.verifying {
			return domain.ErrInvalidTransition
		}
		slog.Info("Scan session reloading", "session", c.sessionID, "from", c.status)
		c.sched.CancelAll()
		c.cancelStart()
		c.stopCapture()

		c.devices = nil
		c.deviceIdx = 0
		c.retries = 0
		c.processing = false
		c.readyShown = false
		c.lastOutcome = nil
		c.guard.Release()
		c.initialize()
		return nil
	})
}

func (c *Controller) initialize() {
	c.epoch++
	epoch := c.epoch
	c.message = ""
	c.errText = ""
	c.setStatus(domain.StatusInitializing)

	go func() {
		devices, err := c.enum.ListCameras(c.opCtx)
		c.post(func() { c.onEnumerated(epoch, devices, err) })
	}()
}

func (c *Controller) onEnumerated(epoch uint64, devices []domain.CameraDevice, err error) {
	if epoch != c.epoch {
		return
	}
	if err != nil {
		slog.Error("Camera enumeration failed", "error", err)
		c.fail(domain.CameraErrorMessage(err))
		return
	}
	if len(devices) == 0 {
		c.fail(domain.CameraErrorMessage(domain.ErrCameraNotFound))
		return
	}

	c.devices = devices
	c.deviceIdx = c.enum.DefaultIndex(devices)
	if c.deviceIdx < 0 || c.deviceIdx >= len(devices) {
		c.deviceIdx = len(devices) - 1
	}
	c.retries = 0
	c.enterStarting()
}

// enterStarting releases the current stream, waits for the device to settle
// and then starts the selected camera.
func (c *Controller) enterStarting() {
	c.epoch++
	epoch := c.epoch
	c.cancelStart()

	// Must complete before the next acquire.
	c.stopCapture()

	c.sched.Schedule(timerSettle, c.cfg.SettleDelay, func() { c.startCamera(epoch) })
	c.setStatus(domain.StatusStarting)
}

func (c *Controller) startCamera(epoch uint64) {
	if epoch != c.epoch || c.status != domain.StatusStarting {
		return
	}
	deviceID := c.devices[c.deviceIdx].ID

	ctx, cancel := context.WithCancel(c.opCtx)
	c.startCancel = cancel

	go func() {
		err := c.capture.Start(ctx, deviceID)
		if err == nil && !c.alive.Load() {
			c.capture.Stop()
		}
		c.post(func() { c.onStarted(epoch, deviceID, err) })
	}()
}

func (c *Controller) onStarted(epoch uint64, deviceID string, err error) {
	if epoch != c.epoch {
		if err == nil && c.status != domain.StatusStarting && c.status != domain.StatusScanning {
			c.stopCapture()
		}
		return
	}
	c.cancelStart()

	if err == nil {
		telemetry.CameraStarts.WithLabelValues(deviceID, "ok").Inc()
		c.retries = 0
		c.message = ""
		c.errText = ""
		c.setStatus(domain.StatusScanning)
		return
	}

	if domain.IsTransientCameraError(err) {
		telemetry.CameraStarts.WithLabelValues(deviceID, "busy").Inc()
	} else {
		telemetry.CameraStarts.WithLabelValues(deviceID, "failed").Inc()
	}
	c.cameraFailed(deviceID, err)
}

// handleFault reacts to a decode loop that died while scanning. The camera
// is restarted like a busy start; anything else is fatal.
func (c *Controller) handleFault(f domain.CaptureFault) {
	if c.status != domain.StatusScanning {
		return
	}
	if c.deviceIdx < 0 || c.deviceIdx >= len(c.devices) || c.devices[c.deviceIdx].ID != f.DeviceID {
		return
	}
	slog.Warn("Camera stream lost", "device", f.DeviceID, "error", f.Err)
	c.epoch++
	c.stopCapture()
	c.setStatus(domain.StatusStarting)

	err := f.Err
	if err == nil {
		err = domain.ErrCameraBusy
	}
	c.cameraFailed(f.DeviceID, err)
}

// cameraFailed retries transient errors up to MaxRetries and fails otherwise.
func (c *Controller) cameraFailed(deviceID string, err error) {
	if domain.IsTransientCameraError(err) {
		c.retries++
		if c.retries <= c.cfg.MaxRetries {
			telemetry.CameraRetries.Inc()
			slog.Warn("Camera busy, scheduling retry", "device", deviceID, "attempt", c.retries, "max", c.cfg.MaxRetries, "error", err)
			c.message = fmt.Sprintf("Camera busy, retrying (%d/%d)...", c.retries, c.cfg.MaxRetries)
			c.publish()
			c.sched.Schedule(timerRetry, c.cfg.RetryDelay, c.enterStarting)
			return
		}
		slog.Error("Camera still busy, giving up", "device", deviceID, "attempts", c.retries)
		c.fail("Camera is still in use after several attempts. Close other apps using the camera and refresh the page.")
		return
	}

	slog.Error("Camera failed", "device", deviceID, "error", err)
	c.fail(domain.CameraErrorMessage(err))
}

// handleDecode applies the acceptance policy. Dropped payloads are never queued.
func (c *Controller) handleDecode(d domain.Decoded) {
	if c.status != domain.StatusScanning {
		telemetry.DecodesTotal.WithLabelValues("idle").Inc()
		return
	}
	if c.processing || c.readyShown || c.guard.Held() {
		telemetry.DecodesTotal.WithLabelValues("locked").Inc()
		return
	}
	if !c.guard.Accept(d.Payload, c.now()) {
		telemetry.DecodesTotal.WithLabelValues("duplicate").Inc()
		slog.Debug("Duplicate payload suppressed", "device", d.DeviceID)
		return
	}
	telemetry.DecodesTotal.WithLabelValues("accepted").Inc()

	c.processing = true
	c.verifying = true
	c.guard.Hold()
	// Release the camera before the network call so no decode can overlap it.
	c.stopCapture()

	c.lastOutcome = nil
	c.setStatus(domain.StatusProcessing)

	epoch := c.epoch
	go c.verify(epoch, d)
}

// verify performs exactly one verification call for an accepted payload.
func (c *Controller) verify(epoch uint64, d domain.Decoded) {
	start := time.Now()
	outcome, err := c.verifier.Verify(c.opCtx, d.Payload)
	if err != nil {
		slog.Warn("Verification failed", "error", err)
		outcome = domain.FailureOutcome(err)
	}
	latency := time.Since(start)

	result := string(domain.OutcomeSuccess)
	if !outcome.Succeeded() {
		result = string(outcome.FailureKind)
	}
	telemetry.Verifications.WithLabelValues(string(c.profile), result).Inc()
	telemetry.VerificationDuration.WithLabelValues(string(c.profile)).Observe(latency.Seconds())

	if c.recorder != nil {
		rec := domain.ScanRecord{
			SessionID:   c.sessionID,
			Profile:     c.profile,
			DeviceID:    d.DeviceID,
			Payload:     d.Payload,
			Outcome:     outcome.Kind,
			FailureKind: outcome.FailureKind,
			SubjectName: outcome.SubjectName,
			SubjectRef:  outcome.SubjectRef,
			Direction:   outcome.Direction,
			Counter:     outcome.Counter,
			Message:     outcome.Message,
			LatencyMs:   latency.Milliseconds(),
			ScannedAt:   d.At,
		}
		// Not cancelled by teardown.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(c.opCtx), recordTimeout)
		if err := c.recorder.Record(recCtx, rec); err != nil {
			slog.Warn("Failed to record scan", "error", err)
		}
		cancel()
	}

	c.post(func() { c.onVerified(epoch, outcome) })
}

func (c *Controller) onVerified(epoch uint64, outcome domain.ScanOutcome) {
	c.verifying = false
	if epoch != c.epoch || c.status != domain.StatusProcessing {
		return
	}
	c.lastOutcome = &outcome

	if outcome.Succeeded() {
		slog.Info("Scan verified", "subject", outcome.SubjectRef, "direction", outcome.Direction, "counter", outcome.Counter)
		c.errText = ""
		c.setStatus(domain.StatusSuccess)
		c.sched.Schedule(timerDwell, c.cfg.SuccessDwell, c.enterWaiting)
		return
	}

	c.errText = outcome.Message
	c.setStatus(domain.StatusError)
	c.sched.Schedule(timerDwell, c.cfg.FailureDwell, c.enterWaiting)
}

// enterWaiting releases the processing lock and shows the ready control.
// Scanning resumes only on Rearm.
func (c *Controller) enterWaiting() {
	c.processing = false
	c.readyShown = true
	c.errText = ""
	c.setStatus(domain.StatusWaiting)
}

// fail enters the terminal state. Only Reload leaves it.
func (c *Controller) fail(msg string) {
	c.sched.CancelAll()
	c.cancelStart()
	c.stopCapture()
	c.processing = false
	c.readyShown = false
	c.message = ""
	c.errText = msg
	c.setStatus(domain.StatusFatal)
}

func (c *Controller) cancelStart() {
	if c.startCancel != nil {
		c.startCancel()
		c.startCancel = nil
	}
}

func (c *Controller) stopCapture() {
	if err := c.capture.Stop(); err != nil {
		slog.Warn("Failed to stop camera", "error", err)
	}
}

func (c *Controller) setStatus(s domain.Status) {
	if c.status != s {
		slog.Debug("Scan session transition", "from", c.status, "to", s)
	}
	c.status = s
	telemetry.StateTransitions.WithLabelValues(string(s)).Inc()
	c.publish()
}

func (c *Controller) snapshot() domain.Snapshot {
	var active string
	if c.deviceIdx >= 0 && c.deviceIdx < len(c.devices) {
		active = c.devices[c.deviceIdx].ID
	}
	return domain.Snapshot{
		Status:       c.status,
		SessionID:    c.sessionID,
		Message:      c.message,
		ErrorText:    c.errText,
		Devices:      c.devices,
		ActiveDevice: active,
		ReadyShown:   c.readyShown,
		Retry:        c.retries,
		MaxRetries:   c.cfg.MaxRetries,
		LastOutcome:  c.lastOutcome,
	}
}

// publish projects the current state and fans it out. Slow subscribers lose
// their oldest pending view, never the latest one.
func (c *Controller) publish() {
	snap := c.snapshot()
	vm := Project(snap)

	devices := make([]domain.CameraDevice, len(snap.Devices))
	copy(devices, snap.Devices)

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.view = vm
	c.viewDevices = devices
	c.viewActive = snap.ActiveDevice
	if c.subsClosed {
		return
	}
	for _, ch := range c.subs {
		select {
		case ch <- vm:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- vm:
			default:
			}
		}
	}
}

// View returns the latest view model.
func (c *Controller) View() domain.ViewModel {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// Devices returns the enumerated cameras and the selected device id.
func (c *Controller) Devices() ([]domain.CameraDevice, string) {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	devices := make([]domain.CameraDevice, len(c.viewDevices))
	copy(devices, c.viewDevices)
	return devices, c.viewActive
}

// Subscribe returns a stream of view models starting with the current one.
// The returned func unsubscribes. The channel is closed on teardown.
func (c *Controller) Subscribe() (<-chan domain.ViewModel, func()) {
	ch := make(chan domain.ViewModel, subscriberBuffer)

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if c.subsClosed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.view

	return ch, func() {
		c.viewMu.Lock()
		defer c.viewMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// PendingTimers reports scheduled timers not yet run.
func (c *Controller) PendingTimers() int {
	return c.sched.Pending()
}

var _ ports.ScanSession = (*Controller)(nil)
