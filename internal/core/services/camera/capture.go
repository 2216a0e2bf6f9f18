package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/byteom/scanstation/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultPayloadBuffer is the capacity of the payload channel.
const DefaultPayloadBuffer = 8

// Session owns one camera stream and its decode loop.
// Start and Stop are serialized; Start always releases a prior stream first.
type Session struct {
	media   ports.MediaDevices
	decoder ports.Decoder
	now     func() time.Time

	out    chan domain.Decoded
	faults chan domain.CaptureFault
	state  AtomicState
	gen    atomic.Uint64

	mu         sync.Mutex
	handle     ports.StreamHandle
	stopDecode ports.StopFunc
	deviceID   string
}

// NewSession creates a capture session. Payloads are published on a single
// buffered channel that lives as long as the session.
func NewSession(media ports.MediaDevices, decoder ports.Decoder) *Session {
	return &Session{
		media:   media,
		decoder: decoder,
		now:     time.Now,
		out:     make(chan domain.Decoded, DefaultPayloadBuffer),
		faults:  make(chan domain.CaptureFault, 1),
	}
}

// Payloads returns the decoded payload stream.
func (s *Session) Payloads() <-chan domain.Decoded {
	return s.out
}

// Faults reports decode loops of the running stream that ended on their own.
func (s *Session) Faults() <-chan domain.CaptureFault {
	return s.faults
}

// State returns the current capture state.
func (s *Session) State() CaptureState {
	return s.state.Get()
}

// ActiveDevice returns the device currently streaming.
func (s *Session) ActiveDevice() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID, s.handle != nil
}

// Start acquires deviceID and starts the decode loop on it.
func (s *Session) Start(ctx context.Context, deviceID string) error {
	ctx, span := telemetry.Tracer("camera").Start(ctx, "camera.start")
	defer span.End()
	span.SetAttributes(attribute.String("camera.device", deviceID))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Never hold two streams: release the previous one before acquiring.
	if s.handle != nil {
		s.releaseLocked()
	}

	s.state.Set(StateStarting)
	handle, err := s.media.AcquireStream(ctx, deviceID, domain.StreamConstraints{Facing: "environment"})
	if err != nil {
		s.state.Set(StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
		return fmt.Errorf("acquire %s: %w", deviceID, err)
	}

	if ctx.Err() != nil {
		if relErr := s.media.ReleaseStream(handle); relErr != nil {
			slog.Warn("Failed to release stream after cancel", "device", deviceID, "error", relErr)
		}
		s.state.Set(StateIdle)
		return ctx.Err()
	}

	// A fault left over from a previous stream is stale.
	select {
	case <-s.faults:
	default:
	}

	gen := s.gen.Add(1)
	stop, err := s.decoder.DecodeLoop(handle, s.emitter(deviceID), s.faultReporter(gen, deviceID))
	if err != nil {
		if relErr := s.media.ReleaseStream(handle); relErr != nil {
			slog.Warn("Failed to release stream after decoder error", "device", deviceID, "error", relErr)
		}
		s.state.Set(StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decoder failed")
		return fmt.Errorf("decode loop %s: %w", deviceID, err)
	}

	s.handle = handle
	s.stopDecode = stop
	s.deviceID = deviceID
	s.state.Set(StateRunning)
	slog.Info("Camera started", "device", deviceID)
	return nil
}

// Stop stops the decode loop and releases the stream. It is safe to call
// when nothing is running and returns only after the device is released.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return nil
	}
	return s.releaseLocked()
}

func (s *Session) releaseLocked() error {
	s.gen.Add(1)
	s.state.Set(StateStopping)
	if s.stopDecode != nil {
		s.stopDecode()
	}
	err := s.media.ReleaseStream(s.handle)
	if err != nil {
		slog.Warn("Failed to release camera stream", "device", s.deviceID, "error", err)
	} else {
		slog.Info("Camera stopped", "device", s.deviceID)
	}

	s.handle = nil
	s.stopDecode = nil
	s.deviceID = ""
	s.state.Set(StateIdle)
	return err
}

// emitter publishes without blocking the decode loop. When the consumer is
// behind the payload is dropped; the next frame carries the same code anyway.
func (s *Session) emitter(deviceID string) func(string) {
	return func(payload string) {
		if payload == "" {
			return
		}
		d := domain.Decoded{Payload: payload, DeviceID: deviceID, At: s.now()}
		select {
		case s.out <- d:
		default:
			telemetry.PayloadsDropped.WithLabelValues(deviceID).Inc()
		}
	}
}

// faultReporter must not take s.mu: Stop holds it while waiting for the
// decode loop to exit.
func (s *Session) faultReporter(gen uint64, deviceID string) func(error) {
	return func(err error) {
		if s.gen.Load() != gen {
			return
		}
		slog.Warn("Decode loop ended unexpectedly", "device", deviceID, "error", err)
		select {
		case s.faults <- domain.CaptureFault{DeviceID: deviceID, Err: err}:
		default:
		}
	}
}

var _ ports.CaptureSession = (*Session)(nil)
var _ ports.CameraEnumerator = (*DeviceEnumerator)(nil)
