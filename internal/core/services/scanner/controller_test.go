package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func oneCamera() *fakeEnumerator {
	return &fakeEnumerator{
		results: []enumResult{{devices: []domain.CameraDevice{{ID: "cam1", Label: "Back Camera"}}}},
	}
}

func twoCameras() *fakeEnumerator {
	return &fakeEnumerator{
		results: []enumResult{{devices: []domain.CameraDevice{
			{ID: "cam-front", Label: "Front Camera"},
			{ID: "cam-back", Label: "Back Camera"},
		}}},
		defaultIdx: 1,
	}
}

// inOrder reports whether want appears in got as a subsequence.
func inOrder(got, want []domain.Status) bool {
	i := 0
	for _, s := range got {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestController_HappyPath(t *testing.T) {
	capture := newFakeCapture()
	verifier := &fakeVerifier{respond: checkedIn}
	h := startHarness(t, oneCamera(), capture, verifier)

	h.waitStatus(t, domain.StatusScanning)
	assert.Equal(t, []string{"cam1"}, capture.Starts())

	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)

	assert.Equal(t, []string{"TOK-A"}, verifier.Calls())
	assert.False(t, capture.Active(), "camera must be released while waiting")

	vm := h.c.View()
	assert.True(t, vm.ShowReadyButton)
	assert.False(t, vm.CanSwitchCamera)
	require.NotNil(t, vm.LastOutcome)
	assert.Equal(t, "Jane Doe", vm.LastOutcome.SubjectName)
	assert.Equal(t, "ENTRY", vm.LastOutcome.Direction)
	assert.Equal(t, 5, vm.LastOutcome.Counter)

	assert.Eventually(t, func() bool {
		return inOrder(h.views.Statuses(), []domain.Status{
			domain.StatusInitializing,
			domain.StatusStarting,
			domain.StatusScanning,
			domain.StatusProcessing,
			domain.StatusSuccess,
			domain.StatusWaiting,
		})
	}, time.Second, time.Millisecond)

	require.NoError(t, h.c.Rearm(context.Background()))
	h.waitStatus(t, domain.StatusScanning)
	assert.Equal(t, []string{"cam1", "cam1"}, capture.Starts())
	assert.Nil(t, h.c.View().LastOutcome)
	assert.Zero(t, capture.Overlaps())
}

func TestController_DuplicateSuppression(t *testing.T) {
	verifier := &fakeVerifier{respond: checkedIn}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier)
	t0 := h.clock.Now()

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)

	require.NoError(t, h.c.Rearm(context.Background()))
	h.waitStatus(t, domain.StatusScanning)

	// Still in cooldown.
	h.clock.Set(t0.Add(1000 * time.Millisecond))
	h.present(t, "TOK-A")
	assert.Equal(t, domain.StatusScanning, h.c.View().Status)
	assert.Len(t, verifier.Calls(), 1)

	// A different payload is not subject to the cooldown.
	h.clock.Set(t0.Add(2000 * time.Millisecond))
	h.present(t, "TOK-B")
	h.waitStatus(t, domain.StatusWaiting)
	assert.Equal(t, []string{"TOK-A", "TOK-B"}, verifier.Calls())

	require.NoError(t, h.c.Rearm(context.Background()))
	h.waitStatus(t, domain.StatusScanning)

	// TOK-B is now the last payload, so TOK-A is accepted again.
	h.clock.Set(t0.Add(6000 * time.Millisecond))
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)
	assert.Equal(t, []string{"TOK-A", "TOK-B", "TOK-A"}, verifier.Calls())
}

func TestController_SamePayloadAfterCooldown(t *testing.T) {
	verifier := &fakeVerifier{respond: checkedIn}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier)
	t0 := h.clock.Now()

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)
	require.NoError(t, h.c.Rearm(context.Background()))
	h.waitStatus(t, domain.StatusScanning)

	h.clock.Set(t0.Add(6000 * time.Millisecond))
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)
	assert.Equal(t, []string{"TOK-A", "TOK-A"}, verifier.Calls())
}

func TestController_ExclusiveProcessing(t *testing.T) {
	gate := make(chan struct{})
	verifier := &fakeVerifier{respond: checkedIn, gate: gate}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier)

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	assert.Equal(t, domain.StatusProcessing, h.c.View().Status)

	// Late callbacks from the decoder while verifying are dropped, not queued.
	h.present(t, "TOK-B")
	h.present(t, "TOK-C")

	close(gate)
	h.waitStatus(t, domain.StatusWaiting)

	h.present(t, "TOK-D")
	assert.Equal(t, domain.StatusWaiting, h.c.View().Status)
	assert.Equal(t, []string{"TOK-A"}, verifier.Calls())
}

func TestController_DecodeBeforeScanningIsDropped(t *testing.T) {
	verifier := &fakeVerifier{respond: checkedIn}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier,
		withConfig(func(c *Config) { c.SettleDelay = time.Hour }))

	h.waitStatus(t, domain.StatusStarting)
	h.present(t, "TOK-A")
	assert.Empty(t, verifier.Calls())
}

func TestController_RetryBound(t *testing.T) {
	capture := newFakeCapture()
	capture.failures = []error{domain.ErrCameraBusy, domain.ErrCameraBusy, domain.ErrCameraBusy, domain.ErrCameraBusy}
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusFatal)
	assert.Len(t, capture.Starts(), 4)
	assert.Zero(t, h.c.PendingTimers())

	vm := h.c.View()
	assert.True(t, vm.Fatal)
	require.NotNil(t, vm.ErrorText)
	assert.Contains(t, *vm.ErrorText, "refresh")
	assert.False(t, vm.CanSwitchCamera)

	assert.Eventually(t, func() bool {
		msgs := h.views.Messages()
		return len(msgs) == 3 && msgs[2] == "Camera busy, retrying (3/3)..."
	}, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, capture.Starts(), 4, "no attempts after giving up")
}

func TestController_BusyRecovers(t *testing.T) {
	capture := newFakeCapture()
	capture.failures = []error{domain.ErrCameraInUse, nil}
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusScanning)
	assert.Len(t, capture.Starts(), 2)
	assert.Nil(t, h.c.View().Message)
	assert.Equal(t, []string{"Camera busy, retrying (1/3)..."}, h.views.Messages())
}

func TestController_PermissionDeniedIsFatal(t *testing.T) {
	capture := newFakeCapture()
	capture.failures = []error{domain.ErrCameraPermission}
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusFatal)
	assert.Len(t, capture.Starts(), 1)
	vm := h.c.View()
	require.NotNil(t, vm.ErrorText)
	assert.Equal(t, domain.CameraErrorMessage(domain.ErrCameraPermission), *vm.ErrorText)
}

func TestController_EnumerationFailures(t *testing.T) {
	tests := []struct {
		name   string
		result enumResult
		want   string
	}{
		{
			name:   "permission",
			result: enumResult{err: domain.ErrCameraPermission},
			want:   domain.CameraErrorMessage(domain.ErrCameraPermission),
		},
		{
			name:   "empty",
			result: enumResult{devices: nil},
			want:   domain.CameraErrorMessage(domain.ErrCameraNotFound),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := newFakeCapture()
			h := startHarness(t, &fakeEnumerator{results: []enumResult{tt.result}}, capture, &fakeVerifier{respond: checkedIn})

			h.waitStatus(t, domain.StatusFatal)
			require.NotNil(t, h.c.View().ErrorText)
			assert.Equal(t, tt.want, *h.c.View().ErrorText)
			assert.Empty(t, capture.Starts())
		})
	}
}

func TestController_VerificationRejected(t *testing.T) {
	verifier := &fakeVerifier{respond: func(string) (domain.ScanOutcome, error) {
		return domain.ScanOutcome{}, &domain.VerificationError{
			Kind:       domain.FailureRejected,
			StatusCode: 409,
			Message:    "Already checked out",
		}
	}}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier)

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)

	vm := h.c.View()
	assert.False(t, vm.Fatal)
	assert.True(t, vm.ShowReadyButton)
	require.NotNil(t, vm.LastOutcome)
	assert.Equal(t, "Already checked out", vm.LastOutcome.Message)
	assert.Equal(t, domain.FailureRejected, vm.LastOutcome.FailureKind)

	assert.Eventually(t, func() bool {
		return inOrder(h.views.Statuses(), []domain.Status{
			domain.StatusProcessing,
			domain.StatusError,
			domain.StatusWaiting,
		})
	}, time.Second, time.Millisecond)
}

func TestController_TransportFailureIsNotRetried(t *testing.T) {
	verifier := &fakeVerifier{respond: func(string) (domain.ScanOutcome, error) {
		return domain.ScanOutcome{}, errors.New("connection refused")
	}}
	h := startHarness(t, oneCamera(), newFakeCapture(), verifier)

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)

	vm := h.c.View()
	require.NotNil(t, vm.LastOutcome)
	assert.Equal(t, "Network error. Please try again.", vm.LastOutcome.Message)
	assert.Equal(t, domain.FailureTransport, vm.LastOutcome.FailureKind)
	assert.Len(t, verifier.Calls(), 1)
}

func TestController_SwitchCamera(t *testing.T) {
	capture := newFakeCapture()
	h := startHarness(t, twoCameras(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusScanning)
	vm := h.c.View()
	assert.True(t, vm.CanSwitchCamera)
	require.NotNil(t, vm.ActiveDevice)
	assert.Equal(t, "cam-back", vm.ActiveDevice.ID)

	require.NoError(t, h.c.SwitchCamera(context.Background()))
	h.waitStatus(t, domain.StatusScanning)
	require.NoError(t, h.c.SwitchCamera(context.Background()))
	h.waitStatus(t, domain.StatusScanning)

	assert.Equal(t, []string{"cam-back", "cam-front", "cam-back"}, capture.Starts())
	assert.Zero(t, capture.Overlaps())

	devices, active := h.c.Devices()
	assert.Len(t, devices, 2)
	assert.Equal(t, "cam-back", active)
}

func TestController_SwitchCameraRejected(t *testing.T) {
	t.Run("single camera", func(t *testing.T) {
		h := startHarness(t, oneCamera(), newFakeCapture(), &fakeVerifier{respond: checkedIn})
		h.waitStatus(t, domain.StatusScanning)
		assert.ErrorIs(t, h.c.SwitchCamera(context.Background()), domain.ErrNoSwitchTarget)
	})

	t.Run("while waiting", func(t *testing.T) {
		h := startHarness(t, twoCameras(), newFakeCapture(), &fakeVerifier{respond: checkedIn})
		h.waitStatus(t, domain.StatusScanning)
		h.present(t, "TOK-A")
		h.waitStatus(t, domain.StatusWaiting)
		assert.ErrorIs(t, h.c.SwitchCamera(context.Background()), domain.ErrInvalidTransition)
	})
}

func TestController_RearmOnlyWhileWaiting(t *testing.T) {
	h := startHarness(t, oneCamera(), newFakeCapture(), &fakeVerifier{respond: checkedIn})
	h.waitStatus(t, domain.StatusScanning)

	assert.ErrorIs(t, h.c.Rearm(context.Background()), domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusScanning, h.c.View().Status)
}

func TestController_ReloadRecoversFromFatal(t *testing.T) {
	enum := &fakeEnumerator{results: []enumResult{
		{err: domain.ErrCameraNotFound},
		{devices: []domain.CameraDevice{{ID: "cam1", Label: "USB Camera"}}},
	}}
	capture := newFakeCapture()
	h := startHarness(t, enum, capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusFatal)
	require.NoError(t, h.c.Reload(context.Background()))
	h.waitStatus(t, domain.StatusScanning)

	assert.Equal(t, []string{"cam1"}, capture.Starts())
	assert.Nil(t, h.c.View().ErrorText)
}

func TestController_ReloadRefusedWhileVerifying(t *testing.T) {
	gate := make(chan struct{})
	verifier := &fakeVerifier{respond: checkedIn, gate: gate}
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, verifier)
	ctx := context.Background()

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	assert.Equal(t, domain.StatusProcessing, h.c.View().Status)

	assert.ErrorIs(t, h.c.Reload(ctx), domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusProcessing, h.c.View().Status)

	close(gate)
	h.waitStatus(t, domain.StatusWaiting)

	require.NoError(t, h.c.Reload(ctx))
	h.waitStatus(t, domain.StatusScanning)

	// The cooldown pairing survives the reload.
	h.present(t, "TOK-A")
	assert.Equal(t, domain.StatusScanning, h.c.View().Status)

	h.present(t, "TOK-B")
	h.waitStatus(t, domain.StatusWaiting)

	assert.Equal(t, []string{"TOK-A", "TOK-B"}, verifier.Calls())
	assert.Equal(t, 1, verifier.MaxInFlight())
	assert.Zero(t, capture.Overlaps())
}

func TestController_DecoderExitRestartsCamera(t *testing.T) {
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusScanning)
	h.fault(t, "cam1", domain.ErrCameraBusy)
	h.waitStatus(t, domain.StatusScanning)

	assert.Equal(t, []string{"cam1", "cam1"}, capture.Starts())
	assert.Contains(t, h.views.Messages(), "Camera busy, retrying (1/3)...")
	assert.Zero(t, capture.Overlaps())
}

func TestController_DecoderExitFatal(t *testing.T) {
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})

	h.waitStatus(t, domain.StatusScanning)
	h.fault(t, "cam1", domain.ErrCameraNotFound)

	assert.Equal(t, domain.StatusFatal, h.c.View().Status)
	require.NotNil(t, h.c.View().ErrorText)
	assert.Equal(t, domain.CameraErrorMessage(domain.ErrCameraNotFound), *h.c.View().ErrorText)
	assert.False(t, capture.Active())
	assert.Zero(t, h.c.PendingTimers())
}

func TestController_DecoderExitIgnoredOutsideScanning(t *testing.T) {
	gate := make(chan struct{})
	verifier := &fakeVerifier{respond: checkedIn, gate: gate}
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, verifier)

	h.waitStatus(t, domain.StatusScanning)
	h.fault(t, "cam-gone", domain.ErrCameraNotFound)
	assert.Equal(t, domain.StatusScanning, h.c.View().Status, "fault for another device")

	h.present(t, "TOK-A")
	h.fault(t, "cam1", domain.ErrCameraNotFound)
	assert.Equal(t, domain.StatusProcessing, h.c.View().Status)

	close(gate)
	h.waitStatus(t, domain.StatusWaiting)
}

func TestController_NoDoubleAcquisition(t *testing.T) {
	capture := newFakeCapture()
	capture.failures = []error{domain.ErrCameraBusy}
	h := startHarness(t, twoCameras(), capture, &fakeVerifier{respond: checkedIn})
	ctx := context.Background()

	h.waitStatus(t, domain.StatusScanning)
	require.NoError(t, h.c.SwitchCamera(ctx))
	h.waitStatus(t, domain.StatusScanning)

	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)
	require.NoError(t, h.c.Rearm(ctx))
	h.waitStatus(t, domain.StatusScanning)

	require.NoError(t, h.c.Reload(ctx))
	require.NoError(t, h.c.Reload(ctx))
	h.waitStatus(t, domain.StatusScanning)

	assert.Zero(t, capture.Overlaps())
	assert.True(t, capture.Active())
}

func TestController_Teardown(t *testing.T) {
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn})
	h.waitStatus(t, domain.StatusScanning)

	sub, _ := h.c.Subscribe()

	assert.NotPanics(t, func() {
		h.c.Teardown()
		h.c.Teardown()
	})

	assert.False(t, capture.Active())
	assert.Zero(t, h.c.PendingTimers())
	assert.ErrorIs(t, h.c.Rearm(context.Background()), domain.ErrSessionClosed)
	assert.ErrorIs(t, h.c.Reload(context.Background()), domain.ErrSessionClosed)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestController_TeardownWithPendingTimer(t *testing.T) {
	capture := newFakeCapture()
	h := startHarness(t, oneCamera(), capture, &fakeVerifier{respond: checkedIn},
		withConfig(func(c *Config) { c.SettleDelay = 50 * time.Millisecond }))

	h.waitStatus(t, domain.StatusStarting)
	assert.Equal(t, 1, h.c.PendingTimers())

	h.c.Teardown()
	assert.Zero(t, h.c.PendingTimers())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, capture.Starts())
}

func TestController_TeardownBeforeRun(t *testing.T) {
	c := NewController(testConfig(), Dependencies{
		Enumerator: oneCamera(),
		Capture:    newFakeCapture(),
		Verifier:   &fakeVerifier{respond: checkedIn},
	})

	c.Teardown()
	c.Teardown()
	assert.ErrorIs(t, c.Run(context.Background()), domain.ErrSessionClosed)
}

func TestController_RecordsHistory(t *testing.T) {
	recorder := new(MockRecorder)
	h := startHarness(t, oneCamera(), newFakeCapture(), &fakeVerifier{respond: checkedIn}, withRecorder(recorder))

	recorder.On("Record", mock.Anything, mock.MatchedBy(func(r domain.ScanRecord) bool {
		return r.Payload == "TOK-A" &&
			r.SessionID == h.c.SessionID() &&
			r.Profile == domain.ProfileVolunteer &&
			r.Outcome == domain.OutcomeSuccess &&
			r.SubjectName == "Jane Doe"
	})).Return(nil).Once()

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)

	recorder.AssertExpectations(t)
}

func TestController_RecordSurvivesTeardown(t *testing.T) {
	gate := make(chan struct{})
	recorder := new(MockRecorder)
	recorded := make(chan error, 1)
	recorder.On("Record", mock.Anything, mock.MatchedBy(func(r domain.ScanRecord) bool {
		return r.Payload == "TOK-A"
	})).Run(func(args mock.Arguments) {
		recorded <- args.Get(0).(context.Context).Err()
	}).Return(nil).Once()

	h := startHarness(t, oneCamera(), newFakeCapture(), &fakeVerifier{respond: checkedIn, gate: gate}, withRecorder(recorder))

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.c.Teardown()

	select {
	case err := <-recorded:
		assert.NoError(t, err, "record context must outlive teardown")
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight verification was not recorded")
	}
	recorder.AssertExpectations(t)
}

func TestController_RecorderErrorDoesNotBlockOutcome(t *testing.T) {
	recorder := new(MockRecorder)
	recorder.On("Record", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	h := startHarness(t, oneCamera(), newFakeCapture(), &fakeVerifier{respond: checkedIn}, withRecorder(recorder))

	h.waitStatus(t, domain.StatusScanning)
	h.present(t, "TOK-A")
	h.waitStatus(t, domain.StatusWaiting)
	require.NotNil(t, h.c.View().LastOutcome)
	assert.True(t, h.c.View().LastOutcome.Succeeded())
}
