package scanner

import (
	"github.com/byteom/scanstation/internal/core/domain"
)

var statusText = map[domain.Status]string{
	domain.StatusInitializing: "Initializing camera...",
	domain.StatusStarting:     "Starting camera...",
	domain.StatusScanning:     "Ready to scan",
	domain.StatusProcessing:   "Verifying...",
	domain.StatusSuccess:      "Scan successful",
	domain.StatusError:        "Scan failed",
	domain.StatusWaiting:      "Ready for next scan",
	domain.StatusSwitching:    "Switching camera...",
	domain.StatusFatal:        "Camera unavailable",
}

// Project maps a controller snapshot to a view model. It is pure.
func Project(s domain.Snapshot) domain.ViewModel {
	vm := domain.ViewModel{
		Status:          s.Status,
		StatusText:      statusText[s.Status],
		Busy:            s.Status.Busy(),
		Fatal:           s.Status == domain.StatusFatal,
		CanSwitchCamera: s.Status == domain.StatusScanning && len(s.Devices) >= 2,
		ShowReadyButton: s.Status == domain.StatusWaiting && s.ReadyShown,
		SessionID:       s.SessionID,
	}

	if s.Message != "" {
		msg := s.Message
		vm.Message = &msg
	}
	if s.ErrorText != "" {
		errText := s.ErrorText
		vm.ErrorText = &errText
	}

	for _, d := range s.Devices {
		if d.ID == s.ActiveDevice {
			dev := d
			vm.ActiveDevice = &dev
			break
		}
	}

	// The last outcome stays visible through the dwell and the waiting gate.
	if s.LastOutcome != nil {
		switch s.Status {
		case domain.StatusSuccess, domain.StatusError, domain.StatusWaiting:
			out := *s.LastOutcome
			vm.LastOutcome = &out
		}
	}

	return vm
}
