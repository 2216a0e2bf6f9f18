package domain

// Status is the scan session controller state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusStarting     Status = "starting"
	StatusScanning     Status = "scanning"
	StatusProcessing   Status = "processing"
	StatusSuccess      Status = "success"
	StatusError        Status = "error"
	StatusWaiting      Status = "waiting"
	StatusSwitching    Status = "switching"
	StatusFatal        Status = "fatal"
)

// Busy reports whether the session is in the middle of an operation.
func (s Status) Busy() bool {
	switch s {
	case StatusInitializing, StatusStarting, StatusProcessing, StatusSwitching:
		return true
	}
	return false
}

// Snapshot is the controller state consumed by the projector.
type Snapshot struct {
	Status       Status
	SessionID    string
	Message      string
	ErrorText    string
	Devices      []CameraDevice
	ActiveDevice string
	ReadyShown   bool
	Retry        int
	MaxRetries   int
	LastOutcome  *ScanOutcome
}

// ViewModel is the rendering-agnostic state pushed to presentation layers.
type ViewModel struct {
	Status          Status        `json:"status"`
	StatusText      string        `json:"status_text"`
	Message         *string       `json:"message"`
	ErrorText       *string       `json:"error_text"`
	Busy            bool          `json:"busy"`
	Fatal           bool          `json:"fatal"`
	CanSwitchCamera bool          `json:"can_switch_camera"`
	ShowReadyButton bool          `json:"show_ready_button"`
	ActiveDevice    *CameraDevice `json:"active_device"`
	LastOutcome     *ScanOutcome  `json:"last_outcome"`
	SessionID       string        `json:"session_id"`
}
