package domain

import (
	"errors"
	"time"
)

// Profile selects which scanner call site a station serves.
type Profile string

const (
	ProfileVolunteer Profile = "volunteer"
	ProfileStall     Profile = "stall"
)

var ErrInvalidProfile = errors.New("invalid scanner profile")

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileVolunteer, ProfileStall:
		return Profile(s), nil
	}
	return "", ErrInvalidProfile
}

// ScanRecord is the history entry kept for every verification call.
type ScanRecord struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Profile     Profile     `json:"profile"`
	DeviceID    string      `json:"device_id"`
	Payload     string      `json:"payload"`
	Outcome     OutcomeKind `json:"outcome"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	SubjectName string      `json:"subject_name,omitempty"`
	SubjectRef  string      `json:"subject_ref,omitempty"`
	Direction   string      `json:"direction,omitempty"`
	Counter     int         `json:"counter,omitempty"`
	Message     string      `json:"message,omitempty"`
	LatencyMs   int64       `json:"latency_ms"`
	ScannedAt   time.Time   `json:"scanned_at"`
}

// ScanSummary aggregates history counts.
type ScanSummary struct {
	Total     int64                 `json:"total"`
	Succeeded int64                 `json:"succeeded"`
	Failed    int64                 `json:"failed"`
	ByFailure map[FailureKind]int64 `json:"by_failure"`
}
