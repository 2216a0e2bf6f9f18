package domain

import "errors"

// OutcomeKind tags a ScanOutcome.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// ScanOutcome is the result of verifying one accepted payload.
type ScanOutcome struct {
	Kind        OutcomeKind `json:"kind"`
	SubjectName string      `json:"subject_name,omitempty"`
	SubjectRef  string      `json:"subject_ref,omitempty"`
	Direction   string      `json:"direction,omitempty"` // ENTRY/EXIT or visit kind
	Counter     int         `json:"counter,omitempty"`
	Message     string      `json:"message,omitempty"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
}

// Succeeded reports whether the outcome is a success.
func (o ScanOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// FailureOutcome converts a verifier error into a failure outcome.
func FailureOutcome(err error) ScanOutcome {
	var verr *VerificationError
	if errors.As(err, &verr) {
		msg := verr.Message
		if msg == "" {
			msg = defaultFailureMessage(verr.Kind)
		}
		return ScanOutcome{Kind: OutcomeFailure, Message: msg, FailureKind: verr.Kind}
	}
	return ScanOutcome{
		Kind:        OutcomeFailure,
		Message:     defaultFailureMessage(FailureTransport),
		FailureKind: FailureTransport,
	}
}

func defaultFailureMessage(kind FailureKind) string {
	switch kind {
	case FailureRejected:
		return "Scan rejected"
	case FailureMalformed:
		return "Unexpected response from server"
	}
	return "Network error. Please try again."
}
