package storage

import (
	"github.com/byteom/scanstation/internal/core/domain"
)

// toRecordDomain converts a database model to a domain entity.
func toRecordDomain(m ScanRecordModel) domain.ScanRecord {
	return domain.ScanRecord{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Profile:     domain.Profile(m.Profile),
		DeviceID:    m.DeviceID,
		Payload:     m.Payload,
		Outcome:     domain.OutcomeKind(m.Outcome),
		FailureKind: domain.FailureKind(m.FailureKind),
		SubjectName: m.SubjectName,
		SubjectRef:  m.SubjectRef,
		Direction:   m.Direction,
		Counter:     m.Counter,
		Message:     m.Message,
		LatencyMs:   m.LatencyMs,
		ScannedAt:   m.ScannedAt,
	}
}

// toRecordModel converts a domain entity to a database model.
func toRecordModel(r domain.ScanRecord) ScanRecordModel {
	return ScanRecordModel{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Profile:     string(r.Profile),
		DeviceID:    r.DeviceID,
		Payload:     r.Payload,
		Outcome:     string(r.Outcome),
		FailureKind: string(r.FailureKind),
		SubjectName: r.SubjectName,
		SubjectRef:  r.SubjectRef,
		Direction:   r.Direction,
		Counter:     r.Counter,
		Message:     r.Message,
		LatencyMs:   r.LatencyMs,
		ScannedAt:   r.ScannedAt,
	}
}
