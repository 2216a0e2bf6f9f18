package ports

import (
	"context"

	"github.com/byteom/scanstation/internal/core/domain"
)

// ScanRecorder records verification outcomes.
type ScanRecorder interface {
	Record(ctx context.Context, rec domain.ScanRecord) error
}

// HistoryService handles the scan history use cases.
type HistoryService interface {
	ScanRecorder
	Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error)
	Summary(ctx context.Context) (domain.ScanSummary, error)
}

// ScanRepository handles the low-level persistence of scan records.
type ScanRepository interface {
	SaveScanRecord(ctx context.Context, rec domain.ScanRecord) error
	ListScanRecords(ctx context.Context, limit int) ([]domain.ScanRecord, error)
	CountScanRecords(ctx context.Context) (domain.ScanSummary, error)
}
