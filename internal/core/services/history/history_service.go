package history

import (
	"context"
	"fmt"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type HistoryService struct {
	repo ports.ScanRepository
	now  func() time.Time
}

func NewHistoryService(repo ports.ScanRepository) *HistoryService {
	return &HistoryService{repo: repo, now: time.Now}
}

// Record stores one verification outcome. Missing ids and timestamps are filled in.
func (s *HistoryService) Record(ctx context.Context, rec domain.ScanRecord) error {
	if rec.Payload == "" {
		return fmt.Errorf("scan record without payload")
	}
	if rec.Outcome != domain.OutcomeSuccess && rec.Outcome != domain.OutcomeFailure {
		return fmt.Errorf("scan record with unknown outcome %q", rec.Outcome)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = s.now()
	}
	return s.repo.SaveScanRecord(ctx, rec)
}

// Recent returns the newest records first. The limit is clamped to [1, MaxLimit].
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.repo.ListScanRecords(ctx, limit)
}

func (s *HistoryService) Summary(ctx context.Context) (domain.ScanSummary, error) {
	summary, err := s.repo.CountScanRecords(ctx)
	if err != nil {
		return domain.ScanSummary{}, err
	}
	if summary.ByFailure == nil {
		summary.ByFailure = make(map[domain.FailureKind]int64)
	}
	return summary, nil
}

var _ ports.HistoryService = (*HistoryService)(nil)
