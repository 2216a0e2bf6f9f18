package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter implements ports.ScanRepository using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// ScanRecordModel is the GORM model for scan history.
type ScanRecordModel struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"index"`
	Profile     string
	DeviceID    string
	Payload     string
	Outcome     string `gorm:"index"`
	FailureKind string
	SubjectName string
	SubjectRef  string
	Direction   string // ENTRY, EXIT or visit kind
	Counter     int
	Message     string
	LatencyMs   int64
	ScannedAt   time.Time `gorm:"index"`
}

// outcomeIndexSQL is a var so tests can break it.
var outcomeIndexSQL = "CREATE INDEX IF NOT EXISTS idx_scan_records_outcome_kind ON scan_record_models(outcome, failure_kind)"

// NewSQLiteAdapter opens the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to enable db tracing: %w", err)
	}

	if err := db.AutoMigrate(&ScanRecordModel{}); err != nil {
		return nil, err
	}

	if err := db.Exec(outcomeIndexSQL).Error; err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("failed to create outcome index: %w", err)
	}

	return &SQLiteAdapter{db: db}, nil
}

// SaveScanRecord inserts one history entry.
func (a *SQLiteAdapter) SaveScanRecord(ctx context.Context, rec domain.ScanRecord) error {
	model := toRecordModel(rec)
	return a.db.WithContext(ctx).Create(&model).Error
}

// ListScanRecords returns the newest entries first.
func (a *SQLiteAdapter) ListScanRecords(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	var models []ScanRecordModel
	if err := a.db.WithContext(ctx).Order("scanned_at desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]domain.ScanRecord, 0, len(models))
	for _, m := range models {
		records = append(records, toRecordDomain(m))
	}
	return records, nil
}

type outcomeCount struct {
	Outcome     string
	FailureKind string
	Count       int64
}

// CountScanRecords aggregates entries by outcome and failure kind.
func (a *SQLiteAdapter) CountScanRecords(ctx context.Context) (domain.ScanSummary, error) {
	var rows []outcomeCount
	err := a.db.WithContext(ctx).Model(&ScanRecordModel{}).
		Select("outcome, failure_kind, count(*) as count").
		Group("outcome, failure_kind").
		Scan(&rows).Error
	if err != nil {
		return domain.ScanSummary{}, err
	}

	summary := domain.ScanSummary{ByFailure: make(map[domain.FailureKind]int64)}
	for _, r := range rows {
		summary.Total += r.Count
		if domain.OutcomeKind(r.Outcome) == domain.OutcomeSuccess {
			summary.Succeeded += r.Count
			continue
		}
		summary.Failed += r.Count
		summary.ByFailure[domain.FailureKind(r.FailureKind)] += r.Count
	}
	return summary, nil
}

// Close closes the underlying connection pool.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ports.ScanRepository = (*SQLiteAdapter)(nil)
