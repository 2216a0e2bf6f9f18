package web

import (
	"context"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockScanSession is a mock of ports.ScanSession
type MockScanSession struct {
	mock.Mock
}

func (m *MockScanSession) View() domain.ViewModel {
	args := m.Called()
	return args.Get(0).(domain.ViewModel)
}

func (m *MockScanSession) Devices() ([]domain.CameraDevice, string) {
	args := m.Called()
	return args.Get(0).([]domain.CameraDevice), args.String(1)
}

func (m *MockScanSession) Subscribe() (<-chan domain.ViewModel, func()) {
	args := m.Called()
	return args.Get(0).(<-chan domain.ViewModel), args.Get(1).(func())
}

func (m *MockScanSession) Rearm(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockScanSession) SwitchCamera(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockScanSession) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockHistoryService is a mock of ports.HistoryService
type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) Record(ctx context.Context, rec domain.ScanRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockHistoryService) Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.ScanRecord), args.Error(1)
}

func (m *MockHistoryService) Summary(ctx context.Context) (domain.ScanSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.ScanSummary), args.Error(1)
}
