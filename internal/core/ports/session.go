package ports

import (
	"context"

	"github.com/byteom/scanstation/internal/core/domain"
)

// ScanSession is the controller surface used by presentation adapters.
type ScanSession interface {
	View() domain.ViewModel
	Devices() ([]domain.CameraDevice, string)
	Subscribe() (<-chan domain.ViewModel, func())

	Rearm(ctx context.Context) error
	SwitchCamera(ctx context.Context) error
	Reload(ctx context.Context) error
}
