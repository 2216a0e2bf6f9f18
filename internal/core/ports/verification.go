package ports

import (
	"context"

	"github.com/byteom/scanstation/internal/core/domain"
)

// Verifier sends a decoded payload to the remote verification endpoint.
// Failed verifications return a *domain.VerificationError.
type Verifier interface {
	Verify(ctx context.Context, payload string) (domain.ScanOutcome, error)
}
