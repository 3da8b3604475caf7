package driven

import (
	"context"

	"github.com/mizuleaf/inkgate/internal/domain/model"
)

// Attestor defines the driven port for a single attestation (f-token)
// provider endpoint. Trying endpoints in fallback order is the derivation
// engine's policy, not the adapter's.
type Attestor interface {
	Attest(ctx context.Context, endpoint string, req model.AttestationRequest) (model.Attestation, error)
}
