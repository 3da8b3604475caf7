package driven

import (
	"context"

	"github.com/mizuleaf/inkgate/internal/domain/model"
)

// AuthClient defines the driven port for the remote service's token
// endpoints. Each method is a single request/response exchange; derivation
// order, attestation fallback, and retry policy live in the application
// layer.
type AuthClient interface {
	// Identity exchanges a session token for the short-lived account tokens
	// and profile data. The result is a deterministic function of the
	// session token from the caller's point of view.
	Identity(ctx context.Context, sessionToken string) (model.Identity, error)

	// CoralLogin performs the attested coral login.
	CoralLogin(ctx context.Context, id model.Identity, att model.Attestation) (model.CoralSession, error)

	// WebServiceToken mints a gtoken from a coral session.
	WebServiceToken(ctx context.Context, coral model.CoralSession, att model.Attestation) (string, error)

	// BulletToken mints a bullet token. An empty value with a nil error
	// means the endpoint answered but produced no usable token; callers
	// decide whether to retry.
	BulletToken(ctx context.Context, gtoken string, locale model.Locale) (string, error)

	// Probe issues the lightweight liveness request against the service.
	// A non-nil error marks the candidate tokens stale; it does not mean
	// the caller must fail.
	Probe(ctx context.Context, gtoken, bulletToken string, locale model.Locale) error
}
