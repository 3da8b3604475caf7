package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

// Deriver is the derivation engine: it turns a valid session token into
// gtoken and bullet-token values by driving the attestation and minting
// collaborators in strict order. It holds no credential state of its own;
// the Manager owns the keychain.
type Deriver struct {
	client    driven.AuthClient
	attestor  driven.Attestor
	endpoints []string
}

// NewDeriver creates a derivation engine that tries the given attestation
// endpoints in order.
func NewDeriver(client driven.AuthClient, attestor driven.Attestor, endpoints []string) *Deriver {
	return &Deriver{client: client, attestor: attestor, endpoints: endpoints}
}

// attest tries each configured endpoint in order and returns the first
// successful attestation. Exhausting the list is terminal for this
// derivation attempt; the caller never re-runs the list.
func (d *Deriver) attest(ctx context.Context, req model.AttestationRequest) (model.Attestation, error) {
	var lastErr error
	for _, endpoint := range d.endpoints {
		att, err := d.attestor.Attest(ctx, endpoint, req)
		if err == nil {
			return att, nil
		}
		slog.Warn("attestation endpoint failed", "endpoint", endpoint, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no attestation endpoints configured")
	}
	return model.Attestation{}, fmt.Errorf("%w: %v", model.ErrAttestation, lastErr)
}

// DeriveGToken runs the full gtoken mint chain: identity exchange, attested
// coral login, then the attested web service token mint. It returns the
// token plus the locale captured from the account profile.
func (d *Deriver) DeriveGToken(ctx context.Context, sessionToken string) (string, model.Locale, error) {
	if sessionToken == "" {
		return "", model.Locale{}, fmt.Errorf("%w: session token must be set before minting a gtoken", model.ErrPrecondition)
	}

	id, err := d.client.Identity(ctx, sessionToken)
	if err != nil {
		return "", model.Locale{}, err
	}

	coralAtt, err := d.attest(ctx, model.AttestationRequest{
		Token:      id.IDToken,
		HashMethod: model.HashMethodCoral,
		UserID:     id.UserID,
	})
	if err != nil {
		return "", model.Locale{}, err
	}

	coral, err := d.client.CoralLogin(ctx, id, coralAtt)
	if err != nil {
		return "", model.Locale{}, err
	}

	webServiceAtt, err := d.attest(ctx, model.AttestationRequest{
		Token:       coral.Token,
		HashMethod:  model.HashMethodWebService,
		UserID:      id.UserID,
		CoralUserID: coral.UserID,
	})
	if err != nil {
		return "", model.Locale{}, err
	}

	gtoken, err := d.client.WebServiceToken(ctx, coral, webServiceAtt)
	if err != nil {
		return "", model.Locale{}, err
	}

	return gtoken, model.Locale{Language: id.Language, Country: id.Country}, nil
}

// MintBulletToken performs a single bullet-token mint call. Retry policy
// belongs to the Manager.
func (d *Deriver) MintBulletToken(ctx context.Context, gtoken string, locale model.Locale) (string, error) {
	return d.client.BulletToken(ctx, gtoken, locale)
}

// Probe issues the liveness request against the service.
func (d *Deriver) Probe(ctx context.Context, gtoken, bulletToken string, locale model.Locale) error {
	return d.client.Probe(ctx, gtoken, bulletToken, locale)
}
