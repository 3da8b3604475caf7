package model

import "errors"

// Error taxonomy for the token lifecycle. Adapters and the application
// layer wrap these with fmt.Errorf("...: %w", ...) so callers can branch
// with errors.Is.
var (
	// ErrCredentialNotFound is returned by Keychain lookups for a kind with
	// no entry.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrMissingCredential means a required field was absent from a
	// credential source (environment, text file, or caller input).
	ErrMissingCredential = errors.New("session token missing from credential source")

	// ErrPrecondition means a derivation was attempted out of order, before
	// the credential it depends on was set.
	ErrPrecondition = errors.New("derivation precondition not met")

	// ErrAttestation means every attestation endpoint in the fallback list
	// failed for one derivation attempt.
	ErrAttestation = errors.New("all attestation endpoints failed")

	// ErrUpstreamProtocol means a success response was structurally invalid
	// (expected fields missing).
	ErrUpstreamProtocol = errors.New("malformed upstream response")

	// ErrUpstreamUnavailable means the minted bullet token was still empty
	// after the single bounded retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrConfigFormat means persisted state was structurally invalid.
	ErrConfigFormat = errors.New("invalid config format")

	// ErrNoCredentialSource means no applicable load source was found.
	ErrNoCredentialSource = errors.New("no credential source found")
)
