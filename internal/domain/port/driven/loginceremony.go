package driven

import "context"

// LoginCeremony defines the driven port for the interactive login flow that
// produces the initial session token.
type LoginCeremony interface {
	// GenerateLoginURL returns the URL the user opens in a browser to
	// approve the login. The PKCE state behind it is held by the adapter.
	GenerateLoginURL() (string, error)

	// SessionTokenCode extracts the one-time code from the redirect URI the
	// user pastes back after approving.
	SessionTokenCode(redirectURI string) (string, error)

	// ExchangeCode trades the one-time code for a session token.
	ExchangeCode(ctx context.Context, code string) (string, error)
}
