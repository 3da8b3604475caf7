package nso

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mizuleaf/inkgate/internal/domain/model"
)

// GenerateLoginURL builds the browser URL for the interactive login
// ceremony. The PKCE state and verifier are generated on first use and held
// on the client until ExchangeCode consumes them.
func (c *Client) GenerateLoginURL() (string, error) {
	if err := c.ensureLoginState(); err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(c.verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	params := url.Values{}
	params.Set("state", c.state)
	params.Set("redirect_uri", "npf"+clientID+"://auth")
	params.Set("client_id", clientID)
	params.Set("scope", "openid user user.birthday user.mii user.screenName")
	params.Set("response_type", "session_token_code")
	params.Set("session_token_code_challenge", challenge)
	params.Set("session_token_code_challenge_method", "S256")
	params.Set("theme", "login_form")

	return c.accountsBaseURL + "/connect/1.0.0/authorize?" + params.Encode(), nil
}

// SessionTokenCode extracts the one-time code from the npf redirect URI the
// user pastes back after approving the login.
func (c *Client) SessionTokenCode(redirectURI string) (string, error) {
	_, fragment, found := strings.Cut(redirectURI, "#")
	if !found {
		return "", fmt.Errorf("redirect URI %q has no fragment", redirectURI)
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URI fragment: %w", err)
	}
	code := values.Get("session_token_code")
	if code == "" {
		return "", fmt.Errorf("redirect URI %q has no session_token_code", redirectURI)
	}
	return code, nil
}

// ExchangeCode trades the one-time code for a session token using the
// verifier generated for the login URL.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if c.verifier == "" {
		return "", errors.New("login ceremony not started: call GenerateLoginURL first")
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("session_token_code", code)
	form.Set("session_token_code_verifier", c.verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsBaseURL+"/connect/1.0.0/api/session_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building session token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging session token code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session token exchange returned status %d", resp.StatusCode)
	}

	var decoded struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding session token response: %w", err)
	}
	if decoded.SessionToken == "" {
		return "", fmt.Errorf("%w: session token exchange response missing session_token", model.ErrUpstreamProtocol)
	}
	return decoded.SessionToken, nil
}

// ensureLoginState lazily generates the PKCE pair: a 36-byte state and a
// 32-byte verifier, both base64url without padding.
func (c *Client) ensureLoginState() error {
	if c.verifier != "" {
		return nil
	}

	stateBytes := make([]byte, 36)
	if _, err := rand.Read(stateBytes); err != nil {
		return fmt.Errorf("generating login state: %w", err)
	}
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return fmt.Errorf("generating code verifier: %w", err)
	}

	c.state = base64.RawURLEncoding.EncodeToString(stateBytes)
	c.verifier = base64.RawURLEncoding.EncodeToString(verifierBytes)
	return nil
}
