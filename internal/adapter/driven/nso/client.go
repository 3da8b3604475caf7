// Package nso implements the AuthClient and LoginCeremony ports against the
// Nintendo account, coral (znc), and SplatNet 3 endpoints.
package nso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gregjones/httpcache"

	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

const (
	defaultAccountsBaseURL    = "https://accounts.nintendo.com"
	defaultAccountsAPIBaseURL = "https://api.accounts.nintendo.com"
	defaultCoralBaseURL       = "https://api-lp1.znc.srv.nintendo.net"
	defaultSplatNetBaseURL    = "https://api.lp1.av5ja.srv.nintendo.net"
	defaultAppLookupURL       = "https://itunes.apple.com/lookup?id=1234806557"
	defaultWebViewDataURL     = "https://raw.githubusercontent.com/imink-app/SplatNet3/master/Data/splatnet3_webview_data.json"

	clientID          = "71b963c1b7b6d119"
	webServiceID      = 4834290508791808
	sessionTokenGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token"

	// Persisted query hash for the HomeQuery liveness probe.
	homeQueryHash = "51fc56bbf006caf37728914aa8bc0e2c86a80cf195b4d4027d6822a3623098a8"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.AuthClient    = (*Client)(nil)
	_ driven.LoginCeremony = (*Client)(nil)
)

// Client implements the AuthClient and LoginCeremony ports. Version lookups
// go through a separate client with an in-memory HTTP cache so repeated
// mints don't refetch static metadata.
//
// A Client is used by a single Manager and expects a single writer; the
// memoized versions and login state are not guarded by a mutex.
type Client struct {
	httpClient    *http.Client
	versionClient *http.Client
	userAgent     string

	accountsBaseURL    string
	accountsAPIBaseURL string
	coralBaseURL       string
	splatnetBaseURL    string
	appLookupURL       string
	webViewDataURL     string

	appVersion     string
	webViewVersion string

	// PKCE pair for the login ceremony, generated lazily.
	state    string
	verifier string
}

// NewClient creates a client against the production endpoints with the
// following transport stack for version lookups:
//  1. httpcache (in-memory response caching)
//  2. net/http default transport
func NewClient(userAgent string, timeout time.Duration) *Client {
	versionClient := httpcache.NewMemoryCacheTransport().Client()
	versionClient.Timeout = timeout

	return &Client{
		httpClient:         &http.Client{Timeout: timeout},
		versionClient:      versionClient,
		userAgent:          userAgent,
		accountsBaseURL:    defaultAccountsBaseURL,
		accountsAPIBaseURL: defaultAccountsAPIBaseURL,
		coralBaseURL:       defaultCoralBaseURL,
		splatnetBaseURL:    defaultSplatNetBaseURL,
		appLookupURL:       defaultAppLookupURL,
		webViewDataURL:     defaultWebViewDataURL,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and a
// single base URL for every endpoint. This constructor is intended for
// testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, userAgent string) *Client {
	return &Client{
		httpClient:         httpClient,
		versionClient:      httpClient,
		userAgent:          userAgent,
		accountsBaseURL:    baseURL,
		accountsAPIBaseURL: baseURL,
		coralBaseURL:       baseURL,
		splatnetBaseURL:    baseURL,
		appLookupURL:       baseURL + "/lookup",
		webViewDataURL:     baseURL + "/webview",
	}
}

// Identity exchanges a session token for the account tokens and profile
// fields needed by the coral login.
func (c *Client) Identity(ctx context.Context, sessionToken string) (model.Identity, error) {
	payload := map[string]string{
		"client_id":     clientID,
		"session_token": sessionToken,
		"grant_type":    sessionTokenGrant,
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
	}
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, c.accountsBaseURL+"/connect/1.0.0/api/token", nil, payload, &tokenResp)
	if err != nil {
		return model.Identity{}, fmt.Errorf("exchanging session token: %w", err)
	}
	if tokenResp.AccessToken == "" || tokenResp.IDToken == "" {
		return model.Identity{}, fmt.Errorf("%w: token exchange response missing tokens", model.ErrUpstreamProtocol)
	}

	var user struct {
		ID       string `json:"id"`
		Language string `json:"language"`
		Country  string `json:"country"`
		Birthday string `json:"birthday"`
	}
	headers := map[string]string{"Authorization": "Bearer " + tokenResp.AccessToken}
	err = c.doJSON(ctx, c.httpClient, http.MethodGet, c.accountsAPIBaseURL+"/2.0.0/users/me", headers, nil, &user)
	if err != nil {
		return model.Identity{}, fmt.Errorf("fetching user profile: %w", err)
	}
	if user.Language == "" || user.Country == "" {
		return model.Identity{}, fmt.Errorf("%w: user profile missing language or country", model.ErrUpstreamProtocol)
	}

	userID := subjectClaim(tokenResp.IDToken)
	if userID == "" {
		userID = user.ID
	}

	return model.Identity{
		AccessToken: tokenResp.AccessToken,
		IDToken:     tokenResp.IDToken,
		UserID:      userID,
		Language:    user.Language,
		Country:     user.Country,
		Birthday:    user.Birthday,
	}, nil
}

// CoralLogin performs the attested coral login.
func (c *Client) CoralLogin(ctx context.Context, id model.Identity, att model.Attestation) (model.CoralSession, error) {
	version, err := c.AppVersion(ctx)
	if err != nil {
		return model.CoralSession{}, err
	}

	payload := map[string]any{
		"parameter": map[string]any{
			"f":          att.F,
			"naIdToken":  id.IDToken,
			"timestamp":  att.Timestamp,
			"requestId":  att.RequestID,
			"naCountry":  id.Country,
			"naBirthday": id.Birthday,
			"language":   id.Language,
		},
	}
	var resp struct {
		Status int `json:"status"`
		Result struct {
			WebAPIServerCredential struct {
				AccessToken string `json:"accessToken"`
			} `json:"webApiServerCredential"`
			User struct {
				ID int64 `json:"id"`
			} `json:"user"`
		} `json:"result"`
	}
	err = c.doJSON(ctx, c.httpClient, http.MethodPost, c.coralBaseURL+"/v3/Account/Login", c.coralHeaders(version, ""), payload, &resp)
	if err != nil {
		return model.CoralSession{}, fmt.Errorf("coral login: %w", err)
	}
	if resp.Status != 0 {
		return model.CoralSession{}, fmt.Errorf("coral login returned status %d", resp.Status)
	}
	if resp.Result.WebAPIServerCredential.AccessToken == "" {
		return model.CoralSession{}, fmt.Errorf("%w: coral login response missing credential", model.ErrUpstreamProtocol)
	}

	return model.CoralSession{
		Token:  resp.Result.WebAPIServerCredential.AccessToken,
		UserID: strconv.FormatInt(resp.Result.User.ID, 10),
	}, nil
}

// WebServiceToken mints a gtoken from a coral session.
func (c *Client) WebServiceToken(ctx context.Context, coral model.CoralSession, att model.Attestation) (string, error) {
	version, err := c.AppVersion(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"parameter": map[string]any{
			"f":                 att.F,
			"id":                webServiceID,
			"registrationToken": coral.Token,
			"requestId":         att.RequestID,
			"timestamp":         att.Timestamp,
		},
	}
	var resp struct {
		Status int `json:"status"`
		Result struct {
			AccessToken string `json:"accessToken"`
			ExpiresIn   int64  `json:"expiresIn"`
		} `json:"result"`
	}
	err = c.doJSON(ctx, c.httpClient, http.MethodPost, c.coralBaseURL+"/v2/Game/GetWebServiceToken", c.coralHeaders(version, coral.Token), payload, &resp)
	if err != nil {
		return "", fmt.Errorf("minting web service token: %w", err)
	}
	if resp.Status != 0 {
		return "", fmt.Errorf("web service token mint returned status %d", resp.Status)
	}
	if resp.Result.AccessToken == "" {
		return "", fmt.Errorf("%w: web service token response missing accessToken", model.ErrUpstreamProtocol)
	}
	return resp.Result.AccessToken, nil
}

// BulletToken mints a bullet token. Non-2xx mint responses are reported as
// an empty token rather than an error: the service answers with odd
// statuses while it is down, and the lifecycle's bounded retry owns that
// case.
func (c *Client) BulletToken(ctx context.Context, gtoken string, locale model.Locale) (string, error) {
	webViewVer, err := c.WebViewVersion(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.splatnetBaseURL+"/api/bullet_tokens", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("building bullet token request: %w", err)
	}
	c.setSplatNetHeaders(req, webViewVer, gtoken, locale)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("minting bullet token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("bullet token mint did not succeed", "status", resp.StatusCode)
		return "", nil
	}

	var decoded struct {
		BulletToken string `json:"bulletToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding bullet token response: %w", err)
	}
	return decoded.BulletToken, nil
}

// Probe issues the HomeQuery liveness request. Any non-200 response is an
// error, which the lifecycle treats as "tokens are stale".
func (c *Client) Probe(ctx context.Context, gtoken, bulletToken string, locale model.Locale) error {
	webViewVer, err := c.WebViewVersion(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"variables": map[string]any{},
		"extensions": map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": homeQueryHash,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encoding probe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.splatnetBaseURL+"/api/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	c.setSplatNetHeaders(req, webViewVer, gtoken, locale)
	req.Header.Set("Authorization", "Bearer "+bulletToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("liveness probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness probe returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) coralHeaders(appVersion, bearer string) map[string]string {
	headers := map[string]string{
		"X-ProductVersion": appVersion,
		"X-Platform":       "Android",
		"User-Agent":       "com.nintendo.znca/" + appVersion + " (Android/14)",
	}
	if bearer != "" {
		headers["Authorization"] = "Bearer " + bearer
	}
	return headers
}

func (c *Client) setSplatNetHeaders(req *http.Request, webViewVer, gtoken string, locale model.Locale) {
	language, country := locale.Language, locale.Country
	if language == "" {
		language = "en-US"
	}
	if country == "" {
		country = "US"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", language)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Web-View-Ver", webViewVer)
	req.Header.Set("X-NACOUNTRY", country)
	req.AddCookie(&http.Cookie{Name: "_gtoken", Value: gtoken})
}

// doJSON performs one JSON request/response exchange, requiring a 200.
func (c *Client) doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// subjectClaim extracts the sub claim from an id_token without verifying
// the signature. The value is only echoed back as a request parameter, so
// verification is not needed here.
func subjectClaim(idToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
