package nso_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuleaf/inkgate/internal/adapter/driven/nso"
	"github.com/mizuleaf/inkgate/internal/domain/model"
)

// newTestClient spins up an httptest server on the given mux and returns a
// Client pointed at it. The server shuts down with the test.
func newTestClient(t *testing.T, mux *http.ServeMux) *nso.Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return nso.NewClientWithHTTPClient(server.Client(), server.URL, "inkgate-test/0.0.0")
}

// signedIDToken builds a real JWS with the given subject. Only the sub claim
// is read, and never verified, so any key works.
func signedIDToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// versionMux registers the app store lookup and web view data routes that
// the coral and splatnet calls depend on.
func versionMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lookup", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]string{{"version": "2.10.1"}}})
	})
	mux.HandleFunc("GET /webview", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"version": "6.0.0-12345678"})
	})
	return mux
}

func TestClient_Identity(t *testing.T) {
	idToken := signedIDToken(t, "na-user-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/1.0.0/api/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token", body["grant_type"])
		assert.Equal(t, "sess-abc", body["session_token"])
		writeJSON(t, w, map[string]string{"access_token": "access-1", "id_token": idToken})
	})
	mux.HandleFunc("GET /2.0.0/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]string{
			"id": "fallback-id", "language": "en-US", "country": "US", "birthday": "2000-01-01",
		})
	})

	id, err := newTestClient(t, mux).Identity(context.Background(), "sess-abc")

	require.NoError(t, err)
	assert.Equal(t, "access-1", id.AccessToken)
	assert.Equal(t, idToken, id.IDToken)
	// The user id comes from the id_token's sub claim, not the profile.
	assert.Equal(t, "na-user-1", id.UserID)
	assert.Equal(t, "en-US", id.Language)
	assert.Equal(t, "US", id.Country)
	assert.Equal(t, "2000-01-01", id.Birthday)
}

func TestClient_Identity_MissingTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/1.0.0/api/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"error": "invalid_grant"})
	})

	_, err := newTestClient(t, mux).Identity(context.Background(), "sess-abc")

	assert.ErrorIs(t, err, model.ErrUpstreamProtocol)
}

func TestClient_Identity_MissingLocale(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/1.0.0/api/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"access_token": "access-1", "id_token": signedIDToken(t, "na-user-1")})
	})
	mux.HandleFunc("GET /2.0.0/users/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"id": "fallback-id"})
	})

	_, err := newTestClient(t, mux).Identity(context.Background(), "sess-abc")

	assert.ErrorIs(t, err, model.ErrUpstreamProtocol)
}

func TestClient_CoralLogin(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /v3/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2.10.1", r.Header.Get("X-ProductVersion"))
		assert.Equal(t, "Android", r.Header.Get("X-Platform"))

		var body struct {
			Parameter map[string]any `json:"parameter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "f-value", body.Parameter["f"])
		assert.Equal(t, "id-token", body.Parameter["naIdToken"])

		writeJSON(t, w, map[string]any{
			"status": 0,
			"result": map[string]any{
				"webApiServerCredential": map[string]string{"accessToken": "coral-token"},
				"user":                   map[string]int64{"id": 987654321},
			},
		})
	})

	id := model.Identity{IDToken: "id-token", Country: "US", Birthday: "2000-01-01", Language: "en-US"}
	att := model.Attestation{F: "f-value", Timestamp: 1678780800, RequestID: "req-1"}
	coral, err := newTestClient(t, mux).CoralLogin(context.Background(), id, att)

	require.NoError(t, err)
	assert.Equal(t, "coral-token", coral.Token)
	assert.Equal(t, "987654321", coral.UserID)
}

func TestClient_CoralLogin_NonZeroStatus(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /v3/Account/Login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"status": 9403, "errorMessage": "Invalid token."})
	})

	_, err := newTestClient(t, mux).CoralLogin(context.Background(), model.Identity{}, model.Attestation{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "9403")
}

func TestClient_WebServiceToken(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /v2/Game/GetWebServiceToken", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer coral-token", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{
			"status": 0,
			"result": map[string]any{"accessToken": "gtoken-1", "expiresIn": 10800},
		})
	})

	coral := model.CoralSession{Token: "coral-token", UserID: "987654321"}
	att := model.Attestation{F: "f-value", Timestamp: 1678780800, RequestID: "req-2"}
	gtoken, err := newTestClient(t, mux).WebServiceToken(context.Background(), coral, att)

	require.NoError(t, err)
	assert.Equal(t, "gtoken-1", gtoken)
}

func TestClient_BulletToken(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /api/bullet_tokens", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("_gtoken")
		require.NoError(t, err)
		assert.Equal(t, "gtoken-1", cookie.Value)
		assert.Equal(t, "de", r.Header.Get("Accept-Language"))
		assert.Equal(t, "AT", r.Header.Get("X-NACOUNTRY"))
		assert.Equal(t, "6.0.0-12345678", r.Header.Get("X-Web-View-Ver"))

		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]string{"bulletToken": "bullet-1"})
	})

	bullet, err := newTestClient(t, mux).BulletToken(context.Background(), "gtoken-1", model.Locale{Language: "de", Country: "AT"})

	require.NoError(t, err)
	assert.Equal(t, "bullet-1", bullet)
}

func TestClient_BulletToken_ServiceDown(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /api/bullet_tokens", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	bullet, err := newTestClient(t, mux).BulletToken(context.Background(), "gtoken-1", model.Locale{})

	// Answered-but-unusable: empty value, no error. Retry policy lives upstream.
	require.NoError(t, err)
	assert.Empty(t, bullet)
}

func TestClient_Probe(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer bullet-1", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"data": map[string]any{}})
	})

	err := newTestClient(t, mux).Probe(context.Background(), "gtoken-1", "bullet-1", model.Locale{})

	assert.NoError(t, err)
}

func TestClient_Probe_Unauthorized(t *testing.T) {
	mux := versionMux(t)
	mux.HandleFunc("POST /api/graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := newTestClient(t, mux).Probe(context.Background(), "gtoken-1", "bullet-1", model.Locale{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_AppVersion_Memoized(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lookup", func(w http.ResponseWriter, _ *http.Request) {
		hits++
		writeJSON(t, w, map[string]any{"results": []map[string]string{{"version": "2.10.1"}}})
	})
	client := newTestClient(t, mux)

	for range 3 {
		version, err := client.AppVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2.10.1", version)
	}

	assert.Equal(t, 1, hits)
}

func TestClient_AppVersion_NoResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lookup", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]string{}})
	})

	_, err := newTestClient(t, mux).AppVersion(context.Background())

	assert.ErrorIs(t, err, model.ErrUpstreamProtocol)
}

func TestClient_LoginCeremony(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/1.0.0/api/session_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-123", r.PostFormValue("session_token_code"))
		assert.NotEmpty(t, r.PostFormValue("session_token_code_verifier"))
		writeJSON(t, w, map[string]string{"session_token": "sess-new"})
	})
	client := newTestClient(t, mux)

	loginURL, err := client.GenerateLoginURL()
	require.NoError(t, err)

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	params := parsed.Query()
	assert.Equal(t, "session_token_code", params.Get("response_type"))
	assert.Equal(t, "S256", params.Get("session_token_code_challenge_method"))
	assert.NotEmpty(t, params.Get("state"))
	assert.True(t, strings.HasPrefix(params.Get("redirect_uri"), "npf"))

	// Same ceremony: the URL is stable until the code is exchanged.
	again, err := client.GenerateLoginURL()
	require.NoError(t, err)
	assert.Equal(t, loginURL, again)

	redirect := params.Get("redirect_uri") + "#session_token_code=code-123&state=" + params.Get("state")
	code, err := client.SessionTokenCode(redirect)
	require.NoError(t, err)
	assert.Equal(t, "code-123", code)

	sessionToken, err := client.ExchangeCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "sess-new", sessionToken)
}

func TestClient_SessionTokenCode_Invalid(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	_, err := client.SessionTokenCode("npf71b963c1b7b6d119://auth")
	assert.Error(t, err)

	_, err = client.SessionTokenCode("npf71b963c1b7b6d119://auth#state=only")
	assert.Error(t, err)
}

func TestClient_ExchangeCode_RequiresCeremony(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	_, err := client.ExchangeCode(context.Background(), "code-123")

	assert.Error(t, err)
}

func TestClient_ChallengeDerivedFromVerifier(t *testing.T) {
	// The challenge in the login URL must be the base64url sha256 of the
	// verifier later sent by ExchangeCode.
	var sentVerifier string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/1.0.0/api/session_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sentVerifier = r.PostFormValue("session_token_code_verifier")
		writeJSON(t, w, map[string]string{"session_token": "sess-new"})
	})
	client := newTestClient(t, mux)

	loginURL, err := client.GenerateLoginURL()
	require.NoError(t, err)
	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	challenge := parsed.Query().Get("session_token_code_challenge")

	_, err = client.ExchangeCode(context.Background(), "code-123")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(sentVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
}
