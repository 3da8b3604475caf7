package ftoken_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuleaf/inkgate/internal/adapter/driven/ftoken"
	"github.com/mizuleaf/inkgate/internal/domain/model"
)

func newTestAttestor(t *testing.T, handler http.HandlerFunc) (*ftoken.Client, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ftoken.NewClientWithHTTPClient(server.Client(), "inkgate-test/0.0.0"), server.URL
}

func TestClient_Attest(t *testing.T) {
	var received map[string]string
	client, endpoint := newTestAttestor(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"f":          "f-value",
			"timestamp":  1678780800,
			"request_id": received["request_id"],
		}))
	})

	att, err := client.Attest(context.Background(), endpoint, model.AttestationRequest{
		Token:       "coral-token",
		HashMethod:  model.HashMethodWebService,
		UserID:      "na-user-1",
		CoralUserID: "987654321",
	})

	require.NoError(t, err)
	assert.Equal(t, "f-value", att.F)
	assert.Equal(t, int64(1678780800), att.Timestamp)

	assert.Equal(t, "coral-token", received["token"])
	assert.Equal(t, "2", received["hash_method"])
	assert.Equal(t, "na-user-1", received["na_id"])
	assert.Equal(t, "987654321", received["coral_user_id"])
	// A fresh UUID per call, echoed back into the attestation.
	_, err = uuid.Parse(received["request_id"])
	require.NoError(t, err)
	assert.Equal(t, received["request_id"], att.RequestID)
}

func TestClient_Attest_OmitsEmptyCoralUserID(t *testing.T) {
	var received map[string]any
	client, endpoint := newTestAttestor(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"f": "f-value", "timestamp": 1678780800}))
	})

	_, err := client.Attest(context.Background(), endpoint, model.AttestationRequest{
		Token:      "id-token",
		HashMethod: model.HashMethodCoral,
		UserID:     "na-user-1",
	})

	require.NoError(t, err)
	_, present := received["coral_user_id"]
	assert.False(t, present)
}

func TestClient_Attest_ProviderOmitsRequestID(t *testing.T) {
	client, endpoint := newTestAttestor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"f": "f-value", "timestamp": 1678780800}))
	})

	att, err := client.Attest(context.Background(), endpoint, model.AttestationRequest{
		Token: "id-token", HashMethod: model.HashMethodCoral, UserID: "na-user-1",
	})

	require.NoError(t, err)
	// Falls back to the locally generated ID.
	assert.NotEmpty(t, att.RequestID)
}

func TestClient_Attest_MissingF(t *testing.T) {
	client, endpoint := newTestAttestor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"timestamp": 1678780800}))
	})

	_, err := client.Attest(context.Background(), endpoint, model.AttestationRequest{
		Token: "id-token", HashMethod: model.HashMethodCoral, UserID: "na-user-1",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no f value")
}

func TestClient_Attest_NonOKStatus(t *testing.T) {
	client, endpoint := newTestAttestor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Attest(context.Background(), endpoint, model.AttestationRequest{
		Token: "id-token", HashMethod: model.HashMethodCoral, UserID: "na-user-1",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
