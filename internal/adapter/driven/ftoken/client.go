// Package ftoken implements the Attestor port against imink-compatible
// attestation providers.
package ftoken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mizuleaf/inkgate/internal/domain/model"
	"github.com/mizuleaf/inkgate/internal/domain/port/driven"
)

// DefaultEndpoint is the attestation provider tried when no fallback list
// is configured.
const DefaultEndpoint = "https://api.imink.app/f"

// Compile-time interface satisfaction check.
var _ driven.Attestor = (*Client)(nil)

// Client calls attestation provider endpoints. The same client is used for
// every endpoint in a fallback list; the endpoint URL is a per-call
// argument.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates an attestation client with the given User-Agent and
// request timeout.
func NewClient(userAgent string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Intended for testing with an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, userAgent string) *Client {
	return &Client{httpClient: httpClient, userAgent: userAgent}
}

type attestRequest struct {
	Token       string `json:"token"`
	HashMethod  string `json:"hash_method"`
	RequestID   string `json:"request_id"`
	NAID        string `json:"na_id"`
	CoralUserID string `json:"coral_user_id,omitempty"`
}

type attestResponse struct {
	F         string `json:"f"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// Attest requests an attestation blob from one provider endpoint. A fresh
// request ID is generated per call; providers echo it back and the minting
// endpoints expect the same ID alongside the computed value.
func (c *Client) Attest(ctx context.Context, endpoint string, req model.AttestationRequest) (model.Attestation, error) {
	requestID := uuid.NewString()

	body, err := json.Marshal(attestRequest{
		Token:       req.Token,
		HashMethod:  req.HashMethod,
		RequestID:   requestID,
		NAID:        req.UserID,
		CoralUserID: req.CoralUserID,
	})
	if err != nil {
		return model.Attestation{}, fmt.Errorf("encoding attestation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Attestation{}, fmt.Errorf("building attestation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Attestation{}, fmt.Errorf("calling attestation endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Attestation{}, fmt.Errorf("attestation endpoint %s returned status %d", endpoint, resp.StatusCode)
	}

	var decoded attestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.Attestation{}, fmt.Errorf("decoding attestation response from %s: %w", endpoint, err)
	}
	if decoded.F == "" {
		return model.Attestation{}, fmt.Errorf("attestation response from %s has no f value", endpoint)
	}

	att := model.Attestation{
		F:         decoded.F,
		Timestamp: decoded.Timestamp,
		RequestID: decoded.RequestID,
	}
	if att.RequestID == "" {
		att.RequestID = requestID
	}
	return att, nil
}
