package nso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mizuleaf/inkgate/internal/domain/model"
)

// AppVersion returns the current version of the companion app, looked up
// from the app store and memoized. The coral endpoints reject requests that
// advertise an outdated version, so this cannot be a baked-in constant.
func (c *Client) AppVersion(ctx context.Context) (string, error) {
	if c.appVersion != "" {
		return c.appVersion, nil
	}

	var resp struct {
		Results []struct {
			Version string `json:"version"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, c.versionClient, http.MethodGet, c.appLookupURL, nil, nil, &resp); err != nil {
		return "", fmt.Errorf("looking up app version: %w", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Version == "" {
		return "", fmt.Errorf("%w: app version lookup returned no results", model.ErrUpstreamProtocol)
	}

	c.appVersion = resp.Results[0].Version
	return c.appVersion, nil
}

// WebViewVersion returns the SplatNet web view version required by the
// X-Web-View-Ver header, fetched from the published web view data and
// memoized.
func (c *Client) WebViewVersion(ctx context.Context) (string, error) {
	if c.webViewVersion != "" {
		return c.webViewVersion, nil
	}

	var resp struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, c.versionClient, http.MethodGet, c.webViewDataURL, nil, nil, &resp); err != nil {
		return "", fmt.Errorf("looking up web view version: %w", err)
	}
	if resp.Version == "" {
		return "", fmt.Errorf("%w: web view data missing version", model.ErrUpstreamProtocol)
	}

	c.webViewVersion = resp.Version
	return c.webViewVersion, nil
}
