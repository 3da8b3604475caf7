// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mizuleaf/inkgate/internal/adapter/driven/ftoken"
)

// Config holds the application configuration loaded from environment
// variables. Credential variables (INKGATE_SESSION_TOKEN and friends) are
// not part of this struct; they belong to the credential sources and are
// read by the state store.
type Config struct {
	ConfigPath      string
	FTokenEndpoints []string
	UserAgent       string
	HTTPTimeout     time.Duration
}

// Load reads configuration from environment variables and returns a
// validated Config. All variables are optional:
// INKGATE_CONFIG_PATH (empty = manager default), INKGATE_FTOKEN_URLS
// (comma-separated fallback list, default imink), INKGATE_USER_AGENT,
// INKGATE_HTTP_TIMEOUT (30s).
func Load() (*Config, error) {
	configPath := os.Getenv("INKGATE_CONFIG_PATH")

	endpoints := []string{ftoken.DefaultEndpoint}
	if v, ok := os.LookupEnv("INKGATE_FTOKEN_URLS"); ok && v != "" {
		endpoints = nil
		for _, endpoint := range strings.Split(v, ",") {
			endpoint = strings.TrimSpace(endpoint)
			if endpoint != "" {
				endpoints = append(endpoints, endpoint)
			}
		}
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("INKGATE_FTOKEN_URLS is set but contains no endpoints")
		}
	}

	userAgent := "inkgate/0.3.0"
	if v, ok := os.LookupEnv("INKGATE_USER_AGENT"); ok && v != "" {
		userAgent = v
	}

	httpTimeout := 30 * time.Second
	if v, ok := os.LookupEnv("INKGATE_HTTP_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("INKGATE_HTTP_TIMEOUT has invalid duration %q: %w", v, err)
		}
		httpTimeout = parsed
	}

	return &Config{
		ConfigPath:      configPath,
		FTokenEndpoints: endpoints,
		UserAgent:       userAgent,
		HTTPTimeout:     httpTimeout,
	}, nil
}
