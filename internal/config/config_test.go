package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuleaf/inkgate/internal/adapter/driven/ftoken"
)

// allConfigKeys lists every INKGATE_ env var that Load() reads.
var allConfigKeys = []string{
	"INKGATE_CONFIG_PATH",
	"INKGATE_FTOKEN_URLS",
	"INKGATE_USER_AGENT",
	"INKGATE_HTTP_TIMEOUT",
}

// isolateConfigEnv saves and unsets all INKGATE_ config vars so tests don't
// inherit values from the host environment. t.Cleanup restores original
// values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "", cfg.ConfigPath)
	assert.Equal(t, []string{ftoken.DefaultEndpoint}, cfg.FTokenEndpoints)
	assert.Equal(t, "inkgate/0.3.0", cfg.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("INKGATE_CONFIG_PATH", "/tmp/creds.ini")
	t.Setenv("INKGATE_USER_AGENT", "my-scraper/1.2")
	t.Setenv("INKGATE_HTTP_TIMEOUT", "10s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/creds.ini", cfg.ConfigPath)
	assert.Equal(t, "my-scraper/1.2", cfg.UserAgent)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}

func TestLoad_FTokenURLs(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("INKGATE_FTOKEN_URLS", "https://primary.test/f, https://backup.test/f")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"https://primary.test/f", "https://backup.test/f"}, cfg.FTokenEndpoints)
}

func TestLoad_FTokenURLs_OnlySeparators(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("INKGATE_FTOKEN_URLS", " , ,")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INKGATE_FTOKEN_URLS")
}

func TestLoad_InvalidTimeout(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("INKGATE_HTTP_TIMEOUT", "not-a-duration")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INKGATE_HTTP_TIMEOUT")
}
