package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
priority: adaptive
timeouts:
  invidious: 12s
hosts:
  piped:
    - https://piped.example
cache:
  cap: 50
  streamTTL: 10m
  metadataTTL: 20m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, PriorityAdaptive, cfg.Priority)
	assert.Equal(t, 12*time.Second, cfg.Timeouts["invidious"])
	assert.Equal(t, []string{"https://piped.example"}, cfg.Hosts["piped"])
	assert.Equal(t, 50, cfg.Cache.Cap)
	assert.Equal(t, Default().Proxies.RemoteURL, cfg.Proxies.RemoteURL)
	assert.Equal(t, Default().PlayerInitial, cfg.PlayerInitial)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "listen: \":8080\"\nlisen: typo\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "listen: \":8080\"\n---\nlisten: \":9090\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YTMIRROR_LISTEN", ":7000")
	t.Setenv("YTMIRROR_YOUTUBE_API_KEYS", "k1, k2,,")
	t.Setenv("YTMIRROR_EDGE_URL", "https://edge.example")
	t.Setenv("YTMIRROR_EDGE_KEY", "secret")
	t.Setenv("YTMIRROR_PRIORITY", " ")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, []string{"k1", "k2"}, cfg.YouTubeKeys)
	assert.Equal(t, "https://edge.example", cfg.Edge.URL)
	assert.Equal(t, PriorityStatic, cfg.Priority)
}

func TestEnvRejectsBadInt(t *testing.T) {
	t.Setenv("YTMIRROR_RATE_LIMIT", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YTMIRROR_RATE_LIMIT")
}

func TestValidateJoinsFieldErrors(t *testing.T) {
	cfg := Default()
	cfg.Priority = "random"
	cfg.Store.Driver = "badger"
	cfg.Timeouts = map[string]time.Duration{"nope": time.Second}
	cfg.Hosts = map[string][]string{"unknown": {"https://x"}}
	cfg.Edge.URL = "https://edge.example"
	cfg.PlayerInitial = "flash"
	cfg.Validator = "function ("

	err := cfg.Validate()
	require.Error(t, err)

	var fields []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var fe *FieldError
		require.True(t, errors.As(e, &fe))
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{
		"priority", "store.path", "timeouts.nope", "hosts.unknown",
		"edge", "playerInitial", "validatorScript",
	}, fields)
}
