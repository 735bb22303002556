package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	setEnvEmpty(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", cfg.ServerURL)
	assert.Equal(t, "IN", cfg.Country)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, AudioBackendCommand, cfg.AudioBackend)
	assert.Equal(t, []string{"aplay", "-q"}, cfg.PlayArgs())
	assert.Equal(t, []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}, cfg.RecordArgs())
	assert.Empty(t, cfg.ControlAddr)
}

func TestRecorderFollowsSampleRate(t *testing.T) {
	setEnvEmpty(t)
	t.Setenv("SENTINEL_SAMPLE_RATE", "8000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, cfg.RecordArgs(), "8000")

	t.Setenv("SENTINEL_RECORD_COMMAND", "arecord --rate=8000 -t raw")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.SampleRate)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	setEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://10.0.0.5:5001
account_id: ACC-42
poll_interval: 1500ms
audio_backend: mock
control_addr: 127.0.0.1:8090
`), 0o600))
	t.Setenv("SENTINEL_ACCOUNT_ID", "ACC-ENV")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:5001", cfg.ServerURL)
	assert.Equal(t, "ACC-ENV", cfg.AccountID)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, AudioBackendMock, cfg.AudioBackend)
	assert.Equal(t, "127.0.0.1:8090", cfg.ControlAddr)
}

func TestLoadUsesConfigEnvPath(t *testing.T) {
	setEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("country: US\n"), 0o600))
	t.Setenv("SENTINEL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "US", cfg.Country)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"short poll":      {"SENTINEL_POLL_INTERVAL": "10ms"},
		"bad duration":    {"SENTINEL_TICK_INTERVAL": "soon"},
		"bad backend":     {"SENTINEL_AUDIO_BACKEND": "portaudio"},
		"bad bool":        {"SENTINEL_ALLOW_ANY_ORIGIN": "maybe"},
		"bad sample rate": {"SENTINEL_SAMPLE_RATE": "0"},
		"recorder rate":   {"SENTINEL_RECORD_COMMAND": "arecord -r 44100 -t raw"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setEnvEmpty(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	setEnvEmpty(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func setEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"SENTINEL_CONFIG",
		"SENTINEL_SERVER_URL",
		"SENTINEL_PHONE",
		"SENTINEL_ACCOUNT_ID",
		"SENTINEL_COUNTRY",
		"SENTINEL_POLL_INTERVAL",
		"SENTINEL_TICK_INTERVAL",
		"SENTINEL_REQUEST_TIMEOUT",
		"SENTINEL_AUDIO_BACKEND",
		"SENTINEL_RECORD_COMMAND",
		"SENTINEL_PLAY_COMMAND",
		"SENTINEL_SAMPLE_RATE",
		"SENTINEL_CONTROL_ADDR",
		"SENTINEL_ALLOW_ANY_ORIGIN",
		"SENTINEL_SHUTDOWN_TIMEOUT",
		"SENTINEL_METRICS_NAMESPACE",
		"SENTINEL_LOG_LEVEL",
		"SENTINEL_LOG_FORMAT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
