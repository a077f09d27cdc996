package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// knownKeys lists every env var Load consults, so tests can neutralize
// anything set in the surrounding environment.
var knownKeys = []string{
	"UNIFI_URL", "UNIFI_USER", "UNIFI_PASS", "UNIFI_SITE",
	"UNIFI_VERIFY_SSL", "UNIFI_FINGERPRINT",
	"INFLUX_URL", "INFLUX_DB", "INFLUX_USER", "INFLUX_PASS",
	"POLL_INTERVAL", "POLL_LOOKBACK", "CONNECTION_TIMEOUT",
	"MAX_ATTEMPTS", "RETRY_DELAY", "BATCH_SIZE",
	"LISTEN_HOST", "LISTEN_PORT", "FRONTEND_DIR", "METRICS_PORT",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range knownKeys {
		t.Setenv(key, "")
	}
	t.Setenv("UNILENS_CONFIG_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.UnifiSite)
	assert.False(t, cfg.UnifiVerifySSL)
	assert.Equal(t, "unilens", cfg.InfluxDB)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.PollLookback)
	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "0.0.0.0", cfg.ListenHost)
	assert.Equal(t, 7654, cfg.ListenPort)
	assert.Equal(t, 9101, cfg.MetricsPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Empty(t, cfg.EnvOverrides)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("UNIFI_URL", "https://gateway.lan")
	t.Setenv("UNIFI_USER", "viewer")
	t.Setenv("UNIFI_PASS", "hunter2")
	t.Setenv("UNIFI_VERIFY_SSL", "true")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("BATCH_SIZE", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.lan", cfg.UnifiURL)
	assert.Equal(t, "viewer", cfg.UnifiUser)
	assert.Equal(t, "hunter2", cfg.UnifiPass)
	assert.True(t, cfg.UnifiVerifySSL)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100, cfg.BatchSize)

	assert.True(t, cfg.EnvOverrides["UNIFI_URL"])
	assert.True(t, cfg.EnvOverrides["POLL_INTERVAL"])
	assert.False(t, cfg.EnvOverrides["INFLUX_URL"])
}

func TestLoadInvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MAX_ATTEMPTS", "many")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.False(t, cfg.EnvOverrides["POLL_INTERVAL"])
}

func TestLoadDotEnvFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	env := "INFLUX_URL=http://influx.lan:8086\nINFLUX_USER=metrics\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("UNILENS_CONFIG_DIR", dir)

	// godotenv only sets unset vars, so drop the blanks from clearEnv
	os.Unsetenv("INFLUX_URL")
	os.Unsetenv("INFLUX_USER")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://influx.lan:8086", cfg.InfluxURL)
	assert.Equal(t, "metrics", cfg.InfluxUser)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "90", want: 90 * time.Second},
		{input: "2m", want: 2 * time.Minute},
		{input: "1500ms", want: 1500 * time.Millisecond},
		{input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCollector(t *testing.T) {
	valid := func() *Config {
		return &Config{
			UnifiURL:     "https://gateway.lan",
			UnifiUser:    "viewer",
			UnifiPass:    "hunter2",
			InfluxURL:    "http://influx.lan:8086",
			InfluxDB:     "unilens",
			PollInterval: time.Minute,
			MaxAttempts:  3,
		}
	}

	assert.NoError(t, valid().ValidateCollector())

	cfg := valid()
	cfg.UnifiURL = ""
	assert.ErrorContains(t, cfg.ValidateCollector(), "UNIFI_URL")

	cfg = valid()
	cfg.UnifiPass = ""
	assert.ErrorContains(t, cfg.ValidateCollector(), "UNIFI_PASS")

	cfg = valid()
	cfg.InfluxDB = ""
	assert.ErrorContains(t, cfg.ValidateCollector(), "INFLUX_DB")

	cfg = valid()
	cfg.PollInterval = 100 * time.Millisecond
	assert.ErrorContains(t, cfg.ValidateCollector(), "POLL_INTERVAL")

	cfg = valid()
	cfg.MaxAttempts = 0
	assert.ErrorContains(t, cfg.ValidateCollector(), "MAX_ATTEMPTS")
}

func TestValidateServer(t *testing.T) {
	valid := func() *Config {
		return &Config{
			InfluxURL:  "http://influx.lan:8086",
			InfluxDB:   "unilens",
			ListenPort: 7654,
		}
	}

	assert.NoError(t, valid().ValidateServer())

	cfg := valid()
	cfg.InfluxURL = ""
	assert.ErrorContains(t, cfg.ValidateServer(), "INFLUX_URL")

	cfg = valid()
	cfg.ListenPort = 0
	assert.ErrorContains(t, cfg.ValidateServer(), "LISTEN_PORT")

	cfg = valid()
	cfg.ListenPort = 70000
	assert.ErrorContains(t, cfg.ValidateServer(), "LISTEN_PORT")
}
