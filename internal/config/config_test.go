package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "http://127.0.0.1:8188", cfg.BackendURL)
	assert.Equal(t, TransportWebsocket, cfg.Transport)
	assert.Equal(t, 16, cfg.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelayDuration())
	assert.Equal(t, 10*time.Second, cfg.Fetch.TimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Fetch.BreakerCooldownDuration())
	assert.Equal(t, 1024, cfg.Terminal.Capacity)
}

func TestLoad_HCL(t *testing.T) {
	path := writeFile(t, "hotsync.hcl", `
backend_url = "http://backend:9000"
transport   = "socketio"
queue_size  = 4

log {
  level = "debug"
}

fetch {
  timeout          = "3s"
  breaker_failures = 2
}

socketio {
  namespace = "/editor"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://backend:9000", cfg.BackendURL)
	assert.Equal(t, TransportSocketIO, cfg.Transport)
	assert.Equal(t, 4, cfg.QueueSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset block attributes get defaults")
	assert.Equal(t, 3*time.Second, cfg.Fetch.TimeoutDuration())
	assert.Equal(t, 2, cfg.Fetch.BreakerFailures)
	assert.Equal(t, "30s", cfg.Fetch.BreakerCooldown)
	assert.Equal(t, "/editor", cfg.SocketIO.Namespace)
	assert.Equal(t, "/socket.io/", cfg.SocketIO.Path)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "hotsync.yaml", `
backend_url: https://backend.example
workspace: ./graph
terminal:
  capacity: 10
log:
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://backend.example", cfg.BackendURL)
	assert.Equal(t, "./graph", cfg.Workspace)
	assert.Equal(t, 10, cfg.Terminal.Capacity)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	testCases := map[string]string{
		"unknown extension": writeFile(t, "hotsync.toml", `x = 1`),
		"bad hcl":           writeFile(t, "bad.hcl", `backend_url = `),
		"unknown hcl attr":  writeFile(t, "extra.hcl", `color = "red"`),
		"unknown yaml key":  writeFile(t, "extra.yaml", "color: red\n"),
		"missing file":      filepath.Join(t.TempDir(), "absent.yaml"),
	}
	for name, path := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HOTSYNC_BACKEND_URL":      "http://env:1",
		"HOTSYNC_TRANSPORT":        "socketio",
		"HOTSYNC_LOG_LEVEL":        "warn",
		"HOTSYNC_HEALTHCHECK_PORT": "8080",
		"HOTSYNC_CLIENT_ID":        "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.ClientID = "from-file"
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "http://env:1", cfg.BackendURL)
	assert.Equal(t, TransportSocketIO, cfg.Transport)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.HealthcheckPort)
	assert.Equal(t, "from-file", cfg.ClientID, "empty variables do not override")

	env["HOTSYNC_HEALTHCHECK_PORT"] = "eighty"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Transport = "carrier-pigeon"
	cfg.Log.Level = "loud"
	cfg.ReconnectDelay = "soon"
	cfg.Fetch.BreakerFailures = -1
	cfg.HealthcheckPort = 70000

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"Transport", "Level", "ReconnectDelay", "BreakerFailures", "HealthcheckPort"} {
		assert.Contains(t, err.Error(), field)
	}

	cfg = Default()
	cfg.BackendURL = "not a url"
	assert.Error(t, cfg.Validate())
}
