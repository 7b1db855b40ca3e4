package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recall/internal/eventlog"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "recall.yaml", `
data_dir: /var/lib/recall
store:
  backend: pebble
  resident: 16
server:
  listen: ":9000"
peers:
  - name: home
    url: http://home.local:7420
redis:
  addrs: ["localhost:6379"]
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: decks
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/recall", cfg.DataDir)
	assert.Equal(t, BackendPebble, cfg.Store.Backend)
	assert.Equal(t, 16, cfg.Store.Resident)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.True(t, cfg.Server.Metrics, "default kept")
	assert.Equal(t, []Peer{{Name: "home", URL: "http://home.local:7420"}}, cfg.Peers)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "recall:cursor", cfg.Redis.Prefix)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "decks", cfg.Kafka.Topic)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "recall.yaml", "store:\n  backend: pebble\n")
	t.Setenv("RECALL_STORE_BACKEND", "memory")
	t.Setenv("RECALL_DEVICE", "laptop")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "laptop", cfg.Device)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 128, cfg.Store.Resident)
	assert.Equal(t, "127.0.0.1:7420", cfg.Server.Listen)
	assert.Empty(t, cfg.Peers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		error string
	}{
		{"bad backend", "store:\n  backend: mysql\n", "store.backend"},
		{"zero resident", "store:\n  resident: 0\n", "store.resident"},
		{"peer without url", "peers:\n  - name: a\n", "peers[0]"},
		{"duplicate peer", "peers:\n  - {name: a, url: http://a}\n  - {name: a, url: http://b}\n", "duplicate peer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "recall.yaml", tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.error)
		})
	}
}

func TestPeer(t *testing.T) {
	cfg := &Config{Peers: []Peer{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}}

	p, err := cfg.Peer("")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)

	p, err = cfg.Peer("b")
	require.NoError(t, err)
	assert.Equal(t, "http://b", p.URL)

	_, err = cfg.Peer("c")
	require.Error(t, err)

	_, err = (&Config{}).Peer("")
	require.Error(t, err)
}

func TestDeviceID_PersistedOnce(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join(t.TempDir(), "data")}
	gen := eventlog.NewFixedGenerator("dev-1", "dev-2")

	first, err := cfg.DeviceID(gen)
	require.NoError(t, err)
	assert.Equal(t, eventlog.DeviceID("dev-1"), first)

	again, err := cfg.DeviceID(gen)
	require.NoError(t, err)
	assert.Equal(t, first, again, "second call reads the file")

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, DeviceFile))
	require.NoError(t, err)
	assert.Equal(t, "dev-1\n", string(data))
}

func TestDeviceID_Configured(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir(), Device: "phone"}
	id, err := cfg.DeviceID(eventlog.NewFixedGenerator())
	require.NoError(t, err)
	assert.Equal(t, eventlog.DeviceID("phone"), id)
}

func TestDeviceID_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DeviceFile, "\n")
	_, err := (&Config{DataDir: dir}).DeviceID(eventlog.NewFixedGenerator())
	require.Error(t, err)
}
