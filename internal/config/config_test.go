package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.yaml")
	content := `
log_level: debug
store:
  driver: redis
  options:
    addr: localhost:6379
    db: 2
    ttl: 10m
history:
  max_nodes: 50
  quota_bytes: 1048576
lock:
  distributed: true
  ttl: 5s
security:
  redact_patterns: ["token", "ssn"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.History.MaxNodes)
	assert.Equal(t, 1048576, cfg.History.QuotaBytes)
	assert.True(t, cfg.History.Autosave, "unset keys keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.Lock.TTL)
	assert.Equal(t, []string{"token", "ssn"}, cfg.Security.RedactPatterns)

	var opts RedisOptions
	require.NoError(t, cfg.Store.DecodeOptions(&opts))
	assert.Equal(t, RedisOptions{Addr: "localhost:6379", DB: 2, TTL: 10 * time.Minute}, opts)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.json")
	content := `{"store": {"driver": "sqlite", "options": {"path": "data/arbor.db"}}, "history": {"max_nodes": 10}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)

	var opts SQLiteOptions
	require.NoError(t, cfg.Store.DecodeOptions(&opts))
	assert.Equal(t, "data/arbor.db", opts.Path)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"driver.yaml": "store:\n  driver: etcd\n",
		"nodes.yaml":  "history:\n  max_nodes: -1\n",
		"lock.yaml":   "lock:\n  distributed: true\n",
		"syntax.yaml": "store: [",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestDecodeOptions_RejectsUnknownKeys(t *testing.T) {
	s := Store{Driver: DriverFile, Options: map[string]any{"directory": "x"}}
	var opts FileOptions
	assert.Error(t, s.DecodeOptions(&opts))
}
