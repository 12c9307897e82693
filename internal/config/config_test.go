package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	opts := cfg.StorageOptions()
	assert.Equal(t, crdtstorage.PubSubMemory, opts.PubSubType)
	assert.Equal(t, crdtstorage.PersistenceMemory, opts.PersistenceType)
	assert.True(t, opts.SaveAfterEdit)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "crdtjson.yaml", `
log_level: debug
http_addr: 127.0.0.1:9000
storage:
  pubsub: redis
  persistence: file
  path: /var/lib/crdtjson
  key_prefix: app
  redis_addr: redis:6379
  redis_db: 2
  bootstrap_peers:
    - /ip4/10.0.0.1/tcp/4001/p2p/QmPeer
  auto_save: true
  auto_save_interval: 30s
  save_after_edit: false
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)

	opts := cfg.StorageOptions()
	assert.Equal(t, crdtstorage.PubSubRedis, opts.PubSubType)
	assert.Equal(t, crdtstorage.PersistenceFile, opts.PersistenceType)
	assert.Equal(t, "/var/lib/crdtjson", opts.PersistencePath)
	assert.Equal(t, "app", opts.KeyPrefix)
	assert.Equal(t, "redis:6379", opts.RedisAddr)
	assert.Equal(t, 2, opts.RedisDB)
	assert.Equal(t, []string{"/ip4/10.0.0.1/tcp/4001/p2p/QmPeer"}, opts.BootstrapPeers)
	assert.True(t, opts.AutoSave)
	assert.Equal(t, 30*time.Second, opts.AutoSaveInterval)
	assert.False(t, opts.SaveAfterEdit)
	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, opts.DistributedLockTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "crdtjson.yaml", "storage:\n  persistence: sqlite\n  key_prefix: file\n")
	t.Setenv("CRDTJSON_KEY_PREFIX", "env")
	t.Setenv("CRDTJSON_LISTEN_ADDRS", "/ip4/0.0.0.0/tcp/4001, /ip4/0.0.0.0/udp/4001/quic-v1")
	t.Setenv("CRDTJSON_DISTRIBUTED_LOCK", "true")
	t.Setenv("CRDTJSON_LOCK_TIMEOUT", "3s")
	t.Setenv("CRDTJSON_REDIS_DB", "5")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Persistence)
	assert.Equal(t, "env", cfg.Storage.KeyPrefix)
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/udp/4001/quic-v1"}, cfg.Storage.ListenAddrs)
	assert.True(t, cfg.Storage.DistributedLock)
	assert.Equal(t, 3*time.Second, cfg.Storage.LockTimeout)
	assert.Equal(t, 5, cfg.Storage.RedisDB)
}

func TestDotEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "CRDTJSON_HTTP_ADDR=:7000\nCRDTJSON_PUBSUB=libp2p\n")
	// Registering with t.Setenv restores the variables that godotenv sets.
	t.Setenv("CRDTJSON_HTTP_ADDR", "")
	os.Unsetenv("CRDTJSON_HTTP_ADDR")
	t.Setenv("CRDTJSON_PUBSUB", "memory")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	// The process environment wins over the file.
	assert.Equal(t, "memory", cfg.Storage.PubSub)
}

func TestMissingEnvFileIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "storage: [\n"), "")
	assert.Error(t, err)

	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("CRDTJSON_AUTO_SAVE", "maybe")
		_, err := Load("", "")
		assert.ErrorContains(t, err, "CRDTJSON_AUTO_SAVE")
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("CRDTJSON_AUTO_SAVE_INTERVAL", "soon")
		_, err := Load("", "")
		assert.ErrorContains(t, err, "CRDTJSON_AUTO_SAVE_INTERVAL")
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"pubsub", func(c *Config) { c.Storage.PubSub = "smoke" }},
		{"persistence", func(c *Config) { c.Storage.Persistence = "tape" }},
		{"file path", func(c *Config) { c.Storage.Persistence = "file" }},
		{"auto save interval", func(c *Config) {
			c.Storage.AutoSave = true
			c.Storage.AutoSaveInterval = 0
		}},
		{"lock timeout", func(c *Config) {
			c.Storage.DistributedLock = true
			c.Storage.LockTimeout = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestApplyLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.NoError(t, cfg.ApplyLogLevel())
}
