package rescache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/rescache/internal/wire"
)

func lookupFrom(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestConfigFromLookup(t *testing.T) {
	cfg, err := ConfigFromLookup(lookupFrom(map[string]string{
		EnvDriver:        "Redis",
		EnvStrict:        "true",
		EnvPrefix:        "blog:",
		EnvDefaultTTL:    "2d",
		EnvNegativeTTL:   "45",
		EnvJitter:        "1m30s",
		EnvBusyWait:      "250",
		EnvLockTTL:       "3s",
		EnvCooldown:      "120",
		EnvSerializer:    "igbinary",
		EnvAllowClearAll: "1",
		EnvRedisAddr:     "a:6379, b:6379",
		EnvRedisDB:       "2",
		EnvBoltPath:      "/tmp/x.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, TechRedis, cfg.Technology)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "blog:", cfg.KeyPrefix)
	assert.Equal(t, 48*time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 45*time.Second, cfg.NegativeTTL)
	assert.Equal(t, 90*time.Second, cfg.Jitter)
	assert.Equal(t, 250*time.Millisecond, cfg.BusyWait)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cooldown)
	assert.Equal(t, wire.Msgpack, cfg.Format())
	assert.True(t, cfg.AllowClearAll)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "/tmp/x.db", cfg.Bolt.Path)
}

func TestConfigFromLookupRejectsGarbage(t *testing.T) {
	for key, val := range map[string]string{
		EnvStrict:     "maybe",
		EnvDefaultTTL: "soon",
		EnvRedisDB:    "one",
	} {
		_, err := ConfigFromLookup(lookupFrom(map[string]string{key: val}))
		assert.Error(t, err, key)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, TechMemory, cfg.Technology)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.NegativeTTL)
	assert.Equal(t, time.Duration(0), cfg.Jitter)
	assert.Equal(t, 100*time.Millisecond, cfg.BusyWait)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Equal(t, wire.JSON, cfg.Format())

	assert.Equal(t, wire.JSON, Config{Serializer: "yaml"}.Format())
	assert.Equal(t, wire.CBOR, Config{Serializer: "native"}.Format())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: bolt
prefix: "svc:"
default_ttl: 6h
negative_ttl: 10
lock_ttl: 1500
serializer: cbor
redis:
  addrs: ["r1:6379"]
  db: 1
bolt:
  path: /var/cache/svc.db
bigcache:
  life_window: 15m
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, TechBolt, cfg.Technology)
	assert.Equal(t, "svc:", cfg.KeyPrefix)
	assert.Equal(t, 6*time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 10*time.Second, cfg.NegativeTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.LockTTL)
	assert.Equal(t, wire.CBOR, cfg.Format())
	assert.Equal(t, []string{"r1:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "/var/cache/svc.db", cfg.Bolt.Path)
	assert.Equal(t, 15*time.Minute, cfg.BigCache.LifeWindow)

	_, err = ParseConfigYAML([]byte("cooldown: whenever"))
	assert.Error(t, err)
	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
