package rescache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/rescache/internal/wire"
)

// Technology names a backend driver implementation.
type Technology string

const (
	TechRedis    Technology = "redis"    // distributed KV
	TechMemory   Technology = "memory"   // process memory (ristretto)
	TechBigCache Technology = "bigcache" // process memory with key enumeration
	TechBolt     Technology = "bolt"     // embedded file store (bbolt)
	TechNone     Technology = "none"     // caching disabled
)

// Config is the whole configuration surface of a Runtime. Zero fields take
// the package defaults.
type Config struct {
	Technology Technology
	// Strict makes build/probe failures fatal instead of degrading.
	Strict bool
	// KeyPrefix namespaces every key, lock and negative marker.
	KeyPrefix string

	DefaultTTL  time.Duration // positive values without an explicit TTL
	NegativeTTL time.Duration // "known empty" markers
	Jitter      time.Duration // max random extra TTL; 0 disables
	BusyWait    time.Duration // single wait when the stampede lock is held
	LockTTL     time.Duration // stampede lock self-expiry
	Cooldown    time.Duration // degraded period before re-probing
	ProbeTTL    time.Duration // TTL of the health probe sentinel

	// Serializer is the preferred envelope format: json, msgpack or cbor.
	Serializer string
	// AllowClearAll permits Clear("*") when KeyPrefix is empty.
	AllowClearAll bool

	Redis    RedisConfig
	Memory   MemoryConfig
	BigCache BigCacheConfig
	Bolt     BoltConfig
}

type RedisConfig struct {
	Addrs        []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Client, when set, is used instead of dialing Addrs. The runtime does
	// not close a client it did not create.
	Client goredis.UniversalClient
}

type MemoryConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

type BigCacheConfig struct {
	LifeWindow         time.Duration
	HardMaxCacheSizeMB int
}

type BoltConfig struct {
	Path    string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	c.Technology = coalesce(c.Technology, TechMemory)
	c.DefaultTTL = coalesce(c.DefaultTTL, DefaultTTL)
	c.NegativeTTL = coalesce(c.NegativeTTL, DefaultNegativeTTL)
	c.BusyWait = coalesce(c.BusyWait, DefaultBusyWait)
	c.LockTTL = coalesce(c.LockTTL, DefaultLockTTL)
	c.Cooldown = coalesce(c.Cooldown, DefaultCooldown)
	c.ProbeTTL = coalesce(c.ProbeTTL, DefaultProbeTTL)
	c.Serializer = coalesce(c.Serializer, "json")
	return c
}

// Format returns the preferred envelope format (JSON when unrecognized).
func (c Config) Format() wire.Format {
	if f, ok := wire.ParseFormat(strings.ToLower(c.Serializer)); ok {
		return f
	}
	return wire.JSON
}

// Environment keys read by ConfigFromEnv.
const (
	EnvDriver        = "CACHE_DRIVER"
	EnvStrict        = "CACHE_STRICT"
	EnvPrefix        = "CACHE_PREFIX"
	EnvDefaultTTL    = "CACHE_DEFAULT_TTL"
	EnvNegativeTTL   = "CACHE_NEGATIVE_TTL"
	EnvJitter        = "CACHE_TTL_JITTER"
	EnvBusyWait      = "CACHE_BUSY_WAIT"
	EnvLockTTL       = "CACHE_LOCK_TTL"
	EnvCooldown      = "CACHE_COOLDOWN"
	EnvSerializer    = "CACHE_SERIALIZER"
	EnvAllowClearAll = "CACHE_ALLOW_CLEAR_ALL"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisUser     = "REDIS_USERNAME"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
	EnvBoltPath      = "CACHE_BOLT_PATH"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ConfigFromEnv reads the configuration from the process environment.
func ConfigFromEnv() (Config, error) { return ConfigFromLookup(os.LookupEnv) }

// ConfigFromLookup reads the configuration through lookup. Durations accept
// Go/str2duration syntax ("90s", "1h30m", "2d"); bare integers are seconds
// for TTLs and cooldown, milliseconds for the lock TTL and busy wait.
// REDIS_ADDR may hold a comma-separated list.
func ConfigFromLookup(lookup LookupFunc) (Config, error) {
	var cfg Config
	p := envParser{lookup: lookup}

	if v, ok := lookup(EnvDriver); ok {
		cfg.Technology = Technology(strings.ToLower(strings.TrimSpace(v)))
	}
	cfg.KeyPrefix, _ = lookup(EnvPrefix)
	cfg.Serializer, _ = lookup(EnvSerializer)
	cfg.Strict = p.bool(EnvStrict)
	cfg.AllowClearAll = p.bool(EnvAllowClearAll)
	cfg.DefaultTTL = p.duration(EnvDefaultTTL, time.Second)
	cfg.NegativeTTL = p.duration(EnvNegativeTTL, time.Second)
	cfg.Jitter = p.duration(EnvJitter, time.Second)
	cfg.Cooldown = p.duration(EnvCooldown, time.Second)
	cfg.BusyWait = p.duration(EnvBusyWait, time.Millisecond)
	cfg.LockTTL = p.duration(EnvLockTTL, time.Millisecond)

	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Redis.Addrs = splitList(v)
	}
	cfg.Redis.Username, _ = lookup(EnvRedisUser)
	cfg.Redis.Password, _ = lookup(EnvRedisPassword)
	cfg.Redis.DB = p.int(EnvRedisDB)
	cfg.Bolt.Path, _ = lookup(EnvBoltPath)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, nil
}

type envParser struct {
	lookup LookupFunc
	err    error
}

func (p *envParser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("rescache: invalid %s=%q: %w", key, val, err)
	}
}

func (p *envParser) bool(key string) bool {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
	}
	return b
}

func (p *envParser) int(key string) int {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
	}
	return n
}

func (p *envParser) duration(key string, bare time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return 0
	}
	d, err := parseDuration(v, bare)
	if err != nil {
		p.fail(key, v, err)
	}
	return d
}

// parseDuration treats bare integers as multiples of bare.
func parseDuration(s string, bare time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * bare, nil
	}
	return str2duration.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// fileConfig is the YAML shape of Config. Durations are strings so they
// share the env syntax.
type fileConfig struct {
	Driver        string `yaml:"driver"`
	Strict        bool   `yaml:"strict"`
	Prefix        string `yaml:"prefix"`
	DefaultTTL    string `yaml:"default_ttl"`
	NegativeTTL   string `yaml:"negative_ttl"`
	Jitter        string `yaml:"ttl_jitter"`
	BusyWait      string `yaml:"busy_wait"`
	LockTTL       string `yaml:"lock_ttl"`
	Cooldown      string `yaml:"cooldown"`
	Serializer    string `yaml:"serializer"`
	AllowClearAll bool   `yaml:"allow_clear_all"`
	Redis         struct {
		Addrs    []string `yaml:"addrs"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
	} `yaml:"redis"`
	Memory struct {
		NumCounters int64 `yaml:"num_counters"`
		MaxCost     int64 `yaml:"max_cost"`
		BufferItems int64 `yaml:"buffer_items"`
	} `yaml:"memory"`
	BigCache struct {
		LifeWindow  string `yaml:"life_window"`
		HardMaxSize int    `yaml:"hard_max_size_mb"`
	} `yaml:"bigcache"`
	Bolt struct {
		Path string `yaml:"path"`
	} `yaml:"bolt"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfigYAML(b)
}

// ParseConfigYAML parses YAML configuration using the same duration rules
// as ConfigFromLookup.
func ParseConfigYAML(b []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return Config{}, fmt.Errorf("rescache: parse config: %w", err)
	}
	cfg := Config{
		Technology:    Technology(strings.ToLower(fc.Driver)),
		Strict:        fc.Strict,
		KeyPrefix:     fc.Prefix,
		Serializer:    fc.Serializer,
		AllowClearAll: fc.AllowClearAll,
		Redis: RedisConfig{
			Addrs:    fc.Redis.Addrs,
			Username: fc.Redis.Username,
			Password: fc.Redis.Password,
			DB:       fc.Redis.DB,
		},
		Memory: MemoryConfig{
			NumCounters: fc.Memory.NumCounters,
			MaxCost:     fc.Memory.MaxCost,
			BufferItems: fc.Memory.BufferItems,
		},
		BigCache: BigCacheConfig{HardMaxCacheSizeMB: fc.BigCache.HardMaxSize},
		Bolt:     BoltConfig{Path: fc.Bolt.Path},
	}
	durations := []struct {
		key  string
		val  string
		bare time.Duration
		dst  *time.Duration
	}{
		{"default_ttl", fc.DefaultTTL, time.Second, &cfg.DefaultTTL},
		{"negative_ttl", fc.NegativeTTL, time.Second, &cfg.NegativeTTL},
		{"ttl_jitter", fc.Jitter, time.Second, &cfg.Jitter},
		{"cooldown", fc.Cooldown, time.Second, &cfg.Cooldown},
		{"busy_wait", fc.BusyWait, time.Millisecond, &cfg.BusyWait},
		{"lock_ttl", fc.LockTTL, time.Millisecond, &cfg.LockTTL},
		{"bigcache.life_window", fc.BigCache.LifeWindow, time.Second, &cfg.BigCache.LifeWindow},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		v, err := parseDuration(d.val, d.bare)
		if err != nil {
			return Config{}, fmt.Errorf("rescache: invalid %s=%q: %w", d.key, d.val, err)
		}
		*d.dst = v
	}
	return cfg, nil
}
