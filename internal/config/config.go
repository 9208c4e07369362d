// Package config loads the certforge configuration file and constructs the
// backends it selects: queue store, cache, and delivery webhook.
//
// Configuration lives in a TOML file, by default at
// $XDG_CONFIG_HOME/certforge/config.toml. Every field has a working default
// so a missing file yields a usable local setup: SQLite queue, on-disk
// cache, no webhook.
package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/romega/certforge/pkg/cache"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/queue"
)

// Backend names accepted in the config file.
const (
	QueueBackendMemory = "memory"
	QueueBackendSQLite = "sqlite"
	QueueBackendMongo  = "mongo"

	CacheBackendNone  = "none"
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
)

// Config is the full certforge configuration.
type Config struct {
	Queue    QueueConfig    `toml:"queue"`
	Cache    CacheConfig    `toml:"cache"`
	Delivery DeliveryConfig `toml:"delivery"`
	Fonts    FontsConfig    `toml:"fonts"`
	Server   ServerConfig   `toml:"server"`
}

// QueueConfig selects and configures the queue store backend.
type QueueConfig struct {
	Backend string      `toml:"backend"`
	Path    string      `toml:"path"`
	Mongo   MongoConfig `toml:"mongo"`
}

// MongoConfig configures the MongoDB queue backend.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend string      `toml:"backend"`
	Dir     string      `toml:"dir"`
	Redis   RedisConfig `toml:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// DeliveryConfig configures outbound email delivery.
type DeliveryConfig struct {
	// WebhookURL is the endpoint queued emails are posted to. Empty
	// disables sending (items stay pending).
	WebhookURL string `toml:"webhook_url"`

	// DelayMS paces consecutive deliveries and batch submissions.
	DelayMS int `toml:"delay_ms"`
}

// FontsConfig configures font resolution.
type FontsConfig struct {
	// Dirs are extra directories searched for TTF files before the
	// system font locations.
	Dirs []string `toml:"dirs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Backend: QueueBackendSQLite,
			Path:    filepath.Join(dataDir(), "queue.db"),
		},
		Cache: CacheConfig{
			Backend: CacheBackendFile,
			Dir:     filepath.Join(cacheDir(), "certforge"),
		},
		Delivery: DeliveryConfig{
			DelayMS: 100,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "certforge", "config.toml")
}

// Load reads the config file at path, applying defaults for anything the
// file omits. A missing file at the default location is not an error; a
// missing file at an explicitly given path is.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config file %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse config file %s", path)
	}
	return cfg, nil
}

// Delay returns the configured pacing delay as a duration.
func (c DeliveryConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// OpenStore constructs the configured queue store.
func (c Config) OpenStore(ctx context.Context) (queue.Store, error) {
	switch c.Queue.Backend {
	case QueueBackendMemory:
		return queue.NewMemoryStore(), nil
	case QueueBackendSQLite, "":
		if err := os.MkdirAll(filepath.Dir(c.Queue.Path), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueue, err, "create queue directory")
		}
		return queue.NewSQLiteStore(c.Queue.Path)
	case QueueBackendMongo:
		return queue.NewMongoStore(ctx, queue.MongoConfig{
			URI:        c.Queue.Mongo.URI,
			Database:   c.Queue.Mongo.Database,
			Collection: c.Queue.Mongo.Collection,
		})
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown queue backend %q", c.Queue.Backend)
	}
}

// OpenCache constructs the configured cache backend.
func (c Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case CacheBackendNone:
		return cache.NewNullCache(), nil
	case CacheBackendFile, "":
		return cache.NewFileCache(c.Cache.Dir)
	case CacheBackendRedis:
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
}

func dataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "certforge")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return dir
}
