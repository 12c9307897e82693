// Package config loads the settings of the crdtjson command. Values come from defaults,
// then an optional YAML file, then CRDTJSON_* environment variables, which may also be
// set from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
)

var logger = logging.Logger("config")

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CRDTJSON_"

// Config holds the command settings.
type Config struct {
	// LogLevel is applied to every logger.
	LogLevel string `yaml:"log_level"`

	// HTTPAddr is the listen address of the HTTP server.
	HTTPAddr string `yaml:"http_addr"`

	// Storage configures the document storage.
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig mirrors crdtstorage.StorageOptions.
type StorageConfig struct {
	PubSub      string `yaml:"pubsub"`
	Persistence string `yaml:"persistence"`
	Path        string `yaml:"path"`
	KeyPrefix   string `yaml:"key_prefix"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	ListenAddrs    []string `yaml:"listen_addrs"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`

	AutoSave         bool          `yaml:"auto_save"`
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`
	SaveAfterEdit    bool          `yaml:"save_after_edit"`

	DistributedLock bool          `yaml:"distributed_lock"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

// Default returns the default configuration: in-memory storage and transport.
func Default() *Config {
	opts := crdtstorage.DefaultStorageOptions()
	return &Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Storage: StorageConfig{
			PubSub:           string(opts.PubSubType),
			Persistence:      string(opts.PersistenceType),
			KeyPrefix:        opts.KeyPrefix,
			RedisAddr:        opts.RedisAddr,
			AutoSave:         opts.AutoSave,
			AutoSaveInterval: opts.AutoSaveInterval,
			SaveAfterEdit:    opts.SaveAfterEdit,
			LockTimeout:      opts.DistributedLockTimeout,
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file, and a missing
// envFile is ignored. Variables already set in the environment win over the .env file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			logger.Debugf("loaded environment from %s", envFile)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTPAddr)

	s := &c.Storage
	str("PUBSUB", &s.PubSub)
	str("PERSISTENCE", &s.Persistence)
	str("PATH", &s.Path)
	str("KEY_PREFIX", &s.KeyPrefix)
	str("REDIS_ADDR", &s.RedisAddr)
	str("REDIS_PASSWORD", &s.RedisPassword)
	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err))
		} else {
			s.RedisDB = db
		}
	}
	list("LISTEN_ADDRS", &s.ListenAddrs)
	list("BOOTSTRAP_PEERS", &s.BootstrapPeers)
	boolean("AUTO_SAVE", &s.AutoSave)
	duration("AUTO_SAVE_INTERVAL", &s.AutoSaveInterval)
	boolean("SAVE_AFTER_EDIT", &s.SaveAfterEdit)
	boolean("DISTRIBUTED_LOCK", &s.DistributedLock)
	duration("LOCK_TIMEOUT", &s.LockTimeout)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the backend names and the settings they require.
func (c *Config) Validate() error {
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	s := c.Storage
	switch crdtstorage.PubSubType(s.PubSub) {
	case crdtstorage.PubSubMemory, crdtstorage.PubSubRedis, crdtstorage.PubSubLibP2P:
	default:
		return fmt.Errorf("unknown pubsub %q", s.PubSub)
	}

	switch crdtstorage.PersistenceType(s.Persistence) {
	case crdtstorage.PersistenceMemory, crdtstorage.PersistenceRedis,
		crdtstorage.PersistenceSQLite, crdtstorage.PersistenceBadger, crdtstorage.PersistenceDatastore:
	case crdtstorage.PersistenceFile:
		if s.Path == "" {
			return errors.New("file persistence requires storage.path")
		}
	default:
		return fmt.Errorf("unknown persistence %q", s.Persistence)
	}

	if s.AutoSave && s.AutoSaveInterval <= 0 {
		return errors.New("auto_save requires a positive auto_save_interval")
	}
	if s.DistributedLock && s.LockTimeout <= 0 {
		return errors.New("distributed_lock requires a positive lock_timeout")
	}
	return nil
}

// ApplyLogLevel sets the level of every logger.
func (c *Config) ApplyLogLevel() error {
	return logging.SetLogLevel("*", c.LogLevel)
}

// StorageOptions converts the storage settings.
func (c *Config) StorageOptions() *crdtstorage.StorageOptions {
	s := c.Storage
	opts := crdtstorage.DefaultStorageOptions()
	opts.PubSubType = crdtstorage.PubSubType(s.PubSub)
	opts.PersistenceType = crdtstorage.PersistenceType(s.Persistence)
	opts.PersistencePath = s.Path
	opts.KeyPrefix = s.KeyPrefix
	opts.RedisAddr = s.RedisAddr
	opts.RedisPassword = s.RedisPassword
	opts.RedisDB = s.RedisDB
	opts.ListenAddrs = s.ListenAddrs
	opts.BootstrapPeers = s.BootstrapPeers
	opts.AutoSave = s.AutoSave
	opts.AutoSaveInterval = s.AutoSaveInterval
	opts.SaveAfterEdit = s.SaveAfterEdit
	opts.EnableDistributedLock = s.DistributedLock
	opts.DistributedLockTimeout = s.LockTimeout
	return opts
}
