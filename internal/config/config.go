// Package config assembles service configuration from defaults, an optional
// YAML file and WHALEWATCHER_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"whalewatcher/internal/blob"
	"whalewatcher/internal/core"
)

// Config is the complete service configuration.
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Storage core.StorageConfig `yaml:"storage"`
	Blob    blob.Config        `yaml:"blob"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
		MaxLen   int64  `yaml:"max_len"`
	} `yaml:"redis"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
	Store struct {
		StrictLookups  bool   `yaml:"strict_lookups"`
		SymmetricAudit bool   `yaml:"symmetric_audit"`
		FailureReason  string `yaml:"failure_reason"`
		Seed           bool   `yaml:"seed"`
	} `yaml:"store"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Storage.Driver = core.StorageMemory
	cfg.Storage.SQLitePath = "whalewatcher.db"
	cfg.Blob.Driver = blob.DriverMemory
	cfg.Blob.FSRoot = "artifacts"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.Stream = "whalewatcher:events"
	cfg.Redis.MaxLen = 10000
	cfg.Store.Seed = true
	return cfg
}

// Load reads path (when non-empty) over the defaults and then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects unknown drivers and log settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverMemory, blob.DriverFilesystem, blob.DriverS3:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob driver s3 requires a bucket")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("WHALEWATCHER_" + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		v, ok := lookup("WHALEWATCHER_" + key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("WHALEWATCHER_%s: %v", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup("WHALEWATCHER_" + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("WHALEWATCHER_%s: %v", key, err))
			return
		}
		*dst = n
	}

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	driver := string(cfg.Storage.Driver)
	str("STORAGE_DRIVER", &driver)
	cfg.Storage.Driver = core.StorageDriver(driver)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)

	blobDriver := string(cfg.Blob.Driver)
	str("BLOB_DRIVER", &blobDriver)
	cfg.Blob.Driver = blob.Driver(blobDriver)
	str("BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	boolean("BLOB_S3_PATH_STYLE", &cfg.Blob.S3.PathStyle)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)
	str("REDIS_STREAM", &cfg.Redis.Stream)

	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	boolean("STRICT_LOOKUPS", &cfg.Store.StrictLookups)
	boolean("SYMMETRIC_AUDIT", &cfg.Store.SymmetricAudit)
	str("FAILURE_REASON", &cfg.Store.FailureReason)
	boolean("SEED", &cfg.Store.Seed)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ServiceOptions maps the store section onto service options.
func (c Config) ServiceOptions() []core.ServiceOption {
	opts := []core.ServiceOption{
		core.WithStrictLookups(c.Store.StrictLookups),
		core.WithSymmetricAudit(c.Store.SymmetricAudit),
	}
	if c.Store.FailureReason != "" {
		opts = append(opts, core.WithDemoFailureReason(c.Store.FailureReason))
	}
	return opts
}
