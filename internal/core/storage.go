package core

import (
	"fmt"
	"os"

	"whalewatcher/internal/infra/persistence/memory"
	"whalewatcher/internal/infra/persistence/postgres"
	"whalewatcher/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / demo)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the persistent store.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// StorageConfigFromEnv reads the storage configuration from the environment.
//
//	WHALEWATCHER_STORAGE_DRIVER: memory|sqlite|postgres (default memory)
//	WHALEWATCHER_SQLITE_PATH: path to sqlite file (default ./whalewatcher.db)
//	WHALEWATCHER_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("WHALEWATCHER_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("WHALEWATCHER_SQLITE_PATH"),
		PostgresDSN: os.Getenv("WHALEWATCHER_POSTGRES_DSN"),
	}
}

// OpenPersistentStore constructs the configured backend. An empty driver
// selects the in-memory store, matching the reset-on-restart demo behaviour.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine, opts ...memory.Option) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine, opts...)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
