// Package factory creates the configured adapter implementations.
package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/config"
	"github.com/sentinelshare/sentinel/internal/core"
)

// StoreFactory creates persistence backends based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the primary store based on the configuration
func (f *StoreFactory) CreateStore() (store.Store, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.cfg.GetLedger().Capacity, f.logger), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}

// CreateLedger creates the ledger backend. "store" reuses the primary store;
// "redis" keeps the high-churn ledger out of the primary database.
func (f *StoreFactory) CreateLedger(primary store.Store) (core.LedgerStore, error) {
	ledgerCfg := f.cfg.GetLedger()

	switch ledgerCfg.Type {
	case "store":
		return primary, nil
	case "redis":
		return store.NewRedisLedger(
			ledgerCfg.RedisAddr,
			ledgerCfg.RedisPassword,
			ledgerCfg.RedisDB,
			ledgerCfg.Capacity,
			f.logger,
		)
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerCfg.Type)
	}
}
