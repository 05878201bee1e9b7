package storage

import (
	"fmt"
	"time"

	"github.com/hyperkishore/home-internet/config"
)

// NewStore opens the backend selected by cfg, applies the listing caps and
// query timeout, and returns it ready for use.
func NewStore(cfg *config.DatabaseConfig, limits ListLimits) (Store, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}

	var base *BaseStore
	var store Store
	switch cfg.EffectiveDriver() {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.BuildDSN(), time.Duration(cfg.BusyTimeoutMillis)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		base, store = &s.BaseStore, s
	case "postgres":
		s, err := NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		base, store = &s.BaseStore, s
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	base.SetLimits(limits)
	if cfg.QueryTimeoutSeconds > 0 {
		base.SetQueryTimeout(time.Duration(cfg.QueryTimeoutSeconds) * time.Second)
	}
	return store, nil
}
