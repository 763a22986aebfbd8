// Package factory builds a store.Store from configuration.
package factory

import (
	"fmt"

	"github.com/yumo666666/nasweb/internal/config"
	"github.com/yumo666666/nasweb/internal/store"
	"github.com/yumo666666/nasweb/internal/store/postgres"
	"github.com/yumo666666/nasweb/internal/store/sqlite"
)

// New returns the configured store, or (nil, nil) when persistence is
// disabled.
func New(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "postgres":
		return postgres.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
