package main

import (
	"fmt"

	"github.com/mtprotogo/core/internal/config"
	"github.com/mtprotogo/core/session"
	"github.com/mtprotogo/core/session/memstore"
	"github.com/mtprotogo/core/session/sqlstore"
)

func openSessionStore(cfg config.Session) (session.Store, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlstore.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("mtcoreclient: cannot open sqlite session store %s: %w", cfg.Path, err)
		}

		return store, store.Close, nil
	default:
		return memstore.New(), nil, nil
	}
}
