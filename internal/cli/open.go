package cli

import (
	"fmt"

	"github.com/aleksaelezovic/quadkv/internal/config"
	"github.com/aleksaelezovic/quadkv/internal/storage"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// openStore opens the configured backend and a store over it
func (o *RootOptions) openStore() (*store.Store, error) {
	cfg := o.config
	var (
		backend store.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendBadger:
		backend, err = storage.OpenBadger(storage.BadgerOptions{Path: cfg.Path, Logger: o.logger})
	case config.BackendMemory:
		backend, err = storage.OpenBadger(storage.BadgerOptions{InMemory: true, Logger: o.logger})
	case config.BackendSQLite:
		backend, err = storage.NewSQLiteStorage(cfg.Path)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open backend", err)
	}

	storeOpts, err := cfg.StoreOptions(o.logger)
	if err != nil {
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, "invalid store options", err)
	}
	st, err := store.New(backend, storeOpts...)
	if err != nil {
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	o.logger.Debug("store ready", "backend", cfg.Backend, "path", cfg.Path, "indexes", st.Indexes())
	return st, nil
}

func (o *RootOptions) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		o.logger.Error("error closing store", "error", err)
	}
}
