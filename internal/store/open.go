package store

import (
	"fmt"
	"path/filepath"

	"github.com/jedarden/stickycheese/internal/config"
)

// Open creates the store with the backend selected by cfg, keeping files
// under cfg.DataDir.
func Open(cfg *config.Config) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		backend = NewMemoryBackend()
	case config.BackendSQLite:
		backend, err = NewSQLiteBackend(filepath.Join(cfg.DataDir, "stickycheese.db"))
	case config.BackendJSON:
		backend, err = NewFileBackend(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	s, err := New(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}
