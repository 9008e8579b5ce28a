package storage

import (
	"context"
	"fmt"
)

// Store persists named options. Values are opaque JSON documents.
type Store interface {
	Initialize() error
	Close() error

	// GetOption returns found=false when the option does not exist.
	GetOption(ctx context.Context, name string) (value []byte, found bool, err error)
	// AddOption inserts the option only if it is absent and reports whether it did.
	AddOption(ctx context.Context, name string, value []byte) (bool, error)
	UpdateOption(ctx context.Context, name string, value []byte) error
	DeleteOption(ctx context.Context, name string) error
}

// NewStore opens the store for the configured driver.
func NewStore(driver, url string) (Store, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(url)
	case "postgres", "postgresql":
		return NewPostgresStore(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
