package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed      = errors.New("storage closed")
	ErrInvalidName = errors.New("storage: invalid snapshot name")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store keeps the latest version of each named blob.
type Store interface {
	// Load returns ok=false when the blob was never saved.
	Load(ctx context.Context, name string) (data []byte, ok bool, err error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}
