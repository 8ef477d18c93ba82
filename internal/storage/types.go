package storage

import (
	"context"
	"errors"
	"time"

	"mlsub/internal/article"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "json" (alias "file"): JSON array file at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists one article set.
type Store interface {
	// Load returns the saved articles. A store that was never written
	// returns an empty slice and no error.
	Load(ctx context.Context) ([]article.Article, error)
	// Save replaces the saved articles.
	Save(ctx context.Context, articles []article.Article) error
	Close() error
}
