// Package access decides whether a card may open a cabinet, online through
// Authorize and offline through the signed snapshot edge devices cache.
package access

import (
	"database/sql"
	"log/slog"
	"time"
)

// DefaultAuthorizeTimeout bounds a single Authorize call. Edge devices fall
// back to their offline snapshot when the server is slower than this.
const DefaultAuthorizeTimeout = 3 * time.Second

// Engine evaluates card and cabinet access against the directory.
type Engine struct {
	DB *sql.DB

	// EdgeSecret keys the snapshot signature.
	EdgeSecret string

	// AuthorizeTimeout caps Authorize; zero uses DefaultAuthorizeTimeout.
	AuthorizeTimeout time.Duration

	Logger *slog.Logger

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// NewEngine creates an Engine with default timeout and clock.
func NewEngine(db *sql.DB, edgeSecret string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		DB:               db,
		EdgeSecret:       edgeSecret,
		AuthorizeTimeout: DefaultAuthorizeTimeout,
		Logger:           logger,
		Now:              time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
