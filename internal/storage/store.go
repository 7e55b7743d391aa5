// Package storage persists evaluation results.
package storage

import (
	"context"
	"errors"

	"github.com/freshness-monitor/backend/internal/models"
)

// ErrNotFound is returned when no result has been stored yet.
var ErrNotFound = errors.New("no stored results")

// Store keeps evaluated results in arrival order.
type Store interface {
	// Append stores one result.
	Append(ctx context.Context, result *models.Result) error
	// Latest returns the most recently stored result, or ErrNotFound.
	Latest(ctx context.Context) (*models.Result, error)
	// History returns up to limit results, newest first.
	History(ctx context.Context, limit int) ([]*models.Result, error)
	// Count returns the number of stored results.
	Count(ctx context.Context) (int, error)
	Close() error
}
