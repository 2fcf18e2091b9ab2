// Package storage defines the durable store behind the session registry.
package storage

import (
	"context"

	"github.com/versefold/corpse/internal/game"
)

// Store persists session snapshots. SaveSession overwrites the previous
// snapshot for the same id; LoadActive returns every non-terminal session
// so the registry can be rebuilt after a restart.
type Store interface {
	SaveSession(ctx context.Context, snap game.Snapshot) error
	LoadActive(ctx context.Context) ([]game.Snapshot, error)
	LoadSession(ctx context.Context, id string) (game.Snapshot, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
