// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// Repository defines the interface for persisting discovery sessions.
type Repository interface {
	// GetDiscoverySession retrieves a session by ID. It returns nil, nil when
	// no such session exists.
	GetDiscoverySession(ctx context.Context, id string) (*domain.DiscoverySession, error)

	// UpsertDiscoverySession creates or replaces a session.
	UpsertDiscoverySession(ctx context.Context, session *domain.DiscoverySession) error

	// DeleteDiscoverySession removes a session. Deleting a missing session is not an error.
	DeleteDiscoverySession(ctx context.Context, id string) error

	// CleanupExpiredSessions removes sessions not updated within ttl and
	// returns their IDs.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)

	// PurgeSessions removes every session and returns how many were deleted.
	PurgeSessions(ctx context.Context) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
