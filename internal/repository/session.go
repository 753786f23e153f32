package repository

import (
	"context"

	"doccraft-collab/internal/domain"
)

// SessionRepository defines storage for persisted session records.
// The persisted copy is a best-effort replica of the live registry, used
// for recovery and analytics; it is never read on the serving path.
type SessionRepository interface {
	// Upsert inserts the session or, if a record for the same
	// (RoomID, UserID) pair already exists, updates it in place.
	Upsert(ctx context.Context, session *domain.Session) error

	// FindActive returns all persisted sessions marked active.
	// Used by the reconcile task to detect stale records left behind by
	// a crash.
	FindActive(ctx context.Context) ([]domain.Session, error)

	// Deactivate sets is_active = false for the matching record.
	// Returns ErrSessionNotFound if no record matches.
	Deactivate(ctx context.Context, roomID, userID string) error
}
