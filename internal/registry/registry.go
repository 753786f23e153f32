package registry

import (
	"context"
	"sync"
	"time"

	"doccraft-collab/internal/domain"
)

// Registry is the authoritative view of "who is in which room". The default
// implementation is in-memory and scoped to a single process; a Redis-backed
// implementation exists under internal/infra/state/redis for deployments that
// need presence visible across instances.
type Registry interface {
	// Join records the user as active in the room. If a session for the
	// (roomID, userID) pair already exists it is updated in place:
	// IsActive is set true and JoinedAt refreshed. Returns a snapshot of
	// the resulting session.
	Join(ctx context.Context, roomID, userID, displayName, displayColor string) (domain.Session, error)

	// Leave marks the matching session inactive. Unknown (roomID, userID)
	// pairs are a no-op; found reports whether a session was updated.
	Leave(ctx context.Context, roomID, userID string) (session domain.Session, found bool, err error)

	// OnClose is Leave plus room garbage collection: once no session in
	// the room remains active, the room entry is deleted entirely.
	OnClose(ctx context.Context, roomID, userID string) (session domain.Session, found bool, err error)

	// ListActive returns the sessions in the room with IsActive = true,
	// in insertion order. An unknown room yields an empty slice.
	ListActive(ctx context.Context, roomID string) ([]domain.Session, error)

	// HasRoom reports whether the registry still holds an entry for the
	// room. Inspection hook for tests and the reconcile task.
	HasRoom(ctx context.Context, roomID string) (bool, error)
}

// MemoryRegistry keeps room membership in an in-process map. All mutations
// are single bounded critical sections under one lock, so callers observe
// each join/leave as atomic.
type MemoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string][]*domain.Session

	// now is swappable in tests.
	now func() time.Time
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms: make(map[string][]*domain.Session),
		now:   time.Now,
	}
}

func (r *MemoryRegistry) Join(_ context.Context, roomID, userID, displayName, displayColor string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.rooms[roomID] {
		if s.UserID == userID {
			// Reconnect: reuse the record instead of appending a duplicate.
			s.DisplayName = displayName
			s.DisplayColor = displayColor
			s.IsActive = true
			s.JoinedAt = r.now()
			return *s, nil
		}
	}

	session := &domain.Session{
		RoomID:       roomID,
		UserID:       userID,
		DisplayName:  displayName,
		DisplayColor: displayColor,
		IsActive:     true,
		JoinedAt:     r.now(),
	}
	r.rooms[roomID] = append(r.rooms[roomID], session)
	return *session, nil
}

func (r *MemoryRegistry) Leave(_ context.Context, roomID, userID string) (domain.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, found := r.markInactive(roomID, userID)
	return session, found, nil
}

func (r *MemoryRegistry) OnClose(_ context.Context, roomID, userID string) (domain.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, found := r.markInactive(roomID, userID)

	// Drop the whole room entry once nobody in it is active, so memory
	// stays bounded over the server's lifetime.
	active := false
	for _, s := range r.rooms[roomID] {
		if s.IsActive {
			active = true
			break
		}
	}
	if !active {
		delete(r.rooms, roomID)
	}
	return session, found, nil
}

func (r *MemoryRegistry) ListActive(_ context.Context, roomID string) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]domain.Session, 0, len(r.rooms[roomID]))
	for _, s := range r.rooms[roomID] {
		if s.IsActive {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func (r *MemoryRegistry) HasRoom(_ context.Context, roomID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok, nil
}

// markInactive flips the session inactive if present. Caller must hold mu.
func (r *MemoryRegistry) markInactive(roomID, userID string) (domain.Session, bool) {
	for _, s := range r.rooms[roomID] {
		if s.UserID == userID {
			s.IsActive = false
			return *s, true
		}
	}
	return domain.Session{}, false
}
