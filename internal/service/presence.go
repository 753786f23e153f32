package service

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"doccraft-collab/internal/domain"
	"doccraft-collab/internal/registry"
	"doccraft-collab/internal/tasks"
)

// TaskEnqueuer is the slice of *asynq.Client the service needs. Persistence
// tasks go through it so the store write never happens on the serving path.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PresenceService is the session lifecycle manager: it keeps the live
// registry up to date and replicates every state change to the persisted
// store as a fire-and-forget background task. The registry is authoritative
// for the running process; persistence failures are logged and dropped,
// never surfaced to the caller.
type PresenceService struct {
	registry registry.Registry
	enqueuer TaskEnqueuer
}

// NewPresenceService creates a PresenceService instance.
func NewPresenceService(reg registry.Registry, enqueuer TaskEnqueuer) *PresenceService {
	if reg == nil {
		panic("Registry cannot be nil for PresenceService")
	}
	if enqueuer == nil {
		panic("TaskEnqueuer cannot be nil for PresenceService")
	}
	return &PresenceService{registry: reg, enqueuer: enqueuer}
}

// Join records the user as active in the room. Rejoining the same
// (roomID, userID) pair refreshes the existing session instead of creating
// a duplicate.
func (s *PresenceService) Join(ctx context.Context, roomID, userID, displayName, displayColor string) error {
	if roomID == "" || userID == "" {
		return ErrInvalidSession
	}
	if displayName == "" {
		displayName = userID
	}
	if displayColor == "" {
		displayColor = domain.DefaultDisplayColor
	}

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	session, err := s.registry.Join(ctx, roomID, userID, displayName, displayColor)
	if err != nil {
		logCtx.WithError(err).Error("Failed to register session in registry")
		return ErrInternalServer
	}
	logCtx.Info("Session joined")

	s.persistAsync(session)
	return nil
}

// Leave marks the session inactive. Leaving a room the user was never
// recorded in is a no-op, not an error.
func (s *PresenceService) Leave(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return ErrInvalidSession
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	session, found, err := s.registry.Leave(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to mark session inactive in registry")
		return ErrInternalServer
	}
	if !found {
		logCtx.Debug("Leave for unknown session, nothing to do")
		return nil
	}
	logCtx.Info("Session left")

	s.persistAsync(session)
	return nil
}

// OnSocketClose is Leave plus room garbage collection in the registry. The
// Connection Gateway invokes it whenever a bound socket drops.
func (s *PresenceService) OnSocketClose(ctx context.Context, roomID, userID string) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	session, found, err := s.registry.OnClose(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to close session in registry")
		return
	}
	if !found {
		logCtx.Debug("Socket close for unknown session, nothing to do")
		return
	}
	logCtx.Info("Session closed with socket")

	s.persistAsync(session)
}

// ListActive returns the active sessions in the room. Unknown rooms are
// equivalent to zero occupancy.
func (s *PresenceService) ListActive(ctx context.Context, roomID string) ([]domain.Session, error) {
	sessions, err := s.registry.ListActive(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list active sessions")
		return nil, ErrInternalServer
	}
	return sessions, nil
}

// persistAsync enqueues a best-effort store write for the session snapshot.
// The in-memory state transition is already complete when this runs; the
// outcome of the write is observed only via logs.
func (s *PresenceService) persistAsync(session domain.Session) {
	go func() {
		logCtx := logrus.WithFields(logrus.Fields{
			"room_id":   session.RoomID,
			"user_id":   session.UserID,
			"is_active": session.IsActive,
		})

		payload, err := tasks.NewSessionPersistTask(session)
		if err != nil {
			logCtx.WithError(err).Error("Failed to build session persist task payload")
			return
		}
		task := asynq.NewTask(tasks.TypeSessionPersist, payload)
		if _, err := s.enqueuer.Enqueue(task, asynq.Queue("default")); err != nil {
			logCtx.WithError(err).Error("Failed to enqueue session persist task, dropping")
			return
		}
		logCtx.Debug("Session persist task enqueued")
	}()
}
