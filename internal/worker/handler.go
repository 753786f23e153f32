package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"doccraft-collab/internal/registry"
	"doccraft-collab/internal/repository"
	"doccraft-collab/internal/tasks"
)

// SessionPersistHandler writes session snapshots to the store.
type SessionPersistHandler struct {
	sessionRepo repository.SessionRepository
}

// NewSessionPersistHandler creates a SessionPersistHandler instance.
func NewSessionPersistHandler(sessionRepo repository.SessionRepository) *SessionPersistHandler {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionPersistHandler")
	}
	return &SessionPersistHandler{sessionRepo: sessionRepo}
}

// ProcessTask implements the asynq.Handler interface.
func (h *SessionPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SessionPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal session persist payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"room_id":   payload.Session.RoomID,
		"user_id":   payload.Session.UserID,
		"is_active": payload.Session.IsActive,
	})

	session := payload.Session
	if err := h.sessionRepo.Upsert(ctx, &session); err != nil {
		logCtx.WithError(err).Error("Failed to upsert session record")
		return fmt.Errorf("failed to upsert session (room: %s, user: %s): %w", session.RoomID, session.UserID, err)
	}

	logCtx.Debug("Session persist task processed")
	return nil
}

// SessionReconcileHandler flips persisted sessions inactive when the live
// registry no longer knows them. After a crash the store can claim users
// are active who are long gone; this closes that gap in the background.
type SessionReconcileHandler struct {
	sessionRepo repository.SessionRepository
	registry    registry.Registry
}

// NewSessionReconcileHandler creates a SessionReconcileHandler instance.
func NewSessionReconcileHandler(sessionRepo repository.SessionRepository, reg registry.Registry) *SessionReconcileHandler {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionReconcileHandler")
	}
	if reg == nil {
		panic("Registry cannot be nil for SessionReconcileHandler")
	}
	return &SessionReconcileHandler{sessionRepo: sessionRepo, registry: reg}
}

// ProcessTask implements the asynq.Handler interface.
func (h *SessionReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	persisted, err := h.sessionRepo.FindActive(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load active persisted sessions")
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	reconciled := 0
	for _, record := range persisted {
		live, err := h.registry.ListActive(ctx, record.RoomID)
		if err != nil {
			logCtx.WithError(err).Warnf("Failed to list registry sessions for room %s, skipping", record.RoomID)
			continue
		}

		stillLive := false
		for _, s := range live {
			if s.UserID == record.UserID {
				stillLive = true
				break
			}
		}
		if stillLive {
			continue
		}

		if err := h.sessionRepo.Deactivate(ctx, record.RoomID, record.UserID); err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				continue
			}
			logCtx.WithError(err).Warnf("Failed to deactivate stale session (room: %s, user: %s)", record.RoomID, record.UserID)
			continue
		}
		reconciled++
	}

	logCtx.WithFields(logrus.Fields{
		"checked":    len(persisted),
		"reconciled": reconciled,
	}).Info("Session reconcile task processed")
	return nil
}
