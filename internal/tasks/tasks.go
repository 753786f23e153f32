package tasks

import (
	"encoding/json"

	"doccraft-collab/internal/domain"
)

// Task type constants.
const (
	// TypeSessionPersist replicates one session state change to the store.
	TypeSessionPersist = "session:persist"
	// TypeSessionReconcile marks persisted sessions inactive when they are
	// no longer live in the registry.
	TypeSessionReconcile = "session:reconcile"
)

// SessionPersistPayload carries the session snapshot to write.
type SessionPersistPayload struct {
	Session domain.Session
}

// NewSessionPersistTask builds the payload for a session persistence task.
func NewSessionPersistTask(session domain.Session) ([]byte, error) {
	payload := SessionPersistPayload{Session: session}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// NewSessionReconcileTask builds the payload for the periodic reconcile
// task. The task carries no data; it scans the store against the registry.
func NewSessionReconcileTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
