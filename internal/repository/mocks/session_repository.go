package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"doccraft-collab/internal/domain"
)

// SessionRepository is a testify mock of repository.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepository) FindActive(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if sessions, ok := args.Get(0).([]domain.Session); ok {
		return sessions, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) Deactivate(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}
