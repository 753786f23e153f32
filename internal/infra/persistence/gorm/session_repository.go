package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"doccraft-collab/internal/domain"
	"doccraft-collab/internal/repository"
)

// GormSessionRepository is the GORM implementation of SessionRepository.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a GormSessionRepository instance.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSessionRepository")
	}
	return &GormSessionRepository{db: db}
}

// Upsert inserts or updates the session keyed by (room_id, user_id).
func (r *GormSessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "display_color", "is_active", "joined_at", "updated_at",
		}),
	}).Create(session)
	if err := result.Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: upsert session (room: %s, user: %s): %w", session.RoomID, session.UserID, err)
	}
	return nil
}

// FindActive returns all persisted sessions with is_active = true.
func (r *GormSessionRepository) FindActive(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find active sessions: %w", err)
	}
	return sessions, nil
}

// Deactivate marks the matching session record inactive.
func (r *GormSessionRepository) Deactivate(ctx context.Context, roomID, userID string) error {
	result := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("is_active", false)
	if err := result.Error; err != nil {
		return fmt.Errorf("gorm: deactivate session (room: %s, user: %s): %w", roomID, userID, err)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}
