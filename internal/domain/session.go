package domain

import "time"

// Session represents one user's participation in one room. At most one
// record exists per (RoomID, UserID) pair; reconnecting the same user
// reuses the record instead of creating a duplicate.
type Session struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	RoomID       string    `gorm:"uniqueIndex:idx_room_user;size:191;not null" json:"roomId"`
	UserID       string    `gorm:"uniqueIndex:idx_room_user;size:191;not null" json:"userId"`
	DisplayName  string    `gorm:"size:255" json:"displayName"`
	DisplayColor string    `gorm:"size:32" json:"displayColor"`
	IsActive     bool      `gorm:"index;not null" json:"isActive"`
	JoinedAt     time.Time `json:"joinedAt"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
}

// DefaultDisplayColor is the fallback cursor/avatar color used when a
// client does not supply one.
const DefaultDisplayColor = "#888888"
