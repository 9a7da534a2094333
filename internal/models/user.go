package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account that authors posts, reposts, favorites and follows.
type User struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string         `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string         `gorm:"not null" json:"display_name"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Display returns the name shown on feed rows.
func (u User) Display() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	FollowerID  string    `gorm:"not null;uniqueIndex:idx_follow_pair" json:"follower_id"`
	FollowingID string    `gorm:"not null;uniqueIndex:idx_follow_pair;index" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserReputation is the last persisted reputation of a user. It is advisory:
// live scores are always recomputed from counters.
type UserReputation struct {
	UserID    string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	Score     int       `gorm:"not null" json:"score"`
	Bucket    string    `gorm:"not null" json:"bucket"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	return nil
}

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}

func generateUUID() string {
	return uuid.New().String()
}
