package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is an original authored item. The engagement counters are
// denormalized and maintained by the write path.
type Post struct {
	ID            string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string         `gorm:"type:uuid;not null;index" json:"user_id"`
	User          User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	FavoriteCount int            `gorm:"default:0" json:"favorite_count"`
	RepostCount   int            `gorm:"default:0" json:"repost_count"`
	ReplyCount    int            `gorm:"default:0" json:"reply_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Repost is a user re-sharing a post. PostID may point at a post that was
// deleted after the repost was recorded.
type Repost struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_repost_user_post" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PostID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_repost_user_post;index" json:"post_id"`
	Post      Post           `gorm:"foreignKey:PostID" json:"post,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Favorite is a user marking a post.
type Favorite struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_post" json:"user_id"`
	PostID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (r *Repost) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&Repost{},
		&Favorite{},
		&Follow{},
		&UserReputation{},
	}
}
