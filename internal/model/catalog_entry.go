package model

import (
	"time"
)

// CatalogEntry is a user's reference to a video
type CatalogEntry struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"uniqueIndex:idx_my_videos_user_video,priority:1;size:64;not null"`
	VideoID    uint      `gorm:"uniqueIndex:idx_my_videos_user_video,priority:2;not null"`
	IsFavorite bool      `gorm:"default:false"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// TableName returns the table name for CatalogEntry
func (CatalogEntry) TableName() string {
	return "my_videos"
}
