package model

import (
	"time"
)

// LanguageBundle holds the language-specific text of a video.
// At most one bundle exists per (VideoID, LanguageCode).
type LanguageBundle struct {
	ID           uint   `gorm:"primaryKey"`
	VideoID      uint   `gorm:"uniqueIndex:idx_bundle_video_lang,priority:1;not null"`
	LanguageCode string `gorm:"uniqueIndex:idx_bundle_video_lang,priority:2;size:16;not null"`
	Title        string `gorm:"size:500"`
	Author       string `gorm:"size:255"`
	Description  string
	Transcript   string
	CreatedAt    time.Time
}

// TableName returns the table name for LanguageBundle
func (LanguageBundle) TableName() string {
	return "language_bundles"
}
