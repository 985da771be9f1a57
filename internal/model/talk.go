package model

import (
	"time"

	"gorm.io/datatypes"
)

// Talk is the shared record for one distinct source talk.
// VideoID is assigned by the database on insert and never changes.
type Talk struct {
	VideoID         uint           `gorm:"primaryKey;column:video_id"`
	TalkID          string         `gorm:"uniqueIndex;size:191;not null"`
	StreamURL       string         `gorm:"size:1000"`
	DownloadURL     string         `gorm:"size:1000"`
	DownloadBitrate int            `gorm:"default:0"`
	Thumbnail       string         `gorm:"size:1000"`
	Duration        int            `gorm:"default:0"`
	PublishedAt     *time.Time
	RecordedOn      string         `gorm:"size:20"`
	Timing          datatypes.JSON // caption timing blob
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for Talk
func (Talk) TableName() string {
	return "videos"
}

// TalkIndex maps a source talk identifier to its video
type TalkIndex struct {
	ID        uint   `gorm:"primaryKey"`
	TalkID    string `gorm:"uniqueIndex;size:191;not null"`
	VideoID   uint   `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// TableName returns the table name for TalkIndex
func (TalkIndex) TableName() string {
	return "talk_ids"
}

// Tag is one topic attached to a video
type Tag struct {
	ID      uint   `gorm:"primaryKey"`
	VideoID uint   `gorm:"uniqueIndex:idx_tags_video_tag,priority:1;not null"`
	Tag     string `gorm:"uniqueIndex:idx_tags_video_tag,priority:2;size:100;not null"`
}

// TableName returns the table name for Tag
func (Tag) TableName() string {
	return "tags"
}
