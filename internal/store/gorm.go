package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/tedshelf-go/internal/config"
	"github.com/user/tedshelf-go/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements Store on top of gorm (mysql, postgres or sqlite)
type GormStore struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema
func Open(cfg *config.DBConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool. sqlite serialises writers on one connection
	maxConns := cfg.MaxConns
	if maxConns <= 0 || cfg.Driver == "sqlite" {
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(max(1, maxConns/2))
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Talk{},
		&model.TalkIndex{},
		&model.Tag{},
		&model.LanguageBundle{},
		&model.CatalogEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &GormStore{db: db}, nil
}

// LookupVideoID resolves a talk identifier through the talk index
func (s *GormStore) LookupVideoID(ctx context.Context, talkID string) (uint, bool, error) {
	var idx model.TalkIndex
	result := s.db.WithContext(ctx).Where("talk_id = ?", talkID).First(&idx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up talk id: %w", result.Error)
	}
	return idx.VideoID, true, nil
}

// CreateTalk writes the talk, its tags, its index row and its language
// bundles in one transaction. A unique conflict on the talk id yields
// ErrDuplicateTalk and leaves nothing behind.
func (s *GormStore) CreateTalk(ctx context.Context, nt *NewTalk) error {
	if nt == nil || nt.Talk == nil {
		return fmt.Errorf("talk is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(nt.Talk).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateTalk
			}
			return fmt.Errorf("create talk: %w", err)
		}
		videoID := nt.Talk.VideoID

		if len(nt.Tags) > 0 {
			tags := make([]model.Tag, 0, len(nt.Tags))
			for _, t := range nt.Tags {
				tags = append(tags, model.Tag{VideoID: videoID, Tag: t})
			}
			if err := tx.Create(&tags).Error; err != nil {
				return fmt.Errorf("create tags: %w", err)
			}
		}

		if err := tx.Create(&model.TalkIndex{TalkID: nt.Talk.TalkID, VideoID: videoID}).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateTalk
			}
			return fmt.Errorf("create talk index: %w", err)
		}

		if len(nt.Bundles) > 0 {
			for _, b := range nt.Bundles {
				b.VideoID = videoID
			}
			if err := tx.CreateInBatches(nt.Bundles, 50).Error; err != nil {
				return fmt.Errorf("create language bundles: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back, the assigned id is gone
		nt.Talk.VideoID = 0
		if errors.Is(err, ErrDuplicateTalk) {
			return fmt.Errorf("%w: %s", ErrDuplicateTalk, nt.Talk.TalkID)
		}
		return fmt.Errorf("failed to create talk: %w", err)
	}
	return nil
}

// GetTalksByVideoIDs loads talks keyed by video id; missing ids are absent from the map
func (s *GormStore) GetTalksByVideoIDs(ctx context.Context, videoIDs []uint) (map[uint]*model.Talk, error) {
	out := make(map[uint]*model.Talk, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}

	var talks []*model.Talk
	result := s.db.WithContext(ctx).Where("video_id IN ?", videoIDs).Find(&talks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get talks: %w", result.Error)
	}
	for _, t := range talks {
		out[t.VideoID] = t
	}
	return out, nil
}

// GetTags returns the tags of a video in insertion order
func (s *GormStore) GetTags(ctx context.Context, videoID uint) ([]string, error) {
	var tags []string
	result := s.db.WithContext(ctx).
		Model(&model.Tag{}).
		Where("video_id = ?", videoID).
		Order("id ASC").
		Pluck("tag", &tags)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get tags: %w", result.Error)
	}
	return tags, nil
}

// CountTalks returns the total count of talks
func (s *GormStore) CountTalks(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.Talk{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count talks: %w", result.Error)
	}
	return count, nil
}

// GetBundle returns the bundle for a video in one language, nil if absent
func (s *GormStore) GetBundle(ctx context.Context, videoID uint, languageCode string) (*model.LanguageBundle, error) {
	var bundle model.LanguageBundle
	result := s.db.WithContext(ctx).
		Where("video_id = ? AND language_code = ?", videoID, languageCode).
		First(&bundle)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get language bundle: %w", result.Error)
	}
	return &bundle, nil
}

// GetBundlesByVideoIDs loads one language's bundles keyed by video id
func (s *GormStore) GetBundlesByVideoIDs(ctx context.Context, videoIDs []uint, languageCode string) (map[uint]*model.LanguageBundle, error) {
	out := make(map[uint]*model.LanguageBundle, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}

	var bundles []*model.LanguageBundle
	result := s.db.WithContext(ctx).
		Where("video_id IN ? AND language_code = ?", videoIDs, languageCode).
		Find(&bundles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get language bundles: %w", result.Error)
	}
	for _, b := range bundles {
		out[b.VideoID] = b
	}
	return out, nil
}

// AddEntry links a video to a user's catalog. Adding an existing pair is a no-op
func (s *GormStore) AddEntry(ctx context.Context, userID string, videoID uint) (*model.CatalogEntry, error) {
	entry := &model.CatalogEntry{UserID: userID, VideoID: videoID}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to add catalog entry: %w", result.Error)
	}

	var stored model.CatalogEntry
	result = s.db.WithContext(ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		First(&stored)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read catalog entry: %w", result.Error)
	}
	return &stored, nil
}

// SetFavorite updates the favorite flag of an existing entry
func (s *GormStore) SetFavorite(ctx context.Context, userID string, videoID uint, isFavorite bool) error {
	result := s.db.WithContext(ctx).
		Model(&model.CatalogEntry{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Update("is_favorite", isFavorite)
	if result.Error != nil {
		return fmt.Errorf("failed to update favorite: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// mysql reports zero affected rows when nothing changed
	exists, err := s.entryExists(ctx, userID, videoID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// RemoveEntry deletes an entry from a user's catalog
func (s *GormStore) RemoveEntry(ctx context.Context, userID string, videoID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Delete(&model.CatalogEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove catalog entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEntries returns a user's entries, most recently added first.
// A non-positive limit returns every entry.
func (s *GormStore) ListEntries(ctx context.Context, userID string, limit, offset int) ([]*model.CatalogEntry, error) {
	var entries []*model.CatalogEntry
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

// CountEntries returns the number of entries in a user's catalog
func (s *GormStore) CountEntries(ctx context.Context, userID string) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.CatalogEntry{}).Where("user_id = ?", userID).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count catalog entries: %w", result.Error)
	}
	return count, nil
}

// CountAllEntries returns the number of catalog entries across users
func (s *GormStore) CountAllEntries(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.CatalogEntry{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count all catalog entries: %w", result.Error)
	}
	return count, nil
}

func (s *GormStore) entryExists(ctx context.Context, userID string, videoID uint) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&model.CatalogEntry{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check catalog entry: %w", result.Error)
	}
	return count > 0, nil
}

// isDuplicateKey detects unique violations, also for drivers without error translation
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// Ping checks database connectivity
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying gorm.DB instance (for testing purposes)
func (s *GormStore) DB() *gorm.DB {
	return s.db
}
