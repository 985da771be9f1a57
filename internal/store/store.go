package store

import (
	"context"
	"errors"

	"github.com/user/tedshelf-go/internal/model"
)

var (
	// ErrNotFound is returned when a catalog entry does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTalk is returned when another ingestion already stored the talk
	ErrDuplicateTalk = errors.New("talk already exists")
)

// NewTalk groups the rows written for a freshly ingested talk
type NewTalk struct {
	Talk    *model.Talk
	Tags    []string
	Bundles []*model.LanguageBundle
}

// Store defines the interface for data persistence operations
type Store interface {
	// Talk operations
	LookupVideoID(ctx context.Context, talkID string) (videoID uint, found bool, err error)
	CreateTalk(ctx context.Context, nt *NewTalk) error
	GetTalksByVideoIDs(ctx context.Context, videoIDs []uint) (map[uint]*model.Talk, error)
	GetTags(ctx context.Context, videoID uint) ([]string, error)
	CountTalks(ctx context.Context) (int64, error)

	// LanguageBundle operations
	GetBundle(ctx context.Context, videoID uint, languageCode string) (*model.LanguageBundle, error)
	GetBundlesByVideoIDs(ctx context.Context, videoIDs []uint, languageCode string) (map[uint]*model.LanguageBundle, error)

	// CatalogEntry operations
	AddEntry(ctx context.Context, userID string, videoID uint) (*model.CatalogEntry, error)
	SetFavorite(ctx context.Context, userID string, videoID uint, isFavorite bool) error
	RemoveEntry(ctx context.Context, userID string, videoID uint) error
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]*model.CatalogEntry, error)
	CountEntries(ctx context.Context, userID string) (int64, error)
	CountAllEntries(ctx context.Context) (int64, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
