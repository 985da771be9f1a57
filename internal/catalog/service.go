// Package catalog manages users' talk lists and assembles them for display.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/apperr"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/lang"
	"github.com/user/tedshelf-go/internal/model"
	"github.com/user/tedshelf-go/internal/store"
)

// DefaultPageSize is used when no positive page size is configured
const DefaultPageSize = 20

// Item is one row of an assembled catalog page
type Item struct {
	VideoID    uint   `json:"videoId"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Thumbnail  string `json:"thumbnail"`
	Duration   int    `json:"duration"`
	IsFavorite bool   `json:"isFavorite"`
	// LanguageAvailable is false when the talk has no text in the user's language
	LanguageAvailable bool      `json:"languageAvailable"`
	AddedAt           time.Time `json:"addedAt"`
}

// Page is one page of a user's catalog, newest first
type Page struct {
	List        []Item `json:"list"`
	TotalCount  int64  `json:"totalCount"`
	TotalPage   int    `json:"totalPage"`
	CurrentPage int    `json:"currentPage"`
	PageSize    int    `json:"pageSize"`
	// Inconsistencies lists video ids of entries whose talk is missing.
	// TotalCount still includes them.
	Inconsistencies []uint `json:"missingVideoIds,omitempty"`
}

// Err reports excluded rows as a StoreInconsistency error
func (p *Page) Err() error {
	if len(p.Inconsistencies) == 0 {
		return nil
	}
	ids := make([]string, len(p.Inconsistencies))
	for i, id := range p.Inconsistencies {
		ids[i] = fmt.Sprint(id)
	}
	return apperr.Wrap(apperr.KindStoreInconsistency,
		fmt.Errorf("catalog entries reference missing videos %s", strings.Join(ids, ",")), "")
}

// Service implements the catalog operations
type Service struct {
	store           store.Store
	resolver        *lang.Resolver
	pageSize        int
	onInconsistency func(count int)
}

// NewService creates a catalog service. onInconsistency, if set, is called
// with the number of rows excluded from an assembled page.
func NewService(st store.Store, resolver *lang.Resolver, pageSize int, onInconsistency func(count int)) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		store:           st,
		resolver:        resolver,
		pageSize:        pageSize,
		onInconsistency: onInconsistency,
	}
}

// Add puts a stored video on the user's list; adding twice is a no-op
func (s *Service) Add(ctx context.Context, userID string, videoID uint) (*model.CatalogEntry, error) {
	talks, err := s.store.GetTalksByVideoIDs(ctx, []uint{videoID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	if talks[videoID] == nil {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("video %d not found", videoID))
	}

	entry, err := s.store.AddEntry(ctx, userID, videoID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	return entry, nil
}

// SetFavorite sets the favorite flag of an entry
func (s *Service) SetFavorite(ctx context.Context, userID string, videoID uint, isFavorite bool) error {
	if err := s.store.SetFavorite(ctx, userID, videoID, isFavorite); err != nil {
		return entryError(err, videoID)
	}
	log.Debug().Str("userId", userID).Uint("videoId", videoID).Bool("isFavorite", isFavorite).Msg("Favorite updated")
	return nil
}

// Remove deletes an entry. The shared talk data stays.
func (s *Service) Remove(ctx context.Context, userID string, videoID uint) error {
	if err := s.store.RemoveEntry(ctx, userID, videoID); err != nil {
		return entryError(err, videoID)
	}
	log.Debug().Str("userId", userID).Uint("videoId", videoID).Msg("Catalog entry removed")
	return nil
}

// List returns all of the user's entries, newest first
func (s *Service) List(ctx context.Context, userID string) ([]*model.CatalogEntry, error) {
	entries, err := s.store.ListEntries(ctx, userID, 0, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	return entries, nil
}

// PageSize returns the configured page size
func (s *Service) PageSize() int {
	return s.pageSize
}

// Assemble builds one page of the user's catalog in their language. Entries
// whose talk is missing are left out and reported through Page.Err.
func (s *Service) Assemble(ctx context.Context, user ingest.User, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	code := s.resolver.Resolve(user.Language)

	total, err := s.store.CountEntries(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}

	result := &Page{
		List:        []Item{},
		TotalCount:  total,
		TotalPage:   int((total + int64(s.pageSize) - 1) / int64(s.pageSize)),
		CurrentPage: page,
		PageSize:    s.pageSize,
	}
	if total == 0 {
		return result, nil
	}

	entries, err := s.store.ListEntries(ctx, user.ID, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	if len(entries) == 0 {
		return result, nil
	}

	ids := make([]uint, len(entries))
	for i, e := range entries {
		ids[i] = e.VideoID
	}
	talks, err := s.store.GetTalksByVideoIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	bundles, err := s.store.GetBundlesByVideoIDs(ctx, ids, code)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}

	for _, e := range entries {
		talk := talks[e.VideoID]
		if talk == nil {
			log.Error().
				Str("userId", user.ID).
				Uint("videoId", e.VideoID).
				Msg("Catalog entry references a missing video")
			result.Inconsistencies = append(result.Inconsistencies, e.VideoID)
			continue
		}

		item := Item{
			VideoID:    e.VideoID,
			Thumbnail:  talk.Thumbnail,
			Duration:   talk.Duration,
			IsFavorite: e.IsFavorite,
			AddedAt:    e.CreatedAt,
		}
		if b := bundles[e.VideoID]; b != nil {
			item.Title = b.Title
			item.Author = b.Author
			item.LanguageAvailable = true
		}
		result.List = append(result.List, item)
	}

	if n := len(result.Inconsistencies); n > 0 && s.onInconsistency != nil {
		s.onInconsistency(n)
	}
	return result, nil
}

func entryError(err error, videoID uint) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err, fmt.Sprintf("video %d is not in the catalog", videoID))
	}
	return apperr.Wrap(apperr.KindStoreFailure, err, "")
}
