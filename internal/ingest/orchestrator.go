// Package ingest turns a submitted talk URL into shared talk records and a
// catalog entry for the submitting user.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/apperr"
	"github.com/user/tedshelf-go/internal/cache"
	"github.com/user/tedshelf-go/internal/crawler"
	"github.com/user/tedshelf-go/internal/lang"
	"github.com/user/tedshelf-go/internal/model"
	"github.com/user/tedshelf-go/internal/store"
	"gorm.io/datatypes"
)

// User identifies who submits a talk and in which language they read
type User struct {
	ID       string
	Language string
}

// VideoSummary is the result of a successful submission
type VideoSummary struct {
	VideoID    uint   `json:"videoId"`
	TalkID     string `json:"talkId"`
	Language   string `json:"language"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Thumbnail  string `json:"thumbnail"`
	Duration   int    `json:"duration"`
	IsFavorite bool   `json:"isFavorite"`
	// Created reports whether this submission ingested the talk
	Created bool `json:"created"`
}

// Config holds orchestrator settings
type Config struct {
	// URLPattern is the regular expression accepted talk URLs must match
	URLPattern string
	// FetchTimeout bounds each fetch phase
	FetchTimeout time.Duration
}

// Orchestrator runs submissions
type Orchestrator struct {
	store        store.Store
	scraper      *crawler.Scraper
	resolver     *lang.Resolver
	cache        cache.TalkIDCache
	observer     Observer
	urlPattern   *regexp.Regexp
	fetchTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. talkCache and observer may be nil.
func NewOrchestrator(cfg Config, st store.Store, scraper *crawler.Scraper, resolver *lang.Resolver, talkCache cache.TalkIDCache, observer Observer) (*Orchestrator, error) {
	pattern, err := regexp.Compile(cfg.URLPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid talk URL pattern: %w", err)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if observer == nil {
		observer = LogObserver{}
	}
	return &Orchestrator{
		store:        st,
		scraper:      scraper,
		resolver:     resolver,
		cache:        talkCache,
		observer:     observer,
		urlPattern:   pattern,
		fetchTimeout: cfg.FetchTimeout,
	}, nil
}

// submission carries per-call state between stages
type submission struct {
	user    User
	lang    string
	url     string
	talkID  string
	videoID uint
	talk    *model.Talk
	doc     *crawler.Document
	created bool
}

// Submit ingests the talk behind pageURL if needed and adds it to the user's
// catalog. Talks already ingested are never fetched again.
func (o *Orchestrator) Submit(ctx context.Context, user User, pageURL string) (*VideoSummary, error) {
	start := time.Now()
	s := &submission{
		user: user,
		lang: o.resolver.Resolve(user.Language),
		url:  strings.TrimSpace(pageURL),
	}

	summary, err := o.submit(ctx, s)

	outcome := OutcomeExisting
	switch {
	case err != nil:
		outcome = apperr.KindOf(err).String()
	case s.created:
		outcome = OutcomeCreated
	}
	o.emit(s, StageSubmit, outcome, err, start)

	return summary, err
}

func (o *Orchestrator) submit(ctx context.Context, s *submission) (*VideoSummary, error) {
	stageStart := time.Now()
	if err := o.validate(s); err != nil {
		o.emit(s, StageValidate, apperr.KindOf(err).String(), err, stageStart)
		return nil, err
	}
	o.emit(s, StageValidate, OutcomeOK, nil, stageStart)

	stageStart = time.Now()
	found, err := o.identify(ctx, s)
	if err != nil {
		o.emit(s, StageIdentify, apperr.KindOf(err).String(), err, stageStart)
		return nil, err
	}
	o.emit(s, StageIdentify, identifyOutcome(s, found), nil, stageStart)

	if !found {
		stageStart = time.Now()
		nt, err := o.extract(ctx, s)
		if err != nil {
			o.emit(s, StageExtract, apperr.KindOf(err).String(), err, stageStart)
			return nil, err
		}
		o.emit(s, StageExtract, OutcomeOK, nil, stageStart)

		stageStart = time.Now()
		if err := o.persist(ctx, s, nt); err != nil {
			o.emit(s, StagePersist, apperr.KindOf(err).String(), err, stageStart)
			return nil, err
		}
		outcome := OutcomeExisting
		if s.created {
			outcome = OutcomeCreated
		}
		o.emit(s, StagePersist, outcome, nil, stageStart)
	}

	stageStart = time.Now()
	summary, err := o.link(ctx, s)
	if err != nil {
		o.emit(s, StageLink, apperr.KindOf(err).String(), err, stageStart)
		return nil, err
	}
	o.emit(s, StageLink, OutcomeOK, nil, stageStart)
	return summary, nil
}

func identifyOutcome(s *submission, found bool) string {
	switch {
	case found && s.doc == nil:
		return OutcomeCacheHit
	case found:
		return OutcomeExisting
	default:
		return OutcomeOK
	}
}

func (o *Orchestrator) validate(s *submission) error {
	if strings.TrimSpace(s.user.ID) == "" {
		return apperr.New(apperr.KindInvalidInput, "user id is required")
	}
	if s.url == "" {
		return apperr.New(apperr.KindInvalidInput, "talk URL is required")
	}
	if !o.urlPattern.MatchString(s.url) {
		return apperr.New(apperr.KindInvalidInput, "not a supported talk URL")
	}
	return nil
}

// identify resolves the talk id and reports whether the talk is already
// stored. The page is fetched unless a cached talk id hits the index.
func (o *Orchestrator) identify(ctx context.Context, s *submission) (bool, error) {
	if o.cache != nil {
		if talkID, ok := o.cache.Get(ctx, s.url); ok {
			videoID, found, err := o.store.LookupVideoID(ctx, talkID)
			if err != nil {
				return false, apperr.Wrap(apperr.KindStoreFailure, err, "")
			}
			if found {
				s.talkID, s.videoID = talkID, videoID
				return true, nil
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	html, err := o.scraper.Fetcher().Fetch(fetchCtx, s.url)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "")
	}
	doc, err := crawler.ParseDocument(html)
	if err != nil {
		return false, apperr.Wrap(apperr.KindParseFailure, err, "")
	}
	talkID, err := crawler.ExtractTalkID(doc)
	if err != nil {
		return false, apperr.Wrap(apperr.KindParseFailure, err, "")
	}
	s.doc, s.talkID = doc, talkID

	if o.cache != nil {
		o.cache.Set(ctx, s.url, talkID)
	}

	videoID, found, err := o.store.LookupVideoID(ctx, talkID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	s.videoID = videoID
	return found, nil
}

// extract runs the remaining extractors on the fetched page
func (o *Orchestrator) extract(ctx context.Context, s *submission) (*store.NewTalk, error) {
	stream := crawler.ExtractVideoStream(s.doc)
	if stream.IsEmpty() {
		return nil, apperr.New(apperr.KindNoStreamAvailable, "")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	bundles, err := o.scraper.Languages(fetchCtx, s.url, s.doc, o.resolver.IsSupported)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "")
	}
	if len(bundles) == 0 {
		return nil, apperr.New(apperr.KindNoLanguageData, "")
	}

	meta := crawler.ExtractMetadata(s.doc)
	talk := &model.Talk{
		TalkID:          s.talkID,
		StreamURL:       stream.HLS,
		DownloadURL:     stream.DownloadURL,
		DownloadBitrate: stream.DownloadBitrate,
		Thumbnail:       meta.Thumbnail,
		Duration:        meta.Duration,
		PublishedAt:     meta.PublishedAt,
		RecordedOn:      meta.RecordedOn,
	}
	if timing := o.scraper.Timing(fetchCtx, s.doc); timing != nil {
		talk.Timing = datatypes.JSON(timing)
	}

	nt := &store.NewTalk{
		Talk: talk,
		Tags: crawler.ExtractTags(s.doc),
	}
	for _, b := range bundles {
		nt.Bundles = append(nt.Bundles, &model.LanguageBundle{
			LanguageCode: b.LanguageCode,
			Title:        b.Title,
			Author:       b.Author,
			Description:  b.Description,
			Transcript:   b.Transcript,
		})
	}
	return nt, nil
}

// persist writes a new talk. Losing a race to a concurrent submission of the
// same talk continues with the winner's video.
func (o *Orchestrator) persist(ctx context.Context, s *submission, nt *store.NewTalk) error {
	err := o.store.CreateTalk(ctx, nt)
	if err == nil {
		s.videoID, s.talk, s.created = nt.Talk.VideoID, nt.Talk, true
		log.Info().
			Str("talkId", s.talkID).
			Uint("videoId", s.videoID).
			Int("languages", len(nt.Bundles)).
			Int("tags", len(nt.Tags)).
			Msg("Talk ingested")
		return nil
	}
	if !errors.Is(err, store.ErrDuplicateTalk) {
		return apperr.Wrap(apperr.KindStoreFailure, err, "")
	}

	videoID, found, lookupErr := o.store.LookupVideoID(ctx, s.talkID)
	if lookupErr != nil {
		return apperr.Wrap(apperr.KindStoreFailure, lookupErr, "")
	}
	if !found {
		return apperr.Wrap(apperr.KindStoreFailure, err, "")
	}
	log.Debug().Str("talkId", s.talkID).Uint("videoId", videoID).Msg("Talk ingested concurrently")
	s.videoID = videoID
	return nil
}

// link adds the catalog entry and builds the summary in the user's language.
// A cancelled context reports Incomplete only when this submission stored the
// talk; otherwise the context error is returned as is.
func (o *Orchestrator) link(ctx context.Context, s *submission) (*VideoSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, o.cancelled(s, err)
	}

	talk := s.talk
	if talk == nil {
		talks, err := o.store.GetTalksByVideoIDs(ctx, []uint{s.videoID})
		if err != nil {
			return nil, o.afterPersist(ctx, s, err)
		}
		talk = talks[s.videoID]
		if talk == nil {
			log.Error().Str("talkId", s.talkID).Uint("videoId", s.videoID).Msg("Talk index points at a missing talk")
			return nil, apperr.New(apperr.KindStoreInconsistency, "")
		}
	}

	bundle, err := o.store.GetBundle(ctx, s.videoID, s.lang)
	if err != nil {
		return nil, o.afterPersist(ctx, s, err)
	}
	if bundle == nil {
		return nil, apperr.New(apperr.KindUnsupportedLanguage,
			fmt.Sprintf("talk is not available in language %q", s.lang))
	}

	entry, err := o.store.AddEntry(ctx, s.user.ID, s.videoID)
	if err != nil {
		return nil, o.afterPersist(ctx, s, err)
	}

	return &VideoSummary{
		VideoID:    s.videoID,
		TalkID:     s.talkID,
		Language:   bundle.LanguageCode,
		Title:      bundle.Title,
		Author:     bundle.Author,
		Thumbnail:  talk.Thumbnail,
		Duration:   talk.Duration,
		IsFavorite: entry.IsFavorite,
		Created:    s.created,
	}, nil
}

func (o *Orchestrator) afterPersist(ctx context.Context, s *submission, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !s.created {
			return ctxErr
		}
		return o.incomplete(err)
	}
	return apperr.Wrap(apperr.KindStoreFailure, err, "")
}

func (o *Orchestrator) cancelled(s *submission, err error) error {
	if !s.created {
		return err
	}
	return o.incomplete(err)
}

func (o *Orchestrator) incomplete(err error) error {
	return apperr.Wrap(apperr.KindIncomplete, err, "talk was stored but not added to the catalog; submit it again")
}

func (o *Orchestrator) emit(s *submission, stage Stage, outcome string, err error, start time.Time) {
	o.observer.Observe(Event{
		Stage:    stage,
		UserID:   s.user.ID,
		URL:      s.url,
		TalkID:   s.talkID,
		VideoID:  s.videoID,
		Outcome:  outcome,
		Err:      err,
		Duration: time.Since(start),
	})
}
