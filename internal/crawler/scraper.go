package crawler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Scraper runs the extractors that need further page fetches
type Scraper struct {
	fetcher     Fetcher
	concurrency int
}

// NewScraper creates a scraper issuing at most concurrency fetches at once
func NewScraper(fetcher Fetcher, concurrency int) *Scraper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scraper{
		fetcher:     fetcher,
		concurrency: concurrency,
	}
}

// Fetcher returns the underlying fetcher
func (s *Scraper) Fetcher() Fetcher {
	return s.fetcher
}

// Timing fetches the caption timing document. A missing, unreachable or
// malformed document yields nil.
func (s *Scraper) Timing(ctx context.Context, doc *Document) json.RawMessage {
	timingURL := ExtractTimingURL(doc)
	if timingURL == "" {
		return nil
	}

	body, err := s.fetcher.Fetch(ctx, timingURL)
	if err != nil {
		log.Warn().Err(err).Str("url", timingURL).Msg("Failed to fetch caption timing")
		return nil
	}
	if !json.Valid([]byte(body)) {
		log.Warn().Str("url", timingURL).Msg("Caption timing is not valid JSON")
		return nil
	}
	return json.RawMessage(body)
}

// Languages collects one bundle per advertised language accepted by allowed
// (nil accepts all). The primary document serves its own language; other
// languages are fetched from their localized pages. Languages that cannot be
// fetched or have no title are dropped. The result keeps advertised order.
func (s *Scraper) Languages(ctx context.Context, pageURL string, doc *Document, allowed func(code string) bool) ([]Bundle, error) {
	var refs []LanguageRef
	for _, ref := range ExtractLanguageRefs(doc) {
		if allowed == nil || allowed(ref.Code) {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return []Bundle{}, nil
	}

	primary := doc.Language()
	talkID, _ := ExtractTalkID(doc)
	results := make([]*Bundle, len(refs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, ref := range refs {
		if ref.Code == primary {
			if b, err := ExtractBundle(doc, ref.Code); err == nil {
				results[i] = &b
			}
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			b, err := s.fetchBundle(ctx, pageURL, talkID, ref.Code)
			if err != nil {
				log.Debug().Err(err).Str("language", ref.Code).Str("url", pageURL).Msg("Dropping language")
				return nil
			}
			results[i] = &b
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundles := make([]Bundle, 0, len(results))
	for _, b := range results {
		if b != nil {
			bundles = append(bundles, *b)
		}
	}
	return bundles, nil
}

// fetchBundle extracts code's bundle from its localized page. Pages rendered
// in another language or for another talk are rejected.
func (s *Scraper) fetchBundle(ctx context.Context, pageURL, talkID, code string) (Bundle, error) {
	localized, err := LocalizedURL(pageURL, code)
	if err != nil {
		return Bundle{}, err
	}
	html, err := s.fetcher.Fetch(ctx, localized)
	if err != nil {
		return Bundle{}, err
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return Bundle{}, err
	}
	if served := doc.Language(); served != "" && served != code {
		return Bundle{}, fmt.Errorf("%w: requested %s, served %s", ErrLanguageMismatch, code, served)
	}
	if talkID != "" {
		if got, err := ExtractTalkID(doc); err == nil && got != talkID {
			return Bundle{}, fmt.Errorf("%w: expected %s, served %s", ErrTalkMismatch, talkID, got)
		}
	}
	return ExtractBundle(doc, code)
}
