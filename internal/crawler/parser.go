package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/lang"
)

// nextDataSelector locates the page data script of a talk page
const nextDataSelector = "script#__NEXT_DATA__"

var (
	// ErrNoTalkID is returned when a page carries no talk identifier
	ErrNoTalkID = errors.New("talk id not found in page")
	// ErrNoTitle is returned when a page has no title for the requested language
	ErrNoTitle = errors.New("title not found in page")
	// ErrLanguageMismatch is returned when a localized page is served in another language
	ErrLanguageMismatch = errors.New("page served in another language")
	// ErrTalkMismatch is returned when a localized page belongs to another talk
	ErrTalkMismatch = errors.New("page belongs to another talk")
)

type nextData struct {
	Props struct {
		PageProps struct {
			VideoData      *videoData      `json:"videoData"`
			TranscriptData *transcriptData `json:"transcriptData"`
		} `json:"pageProps"`
	} `json:"props"`
}

type videoData struct {
	ID                   string `json:"id"`
	Slug                 string `json:"slug"`
	Title                string `json:"title"`
	PresenterDisplayName string `json:"presenterDisplayName"`
	Description          string `json:"description"`
	Duration             int    `json:"duration"`
	PublishedAt          string `json:"publishedAt"`
	RecordedOn           string `json:"recordedOn"`
	Language             string `json:"language"`
	Topics               struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"topics"`
	// PlayerData is itself a JSON document encoded as a string
	PlayerData string `json:"playerData"`
}

type playerData struct {
	Resources struct {
		HLS *struct {
			Stream   string `json:"stream"`
			Metadata string `json:"metadata"`
		} `json:"hls"`
		H264 []struct {
			Bitrate int    `json:"bitrate"`
			File    string `json:"file"`
		} `json:"h264"`
	} `json:"resources"`
	Thumb     string `json:"thumb"`
	Languages []struct {
		LanguageCode string `json:"languageCode"`
		LanguageName string `json:"languageName"`
	} `json:"languages"`
}

type transcriptData struct {
	Translation *struct {
		Paragraphs []struct {
			Cues []struct {
				Text string `json:"text"`
			} `json:"cues"`
		} `json:"paragraphs"`
	} `json:"translation"`
}

// Document is a parsed talk page. Missing sections leave the matching
// extractors with empty results.
type Document struct {
	html       *goquery.Document
	video      *videoData
	player     *playerData
	transcript *transcriptData
}

// StreamDescriptor locates the playable media of a talk
type StreamDescriptor struct {
	HLS             string
	DownloadURL     string
	DownloadBitrate int
}

// IsEmpty reports whether the page offered no playable media
func (s StreamDescriptor) IsEmpty() bool {
	return s.HLS == "" && s.DownloadURL == ""
}

// Metadata holds the language-independent talk details
type Metadata struct {
	Thumbnail   string
	Duration    int
	PublishedAt *time.Time
	RecordedOn  string
}

// LanguageRef is a language advertised by a talk page
type LanguageRef struct {
	Code string
	Name string
}

// Bundle is the text of a talk in one language
type Bundle struct {
	LanguageCode string
	Title        string
	Author       string
	Description  string
	Transcript   string
}

// ParseDocument parses a talk page
func ParseDocument(html string) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc := &Document{html: gq}

	raw := strings.TrimSpace(gq.Find(nextDataSelector).First().Text())
	if raw == "" {
		log.Debug().Int("htmlLen", len(html)).Msg("Page has no data script")
		return doc, nil
	}

	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		log.Debug().Err(err).Msg("Failed to decode page data")
		return doc, nil
	}
	doc.video = data.Props.PageProps.VideoData
	doc.transcript = data.Props.PageProps.TranscriptData

	if doc.video != nil && doc.video.PlayerData != "" {
		var player playerData
		if err := json.Unmarshal([]byte(doc.video.PlayerData), &player); err != nil {
			log.Debug().Err(err).Str("slug", doc.video.Slug).Msg("Failed to decode player data")
		} else {
			doc.player = &player
		}
	}

	return doc, nil
}

// Language returns the normalised language the page is rendered in
func (d *Document) Language() string {
	if d.video == nil {
		return ""
	}
	return lang.Normalize(d.video.Language)
}

// ExtractTalkID returns the canonical talk identifier
func ExtractTalkID(doc *Document) (string, error) {
	if doc == nil || doc.video == nil {
		return "", ErrNoTalkID
	}
	id := strings.ToLower(strings.TrimSpace(doc.video.Slug))
	if id == "" {
		return "", ErrNoTalkID
	}
	return id, nil
}

// ExtractVideoStream returns the HLS stream and the highest bitrate download
func ExtractVideoStream(doc *Document) StreamDescriptor {
	var s StreamDescriptor
	if doc == nil || doc.player == nil {
		return s
	}

	res := doc.player.Resources
	if res.HLS != nil {
		s.HLS = strings.TrimSpace(res.HLS.Stream)
	}
	for _, f := range res.H264 {
		file := strings.TrimSpace(f.File)
		if file == "" {
			continue
		}
		if s.DownloadURL == "" || f.Bitrate > s.DownloadBitrate {
			s.DownloadURL = file
			s.DownloadBitrate = f.Bitrate
		}
	}
	return s
}

// ExtractMetadata returns thumbnail, duration and dates
func ExtractMetadata(doc *Document) Metadata {
	var m Metadata
	if doc == nil {
		return m
	}

	if doc.player != nil {
		m.Thumbnail = strings.TrimSpace(doc.player.Thumb)
	}
	if m.Thumbnail == "" && doc.html != nil {
		if content, ok := doc.html.Find("meta[property='og:image']").First().Attr("content"); ok {
			m.Thumbnail = strings.TrimSpace(content)
		}
	}

	if doc.video == nil {
		return m
	}
	if doc.video.Duration > 0 {
		m.Duration = doc.video.Duration
	}
	if doc.video.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, doc.video.PublishedAt); err == nil {
			t = t.UTC()
			m.PublishedAt = &t
		}
	}
	m.RecordedOn = strings.TrimSpace(doc.video.RecordedOn)
	return m
}

// ExtractTimingURL returns the location of the caption timing document
func ExtractTimingURL(doc *Document) string {
	if doc == nil || doc.player == nil || doc.player.Resources.HLS == nil {
		return ""
	}
	return strings.TrimSpace(doc.player.Resources.HLS.Metadata)
}

// ExtractTags returns the talk topics in page order
func ExtractTags(doc *Document) []string {
	if doc == nil || doc.video == nil {
		return []string{}
	}

	names := make([]string, 0, len(doc.video.Topics.Nodes))
	for _, n := range doc.video.Topics.Nodes {
		names = append(names, n.Name)
	}
	return NormalizeTags(names)
}

// NormalizeTags trims tags and drops empty and case-insensitive duplicates,
// keeping the first spelling
func NormalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, t)
	}
	return result
}

// ExtractLanguageRefs returns the languages the page advertises. The page's
// own language comes first when the player does not list it.
func ExtractLanguageRefs(doc *Document) []LanguageRef {
	if doc == nil {
		return nil
	}

	var refs []LanguageRef
	seen := make(map[string]bool)
	add := func(code, name string) {
		code = lang.Normalize(code)
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		refs = append(refs, LanguageRef{Code: code, Name: strings.TrimSpace(name)})
	}

	if doc.player != nil {
		for _, l := range doc.player.Languages {
			add(l.LanguageCode, l.LanguageName)
		}
	}
	if own := doc.Language(); own != "" && !seen[own] {
		refs = append([]LanguageRef{{Code: own}}, refs...)
	}
	return refs
}

// ExtractBundle returns the page text for the given language. The page
// must have a title.
func ExtractBundle(doc *Document, code string) (Bundle, error) {
	b := Bundle{LanguageCode: lang.Normalize(code)}
	if doc == nil || doc.video == nil {
		return b, ErrNoTitle
	}

	b.Title = strings.TrimSpace(doc.video.Title)
	if b.Title == "" {
		return b, ErrNoTitle
	}
	b.Author = strings.TrimSpace(doc.video.PresenterDisplayName)
	b.Description = strings.TrimSpace(doc.video.Description)
	b.Transcript = extractTranscript(doc)
	return b, nil
}

// extractTranscript joins cues with spaces and paragraphs with blank lines
func extractTranscript(doc *Document) string {
	if doc.transcript == nil || doc.transcript.Translation == nil {
		return ""
	}

	var paragraphs []string
	for _, p := range doc.transcript.Translation.Paragraphs {
		var cues []string
		for _, c := range p.Cues {
			text := strings.Join(strings.Fields(c.Text), " ")
			if text != "" {
				cues = append(cues, text)
			}
		}
		if len(cues) > 0 {
			paragraphs = append(paragraphs, strings.Join(cues, " "))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// LocalizedURL returns the talk page URL for the given language
func LocalizedURL(pageURL, code string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid talk URL: %w", err)
	}
	q := u.Query()
	q.Set("language", code)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}
