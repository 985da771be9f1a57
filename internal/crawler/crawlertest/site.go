// Package crawlertest serves fake talk pages over httptest.
package crawlertest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Language is one rendition of a talk page
type Language struct {
	Code        string
	Name        string
	Title       string
	Author      string
	Description string
	Paragraphs  [][]string
}

// Rendition is a downloadable file
type Rendition struct {
	Bitrate int
	File    string
}

// Talk describes a talk served by the site. The first language is the one
// served without a language parameter.
type Talk struct {
	Slug        string
	Languages   []Language
	Topics      []string
	NoStream    bool
	H264        []Rendition
	Thumb       string
	OGImage     string
	Duration    int
	PublishedAt string
	RecordedOn  string
	// TimingBody is served as the caption timing document when set
	TimingBody string
	// Unadvertised languages are served but not listed by the player
	Unadvertised []string
	// Ignored languages are listed by the player, but their localized
	// requests get the default page
	Ignored []string
}

// Site is an httptest server hosting talk pages
type Site struct {
	*httptest.Server

	mu     sync.Mutex
	talks  map[string]*Talk
	hits   map[string]int
	broken map[string]bool
}

// NewSite starts a site closed at test cleanup
func NewSite(tb testing.TB) *Site {
	tb.Helper()

	s := &Site{
		talks:  make(map[string]*Talk),
		hits:   make(map[string]int),
		broken: make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	tb.Cleanup(s.Close)
	return s
}

// Add registers a talk
func (s *Site) Add(t Talk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.talks[t.Slug] = &t
}

// Break makes requests for path fail with 500
func (s *Site) Break(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[path] = true
}

// TalkURL returns the page URL of a talk
func (s *Site) TalkURL(slug string) string {
	return s.URL + "/talks/" + slug
}

// TimingURL returns the caption timing URL of a talk
func (s *Site) TimingURL(slug string) string {
	return s.URL + "/timing/" + slug + ".json"
}

// Hits returns how often a path (with query) was requested
func (s *Site) Hits(pathAndQuery string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pathAndQuery]
}

// TotalHits returns the number of requests served
func (s *Site) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.RequestURI()]++
	broken := s.broken[r.URL.Path] || s.broken[r.URL.RequestURI()]
	s.mu.Unlock()

	if broken {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/talks/"):
		slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/talks/"), "/")
		t := s.talk(slug)
		if t == nil {
			http.NotFound(w, r)
			return
		}
		page, ok := t.Page(s.URL, r.URL.Query().Get("language"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)

	case strings.HasPrefix(r.URL.Path, "/timing/"):
		slug := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/timing/"), ".json")
		t := s.talk(slug)
		if t == nil || t.TimingBody == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, t.TimingBody)

	default:
		http.NotFound(w, r)
	}
}

func (s *Site) talk(slug string) *Talk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.talks[slug]
}

// Page renders the talk page in the given language; an empty code renders
// the first language. baseURL prefixes media and timing locations.
func (t *Talk) Page(baseURL, code string) (string, bool) {
	if len(t.Languages) == 0 {
		return "", false
	}

	current := t.Languages[0]
	if code != "" {
		found := false
		for _, l := range t.Languages {
			if strings.EqualFold(l.Code, code) {
				current, found = l, true
				break
			}
		}
		if !found && !containsFold(t.Ignored, code) {
			return "", false
		}
	}

	type langRef struct {
		LanguageCode string `json:"languageCode"`
		LanguageName string `json:"languageName"`
	}
	resources := map[string]any{}
	if !t.NoStream {
		hls := map[string]string{"stream": baseURL + "/hls/" + t.Slug + ".m3u8"}
		if t.TimingBody != "" {
			hls["metadata"] = baseURL + "/timing/" + t.Slug + ".json"
		}
		resources["hls"] = hls
	}
	if len(t.H264) > 0 {
		var files []map[string]any
		for _, r := range t.H264 {
			files = append(files, map[string]any{"bitrate": r.Bitrate, "file": r.File})
		}
		resources["h264"] = files
	}

	var langs []langRef
	skip := make(map[string]bool)
	for _, c := range t.Unadvertised {
		skip[c] = true
	}
	for _, l := range t.Languages {
		if !skip[l.Code] {
			langs = append(langs, langRef{LanguageCode: l.Code, LanguageName: l.Name})
		}
	}
	for _, c := range t.Ignored {
		langs = append(langs, langRef{LanguageCode: c, LanguageName: c})
	}

	player, _ := json.Marshal(map[string]any{
		"resources": resources,
		"thumb":     t.Thumb,
		"languages": langs,
	})

	var topics []map[string]string
	for _, name := range t.Topics {
		topics = append(topics, map[string]string{"name": name})
	}

	var paragraphs []map[string]any
	for _, p := range current.Paragraphs {
		var cues []map[string]string
		for _, c := range p {
			cues = append(cues, map[string]string{"text": c})
		}
		paragraphs = append(paragraphs, map[string]any{"cues": cues})
	}

	data, _ := json.Marshal(map[string]any{
		"props": map[string]any{
			"pageProps": map[string]any{
				"videoData": map[string]any{
					"id":                   "1" + t.Slug,
					"slug":                 t.Slug,
					"title":                current.Title,
					"presenterDisplayName": current.Author,
					"description":          current.Description,
					"duration":             t.Duration,
					"publishedAt":          t.PublishedAt,
					"recordedOn":           t.RecordedOn,
					"language":             current.Code,
					"topics":               map[string]any{"nodes": topics},
					"playerData":           string(player),
				},
				"transcriptData": map[string]any{
					"translation": map[string]any{"paragraphs": paragraphs},
				},
			},
		},
	})

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>")
	b.WriteString(html.EscapeString(current.Title))
	b.WriteString("</title>")
	if t.OGImage != "" {
		fmt.Fprintf(&b, `<meta property="og:image" content="%s">`, html.EscapeString(t.OGImage))
	}
	b.WriteString(`</head><body><div id="__next"></div><script id="__NEXT_DATA__" type="application/json">`)
	b.Write(data)
	b.WriteString("</script></body></html>")
	return b.String(), true
}

func containsFold(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
