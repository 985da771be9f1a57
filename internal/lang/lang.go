// Package lang normalises language codes and resolves a caller's preferred
// language against the catalog's supported set.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

// Normalize lowercases a language code and uses hyphen separators,
// so "zh_CN" and "zh-CN" both become "zh-cn".
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "_", "-")
	return strings.ToLower(code)
}

// Resolver picks a supported language for a request
type Resolver struct {
	supported []string
	fallback  string
	matcher   language.Matcher
}

// NewResolver creates a resolver over the supported codes. The fallback is
// returned when nothing matches and is added to the supported set if missing.
func NewResolver(supported []string, fallback string) *Resolver {
	fallback = Normalize(fallback)

	codes := make([]string, 0, len(supported)+1)
	seen := make(map[string]bool)
	// The matcher treats the first tag as its default
	for _, c := range append([]string{fallback}, supported...) {
		c = Normalize(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}

	tags := make([]language.Tag, 0, len(codes))
	kept := make([]string, 0, len(codes))
	for _, c := range codes {
		tag, err := language.Parse(c)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		kept = append(kept, c)
	}

	return &Resolver{
		supported: kept,
		fallback:  fallback,
		matcher:   language.NewMatcher(tags),
	}
}

// Supported returns the normalised supported codes, fallback first
func (r *Resolver) Supported() []string {
	out := make([]string, len(r.supported))
	copy(out, r.supported)
	return out
}

// IsSupported reports whether code is in the supported set
func (r *Resolver) IsSupported(code string) bool {
	code = Normalize(code)
	for _, c := range r.supported {
		if c == code {
			return true
		}
	}
	return false
}

// Fallback returns the default language
func (r *Resolver) Fallback() string {
	return r.fallback
}

// Resolve maps a single code, e.g. a token claim or Telegram language_code
func (r *Resolver) Resolve(code string) string {
	code = Normalize(code)
	if code == "" {
		return r.fallback
	}
	if r.IsSupported(code) {
		return code
	}
	tag, err := language.Parse(code)
	if err != nil {
		return r.fallback
	}
	return r.match(tag)
}

// ResolveAcceptLanguage maps an Accept-Language header value
func (r *Resolver) ResolveAcceptLanguage(header string) string {
	if strings.TrimSpace(header) == "" {
		return r.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return r.fallback
	}
	for _, t := range tags {
		if c := Normalize(t.String()); r.IsSupported(c) {
			return c
		}
	}
	return r.match(tags...)
}

func (r *Resolver) match(tags ...language.Tag) string {
	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(r.supported) {
		return r.fallback
	}
	return r.supported[idx]
}
