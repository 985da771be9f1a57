package lang

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"KO", "ko"},
		{"zh_CN", "zh-cn"},
		{" zh-TW ", "zh-tw"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver([]string{"en", "ko", "ja", "zh-cn", "fr"}, "en")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"exact", "ko", "ko"},
		{"case and separator", "ZH_CN", "zh-cn"},
		{"regional variant", "ko-KR", "ko"},
		{"unsupported", "pt", "en"},
		{"empty", "", "en"},
		{"garbage", "!!", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolver_ResolveAcceptLanguage(t *testing.T) {
	r := NewResolver([]string{"en", "ko", "fr"}, "en")

	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"first supported wins", "fr-CH, fr;q=0.9, en;q=0.8", "fr"},
		{"korean", "ko-KR,ko;q=0.9", "ko"},
		{"nothing supported", "pt-BR", "en"},
		{"empty header", "", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ResolveAcceptLanguage(tt.header); got != tt.expected {
				t.Errorf("ResolveAcceptLanguage(%q) = %q, want %q", tt.header, got, tt.expected)
			}
		})
	}
}

func TestResolver_FallbackAlwaysSupported(t *testing.T) {
	r := NewResolver([]string{"ko"}, "EN")
	if !r.IsSupported("en") {
		t.Error("fallback should be part of the supported set")
	}
	if r.Fallback() != "en" {
		t.Errorf("Fallback() = %q, want en", r.Fallback())
	}
	if got := r.Supported(); len(got) != 2 || got[0] != "en" {
		t.Errorf("Supported() = %v, want [en ko]", got)
	}
}

func TestProperty_NormalizeIsCanonical(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	codeGen := gen.RegexMatch(`[a-zA-Z]{2,3}([-_][a-zA-Z]{2,4})?`)

	properties.Property("Normalize is idempotent", prop.ForAll(
		func(code string) bool {
			once := Normalize(code)
			return Normalize(once) == once
		},
		codeGen,
	))

	properties.Property("Normalize output is lowercase with hyphens", prop.ForAll(
		func(code string) bool {
			out := Normalize(code)
			return out == strings.ToLower(out) && !strings.Contains(out, "_")
		},
		codeGen,
	))

	properties.TestingRun(t)
}
