package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/tedshelf-go/internal/catalog"
	"github.com/user/tedshelf-go/internal/ingest"
)

// markdownEscaper escapes the MarkdownV2 special characters. The backslash
// comes first so escapes are never doubled.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// EscapeMarkdown escapes special characters for Telegram MarkdownV2 format
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// FormatSummary renders the reply to a submitted talk
func FormatSummary(s *ingest.VideoSummary) string {
	if s == nil {
		return ""
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("🎬 *%s*", EscapeMarkdown(s.Title)))
	if s.Author != "" {
		parts = append(parts, fmt.Sprintf("👤 %s", EscapeMarkdown(s.Author)))
	}
	if s.Duration > 0 {
		parts = append(parts, fmt.Sprintf("⏱ %s", formatClock(s.Duration)))
	}
	parts = append(parts, fmt.Sprintf("🌐 %s · id %d", EscapeMarkdown(s.Language), s.VideoID))

	if s.Created {
		parts = append(parts, "✅ Added to your list")
	} else {
		parts = append(parts, "📌 Already on your list")
	}
	return strings.Join(parts, "\n")
}

// FormatPage renders one page of the user's catalog
func FormatPage(p *catalog.Page) string {
	if p == nil || len(p.List) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("📚 *Your talks \\(page %d/%d\\)*\n", p.CurrentPage, p.TotalPage))

	offset := (p.CurrentPage - 1) * p.PageSize
	for i, item := range p.List {
		title := item.Title
		if !item.LanguageAvailable {
			title = "(not available in your language)"
		}

		line := fmt.Sprintf("%d\\. ", offset+i+1)
		if item.IsFavorite {
			line += "⭐ "
		}
		line += fmt.Sprintf("*%s*", EscapeMarkdown(title))
		if item.Author != "" {
			line += fmt.Sprintf(" \\- %s", EscapeMarkdown(item.Author))
		}
		line += fmt.Sprintf("\n   id %d", item.VideoID)
		if item.Duration > 0 {
			line += fmt.Sprintf(" · %s", formatClock(item.Duration))
		}
		lines = append(lines, line)
	}

	if n := len(p.Inconsistencies); n > 0 {
		lines = append(lines, fmt.Sprintf("\n⚠️ _%d talk\\(s\\) could not be loaded_", n))
	}
	if p.CurrentPage < p.TotalPage {
		lines = append(lines, fmt.Sprintf("\n_Use /list %d for next page_", p.CurrentPage+1))
	}
	return strings.Join(lines, "\n")
}

// formatClock renders seconds as m:ss, or h:mm:ss past an hour
func formatClock(seconds int) string {
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatUptime formats a duration into a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
