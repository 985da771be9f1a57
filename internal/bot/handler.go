package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/apperr"
	"github.com/user/tedshelf-go/internal/catalog"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/lang"
	"github.com/user/tedshelf-go/internal/server"
)

// UserIDPrefix namespaces chat users apart from API users
const UserIDPrefix = "tg:"

// Submitter ingests talk URLs on behalf of a user
type Submitter interface {
	Submit(ctx context.Context, user ingest.User, pageURL string) (*ingest.VideoSummary, error)
}

// Catalog is the per-user list API used by the chat commands
type Catalog interface {
	Assemble(ctx context.Context, user ingest.User, page int) (*catalog.Page, error)
	SetFavorite(ctx context.Context, userID string, videoID uint, isFavorite bool) error
	Remove(ctx context.Context, userID string, videoID uint) error
}

// Stats reports shared catalog counts for /status
type Stats interface {
	CountTalks(ctx context.Context) (int64, error)
	CountAllEntries(ctx context.Context) (int64, error)
}

// Handler handles Telegram bot commands
type Handler struct {
	submitter Submitter
	catalog   Catalog
	stats     Stats
	resolver  *lang.Resolver
	messenger Messenger
	startTime time.Time
}

// NewHandler creates a new command handler
func NewHandler(submitter Submitter, cat Catalog, stats Stats, resolver *lang.Resolver, messenger Messenger) *Handler {
	return &Handler{
		submitter: submitter,
		catalog:   cat,
		stats:     stats,
		resolver:  resolver,
		messenger: messenger,
		startTime: time.Now(),
	}
}

// HandleUpdate processes an incoming Telegram update
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	msg := update.Message

	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	// A bare talk link is treated as /add
	if url := ExtractURL(msg.Text); url != "" {
		h.handleAdd(ctx, msg, url)
	}
}

// handleCommand routes commands to their respective handlers
func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	log.Info().
		Int64("chatID", chatID).
		Str("command", command).
		Str("args", args).
		Msg("Received command")

	switch command {
	case "start", "help":
		h.handleHelp(chatID)
	case "add":
		url := ExtractURL(args)
		if url == "" {
			h.sendError(chatID, "Please provide a TED talk link. Example: /add https://www.ted.com/talks/some_talk")
			return
		}
		h.handleAdd(ctx, msg, url)
	case "list":
		h.handleList(ctx, msg, ParsePage(args))
	case "fav":
		h.handleFavorite(ctx, msg, args, true)
	case "unfav":
		h.handleFavorite(ctx, msg, args, false)
	case "remove":
		h.handleRemove(ctx, msg, args)
	case "status":
		h.handleStatus(ctx, chatID)
	default:
		h.sendError(chatID, "Unknown command. Use /help to see available commands.")
	}
}

// handleHelp handles /start and /help
func (h *Handler) handleHelp(chatID int64) {
	helpText := `🎤 *TED Shelf*

*Adding talks:*
/add link \- Add a TED talk to your list
_Or just send a talk link\._

*Your list:*
/list \[page\] \- Show your talks
/fav id \- Mark a talk as favorite
/unfav id \- Clear the favorite mark
/remove id \- Remove a talk from your list

/status \- Show catalog statistics

_Talks are shown in your Telegram language when available\._`

	if err := h.messenger.SendMarkdown(chatID, helpText); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send help message")
	}
}

// handleAdd submits a talk link and replies with its summary
func (h *Handler) handleAdd(ctx context.Context, msg *tgbotapi.Message, url string) {
	chatID := msg.Chat.ID
	user := h.userFromMessage(msg)

	summary, err := h.submitter.Submit(ctx, user, url)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	caption := FormatSummary(summary)
	if summary.Thumbnail != "" {
		err := h.messenger.SendPhoto(chatID, summary.Thumbnail, caption)
		if err == nil {
			return
		}
		log.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to send thumbnail, falling back to text")
	}
	if err := h.messenger.SendMarkdown(chatID, caption); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send talk summary")
	}
}

// handleList handles /list [page]
func (h *Handler) handleList(ctx context.Context, msg *tgbotapi.Message, page int) {
	chatID := msg.Chat.ID
	user := h.userFromMessage(msg)

	result, err := h.catalog.Assemble(ctx, user, page)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if perr := result.Err(); perr != nil {
		log.Warn().Err(perr).Str("userId", user.ID).Msg("Catalog page is incomplete")
	}

	if len(result.List) == 0 {
		text := "📭 Your list is empty.\nSend a TED talk link to add one."
		if result.TotalCount > 0 {
			text = fmt.Sprintf("📭 Page %d is empty. Your list has %d page(s).", result.CurrentPage, result.TotalPage)
		}
		if err := h.messenger.SendMessage(chatID, text); err != nil {
			log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send empty list message")
		}
		return
	}

	if err := h.messenger.SendMarkdown(chatID, FormatPage(result)); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send catalog page")
	}
}

// handleFavorite handles /fav and /unfav
func (h *Handler) handleFavorite(ctx context.Context, msg *tgbotapi.Message, args string, isFavorite bool) {
	chatID := msg.Chat.ID
	videoID, err := ParseVideoID(args)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	if err := h.catalog.SetFavorite(ctx, h.userFromMessage(msg).ID, videoID, isFavorite); err != nil {
		h.replyError(chatID, err)
		return
	}

	text := fmt.Sprintf("⭐ Talk %d marked as favorite.", videoID)
	if !isFavorite {
		text = fmt.Sprintf("☆ Talk %d is no longer a favorite.", videoID)
	}
	if err := h.messenger.SendMessage(chatID, text); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send favorite confirmation")
	}
}

// handleRemove handles /remove
func (h *Handler) handleRemove(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	videoID, err := ParseVideoID(args)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	if err := h.catalog.Remove(ctx, h.userFromMessage(msg).ID, videoID); err != nil {
		h.replyError(chatID, err)
		return
	}

	if err := h.messenger.SendMessage(chatID, fmt.Sprintf("🗑 Talk %d removed from your list.", videoID)); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send remove confirmation")
	}
}

// handleStatus handles /status
func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	talkCount, err := h.stats.CountTalks(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count talks")
		talkCount = -1
	}
	entryCount, err := h.stats.CountAllEntries(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count catalog entries")
		entryCount = -1
	}

	var lines []string
	lines = append(lines, "📊 *Catalog Status*\n")
	lines = append(lines, fmt.Sprintf("🎬 Talks stored: %s", EscapeMarkdown(strconv.FormatInt(talkCount, 10))))
	lines = append(lines, fmt.Sprintf("📚 List entries: %s", EscapeMarkdown(strconv.FormatInt(entryCount, 10))))
	lines = append(lines, fmt.Sprintf("⏱ Uptime: %s", formatUptime(time.Since(h.startTime))))
	lines = append(lines, fmt.Sprintf("🕐 Started: %s", EscapeMarkdown(h.startTime.Format("2006-01-02 15:04:05"))))

	if err := h.messenger.SendMarkdown(chatID, strings.Join(lines, "\n")); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send status")
	}
}

// userFromMessage maps the sender to a catalog user
func (h *Handler) userFromMessage(msg *tgbotapi.Message) ingest.User {
	if msg.From == nil {
		return ingest.User{
			ID:       UserIDPrefix + strconv.FormatInt(msg.Chat.ID, 10),
			Language: h.resolver.Fallback(),
		}
	}
	return ingest.User{
		ID:       UserIDPrefix + strconv.FormatInt(msg.From.ID, 10),
		Language: h.resolver.Resolve(msg.From.LanguageCode),
	}
}

// replyError sends the public message of a classified error
func (h *Handler) replyError(chatID int64, err error) {
	e := apperr.Public(err)
	logEvent := log.Debug()
	if e.Kind.HTTPStatus() >= 500 {
		logEvent = log.Error()
	}
	logEvent.Err(err).Int64("chatID", chatID).Str("kind", e.Kind.String()).Msg("Chat command failed")
	server.RecordError(e.Kind.String())

	h.sendError(chatID, e.PublicMessage())
}

// sendError sends an error message to a chat
func (h *Handler) sendError(chatID int64, message string) {
	if err := h.messenger.SendMessage(chatID, "❌ "+message); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send error message")
	}
}

// ParseVideoID reads a positive video id, with or without a leading '#'
func ParseVideoID(args string) (uint, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(args), "#")
	if raw == "" {
		return 0, apperr.New(apperr.KindInvalidInput, "Please provide a talk id. Use /list to see ids.")
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInvalidInput, err, "Talk id must be a positive number.")
	}
	if n == 0 {
		return 0, apperr.New(apperr.KindInvalidInput, "Talk id must be a positive number.")
	}
	return uint(n), nil
}

// ParsePage reads a page number, defaulting to 1
func ParsePage(args string) int {
	page, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ExtractURL returns the first http(s) link in text
func ExtractURL(text string) string {
	for _, field := range strings.Fields(text) {
		lower := strings.ToLower(field)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return strings.TrimRight(field, ".,;!?)>")
		}
	}
	return ""
}
