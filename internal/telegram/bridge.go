// Package telegram long-polls a Telegram bot for channel posts and turns
// them into Discord messages, downloading attached media when it fits the
// Discord upload limit.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const (
	pollTimeoutSeconds = 30
	downloadTimeout    = 30 * time.Second

	// Conservative Discord upload cap (8 MiB), used when none is configured.
	defaultMaxFileBytes = 8 * 1024 * 1024
)

// BridgeConfig configures the Telegram channel bridge.
type BridgeConfig struct {
	Token        string
	WebhookURL   string       // destination Discord incoming webhook
	ChannelURL   string       // invite link rendered as clickable channel title
	AllowFrom    []string     // channel IDs as strings (empty = allow all)
	MaxFileBytes int64        // Discord upload cap; larger media is skipped
	HTTPClient   *http.Client // used for media downloads
	Logger       *slog.Logger
}

// Bridge implements domain.Source for Telegram channel posts.
type Bridge struct {
	token        string
	webhookURL   string
	channelURL   string
	allowFrom    []int64
	maxFileBytes int64
	fileEndpoint string // printf pattern for file downloads (token, file path)

	bot        *tgbotapi.BotAPI
	bus        domain.MessageBus
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBridge creates a new Telegram channel bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: downloadTimeout}
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	return &Bridge{
		token:        cfg.Token,
		webhookURL:   cfg.WebhookURL,
		channelURL:   cfg.ChannelURL,
		allowFrom:    allowed,
		maxFileBytes: cfg.MaxFileBytes,
		fileEndpoint: tgbotapi.FileEndpoint,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
	}
}

func (b *Bridge) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for channel posts.
func (b *Bridge) Start(ctx context.Context, bus domain.MessageBus) error {
	b.bus = bus

	bot, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	b.bot = bot
	b.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	u.AllowedUpdates = []string{"channel_post"}
	updates := bot.GetUpdatesChan(u)

	b.logger.Info("telegram polling started, forwarding channel posts")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bridge stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.ChannelPost != nil {
				b.handleChannelPost(ctx, update.ChannelPost)
			}
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled.
func (b *Bridge) Stop() error { return nil }

func (b *Bridge) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	metrics.EventsReceived.Inc()

	if post.Chat == nil {
		return
	}
	if !b.isAllowed(post.Chat.ID) {
		metrics.AuthRejections.Inc()
		b.logger.Warn("channel post from unexpected channel dropped",
			"chat_id", post.Chat.ID,
			"title", post.Chat.Title,
		)
		return
	}

	content := BuildContent(post, b.channelURL)
	media := PickMedia(post)

	msg := domain.Message{
		Source:     "telegram",
		WebhookURL: b.webhookURL,
		Content:    content,
		Timestamp:  time.Unix(int64(post.Date), 0),
	}

	switch {
	case media == nil:
		// Plain text post.
	case media.FileSize > b.maxFileBytes:
		b.skipOversize(&msg, media.FileSize)
	default:
		data, err := b.downloadFile(ctx, media.FileID)
		var oversize *oversizeError
		switch {
		case err == nil:
			msg.Attachment = &domain.Attachment{Filename: media.Filename, Data: data}
		case errors.As(err, &oversize):
			// The update's file_size was missing or understated; the real
			// size only showed up at download time.
			b.skipOversize(&msg, oversize.size)
		default:
			// Forward the text anyway; the post should not be lost to a
			// media download hiccup.
			b.logger.Error("telegram media download failed", "err", err, "file_id", media.FileID)
		}
	}

	b.logger.Info("channel post accepted",
		"chat_id", post.Chat.ID,
		"message_id", post.MessageID,
		"has_media", media != nil,
	)
	b.bus.Publish(msg)
}

// skipOversize notes in the message that its media was over the Discord
// limit. fileSize may be 0 when Telegram never reported one.
func (b *Bridge) skipOversize(msg *domain.Message, fileSize int64) {
	metrics.MediaSkipped.Inc()
	b.logger.Info("media over Discord limit, forwarding text only",
		"file_size", fileSize,
		"limit", b.maxFileBytes,
	)
	msg.Content += OversizeNote(fileSize, b.maxFileBytes)
}

// oversizeError reports a file over the Discord upload limit. size is 0
// when Telegram did not report one and the limit was hit mid-download.
type oversizeError struct {
	size  int64
	limit int64
}

func (e *oversizeError) Error() string {
	if e.size > 0 {
		return fmt.Sprintf("file size %d exceeds Discord limit %d", e.size, e.limit)
	}
	return fmt.Sprintf("file exceeds Discord limit %d", e.limit)
}

// downloadFile fetches a Telegram file into memory via the bot file API.
// Telegram does not always report file sizes up front, so the limit is
// enforced on the stream as well: reading one byte past the cap means the
// file is oversize, not truncatable.
func (b *Bridge) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram get file: %w", err)
	}
	if int64(file.FileSize) > b.maxFileBytes {
		return nil, &oversizeError{size: int64(file.FileSize), limit: b.maxFileBytes}
	}

	url := fmt.Sprintf(b.fileEndpoint, b.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram file download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("telegram file download: %w", err)
	}
	if int64(len(data)) > b.maxFileBytes {
		return nil, &oversizeError{limit: b.maxFileBytes}
	}
	return data, nil
}

func (b *Bridge) isAllowed(chatID int64) bool {
	if len(b.allowFrom) == 0 {
		return true // Empty list = allow all channels
	}
	for _, id := range b.allowFrom {
		if id == chatID {
			return true
		}
	}
	return false
}

// BuildContent formats a channel post for Discord: a header line with the
// channel title (clickable when an invite URL is configured) followed by
// the post text or caption.
func BuildContent(post *tgbotapi.Message, channelURL string) string {
	title := "Telegram Channel"
	if post.Chat != nil && post.Chat.Title != "" {
		title = post.Chat.Title
	}

	text := post.Text
	if text == "" {
		text = post.Caption
	}
	if text == "" {
		text = "(media-only post)"
	}

	var header string
	if channelURL != "" {
		header = fmt.Sprintf("[%s](%s)", title, channelURL)
	} else {
		header = fmt.Sprintf("**%s**", title)
	}
	return header + "\n" + text
}

// OversizeNote is appended to the content when media exceeds the Discord
// upload limit and only the text is forwarded. fileSize 0 means the size
// was never reported by Telegram.
func OversizeNote(fileSize, limit int64) string {
	if fileSize <= 0 {
		return fmt.Sprintf("\n\n*(Media skipped: over Discord limit %d bytes)*", limit)
	}
	return fmt.Sprintf("\n\n*(Media skipped: %d bytes > Discord limit %d bytes)*", fileSize, limit)
}
