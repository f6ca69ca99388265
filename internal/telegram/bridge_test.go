package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type captureBus struct {
	messages []domain.Message
}

func (b *captureBus) Publish(msg domain.Message)       { b.messages = append(b.messages, msg) }
func (b *captureBus) Subscribe() <-chan domain.Message { return nil }
func (b *captureBus) Close()                           {}

func channelPost(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 42,
		Date:      1714550400,
		Chat:      &tgbotapi.Chat{ID: -1001234, Title: "My Channel"},
		Text:      text,
	}
}

func TestBuildContent_ClickableTitle(t *testing.T) {
	got := BuildContent(channelPost("hello world"), "https://t.me/+invite")
	want := "[My Channel](https://t.me/+invite)\nhello world"
	if got != want {
		t.Errorf("BuildContent() = %q, want %q", got, want)
	}
}

func TestBuildContent_BoldTitleWithoutURL(t *testing.T) {
	got := BuildContent(channelPost("hello"), "")
	if !strings.HasPrefix(got, "**My Channel**\n") {
		t.Errorf("expected bold title header, got %q", got)
	}
}

func TestBuildContent_CaptionFallback(t *testing.T) {
	post := channelPost("")
	post.Caption = "photo caption"
	got := BuildContent(post, "")
	if !strings.Contains(got, "photo caption") {
		t.Errorf("caption should be used when text is empty: %q", got)
	}
}

func TestBuildContent_MediaOnlyPlaceholder(t *testing.T) {
	got := BuildContent(channelPost(""), "")
	if !strings.Contains(got, "(media-only post)") {
		t.Errorf("expected media-only placeholder, got %q", got)
	}
}

func TestBuildContent_UntitledChannel(t *testing.T) {
	post := channelPost("hi")
	post.Chat.Title = ""
	got := BuildContent(post, "")
	if !strings.Contains(got, "Telegram Channel") {
		t.Errorf("expected fallback channel title, got %q", got)
	}
}

func TestPickMedia_None(t *testing.T) {
	if got := PickMedia(channelPost("just text")); got != nil {
		t.Errorf("expected nil for text post, got %+v", got)
	}
}

func TestPickMedia_PhotoLargestSize(t *testing.T) {
	post := channelPost("")
	post.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", FileSize: 100},
		{FileID: "medium", FileSize: 1000},
		{FileID: "large", FileSize: 5000},
	}
	got := PickMedia(post)
	if got == nil {
		t.Fatal("expected media for photo post")
	}
	if got.FileID != "large" {
		t.Errorf("expected largest photo size, got %q", got.FileID)
	}
	if got.Filename != "photo_42.jpg" {
		t.Errorf("unexpected filename: %q", got.Filename)
	}
	if got.FileSize != 5000 {
		t.Errorf("unexpected file size: %d", got.FileSize)
	}
}

func TestPickMedia_PhotoBeatsDocument(t *testing.T) {
	post := channelPost("")
	post.Photo = []tgbotapi.PhotoSize{{FileID: "p", FileSize: 10}}
	post.Document = &tgbotapi.Document{FileID: "d", FileName: "doc.pdf"}
	got := PickMedia(post)
	if got == nil || got.FileID != "p" {
		t.Errorf("photo should take priority over document, got %+v", got)
	}
}

func TestPickMedia_Filenames(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*tgbotapi.Message)
		want   string
	}{
		{
			name:   "video without name",
			modify: func(m *tgbotapi.Message) { m.Video = &tgbotapi.Video{FileID: "v"} },
			want:   "video_42.mp4",
		},
		{
			name:   "video keeps original name",
			modify: func(m *tgbotapi.Message) { m.Video = &tgbotapi.Video{FileID: "v", FileName: "clip.mov"} },
			want:   "clip.mov",
		},
		{
			name:   "animation",
			modify: func(m *tgbotapi.Message) { m.Animation = &tgbotapi.Animation{FileID: "a"} },
			want:   "animation_42.mp4",
		},
		{
			name:   "document without name",
			modify: func(m *tgbotapi.Message) { m.Document = &tgbotapi.Document{FileID: "d"} },
			want:   "document_42",
		},
		{
			name:   "audio",
			modify: func(m *tgbotapi.Message) { m.Audio = &tgbotapi.Audio{FileID: "a"} },
			want:   "audio_42.mp3",
		},
		{
			name:   "voice",
			modify: func(m *tgbotapi.Message) { m.Voice = &tgbotapi.Voice{FileID: "v"} },
			want:   "voice_42.ogg",
		},
		{
			name:   "video note",
			modify: func(m *tgbotapi.Message) { m.VideoNote = &tgbotapi.VideoNote{FileID: "vn"} },
			want:   "video_note_42.mp4",
		},
		{
			name:   "static sticker",
			modify: func(m *tgbotapi.Message) { m.Sticker = &tgbotapi.Sticker{FileID: "s"} },
			want:   "sticker_42.webp",
		},
		{
			name:   "animated sticker",
			modify: func(m *tgbotapi.Message) { m.Sticker = &tgbotapi.Sticker{FileID: "s", IsAnimated: true} },
			want:   "sticker_42.tgs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := channelPost("")
			tt.modify(post)
			got := PickMedia(post)
			if got == nil {
				t.Fatal("expected media")
			}
			if got.Filename != tt.want {
				t.Errorf("filename = %q, want %q", got.Filename, tt.want)
			}
		})
	}
}

func TestOversizeNote(t *testing.T) {
	got := OversizeNote(1000, 500)
	if !strings.Contains(got, "1000 bytes") || !strings.Contains(got, "500 bytes") {
		t.Errorf("note should state both sizes: %q", got)
	}
	if !strings.Contains(got, "Media skipped") {
		t.Errorf("note should say media was skipped: %q", got)
	}
}

func TestOversizeNote_UnknownSize(t *testing.T) {
	got := OversizeNote(0, 500)
	if !strings.Contains(got, "Media skipped") || !strings.Contains(got, "500 bytes") {
		t.Errorf("note should still name the limit when the size is unknown: %q", got)
	}
	if strings.Contains(got, "0 bytes") {
		t.Errorf("note must not claim a zero-byte file: %q", got)
	}
}

func TestHandleChannelPost_TextOnly(t *testing.T) {
	b := NewBridge(BridgeConfig{
		WebhookURL: "https://discord.test/webhooks/2/t",
		ChannelURL: "https://t.me/+invite",
		Logger:     testLogger(),
	})
	bus := &captureBus{}
	b.bus = bus

	b.handleChannelPost(context.Background(), channelPost("breaking news"))

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	msg := bus.messages[0]
	if msg.Source != "telegram" {
		t.Errorf("source = %q", msg.Source)
	}
	if !strings.Contains(msg.Content, "breaking news") {
		t.Errorf("content missing post text: %q", msg.Content)
	}
	if msg.Attachment != nil {
		t.Error("text-only post must not carry an attachment")
	}
}

func TestHandleChannelPost_DisallowedChannelDropped(t *testing.T) {
	b := NewBridge(BridgeConfig{
		WebhookURL: "https://discord.test/webhooks/2/t",
		AllowFrom:  []string{"-1009999"},
		Logger:     testLogger(),
	})
	bus := &captureBus{}
	b.bus = bus

	b.handleChannelPost(context.Background(), channelPost("spam"))

	if len(bus.messages) != 0 {
		t.Errorf("post from unexpected channel must be dropped, got %d messages", len(bus.messages))
	}
}

func TestHandleChannelPost_OversizeMediaSkipped(t *testing.T) {
	b := NewBridge(BridgeConfig{
		WebhookURL:   "https://discord.test/webhooks/2/t",
		MaxFileBytes: 100,
		Logger:       testLogger(),
	})
	bus := &captureBus{}
	b.bus = bus

	post := channelPost("")
	post.Caption = "huge video"
	post.Video = &tgbotapi.Video{FileID: "v", FileSize: 10_000}

	b.handleChannelPost(context.Background(), post)

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	msg := bus.messages[0]
	if msg.Attachment != nil {
		t.Error("oversize media must not be attached")
	}
	if !strings.Contains(msg.Content, "Media skipped") {
		t.Errorf("content should carry the skip note: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "huge video") {
		t.Errorf("content should still carry the caption: %q", msg.Content)
	}
}

// fileServerBridge wires a bridge to an httptest server that emulates the
// Telegram bot and file endpoints: getFile reports reportedSize and the
// file URL serves fileData.
func fileServerBridge(t *testing.T, maxFileBytes int64, reportedSize int, fileData []byte) (*Bridge, *captureBus) {
	t.Helper()

	const token = "test-token"
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+token+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"ok":true,"result":{"file_id":"f1","file_path":"photos/file_7.jpg","file_size":%d}}`, reportedSize)
	})
	mux.HandleFunc("/file/bot"+token+"/photos/file_7.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(fileData)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	bot := &tgbotapi.BotAPI{Token: token, Client: srv.Client(), Buffer: 100}
	bot.SetAPIEndpoint(srv.URL + "/bot%s/%s")

	b := NewBridge(BridgeConfig{
		Token:        token,
		WebhookURL:   "https://discord.test/webhooks/2/t",
		MaxFileBytes: maxFileBytes,
		HTTPClient:   srv.Client(),
		Logger:       testLogger(),
	})
	b.bot = bot
	b.fileEndpoint = srv.URL + "/file/bot%s/%s"
	bus := &captureBus{}
	b.bus = bus
	return b, bus
}

func photoPost(caption string, fileSize int) *tgbotapi.Message {
	post := channelPost("")
	post.Caption = caption
	post.Photo = []tgbotapi.PhotoSize{{FileID: "f1", FileSize: fileSize}}
	return post
}

func TestHandleChannelPost_MediaAttached(t *testing.T) {
	fileData := []byte("jpeg bytes")
	b, bus := fileServerBridge(t, 100, len(fileData), fileData)

	b.handleChannelPost(context.Background(), photoPost("look at this", len(fileData)))

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	msg := bus.messages[0]
	if msg.Attachment == nil {
		t.Fatal("expected the photo to be attached")
	}
	if msg.Attachment.Filename != "photo_42.jpg" {
		t.Errorf("attachment filename = %q", msg.Attachment.Filename)
	}
	if !bytes.Equal(msg.Attachment.Data, fileData) {
		t.Errorf("attachment data = %q, want %q", msg.Attachment.Data, fileData)
	}
	if !strings.Contains(msg.Content, "look at this") {
		t.Errorf("content missing caption: %q", msg.Content)
	}
}

// Telegram updates may omit file sizes entirely; the limit must still hold
// at download time instead of the file being uploaded truncated.
func TestHandleChannelPost_UnreportedSizeOversizeSkipped(t *testing.T) {
	fileData := bytes.Repeat([]byte("x"), 500)
	b, bus := fileServerBridge(t, 100, 0, fileData)

	b.handleChannelPost(context.Background(), photoPost("sneaky big photo", 0))

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	msg := bus.messages[0]
	if msg.Attachment != nil {
		t.Fatalf("over-limit file must not be attached, got %d bytes", len(msg.Attachment.Data))
	}
	if !strings.Contains(msg.Content, "Media skipped") {
		t.Errorf("content should carry the skip note: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "sneaky big photo") {
		t.Errorf("content should still carry the caption: %q", msg.Content)
	}
}

// The update may claim a small size while getFile reports the real one.
func TestHandleChannelPost_GetFileReportsOversize(t *testing.T) {
	b, bus := fileServerBridge(t, 100, 5000, bytes.Repeat([]byte("x"), 5000))

	b.handleChannelPost(context.Background(), photoPost("big after all", 0))

	if len(bus.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bus.messages))
	}
	msg := bus.messages[0]
	if msg.Attachment != nil {
		t.Error("over-limit file must not be attached")
	}
	if !strings.Contains(msg.Content, "5000 bytes") {
		t.Errorf("skip note should state the reported size: %q", msg.Content)
	}
}
