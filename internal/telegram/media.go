package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MediaRef identifies one downloadable file attached to a channel post.
type MediaRef struct {
	FileID   string
	Filename string
	FileSize int64
}

// PickMedia selects the media attachment of a post, if any. A post carries
// at most one media kind; the checks are ordered so that the richest
// representation wins: photo, video, animation (GIF), document, audio,
// voice, video note, sticker.
func PickMedia(msg *tgbotapi.Message) *MediaRef {
	if msg == nil {
		return nil
	}

	// Photo: take the largest available size.
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		return &MediaRef{
			FileID:   photo.FileID,
			Filename: fmt.Sprintf("photo_%d.jpg", msg.MessageID),
			FileSize: int64(photo.FileSize),
		}
	}

	if v := msg.Video; v != nil {
		name := v.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d.mp4", msg.MessageID)
		}
		return &MediaRef{FileID: v.FileID, Filename: name, FileSize: int64(v.FileSize)}
	}

	// GIFs usually arrive as animations, often mp4 under the hood.
	if a := msg.Animation; a != nil {
		name := a.FileName
		if name == "" {
			name = fmt.Sprintf("animation_%d.mp4", msg.MessageID)
		}
		return &MediaRef{FileID: a.FileID, Filename: name, FileSize: int64(a.FileSize)}
	}

	// Document: any file, including GIF-as-document.
	if d := msg.Document; d != nil {
		name := d.FileName
		if name == "" {
			name = fmt.Sprintf("document_%d", msg.MessageID)
		}
		return &MediaRef{FileID: d.FileID, Filename: name, FileSize: int64(d.FileSize)}
	}

	if a := msg.Audio; a != nil {
		name := a.FileName
		if name == "" {
			name = fmt.Sprintf("audio_%d.mp3", msg.MessageID)
		}
		return &MediaRef{FileID: a.FileID, Filename: name, FileSize: int64(a.FileSize)}
	}

	if v := msg.Voice; v != nil {
		return &MediaRef{
			FileID:   v.FileID,
			Filename: fmt.Sprintf("voice_%d.ogg", msg.MessageID),
			FileSize: int64(v.FileSize),
		}
	}

	if vn := msg.VideoNote; vn != nil {
		return &MediaRef{
			FileID:   vn.FileID,
			Filename: fmt.Sprintf("video_note_%d.mp4", msg.MessageID),
			FileSize: int64(vn.FileSize),
		}
	}

	// Sticker: static .webp or animated .tgs.
	if s := msg.Sticker; s != nil {
		ext := "webp"
		if s.IsAnimated {
			ext = "tgs"
		}
		return &MediaRef{
			FileID:   s.FileID,
			Filename: fmt.Sprintf("sticker_%d.%s", msg.MessageID, ext),
			FileSize: int64(s.FileSize),
		}
	}

	return nil
}
