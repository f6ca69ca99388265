package domain

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Message is the Discord-ready representation of an inbound event.
// A source builds it once from a validated event and never mutates it
// afterwards; the relay loop delivers it to WebhookURL as-is.
type Message struct {
	Source     string // originating bridge ("discourse" | "telegram")
	WebhookURL string // destination Discord incoming webhook
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Attachment *Attachment
	Timestamp  time.Time
}

// Attachment is a media file downloaded from the source platform and
// uploaded to Discord alongside the message.
type Attachment struct {
	Filename string
	Data     []byte
}
