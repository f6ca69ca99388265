package discourse

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"relaybot/internal/domain"
)

// eventPayload is the envelope of a Discourse webhook body. Post events
// carry a "post" object; other event kinds use different keys and are
// ignored by the receiver.
type eventPayload struct {
	Post *Post `json:"post"`
}

// Post is the subset of Discourse post fields the transformer uses.
type Post struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	PostNumber int    `json:"post_number"`
	Raw        string `json:"raw"`
	TopicID    int    `json:"topic_id"`
	TopicSlug  string `json:"topic_slug"`
	TopicTitle string `json:"topic_title"`
	CreatedAt  string `json:"created_at"`
}

// BuildMessage turns a validated Discourse post into a Discord message.
// Pure function of its input; the content always names the author and the
// topic title, and the embed links back to the post when baseURL is set.
func BuildMessage(post *Post, webhookURL, baseURL string, excerptLength int) domain.Message {
	author := post.Name
	if author == "" {
		author = post.Username
	}

	embed := &discordgo.MessageEmbed{
		Title:       post.TopicTitle,
		Description: excerpt(post.Raw, excerptLength),
		Author:      &discordgo.MessageEmbedAuthor{Name: author},
	}
	if url := PostURL(post, baseURL); url != "" {
		embed.URL = url
	}

	return domain.Message{
		Source:     "discourse",
		WebhookURL: webhookURL,
		Content:    fmt.Sprintf("**%s** posted in **%s**", author, post.TopicTitle),
		Embeds:     []*discordgo.MessageEmbed{embed},
		Timestamp:  time.Now(),
	}
}

// PostURL builds the canonical /t/<slug>/<topic_id>/<post_number> link.
// Returns "" when no forum base URL is configured.
func PostURL(post *Post, baseURL string) string {
	if baseURL == "" || post.TopicID == 0 {
		return ""
	}
	base := strings.TrimRight(baseURL, "/")
	slug := post.TopicSlug
	if slug == "" {
		slug = "topic"
	}
	if post.PostNumber > 1 {
		return fmt.Sprintf("%s/t/%s/%d/%d", base, slug, post.TopicID, post.PostNumber)
	}
	return fmt.Sprintf("%s/t/%s/%d", base, slug, post.TopicID)
}

// excerpt truncates s to at most n runes, appending an ellipsis when cut.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
