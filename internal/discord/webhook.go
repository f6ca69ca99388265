// Package discord delivers messages to Discord incoming webhooks. One POST
// per message: JSON for plain messages, multipart when a file is attached.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"relaybot/internal/domain"
)

const (
	jsonTimeout   = 15 * time.Second
	uploadTimeout = 30 * time.Second

	errorBodyLimit = 512
)

// DeliveryError reports a non-success response from the Discord webhook.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("discord webhook: status %d: %s", e.Status, e.Body)
}

// Client posts messages to Discord incoming webhooks. Safe for concurrent
// use; connections are pooled across forwards.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a webhook client with a pooled HTTP transport.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: newHTTPClient(),
		logger:     logger,
	}
}

// newHTTPClient returns an HTTP client with connection pooling. Per-request
// deadlines are set with contexts, so no overall client timeout here.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Forward issues a single POST to the message's webhook URL. Any transport
// error or non-2xx status is returned as a delivery failure; nothing is
// retried or queued.
func (c *Client) Forward(ctx context.Context, msg domain.Message) error {
	params := &discordgo.WebhookParams{
		Content: msg.Content,
		Embeds:  msg.Embeds,
	}

	if msg.Attachment != nil {
		return c.postMultipart(ctx, msg.WebhookURL, params, msg.Attachment)
	}
	return c.postJSON(ctx, msg.WebhookURL, params)
}

func (c *Client) postJSON(ctx context.Context, url string, params *discordgo.WebhookParams) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, jsonTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// postMultipart uploads a file alongside the message: the JSON params go in
// a payload_json form field, the file in files[0].
func (c *Client) postMultipart(ctx context.Context, url string, params *discordgo.WebhookParams, att *domain.Attachment) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return fmt.Errorf("write payload_json: %w", err)
	}
	fw, err := mw.CreateFormFile("files[0]", att.Filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(att.Data); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &DeliveryError{Status: resp.StatusCode, Body: string(body)}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
