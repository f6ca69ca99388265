// Package discourse receives Discourse webhook events over HTTP, validates
// their HMAC signature, and turns new-post events into Discord messages.
package discourse

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const (
	// Discourse signs the raw request body with HMAC-SHA256 and sends the
	// hex digest in this header, prefixed with "sha256=".
	signatureHeader = "X-Discourse-Event-Signature"
	eventHeader     = "X-Discourse-Event"
	eventTypeHeader = "X-Discourse-Event-Type"

	maxBodyBytes = 1 << 20 // 1MB
)

// ReceiverConfig configures the Discourse webhook receiver.
type ReceiverConfig struct {
	Port          int
	Path          string
	Secret        string
	WebhookURL    string // destination Discord incoming webhook
	BaseURL       string // public forum URL, used to build post links
	ExcerptLength int
	Logger        *slog.Logger
}

// Receiver implements domain.Source for Discourse webhooks.
type Receiver struct {
	port          int
	path          string
	secret        string
	webhookURL    string
	baseURL       string
	excerptLength int

	bus    domain.MessageBus
	logger *slog.Logger
	server *http.Server
}

// NewReceiver creates a new Discourse webhook receiver.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.Path == "" {
		cfg.Path = "/webhook/discourse"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = 500
	}
	return &Receiver{
		port:          cfg.Port,
		path:          cfg.Path,
		secret:        cfg.Secret,
		webhookURL:    cfg.WebhookURL,
		baseURL:       cfg.BaseURL,
		excerptLength: cfg.ExcerptLength,
		logger:        cfg.Logger,
	}
}

func (r *Receiver) Name() string { return "discourse" }

// Start begins the webhook HTTP server and blocks until ctx is cancelled.
func (r *Receiver) Start(ctx context.Context, bus domain.MessageBus) error {
	r.bus = bus

	mux := http.NewServeMux()
	mux.HandleFunc(r.path, r.handleEvent)

	r.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", r.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	r.logger.Info("discourse receiver starting", "port", r.port, "path", r.path)

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("discourse receiver shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("discourse receiver: %w", err)
	}
}

// Stop is a no-op: the server shuts down when Start's context is cancelled.
func (r *Receiver) Stop() error { return nil }

func (r *Receiver) handleEvent(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	metrics.EventsReceived.Inc()

	if err := r.verifySignature(body, req.Header.Get(signatureHeader)); err != nil {
		metrics.AuthRejections.Inc()
		r.logger.Warn("discourse event rejected",
			"err", err,
			"event", req.Header.Get(eventHeader),
			"remote", req.RemoteAddr,
		)
		if err == domain.ErrMissingSignature {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
		} else {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
		}
		return
	}

	event := req.Header.Get(eventHeader)

	// Discourse sends a ping when a webhook is created or tested.
	if event == "ping" || req.Header.Get(eventTypeHeader) == "ping" {
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]string{"status": "pong"})
		return
	}

	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.MalformedEvents.Inc()
		r.logger.Warn("malformed discourse payload", "event", event, "err", err)
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if event != "post_created" || payload.Post == nil {
		// Edits, topic status changes etc. are acknowledged but not forwarded.
		r.logger.Debug("discourse event ignored", "event", event)
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]string{"status": "ignored"})
		return
	}

	if payload.Post.TopicTitle == "" || payload.Post.Username == "" {
		metrics.MalformedEvents.Inc()
		r.logger.Warn("discourse post missing required fields", "post_id", payload.Post.ID)
		http.Error(rw, "Incomplete post payload", http.StatusBadRequest)
		return
	}

	msg := BuildMessage(payload.Post, r.webhookURL, r.baseURL, r.excerptLength)

	r.logger.Info("discourse post accepted",
		"post_id", payload.Post.ID,
		"topic", payload.Post.TopicTitle,
		"author", payload.Post.Username,
	)

	r.bus.Publish(msg)

	rw.WriteHeader(http.StatusAccepted)
	json.NewEncoder(rw).Encode(map[string]string{"status": "accepted"})
}

// verifySignature checks the HMAC-SHA256 signature of the raw body against
// the shared secret. Constant-time compare; each request judged independently.
func (r *Receiver) verifySignature(body []byte, signature string) error {
	if signature == "" {
		return domain.ErrMissingSignature
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrBadSignature
	}
	return nil
}
