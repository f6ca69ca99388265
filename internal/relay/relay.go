// Package relay consumes transformed messages from the bus and hands each
// one to the Discord forwarder. Failures are logged and dropped.
package relay

import (
	"context"
	"log/slog"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// Relay is the delivery end of the pipeline.
type Relay struct {
	bus       domain.MessageBus
	forwarder domain.Forwarder
	logger    *slog.Logger
}

func New(bus domain.MessageBus, forwarder domain.Forwarder, logger *slog.Logger) *Relay {
	return &Relay{bus: bus, forwarder: forwarder, logger: logger}
}

// Run blocks, forwarding messages until ctx is cancelled or the bus closes.
// One outbound call per message; delivery failures are not retried.
func (r *Relay) Run(ctx context.Context) {
	messages := r.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.deliver(ctx, msg)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, msg domain.Message) {
	start := time.Now()
	err := r.forwarder.Forward(ctx, msg)
	metrics.ForwardLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ForwardFailures.Inc()
		r.logger.Error("forward failed",
			"source", msg.Source,
			"err", err,
		)
		return
	}

	metrics.ForwardsTotal.Inc()
	r.logger.Info("forwarded to Discord",
		"source", msg.Source,
		"content_len", len(msg.Content),
		"has_attachment", msg.Attachment != nil,
	)
}
