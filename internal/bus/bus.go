package bus

import (
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus connecting the inbound
// bridges to the relay loop.
type InMemoryBus struct {
	messages chan domain.Message
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		messages: make(chan domain.Message, bufferSize),
		logger:   logger,
	}
}

// Publish enqueues a message for delivery. Blocks up to 10 seconds if the
// bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "source", msg.Source)
		return
	}

	select {
	case b.messages <- msg:
	default:
		b.logger.Warn("bus full, waiting...", "source", msg.Source)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.messages <- msg:
			b.logger.Info("message enqueued after wait", "source", msg.Source)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s", "source", msg.Source)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Message {
	return b.messages
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.messages)
	}
}
