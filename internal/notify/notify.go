// Package notify delivers out-of-band notification events to human leaders.
//
// The core emits "leader assigned", "crisis alert", and "escalation" events
// through the Notifier interface; delivery (SMS, push, email) is the
// implementation's responsibility.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haventree/shepherd/internal/models"
)

// DefaultChannelBufferSize is the buffer size for notification event channels.
const DefaultChannelBufferSize = 100

// Notifier defines a pluggable notification delivery abstraction.
type Notifier interface {
	// Notify emits a single notification event. A crisis alert with no
	// LeaderID is a broadcast to all active leaders.
	Notify(ctx context.Context, n models.Notification) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// NoopNotifier drops every event. Used when no delivery channel is configured.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that discards events.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) Notify(ctx context.Context, event models.Notification) error {
	slog.Debug("NoopNotifier.Notify: dropping event", "type", event.Type)
	return nil
}

func (n *NoopNotifier) Stop() error { return nil }

// ChannelNotifier buffers events on a channel for a consumer to drain. Used by
// the presentation layer and in tests.
type ChannelNotifier struct {
	events  chan models.Notification
	mu      sync.Mutex
	stopped bool
}

// NewChannelNotifier creates a notifier with a buffered event channel.
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{
		events: make(chan models.Notification, DefaultChannelBufferSize),
	}
}

// Notify enqueues the event. If the buffer is full the event is dropped with a
// warning rather than blocking the state transition that produced it.
func (c *ChannelNotifier) Notify(ctx context.Context, event models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	select {
	case c.events <- event:
		slog.Debug("ChannelNotifier.Notify: event queued", "type", event.Type, "leaderID", event.LeaderID)
	default:
		slog.Warn("ChannelNotifier.Notify: buffer full, dropping event", "type", event.Type)
	}
	return nil
}

// Events returns the channel of emitted notification events.
func (c *ChannelNotifier) Events() <-chan models.Notification {
	return c.events
}

// Stop closes the event channel.
func (c *ChannelNotifier) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.events)
	}
	return nil
}
