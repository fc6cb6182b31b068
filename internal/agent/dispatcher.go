package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const (
	sendRetryDelay = 2 * time.Second
	echoCacheSize  = 4096
	echoCacheTTL   = time.Hour
)

// Dispatcher is the single path for outbound replies. It owns the retry
// policy (exactly one retry after a fixed delay) and records the message
// IDs of everything it sends so the loop can drop echoes of our own
// messages coming back through a channel.
type Dispatcher struct {
	mu         sync.RWMutex
	transports map[string]domain.Transport

	sent   *expirable.LRU[string, struct{}]
	logger *slog.Logger

	retryDelay time.Duration
	sleep      func(time.Duration)
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transports: make(map[string]domain.Transport),
		sent:       expirable.NewLRU[string, struct{}](echoCacheSize, nil, echoCacheTTL),
		logger:     logger,
		retryDelay: sendRetryDelay,
		sleep:      time.Sleep,
	}
}

// Register makes a transport addressable by its channel name.
func (d *Dispatcher) Register(t domain.Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transports[t.Name()] = t
}

func (d *Dispatcher) transport(channel string) (domain.Transport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.transports[channel]
	return t, ok
}

// Send delivers content to one chat. On failure it waits retryDelay and
// tries once more; a second failure is returned to the caller and the
// reply is dropped.
func (d *Dispatcher) Send(ctx context.Context, channel, chatID, content string) error {
	t, ok := d.transport(channel)
	if !ok {
		return fmt.Errorf("no transport registered for channel %q", channel)
	}

	msgID, err := t.Send(ctx, chatID, content)
	if err != nil {
		d.logger.Warn("send failed, retrying once",
			"channel", channel, "chat_id", chatID, "error", err)
		metrics.SendRetries.Inc()
		d.sleep(d.retryDelay)
		msgID, err = t.Send(ctx, chatID, content)
	}
	if err != nil {
		metrics.SendFailures.Inc()
		return fmt.Errorf("send to %s/%s after retry: %w", channel, chatID, err)
	}

	if msgID != "" {
		d.sent.Add(channel+":"+msgID, struct{}{})
	}
	metrics.RepliesSent.Inc()
	return nil
}

// IsEcho reports whether an inbound message originated from us, either by
// message ID (we sent it) or by sender ID (the transport's own account).
func (d *Dispatcher) IsEcho(msg domain.InboundMessage) bool {
	if msg.MessageID != "" {
		if _, ok := d.sent.Get(msg.Channel + ":" + msg.MessageID); ok {
			return true
		}
	}
	if t, ok := d.transport(msg.Channel); ok {
		if self := t.SelfID(); self != "" && self == msg.SenderID {
			return true
		}
	}
	return false
}
