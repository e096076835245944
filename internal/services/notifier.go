package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"smarttrain/models"
)

// Notifier pushes marketplace events to a user. Delivery is best effort and
// never fails the operation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, userID string, event models.Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, models.Event) {}

type publishFunc func(ctx context.Context, channel string, event models.Event) (int, error)

type notification struct {
	userID string
	event  models.Event
}

// PubNubNotifier publishes events on the per-user channel "user-<id>".
// Notify only enqueues; a single worker publishes in the background so a slow
// PubNub never holds up a purchase or a release sweep. Events arriving while
// the queue is full are dropped.
type PubNubNotifier struct {
	publish publishFunc
	timeout time.Duration
	queue   chan notification

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewPubNubNotifier(publishKey, subscribeKey, secretKey, userID string) *PubNubNotifier {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	pn := pubnub.NewPubNub(cfg)

	return newPubNubNotifier(func(ctx context.Context, channel string, event models.Event) (int, error) {
		_, st, err := pn.PublishWithContext(ctx).
			Channel(channel).
			Message(event).
			Execute()
		return st.StatusCode, err
	}, 256, 5*time.Second)
}

func newPubNubNotifier(publish publishFunc, buffer int, timeout time.Duration) *PubNubNotifier {
	n := &PubNubNotifier{
		publish: publish,
		timeout: timeout,
		queue:   make(chan notification, buffer),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func (n *PubNubNotifier) Notify(_ context.Context, userID string, event models.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- notification{userID: userID, event: event}:
	default:
		slog.Warn("Notification queue full, dropping event", "user_id", userID, "type", event.Type)
	}
}

// Close stops accepting events and waits for the queued ones to be published.
func (n *PubNubNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	<-n.done
}

func (n *PubNubNotifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		n.send(msg)
	}
}

func (n *PubNubNotifier) send(msg notification) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	code, err := n.publish(ctx, UserChannel(msg.userID), msg.event)
	if err != nil {
		slog.Warn("Failed to publish notification",
			"error", err,
			"user_id", msg.userID,
			"type", msg.event.Type,
			"status_code", code,
		)
	}
}
