package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"quiz-analytics/internal/domain"
)

// Notifier routes change events across instances over Redis pub/sub.
type Notifier struct {
	client  *redis.Client
	channel string
}

func NewNotifier(client *redis.Client, prefix string) *Notifier {
	if prefix == "" {
		prefix = "quiz-analytics"
	}
	return &Notifier{client: client, channel: prefix + ":changes"}
}

func (n *Notifier) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Subscribe confirms the subscription before returning so events published
// afterwards are not lost. Malformed payloads are dropped.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}

	out := make(chan domain.ChangeEvent, 64)
	done := make(chan struct{})
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
