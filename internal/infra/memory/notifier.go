package memory

import (
	"context"
	"sync"

	"quiz-analytics/internal/domain"
)

// Notifier is an in-process change feed for single-instance deployments.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[chan domain.ChangeEvent]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[chan domain.ChangeEvent]struct{})}
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (n *Notifier) Publish(_ context.Context, event domain.ChangeEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (n *Notifier) Subscribe(context.Context) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, 64)

	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subscribers[ch]; ok {
			delete(n.subscribers, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel, nil
}
