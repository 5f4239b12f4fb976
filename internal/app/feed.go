package app

import (
	"sync"

	"quiz-analytics/internal/domain"
)

// Feed fans recomputed reports out to subscribers. Each subscriber holds at
// most a small backlog; when it is full the oldest pending report is dropped so
// a slow client never blocks the others.
type Feed struct {
	mu          sync.Mutex
	latest      *domain.Report
	subscribers map[chan domain.Report]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan domain.Report]struct{})}
}

// Subscribe returns a channel that first receives the latest report, if any.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.Report, func()) {
	ch := make(chan domain.Report, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.latest != nil {
		ch <- *f.latest
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish stores report as the latest and delivers it to every subscriber.
func (f *Feed) Publish(report domain.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = &report
	for ch := range f.subscribers {
		select {
		case ch <- report:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- report
		}
	}
}

// Subscribers reports how many channels are attached.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
