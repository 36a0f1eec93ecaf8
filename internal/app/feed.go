package app

import (
	"sync"
	"time"

	"quiz-match-service/internal/domain"
)

// EventKind tells subscribers what changed in a match.
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventAnswers EventKind = "answers"
	EventRemoved EventKind = "removed"
)

// MatchEvent is pushed to the subscribers of a match whenever its status or
// its answers change.
type MatchEvent struct {
	MatchCod int64         `json:"matchCod"`
	Kind     EventKind     `json:"kind"`
	Status   domain.Status `json:"status"`
	At       time.Time     `json:"at"`
}

// EventPublisher receives match changes from the service.
type EventPublisher interface {
	Publish(ev MatchEvent)
}

// Feed fans match events out to in-process subscribers. Subscribers that do
// not keep up only ever see the latest event.
type Feed struct {
	mu     sync.Mutex
	topics map[int64]map[chan MatchEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{topics: make(map[int64]map[chan MatchEvent]struct{})}
}

// Subscribe returns the events of a match and a function that ends the
// subscription and closes the channel.
func (f *Feed) Subscribe(matchCod int64) (<-chan MatchEvent, func()) {
	ch := make(chan MatchEvent, 8)

	f.mu.Lock()
	subs, ok := f.topics[matchCod]
	if !ok {
		subs = make(map[chan MatchEvent]struct{})
		f.topics[matchCod] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.topics[matchCod]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.topics, matchCod)
		}
	}
	return ch, cancel
}

// Publish never blocks: a full subscriber loses its oldest pending event.
func (f *Feed) Publish(ev MatchEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.topics[ev.MatchCod] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers returns the number of live subscriptions to a match.
func (f *Feed) Subscribers(matchCod int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics[matchCod])
}
