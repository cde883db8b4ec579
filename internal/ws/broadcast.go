package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/stream"
)

// ErrSlowSubscriber is returned by Deliver when a subscriber's queue is
// full.
var ErrSlowSubscriber = errors.New("subscriber too slow")

// Subscriber is a live delivery endpoint. Deliver must not block; an error
// removes the subscriber from the broadcaster, which then calls Close.
type Subscriber interface {
	ID() string
	Deliver(msg []byte) error
	Close()
}

// Broadcaster republishes every sample event to the current subscribers.
// Delivery is best-effort and there is no backlog: a subscriber only sees
// events published after it subscribed.
type Broadcaster struct {
	mu        sync.Mutex // guards subs; held across each fan-out
	subs      []Subscriber
	log       zerolog.Logger
	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{log: log}
}

// Subscribe adds s. Subscribing the same endpoint twice has no effect.
func (b *Broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, x := range b.subs {
		if x == s {
			return
		}
	}
	b.subs = append(b.subs, s)
	b.log.Info().Str("subscriber", s.ID()).Int("subscribers", len(b.subs)).Msg("subscriber added")
}

// Unsubscribe removes s and closes it. Unknown subscribers are ignored.
func (b *Broadcaster) Unsubscribe(s Subscriber) {
	b.mu.Lock()
	found := b.removeLocked(s)
	n := len(b.subs)
	b.mu.Unlock()

	if found {
		s.Close()
		b.log.Info().Str("subscriber", s.ID()).Int("subscribers", n).Msg("subscriber removed")
	}
}

func (b *Broadcaster) removeLocked(s Subscriber) bool {
	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish encodes ev once and hands the same bytes to every subscriber in
// subscription order. Publishes are serialized, so all subscribers observe
// events in the same relative order.
func (b *Broadcaster) Publish(ev stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("stream", ev.Type).Msg("broadcast marshal error")
		return
	}
	b.PublishRaw(data)
}

// PublishRaw fans out an already encoded message.
func (b *Broadcaster) PublishRaw(data []byte) {
	b.mu.Lock()
	var failed []Subscriber
	for _, s := range b.subs {
		if err := s.Deliver(data); err != nil {
			b.dropped.Add(1)
			b.log.Warn().Err(err).Str("subscriber", s.ID()).Msg("dropping subscriber")
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		b.removeLocked(s)
	}
	b.published.Add(1)
	b.mu.Unlock()

	for _, s := range failed {
		s.Close()
	}
}

// Count returns the number of current subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats reports how many events were published and how many deliveries
// failed.
func (b *Broadcaster) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Close unsubscribes and closes every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
