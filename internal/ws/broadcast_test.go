package ws

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/stream"
)

type recordingSub struct {
	id     string
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed int
}

func (r *recordingSub) ID() string { return r.id }

func (r *recordingSub) Deliver(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrSlowSubscriber
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSub) Close() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *recordingSub) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.msgs...)
}

func ecgEvent(ts, v float64) stream.Event {
	return stream.Record{Key: stream.Key{Kind: stream.BioECG}, Timestamp: ts, Values: []float64{v}}.Event()
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish(ecgEvent(1, 2))
	if published, dropped := b.Stats(); published != 1 || dropped != 0 {
		t.Errorf("Stats = %d, %d, want 1, 0", published, dropped)
	}
}

func TestPublishDeliversIdenticalBytesInOrder(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	s1, s2 := &recordingSub{id: "a"}, &recordingSub{id: "b"}
	b.Subscribe(s1)
	b.Subscribe(s2)

	b.Publish(ecgEvent(1, 10))
	b.Publish(ecgEvent(2, 20))

	got1, got2 := s1.received(), s2.received()
	if len(got1) != 2 || len(got2) != 2 {
		t.Fatalf("received %d and %d messages, want 2 each", len(got1), len(got2))
	}
	for i := range got1 {
		if !bytes.Equal(got1[i], got2[i]) {
			t.Errorf("message %d differs: %s vs %s", i, got1[i], got2[i])
		}
	}
	want := `{"type":"ecg","timestamp":1,"value":10}`
	if string(got1[0]) != want {
		t.Errorf("first message = %s, want %s", got1[0], want)
	}
	if !bytes.Contains(got1[1], []byte(`"timestamp":2`)) {
		t.Errorf("second message = %s, want timestamp 2", got1[1])
	}
}

func TestLateSubscriberGetsNoBacklog(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	b.Publish(ecgEvent(1, 1))
	late := &recordingSub{id: "late"}
	b.Subscribe(late)
	b.Publish(ecgEvent(2, 2))
	if got := late.received(); len(got) != 1 {
		t.Errorf("late subscriber got %d messages, want 1", len(got))
	}
}

func TestSubscribeTwiceDeliversOnce(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	s := &recordingSub{id: "a"}
	b.Subscribe(s)
	b.Subscribe(s)
	b.Publish(ecgEvent(1, 1))
	if got := len(s.received()); got != 1 {
		t.Errorf("got %d messages, want 1", got)
	}
	if b.Count() != 1 {
		t.Errorf("Count = %d, want 1", b.Count())
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	s := &recordingSub{id: "a"}

	b.Unsubscribe(s) // never subscribed
	if s.closed != 0 {
		t.Errorf("absent subscriber closed %d times", s.closed)
	}

	b.Subscribe(s)
	b.Unsubscribe(s)
	b.Unsubscribe(s)
	b.Publish(ecgEvent(1, 1))
	if len(s.received()) != 0 {
		t.Error("unsubscribed endpoint still received messages")
	}
	if s.closed != 1 {
		t.Errorf("closed = %d, want 1", s.closed)
	}
}

func TestFailingSubscriberDroppedOthersUnaffected(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	slow := &recordingSub{id: "slow", fail: true}
	ok := &recordingSub{id: "ok"}
	b.Subscribe(slow)
	b.Subscribe(ok)

	b.Publish(ecgEvent(1, 1))
	b.Publish(ecgEvent(2, 2))

	if got := len(ok.received()); got != 2 {
		t.Errorf("healthy subscriber got %d messages, want 2", got)
	}
	if b.Count() != 1 {
		t.Errorf("Count = %d, want 1", b.Count())
	}
	if slow.closed != 1 {
		t.Errorf("slow subscriber closed %d times, want 1", slow.closed)
	}
	if _, dropped := b.Stats(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestConcurrentPublishKeepsRelativeOrder(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	s1, s2 := &recordingSub{id: "a"}, &recordingSub{id: "b"}
	b.Subscribe(s1)
	b.Subscribe(s2)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.PublishRaw([]byte(fmt.Sprintf("%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	got1, got2 := s1.received(), s2.received()
	if len(got1) != 200 || len(got2) != 200 {
		t.Fatalf("received %d and %d, want 200 each", len(got1), len(got2))
	}
	for i := range got1 {
		if !bytes.Equal(got1[i], got2[i]) {
			t.Fatalf("order diverges at %d: %s vs %s", i, got1[i], got2[i])
		}
	}
}

func TestClientDeliverFullBuffer(t *testing.T) {
	c := newClient(nil, NewBroadcaster(zerolog.Nop()), 1)
	if err := c.Deliver([]byte("a")); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	if err := c.Deliver([]byte("b")); err != ErrSlowSubscriber {
		t.Errorf("second Deliver = %v, want ErrSlowSubscriber", err)
	}
	c.Close()
	c.Close()
}
