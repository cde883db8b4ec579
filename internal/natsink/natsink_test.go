package natsink

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakePublisher struct {
	subjects []string
	data     []string
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, string(data))
	return nil
}

func TestSinkForwards(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, "sencol.live", zerolog.Nop())
	if err := s.Deliver([]byte(`{"type":"ecg"}`)); err != nil {
		t.Fatal(err)
	}
	if len(pub.data) != 1 || pub.subjects[0] != "sencol.live" || pub.data[0] != `{"type":"ecg"}` {
		t.Errorf("published %v to %v", pub.data, pub.subjects)
	}
	if sent, failed := s.Stats(); sent != 1 || failed != 0 {
		t.Errorf("Stats = %d, %d", sent, failed)
	}
}

func TestSinkSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	s := New(pub, "sencol.live", zerolog.Nop())
	if err := s.Deliver([]byte("x")); err != nil {
		t.Errorf("Deliver = %v, want nil so the sink stays subscribed", err)
	}
	if _, failed := s.Stats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestSinkClosed(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, "sencol.live", zerolog.Nop())
	s.Close()
	s.Deliver([]byte("x"))
	if len(pub.data) != 0 {
		t.Error("closed sink still publishes")
	}
}
