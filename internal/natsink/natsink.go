// Package natsink republishes the live feed onto a NATS subject so that
// consumers on the lab network can tap samples without a websocket.
package natsink

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink is a broadcaster subscriber backed by NATS. Publish failures are
// counted and logged but never unsubscribe the sink; the client library
// buffers while it reconnects.
type Sink struct {
	id      string
	subject string
	pub     Publisher
	log     zerolog.Logger
	closed  atomic.Bool
	sent    atomic.Uint64
	failed  atomic.Uint64
}

func New(pub Publisher, subject string, log zerolog.Logger) *Sink {
	return &Sink{
		id:      "nats-" + uuid.NewString(),
		subject: subject,
		pub:     pub,
		log:     log,
	}
}

func (s *Sink) ID() string { return s.id }

func (s *Sink) Deliver(msg []byte) error {
	if s.closed.Load() {
		return nil
	}
	if err := s.pub.Publish(s.subject, msg); err != nil {
		if s.failed.Add(1) == 1 {
			s.log.Warn().Err(err).Str("subject", s.subject).Msg("nats publish failed")
		}
		return nil
	}
	s.sent.Add(1)
	return nil
}

// Close stops forwarding. The NATS connection belongs to the caller.
func (s *Sink) Close() { s.closed.Store(true) }

// Stats returns the number of forwarded and failed messages.
func (s *Sink) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// Connect dials NATS with unlimited reconnects and logs connection events.
func Connect(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")
	return nc, nil
}
