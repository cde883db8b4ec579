package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sencol/hub/internal/device"
	"github.com/sencol/hub/internal/stream"
)

// ErrLinkDropped is reported when a simulated device drops its link.
var ErrLinkDropped = errors.New("simulated link loss")

// Dialer opens simulated devices. FailFirst dials fail outright and
// DropAfter ticks into each connection the link is lost, which exercises
// the reconnect path.
type Dialer struct {
	Family    stream.Family
	Label     string
	Tick      time.Duration // default 40ms
	FailFirst int
	DropAfter int // 0 keeps the link up
	Seed      int64

	mu    sync.Mutex
	dials int
}

func (d *Dialer) Dial(ctx context.Context, address string, h device.Handler) (device.Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= d.FailFirst {
		return nil, fmt.Errorf("simulated device %s unreachable (attempt %d)", address, n)
	}
	tick := d.Tick
	if tick <= 0 {
		tick = 40 * time.Millisecond
	}
	s := &simDevice{
		gen:  NewGenerator(d.Family, d.Label, d.Seed+int64(n)),
		h:    h,
		tick: tick,
		drop: d.DropAfter,
		stop: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type simDevice struct {
	gen  *Generator
	h    device.Handler
	tick time.Duration
	drop int
	stop chan struct{}
	once sync.Once

	mu       sync.Mutex
	commands [][]byte
}

func (s *simDevice) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		var b strings.Builder
		for _, rec := range s.gen.Next(s.tick) {
			b.WriteString(device.FormatLine(rec))
		}
		if b.Len() > 0 {
			s.h.OnData([]byte(b.String()))
		}
		if s.drop > 0 && n >= s.drop {
			s.Close()
			s.h.OnLost(ErrLinkDropped)
			return
		}
	}
}

// Send accepts activation frames; the simulator streams regardless.
func (s *simDevice) Send(frame []byte) error {
	select {
	case <-s.stop:
		return net.ErrClosed
	default:
	}
	s.mu.Lock()
	s.commands = append(s.commands, append([]byte(nil), frame...))
	s.mu.Unlock()
	return nil
}

func (s *simDevice) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
