// Package device keeps one long-lived link per physical sensor: it opens
// the transport, re-arms the device with its activation sequence, retries
// at a fixed delay when the link fails, and routes every decoded sample to
// the rolling buffers, the session recorder, and the live broadcaster.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/clock"
	"github.com/sencol/hub/internal/ringbuf"
	"github.com/sencol/hub/internal/stream"
)

// DefaultReconnectDelay is the fixed wait between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// healthThreshold is the consecutive failure count that marks a device
// failed in diagnostics.
const healthThreshold = 3

// Recorder persists records; session.Manager implements it.
type Recorder interface {
	Record(rec stream.Record) error
}

// Publisher fans live events out to subscribers; ws.Broadcaster
// implements it.
type Publisher interface {
	Publish(ev stream.Event)
}

// Options configures a Connection.
type Options struct {
	ID             string
	Family         stream.Family
	Label          string
	Address        string
	Dialer         Dialer
	Decoder        Decoder
	Frame          FrameFunc
	Activation     []Command
	Buffers        map[string]int // channel capacities; nil uses the family defaults
	ReconnectDelay time.Duration
	Recorder       Recorder  // optional
	Publisher      Publisher // optional
	Clock          clock.Clock
	Logger         zerolog.Logger
}

// Connection owns one device's transport lifecycle and its ring buffers.
// State transitions are serialized by mu; each opened transport gets a new
// generation so callbacks from a stale transport are ignored.
type Connection struct {
	id         string
	family     stream.Family
	label      string
	address    string
	dialer     Dialer
	decoder    Decoder
	frame      FrameFunc
	activation []Command
	delay      time.Duration
	recorder   Recorder
	publisher  Publisher
	clock      clock.Clock
	log        zerolog.Logger
	buffers    *ringbuf.Set[float64]
	health     health

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	gen         uint64
	transport   Transport
	timer       clock.Timer
	retries     int
	activations int
	earlyLoss   error // loss reported while the dial was still returning

	decodeMu sync.Mutex // one decoder pass at a time
}

// New creates a disconnected connection. Call Connect to start it.
func New(opts Options) *Connection {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	frame := opts.Frame
	if frame == nil {
		frame = ZephyrFrame
	}
	buffers := opts.Buffers
	if buffers == nil {
		buffers = opts.Family.DefaultBuffers()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:         opts.ID,
		family:     opts.Family,
		label:      opts.Label,
		address:    opts.Address,
		dialer:     opts.Dialer,
		decoder:    opts.Decoder,
		frame:      frame,
		activation: append([]Command(nil), opts.Activation...),
		delay:      delay,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		clock:      clk,
		log:        opts.Logger.With().Str("device", opts.ID).Logger(),
		buffers:    ringbuf.NewSet[float64](buffers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the configured device identifier.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect attempts to open the transport. It does nothing unless the
// connection is Disconnected, so at most one attempt is ever in flight. On
// failure a single retry is scheduled after the fixed delay.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.earlyLoss = nil
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	// The new transport may deliver bytes before Dial returns.
	c.decodeMu.Lock()
	if c.decoder != nil {
		c.decoder.Reset()
	}
	c.decodeMu.Unlock()

	c.health.recordAttempt()
	c.log.Debug().Str("address", c.address).Msg("connecting")

	t, err := c.dialer.Dial(c.ctx, c.address, &link{c: c, gen: gen})

	c.mu.Lock()
	if c.state == ShuttingDown || gen != c.gen {
		c.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return
	}
	if err == nil && c.earlyLoss != nil {
		err = c.earlyLoss
		t.Close()
	}
	if err != nil {
		c.state = Disconnected
		cerr := &ConnectionError{Device: c.id, Op: "connect", Err: err}
		c.health.recordFailure(cerr, c.clock.Now())
		c.scheduleRetryLocked()
		c.mu.Unlock()
		c.log.Error().Err(cerr).Str("address", c.address).Msg("error opening device")
		c.log.Info().Dur("delay", c.delay).Msg("reconnecting")
		return
	}
	c.transport = t
	c.state = Connected
	c.mu.Unlock()

	c.health.recordConnected(c.clock.Now())
	c.log.Info().Str("address", c.address).Msg("connected")
	c.activate(gen, t)
}

// activate replays the activation sequence on a fresh transport. A send
// failure is handled as a lost link.
func (c *Connection) activate(gen uint64, t Transport) {
	for _, cmd := range c.activation {
		c.log.Info().Str("command", cmd.String()).Msg("sending device command")
		if err := t.Send(c.frame(cmd.ID, cmd.Payload)); err != nil {
			c.lost(gen, &ConnectionError{Device: c.id, Op: "activate", Err: err})
			return
		}
	}
	c.mu.Lock()
	if gen == c.gen {
		c.activations++
	}
	c.mu.Unlock()
}

// scheduleRetryLocked arms the single retry timer. Caller holds c.mu.
func (c *Connection) scheduleRetryLocked() {
	c.retries++
	c.timer = c.clock.AfterFunc(c.delay, c.Connect)
}

// lost handles a transport failure reported for generation gen.
func (c *Connection) lost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case Connecting:
		if c.earlyLoss == nil {
			c.earlyLoss = err
		}
		c.mu.Unlock()
		return
	case Connected:
	default:
		c.mu.Unlock()
		return
	}
	t := c.transport
	c.transport = nil
	c.state = Disconnected
	c.health.recordLoss(err, c.clock.Now())
	c.scheduleRetryLocked()
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	c.log.Error().Err(err).Msg("lost connection")
	c.log.Info().Dur("delay", c.delay).Msg("reconnecting")
}

// Shutdown stops the connection for good: the pending retry is cancelled
// and the transport closed. Deliveries already in progress complete.
func (c *Connection) Shutdown() {
	c.mu.Lock()
	if c.state == ShuttingDown {
		c.mu.Unlock()
		return
	}
	c.state = ShuttingDown
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	c.cancel()
	if t != nil {
		if err := t.Close(); err != nil {
			c.log.Debug().Err(err).Msg("closing transport")
		}
	}
	c.log.Info().Msg("shut down")
}

// data decodes bytes from generation gen and routes the records.
// The generation is checked under decodeMu so a stale pass cannot refill
// the decoder after Connect has reset it.
func (c *Connection) data(gen uint64, data []byte) {
	if c.decoder == nil {
		return
	}
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()

	c.mu.Lock()
	current := gen == c.gen && c.state != ShuttingDown
	c.mu.Unlock()
	if !current {
		return
	}

	recs, errs := c.decoder.Decode(data)
	for _, err := range errs {
		var perr *ProtocolError
		if errors.As(err, &perr) && perr.Device == "" {
			perr.Device = c.id
		}
		c.health.recordProtocolError(err, c.clock.Now())
		c.log.Warn().Err(err).Msg("dropping malformed unit")
	}
	for _, rec := range recs {
		rec.Key.Label = c.label
		c.route(rec)
	}
	c.health.recordSamples(len(recs))
}

// route updates the ring buffers, then persists and broadcasts the record.
// Persistence and broadcast are independent: a failed write does not stop
// the broadcast.
func (c *Connection) route(rec stream.Record) {
	c.buffer(rec)

	if c.recorder != nil {
		if err := c.recorder.Record(rec); err != nil {
			c.log.Error().Err(err).Str("stream", rec.Key.String()).Msg("recording sample")
		}
	}

	if c.publisher != nil {
		c.publisher.Publish(rec.Event())
	}
}

// buffer appends the record's values to its channels. Vector kinds fan out
// one value per axis sub-buffer.
func (c *Connection) buffer(rec stream.Record) {
	kind := rec.Key.Kind
	if kind.IsVector() {
		for i, ch := range kind.Channels() {
			if i < len(rec.Values) {
				c.buffers.Push(ch, rec.Values[i])
			}
		}
		return
	}
	idx := kind.Primary()
	if idx < 0 || idx >= len(rec.Values) {
		return
	}
	c.buffers.Push(kind.String(), rec.Values[idx])
}

// Window returns the rolling window of channel, oldest to newest.
func (c *Connection) Window(channel string) ([]float64, bool) {
	return c.buffers.Window(channel)
}

// Windows returns every channel's rolling window.
func (c *Connection) Windows() map[string][]float64 {
	return c.buffers.Snapshot()
}

// Channels returns the buffered channel names.
func (c *Connection) Channels() []string {
	return c.buffers.Channels()
}

// Status is a diagnostics snapshot of one connection.
type Status struct {
	ID          string         `json:"id"`
	Family      string         `json:"family"`
	Label       string         `json:"label,omitempty"`
	Address     string         `json:"address"`
	State       State          `json:"state"`
	Retries     int            `json:"retries"`
	Activations int            `json:"activations"`
	Health      HealthSnapshot `json:"health"`
}

// Status returns a snapshot of the connection state and health counters.
func (c *Connection) Status() Status {
	c.mu.Lock()
	s := Status{
		ID:          c.id,
		Family:      c.family.String(),
		Label:       c.label,
		Address:     c.address,
		State:       c.state,
		Retries:     c.retries,
		Activations: c.activations,
	}
	c.mu.Unlock()
	s.Health = c.health.snapshot(healthThreshold)
	return s
}

// link binds transport callbacks to the generation that opened it.
type link struct {
	c   *Connection
	gen uint64
}

func (l *link) OnData(data []byte) { l.c.data(l.gen, data) }

func (l *link) OnLost(err error) {
	l.c.lost(l.gen, &ConnectionError{Device: l.c.id, Op: "read", Err: err})
}
