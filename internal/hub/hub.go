// Package hub assembles the acquisition hub from configuration: the
// session manager, device connections, broadcaster, control channel,
// optional NATS sink and companion recorders.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/clock"
	"github.com/sencol/hub/internal/companion"
	"github.com/sencol/hub/internal/config"
	"github.com/sencol/hub/internal/control"
	"github.com/sencol/hub/internal/device"
	"github.com/sencol/hub/internal/logger"
	"github.com/sencol/hub/internal/mock"
	"github.com/sencol/hub/internal/natsink"
	"github.com/sencol/hub/internal/session"
	"github.com/sencol/hub/internal/stream"
	"github.com/sencol/hub/internal/ws"
)

var connectNATS = natsink.Connect

// Options overrides parts of the wiring. Zero values use the config.
type Options struct {
	Config *config.Config
	// Prefix names the startup session; empty uses session.default_prefix.
	Prefix string
	// Dialers replaces the dialer for a transport name.
	Dialers map[string]device.Dialer
	// NATS replaces the NATS connection when nats.enabled is set.
	NATS  natsink.Publisher
	Clock clock.Clock
}

type Hub struct {
	cfg        *config.Config
	prefix     string
	log        zerolog.Logger
	sessions   *session.Manager
	broadcast  *ws.Broadcaster
	dispatcher *control.Dispatcher
	devices    []*device.Connection
	companions []*companion.Recorder
	server     *ws.Server
	nc         *nats.Conn
}

func New(opts Options) (*Hub, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("hub: nil config")
	}
	h := &Hub{
		cfg:    cfg,
		prefix: opts.Prefix,
		log:    logger.WithComponent("hub"),
	}
	if h.prefix == "" {
		h.prefix = cfg.Session.DefaultPrefix
	}

	var keys []stream.Key
	for _, d := range cfg.ActiveDevices() {
		fam, err := stream.ParseFamily(d.Family)
		if err != nil {
			return nil, &config.Error{Err: err}
		}
		keys = append(keys, stream.Keys(fam, d.Label)...)
	}

	h.sessions = session.NewManager(session.Options{
		DataDir:       cfg.Session.DataDir,
		Streams:       keys,
		AutoUnlock:    cfg.Session.AutoUnlock,
		Locked:        true,
		FlushInterval: cfg.Session.FlushInterval,
		Clock:         opts.Clock,
		Logger:        logger.WithComponent("session"),
	})
	h.broadcast = ws.NewBroadcaster(logger.WithComponent("broadcast"))
	h.dispatcher = control.NewDispatcher(h.sessions, logger.WithComponent("control"))

	for _, cp := range cfg.ActiveCompanions() {
		r := companion.New(companion.Options{
			Name:        cp.Name,
			Command:     cp.Command,
			Args:        cp.Args,
			StopTimeout: cp.StopTimeout,
			Session:     h.sessions.Current,
			Logger:      logger.WithComponent("companion"),
		})
		h.companions = append(h.companions, r)
		h.sessions.Register(r)
	}

	if cfg.NATS.Enabled {
		pub := opts.NATS
		if pub == nil {
			nc, err := connectNATS(cfg.NATS.URL, cfg.NATS.Name, logger.WithComponent("nats"))
			if err != nil {
				return nil, err
			}
			h.nc = nc
			pub = nc
		}
		h.broadcast.Subscribe(natsink.New(pub, cfg.NATS.Subject, logger.WithComponent("nats")))
	}

	for _, d := range cfg.ActiveDevices() {
		c, err := h.newConnection(d, opts)
		if err != nil {
			h.sessions.Close()
			if h.nc != nil {
				h.nc.Close()
			}
			return nil, err
		}
		h.devices = append(h.devices, c)
	}

	views := make([]ws.Device, len(h.devices))
	for i, c := range h.devices {
		views[i] = c
	}
	h.server = ws.NewServer(ws.ServerOptions{
		Broadcaster:    h.broadcast,
		Controller:     h.dispatcher,
		Sessions:       h.sessions,
		Devices:        views,
		DataDir:        cfg.Session.DataDir,
		ClientBuffer:   cfg.Broadcast.ClientBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.WithComponent("server"),
	})
	return h, nil
}

func (h *Hub) newConnection(d config.DeviceConfig, opts Options) (*device.Connection, error) {
	fam, err := stream.ParseFamily(d.Family)
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	dialer, ok := opts.Dialers[d.Transport]
	if !ok {
		switch d.Transport {
		case config.TransportTCP:
			dialer = device.TCPDialer{Timeout: 10 * time.Second}
		case config.TransportSerial:
			dialer = device.FileDialer{}
		case config.TransportMock:
			dialer = &mock.Dialer{Family: fam, Label: d.Label}
		default:
			return nil, &config.Error{Err: fmt.Errorf("device %s: unknown transport %q", d.ID, d.Transport)}
		}
	}

	frame := device.ZephyrFrame
	if d.Framing == config.FramingText {
		frame = device.TextFrame
	}

	return device.New(device.Options{
		ID:             d.ID,
		Family:         fam,
		Label:          d.Label,
		Address:        d.Address,
		Dialer:         dialer,
		Decoder:        device.NewLineDecoder(fam),
		Frame:          frame,
		Activation:     activation(d, fam),
		Buffers:        d.BufferSizes(fam),
		ReconnectDelay: d.ReconnectDelay,
		Recorder:       h.sessions,
		Publisher:      h.broadcast,
		Clock:          opts.Clock,
		Logger:         logger.WithComponent("device"),
	}), nil
}

func activation(d config.DeviceConfig, fam stream.Family) []device.Command {
	if d.Activation == nil {
		return device.DefaultActivation(fam)
	}
	cmds := make([]device.Command, 0, len(*d.Activation))
	for _, c := range *d.Activation {
		payload := make([]byte, len(c.Payload))
		for i, b := range c.Payload {
			payload[i] = byte(b)
		}
		cmds = append(cmds, device.Command{ID: byte(c.ID), Payload: payload})
	}
	return cmds
}

// Start opens the startup session and begins connecting every device.
// Connections retry in the background and never fail Start.
func (h *Hub) Start() session.BeginResult {
	res := h.sessions.Begin(h.prefix)
	if h.cfg.Session.StartLogging {
		h.sessions.Unlock()
		res.Info.Locked = false
	}
	for _, c := range h.devices {
		go c.Connect()
	}
	return res
}

// Serve runs the HTTP server until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ws.Addr(h.cfg.Server.Host, h.cfg.Server.Port),
		Handler:           h.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", srv.Addr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Stop shuts devices down, stops companions, closes the session and
// disconnects subscribers.
func (h *Hub) Stop() error {
	for _, c := range h.devices {
		c.Shutdown()
	}
	h.sessions.Lock()
	err := h.sessions.Close()
	h.broadcast.Close()
	if h.nc != nil {
		if derr := h.nc.Drain(); derr != nil {
			h.log.Warn().Err(derr).Msg("draining nats")
		}
	}
	h.log.Info().Msg("hub stopped")
	return err
}

func (h *Hub) Handler() http.Handler { return h.server.Handler() }
func (h *Hub) Sessions() *session.Manager { return h.sessions }
func (h *Hub) Broadcaster() *ws.Broadcaster { return h.broadcast }
func (h *Hub) Dispatcher() *control.Dispatcher { return h.dispatcher }
func (h *Hub) Devices() []*device.Connection { return h.devices }
func (h *Hub) Companions() []*companion.Recorder { return h.companions }
