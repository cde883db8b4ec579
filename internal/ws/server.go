package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/device"
	"github.com/sencol/hub/internal/hostinfo"
	"github.com/sencol/hub/internal/session"
)

// maxControlMessage bounds one control command.
const maxControlMessage = 4096

// Controller executes raw control commands; control.Dispatcher implements
// it.
type Controller interface {
	Handle(payload []byte) error
}

// Device is the diagnostic view of a device connection.
type Device interface {
	ID() string
	Windows() map[string][]float64
	Status() device.Status
}

// SessionView is the diagnostic view of the session manager.
type SessionView interface {
	Current() (session.Info, bool)
	Locked() bool
}

// ServerOptions wires the HTTP surface to the hub's components.
type ServerOptions struct {
	Broadcaster    *Broadcaster
	Controller     Controller
	Sessions       SessionView
	Devices        []Device
	DataDir        string
	ClientBuffer   int
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server exposes the live feed, the control channel and diagnostics.
type Server struct {
	broadcaster    *Broadcaster
	controller     Controller
	sessions       SessionView
	devices        []Device
	dataDir        string
	clientBuffer   int
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader
	log            zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		broadcaster:    opts.Broadcaster,
		controller:     opts.Controller,
		sessions:       opts.Sessions,
		devices:        opts.Devices,
		dataDir:        opts.DataDir,
		clientBuffer:   opts.ClientBuffer,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		log:            opts.Logger,
	}
	if s.clientBuffer <= 0 {
		s.clientBuffer = 256
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/api/control", s.handleControlPost)
	mux.HandleFunc("/api/windows", s.handleWindows)
	mux.HandleFunc("/api/status", s.handleStatus)
}

// Handler returns every route behind the security header middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	c := newClient(conn, s.broadcaster, s.clientBuffer)
	s.log.Info().Str("remote", r.RemoteAddr).Str("subscriber", c.id).Msg("live feed client connected")
	s.broadcaster.Subscribe(c)
	go c.writePump()
	go c.readPump()
}

// handleControl accepts a stream of JSON commands on one websocket. The
// channel is one-way: nothing is written back.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("control upgrade error")
		return
	}
	s.log.Info().Str("remote", r.RemoteAddr).Msg("control client connected")
	conn.SetReadLimit(maxControlMessage)

	go func() {
		defer func() {
			conn.Close()
			s.log.Info().Str("remote", r.RemoteAddr).Msg("control client disconnected")
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// Errors are already logged by the controller.
			_ = s.controller.Handle(msg)
		}
	}()
}

// handleControlPost is the plain HTTP form of the control channel.
func (s *Server) handleControlPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlMessage))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if err := s.controller.Handle(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[string][]float64, len(s.devices))
	for _, d := range s.devices {
		out[d.ID()] = d.Windows()
	}
	writeJSON(w, out)
}

// Status is the /api/status document.
type Status struct {
	Devices     []device.Status `json:"devices"`
	Session     *session.Info   `json:"session"`
	Locked      bool            `json:"locked"`
	Subscribers int             `json:"subscribers"`
	Published   uint64          `json:"published"`
	Dropped     uint64          `json:"dropped"`
	Host        hostinfo.Info   `json:"host"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Devices:     make([]device.Status, 0, len(s.devices)),
		Locked:      s.sessions.Locked(),
		Subscribers: s.broadcaster.Count(),
		Host:        hostinfo.Collect(s.dataDir),
	}
	st.Published, st.Dropped = s.broadcaster.Stats()
	for _, d := range s.devices {
		st.Devices = append(st.Devices, d.Status())
	}
	if info, ok := s.sessions.Current(); ok {
		st.Session = &info
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Addr formats a listen address.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
