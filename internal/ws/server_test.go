package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/device"
	"github.com/sencol/hub/internal/session"
)

type fakeController struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func (f *fakeController) Handle(payload []byte) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, string(payload))
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

type fakeDevice struct{ id string }

func (d fakeDevice) ID() string { return d.id }
func (d fakeDevice) Windows() map[string][]float64 {
	return map[string][]float64{"ecg": {1, 2, 3}}
}
func (d fakeDevice) Status() device.Status {
	return device.Status{ID: d.id, Family: "bioharness", State: device.Connected}
}

type fakeSessions struct{}

func (fakeSessions) Current() (session.Info, bool) {
	return session.Info{ID: "P01_T1_20260101_120000"}, true
}
func (fakeSessions) Locked() bool { return true }

func newTestServer(t *testing.T) (*Server, *fakeController, *httptest.Server) {
	t.Helper()
	ctrl := &fakeController{got: make(chan struct{}, 4)}
	s := NewServer(ServerOptions{
		Broadcaster: NewBroadcaster(zerolog.Nop()),
		Controller:  ctrl,
		Sessions:    fakeSessions{},
		Devices:     []Device{fakeDevice{id: "bio"}},
		DataDir:     t.TempDir(),
		Logger:      zerolog.Nop(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ctrl, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestLiveFeed(t *testing.T) {
	s, _, ts := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.broadcaster.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.broadcaster.Publish(ecgEvent(1.5, 42))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := `{"type":"ecg","timestamp":1.5,"value":42}`; string(msg) != want {
		t.Errorf("message = %s, want %s", msg, want)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for s.broadcaster.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestControlChannel(t *testing.T) {
	_, ctrl, ts := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/control"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cmd := `{"type":"LOG","subject":"P01","name":"T1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctrl.got:
	case <-time.After(2 * time.Second):
		t.Fatal("command never reached the controller")
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.msgs) != 1 || ctrl.msgs[0] != cmd {
		t.Errorf("controller got %v", ctrl.msgs)
	}
}

func TestControlPost(t *testing.T) {
	_, ctrl, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(`{"type":"STOP_LOG"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	<-ctrl.got

	resp, err = http.Get(ts.URL + "/api/control")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestWindowsAndStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/windows")
	if err != nil {
		t.Fatal(err)
	}
	var windows map[string]map[string][]float64
	if err := json.NewDecoder(resp.Body).Decode(&windows); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := windows["bio"]["ecg"]; len(got) != 3 || got[2] != 3 {
		t.Errorf("windows = %v", windows)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, err = http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var st struct {
		Devices []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"devices"`
		Session *struct {
			ID string `json:"id"`
		} `json:"session"`
		Locked bool `json:"locked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(st.Devices) != 1 || st.Devices[0].ID != "bio" || st.Devices[0].State != "connected" {
		t.Errorf("devices = %+v", st.Devices)
	}
	if st.Session == nil || st.Session.ID != "P01_T1_20260101_120000" || !st.Locked {
		t.Errorf("session = %+v locked = %v", st.Session, st.Locked)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"localhost", nil, "http://localhost:3000", true},
		{"loopback", nil, "http://127.0.0.1:9000", true},
		{"foreign", nil, "http://evil.example", false},
		{"allowed list", []string{"https://lab.example"}, "https://lab.example", true},
		{"not in list", []string{"https://lab.example"}, "http://localhost:3000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(ServerOptions{AllowedOrigins: tt.allowed, Logger: zerolog.Nop()})
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
