package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEventPoints(t *testing.T) {
	tests := []struct {
		raw  string
		want []Point
	}{
		{`{"type":"ecg","timestamp":1,"value":512}`, []Point{{"ecg", 512}}},
		{`{"type":"R.acc","timestamp":1,"value":{"y":2,"x":1,"z":3}}`, []Point{{"R.acc.x", 1}, {"R.acc.y", 2}, {"R.acc.z", 3}}},
		{`{"type":"L.tag","timestamp":1,"value":null}`, nil},
	}
	for _, tt := range tests {
		var ev Event
		if err := json.Unmarshal([]byte(tt.raw), &ev); err != nil {
			t.Fatal(err)
		}
		got := ev.Points()
		if len(got) != len(tt.want) {
			t.Errorf("Points(%s) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Points(%s)[%d] = %v, want %v", tt.raw, i, got[i], tt.want[i])
			}
		}
	}
}

func TestHTTPBase(t *testing.T) {
	tests := map[string]string{
		"ws://10.0.0.5:8080/ws": "http://10.0.0.5:8080",
		"wss://hub.lab/ws":      "https://hub.lab",
		"::bad":                 "http://127.0.0.1:8080",
	}
	for in, want := range tests {
		if got := HTTPBase(in); got != want {
			t.Errorf("HTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestControlCommands(t *testing.T) {
	var bodies []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if r.URL.Path != "/api/control" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	if err := c.StartLog("P01", "T1"); err != nil {
		t.Fatal(err)
	}
	if err := c.StopLog(); err != nil {
		t.Fatal(err)
	}
	if len(bodies) != 2 {
		t.Fatalf("got %d requests", len(bodies))
	}
	var cmd map[string]string
	json.Unmarshal([]byte(bodies[0]), &cmd)
	if cmd["type"] != "LOG" || cmd["subject"] != "P01" || cmd["name"] != "T1" {
		t.Errorf("LOG body = %s", bodies[0])
	}
	if bodies[1] != `{"type":"STOP_LOG"}` {
		t.Errorf("STOP_LOG body = %s", bodies[1])
	}
}

func TestControlErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "LOG requires subject and name", http.StatusBadRequest)
	}))
	defer ts.Close()
	if err := NewHTTPClient(ts.URL).StartLog("", ""); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
