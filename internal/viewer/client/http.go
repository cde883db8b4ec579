package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient reads status and sends control commands.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient targets a base URL such as "http://127.0.0.1:8080".
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches /api/status.
func (c *HTTPClient) Status() (*Status, error) {
	var s Status
	if err := c.get("/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Windows fetches /api/windows.
func (c *HTTPClient) Windows() (map[string]map[string][]float64, error) {
	var w map[string]map[string][]float64
	if err := c.get("/api/windows", &w); err != nil {
		return nil, err
	}
	return w, nil
}

// StartLog asks the hub to begin a session for subject and test name.
func (c *HTTPClient) StartLog(subject, name string) error {
	return c.control(map[string]string{"type": "LOG", "subject": subject, "name": name})
}

// StopLog asks the hub to pause recording.
func (c *HTTPClient) StopLog() error {
	return c.control(map[string]string{"type": "STOP_LOG"})
}

func (c *HTTPClient) control(cmd map[string]string) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+"/api/control", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("control %s: %s: %s", cmd["type"], resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *HTTPClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPBase converts ws://host:port/ws to http://host:port.
func HTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
