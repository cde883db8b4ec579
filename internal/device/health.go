package device

import (
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus summarizes a device link for diagnostics.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// health tracks consecutive connect failures and protocol errors for one
// device. Fields are protected by mu because the connection's transport
// goroutines write them while the status endpoint reads them.
type health struct {
	mu                  sync.Mutex
	attempts            int
	consecutiveFailures int
	protocolErrors      int // since the last successful connect
	samples             uint64
	lastErr             string
	lastErrAt           time.Time
	lastConnected       time.Time
}

func (h *health) recordAttempt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
}

func (h *health) recordConnected(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.protocolErrors = 0
	h.lastConnected = at
}

func (h *health) recordFailure(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err.Error()
	h.lastErrAt = at
}

func (h *health) recordLoss(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErr = err.Error()
	h.lastErrAt = at
}

func (h *health) recordProtocolError(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.protocolErrors++
	h.lastErr = err.Error()
	h.lastErrAt = at
}

func (h *health) recordSamples(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples += uint64(n)
}

// HealthSnapshot is a consistent copy of the health counters.
type HealthSnapshot struct {
	Status              HealthStatus `json:"status"`
	Attempts            int          `json:"attempts"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	ProtocolErrors      int          `json:"protocolErrors"`
	Samples             uint64       `json:"samples"`
	LastError           string       `json:"lastError,omitempty"`
	LastErrorAt         time.Time    `json:"lastErrorAt,omitempty"`
	LastConnected       time.Time    `json:"lastConnected,omitempty"`
}

func (h *health) snapshot(threshold int) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HealthSnapshot{
		Status:              StatusHealthy,
		Attempts:            h.attempts,
		ConsecutiveFailures: h.consecutiveFailures,
		ProtocolErrors:      h.protocolErrors,
		Samples:             h.samples,
		LastError:           h.lastErr,
		LastErrorAt:         h.lastErrAt,
		LastConnected:       h.lastConnected,
	}
	switch {
	case h.consecutiveFailures >= threshold:
		s.Status = StatusFailed
	case h.consecutiveFailures > 0 || h.protocolErrors >= threshold:
		s.Status = StatusDegraded
	}
	return s
}

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ShuttingDown
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	ShuttingDown: "shutting_down",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
