package client

import (
	"encoding/json"
	"sort"
	"time"
)

// Event is one live sample as published on /ws.
type Event struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Point is one plottable value.
type Point struct {
	Channel string
	Value   float64
}

// Points flattens the event value. A scalar becomes one point on the
// stream's channel; an object becomes one point per field, named
// <stream>.<field>, in field order.
func (e Event) Points() []Point {
	if len(e.Value) == 0 || string(e.Value) == "null" {
		return nil
	}
	var scalar float64
	if err := json.Unmarshal(e.Value, &scalar); err == nil {
		return []Point{{Channel: e.Type, Value: scalar}}
	}
	var fields map[string]float64
	if err := json.Unmarshal(e.Value, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	out := make([]Point, 0, len(fields))
	for f, v := range fields {
		out = append(out, Point{Channel: e.Type + "." + f, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Status mirrors /api/status.
type Status struct {
	Devices     []DeviceStatus `json:"devices"`
	Session     *SessionInfo   `json:"session"`
	Locked      bool           `json:"locked"`
	Subscribers int            `json:"subscribers"`
	Published   uint64         `json:"published"`
	Dropped     uint64         `json:"dropped"`
	Host        HostInfo       `json:"host"`
}

type DeviceStatus struct {
	ID      string `json:"id"`
	Family  string `json:"family"`
	Label   string `json:"label"`
	State   string `json:"state"`
	Retries int    `json:"retries"`
	Health  struct {
		Status    string `json:"status"`
		LastError string `json:"lastError"`
	} `json:"health"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"createdAt"`
}

type HostInfo struct {
	DiskFree        uint64  `json:"diskFree"`
	DiskUsedPercent float64 `json:"diskUsedPercent"`
	MemUsedPercent  float64 `json:"memUsedPercent"`
}
