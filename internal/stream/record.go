package stream

import (
	"fmt"
	"math"
	"strconv"
)

// Key identifies one declared stream: a kind produced by a labelled device.
// The label distinguishes several devices of the same family (for example
// left and right wristbands) and is empty when a family has one device.
type Key struct {
	Label string
	Kind  Kind
}

// String is the stream name used on the live feed, e.g. "ecg" or "R.acc".
func (k Key) String() string {
	if k.Label == "" {
		return k.Kind.String()
	}
	return k.Label + "." + k.Kind.String()
}

// FileName returns the log file name for this stream within a session.
func (k Key) FileName(sessionID string) string {
	name := k.Kind.Family().Tag()
	if k.Label != "" {
		name += "_" + k.Label
	}
	return fmt.Sprintf("%s_%s_%s.csv", name, k.Kind, sessionID)
}

// Keys expands a device into the stream keys of its family.
func Keys(f Family, label string) []Key {
	kinds := f.Kinds()
	out := make([]Key, len(kinds))
	for i, k := range kinds {
		out[i] = Key{Label: label, Kind: k}
	}
	return out
}

// Record is one decoded sample. Values are in the order of Kind.Fields and
// must not be modified after the record is produced.
type Record struct {
	Key       Key
	Timestamp float64 // seconds, device clock
	Values    []float64
}

// Validate checks the value count against the kind's schema. NaN and
// infinities are rejected because the live feed cannot encode them.
func (r Record) Validate() error {
	if !r.Key.Kind.valid() {
		return fmt.Errorf("record for unknown stream kind %d", int(r.Key.Kind))
	}
	if want := len(kinds[r.Key.Kind].fields); len(r.Values) != want {
		return fmt.Errorf("stream %s: got %d values, schema has %d", r.Key, len(r.Values), want)
	}
	if !finite(r.Timestamp) {
		return fmt.Errorf("stream %s: timestamp %v is not finite", r.Key, r.Timestamp)
	}
	for i, v := range r.Values {
		if !finite(v) {
			return fmt.Errorf("stream %s: value %d is %v", r.Key, i, v)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Row renders the record as CSV cells in schema order.
func (r Record) Row() []string {
	row := make([]string, 0, len(r.Values)+1)
	row = append(row, FormatFloat(r.Timestamp))
	for _, v := range r.Values {
		row = append(row, FormatFloat(v))
	}
	return row
}

// FormatFloat is the cell encoding used by stream logs.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Event is the normalized live message sent to subscribers.
type Event struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
	Value     any     `json:"value"`
}

// Event converts the record into its live representation. Single-field
// kinds carry the bare value; multi-field kinds carry a field→value object.
func (r Record) Event() Event {
	ev := Event{Type: r.Key.String(), Timestamp: r.Timestamp}
	fields := r.Key.Kind.Fields()
	switch {
	case len(r.Values) == 0:
	case len(fields) == 1 && len(r.Values) == 1:
		ev.Value = r.Values[0]
	default:
		m := make(map[string]float64, len(r.Values))
		for i, v := range r.Values {
			if i < len(fields) {
				m[fields[i]] = v
			}
		}
		ev.Value = m
	}
	return ev
}
