// Package stream declares the closed set of sensor stream kinds, their
// column schemas, and the records and live events that flow through the hub.
package stream

import (
	"fmt"
	"strings"
)

// Family identifies a device family. Each family declares the stream kinds
// its devices produce.
type Family int

const (
	Bioharness Family = iota + 1
	E4
)

type familySpec struct {
	name    string
	tag     string // file name prefix
	buffers map[string]int
}

var families = map[Family]familySpec{
	Bioharness: {
		name: "bioharness",
		tag:  "BIO",
		buffers: map[string]int{
			"rr":             18,
			"ecg":            250,
			"breathing":      25,
			"acceleration_x": 100,
			"acceleration_y": 100,
			"acceleration_z": 100,
		},
	},
	E4: {
		name: "e4",
		tag:  "E4",
		buffers: map[string]int{
			"bvp":   256,
			"gsr":   16,
			"tmp":   16,
			"hr":    18,
			"ibi":   18,
			"acc_x": 128,
			"acc_y": 128,
			"acc_z": 128,
		},
	},
}

func (f Family) String() string {
	if s, ok := families[f]; ok {
		return s.name
	}
	return "unknown"
}

// Tag is the prefix used in log file names.
func (f Family) Tag() string { return families[f].tag }

// Kinds returns the family's stream kinds in declaration order.
func (f Family) Kinds() []Kind {
	var out []Kind
	for k := Kind(1); k < kindEnd; k++ {
		if kinds[k].family == f {
			out = append(out, k)
		}
	}
	return out
}

// DefaultBuffers returns a fresh copy of the family's ring-buffer
// capacities keyed by channel.
func (f Family) DefaultBuffers() map[string]int {
	out := make(map[string]int, len(families[f].buffers))
	for k, v := range families[f].buffers {
		out[k] = v
	}
	return out
}

// ParseFamily resolves a configured family name.
func ParseFamily(name string) (Family, error) {
	for f, s := range families {
		if strings.EqualFold(s.name, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown device family %q", name)
}

// Kind is one stream kind. The set is closed: every Kind carries its schema
// as data, so there is no runtime lookup by tag that can miss.
type Kind int

const (
	BioSummary Kind = iota + 1
	BioBreathing
	BioECG
	BioRR
	BioAcceleration
	E4Acc
	E4BVP
	E4GSR
	E4IBI
	E4HR
	E4Temperature
	E4Battery
	E4Tag
	kindEnd
)

type kindSpec struct {
	family  Family
	name    string
	fields  []string // value columns, after timestamp
	axes    []string // sub-channel suffixes for vector kinds
	primary int      // value index buffered for scalar kinds, -1 for none
}

var kinds = [kindEnd]kindSpec{
	BioSummary: {
		family: Bioharness,
		name:   "summary",
		fields: []string{
			"heart_rate", "respiration_rate", "skin_temperature", "posture",
			"activity", "peak_acceleration", "battery_voltage",
			"heart_rate_variability", "ecg_amplitude", "ecg_noise",
			"heart_rate_unreliable", "respiration_rate_unreliable",
		},
		primary: 0,
	},
	BioBreathing:    {family: Bioharness, name: "breathing", fields: []string{"sample"}},
	BioECG:          {family: Bioharness, name: "ecg", fields: []string{"sample"}},
	BioRR:           {family: Bioharness, name: "rr", fields: []string{"sample"}},
	BioAcceleration: {family: Bioharness, name: "acceleration", fields: []string{"sample_x", "sample_y", "sample_z"}, axes: []string{"x", "y", "z"}},
	E4Acc:           {family: E4, name: "acc", fields: []string{"x", "y", "z"}, axes: []string{"x", "y", "z"}},
	E4BVP:           {family: E4, name: "bvp", fields: []string{"bvp"}},
	E4GSR:           {family: E4, name: "gsr", fields: []string{"gsr"}},
	E4IBI:           {family: E4, name: "ibi", fields: []string{"ibi"}},
	E4HR:            {family: E4, name: "hr", fields: []string{"hr"}},
	E4Temperature:   {family: E4, name: "tmp", fields: []string{"temperature"}},
	E4Battery:       {family: E4, name: "bat", fields: []string{"level"}},
	E4Tag:           {family: E4, name: "tag", primary: -1},
}

func (k Kind) valid() bool { return k > 0 && k < kindEnd }

func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return kinds[k].name
}

// Family returns the family that declares k.
func (k Kind) Family() Family {
	if !k.valid() {
		return 0
	}
	return kinds[k].family
}

// Fields returns the value column names, excluding the timestamp.
func (k Kind) Fields() []string {
	if !k.valid() {
		return nil
	}
	return append([]string(nil), kinds[k].fields...)
}

// Columns returns the full column schema: timestamp first, then Fields.
func (k Kind) Columns() []string {
	return append([]string{"timestamp"}, k.Fields()...)
}

// IsVector reports whether samples of k are split across per-axis buffers.
func (k Kind) IsVector() bool {
	return k.valid() && len(kinds[k].axes) > 0
}

// Channels returns the ring-buffer channel names fed by k: one per axis
// for vector kinds, otherwise the kind name itself.
func (k Kind) Channels() []string {
	if !k.valid() {
		return nil
	}
	def := kinds[k]
	if len(def.axes) == 0 {
		return []string{def.name}
	}
	out := make([]string, len(def.axes))
	for i, a := range def.axes {
		out[i] = def.name + "_" + a
	}
	return out
}

// Primary returns the index of the value buffered for a scalar kind, or -1
// when the kind carries no value.
func (k Kind) Primary() int {
	if !k.valid() {
		return -1
	}
	if len(kinds[k].fields) == 0 {
		return -1
	}
	return kinds[k].primary
}

// ParseKind resolves a kind name within a family.
func ParseKind(f Family, name string) (Kind, error) {
	for _, k := range f.Kinds() {
		if kinds[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("family %s has no stream kind %q", f, name)
}
