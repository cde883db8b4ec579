// Package mock simulates sensors for demos and tests. A Generator produces
// plausible physiological waveforms for one device family; a Dialer wraps
// it in a device transport that speaks the line protocol.
package mock

import (
	"math"
	"math/rand"
	"time"

	"github.com/sencol/hub/internal/stream"
)

// rates are nominal sample rates in Hz. Kinds not listed are not emitted.
var rates = map[stream.Kind]float64{
	stream.BioECG:          250,
	stream.BioBreathing:    18,
	stream.BioAcceleration: 50,
	stream.BioRR:           1.2,
	stream.BioSummary:      1,
	stream.E4BVP:           64,
	stream.E4Acc:           32,
	stream.E4GSR:           4,
	stream.E4Temperature:   4,
	stream.E4HR:            1,
	stream.E4IBI:           1.2,
	stream.E4Battery:       1.0 / 60,
}

// Generator emits samples for every kind of one family at its nominal
// rate. It is deterministic for a given seed.
type Generator struct {
	family  stream.Family
	label   string
	rng     *rand.Rand
	t       float64 // seconds since start
	carry   map[stream.Kind]float64
	hr      float64 // beats per minute, drifts slowly
	battery float64
}

func NewGenerator(family stream.Family, label string, seed int64) *Generator {
	return &Generator{
		family:  family,
		label:   label,
		rng:     rand.New(rand.NewSource(seed)),
		carry:   make(map[stream.Kind]float64),
		hr:      72,
		battery: 0.95,
	}
}

// Next advances the simulated clock by dt and returns the samples that
// fall in that interval, grouped by kind in family order.
func (g *Generator) Next(dt time.Duration) []stream.Record {
	span := dt.Seconds()
	var out []stream.Record
	for _, kind := range g.family.Kinds() {
		rate, ok := rates[kind]
		if !ok {
			continue
		}
		g.carry[kind] += rate * span
		n := int(g.carry[kind])
		g.carry[kind] -= float64(n)
		for i := 0; i < n; i++ {
			ts := g.t + span*float64(i)/float64(n)
			out = append(out, stream.Record{
				Key:       stream.Key{Label: g.label, Kind: kind},
				Timestamp: round(ts, 3),
				Values:    g.sample(kind, ts),
			})
		}
	}
	g.t += span
	g.hr += g.rng.NormFloat64() * 0.05 * span
	g.hr = math.Max(55, math.Min(100, g.hr))
	return out
}

func (g *Generator) sample(k stream.Kind, t float64) []float64 {
	beat := 60 / g.hr
	noise := func(s float64) float64 { return g.rng.NormFloat64() * s }
	switch k {
	case stream.BioECG:
		return []float64{round(ecg(math.Mod(t, beat)/beat)*400+512+noise(4), 0)}
	case stream.BioBreathing:
		return []float64{round(2000+600*math.Sin(2*math.Pi*0.25*t)+noise(10), 0)}
	case stream.BioAcceleration:
		return []float64{round(noise(0.02), 3), round(noise(0.02), 3), round(-1+noise(0.02), 3)}
	case stream.BioRR:
		return []float64{round(beat*1000+noise(15), 0)}
	case stream.BioSummary:
		return []float64{
			round(g.hr, 0), round(15+noise(0.5), 1), round(33.5+noise(0.1), 1), 0,
			round(math.Abs(noise(0.03)), 2), round(math.Abs(noise(0.1)), 2), 4.02,
			round(60+noise(5), 0), 0.004, 0.0002, 0, 0,
		}
	case stream.E4BVP:
		return []float64{round(60*math.Sin(2*math.Pi*t/beat)+noise(3), 2)}
	case stream.E4Acc:
		return []float64{round(noise(2), 0), round(noise(2), 0), round(64+noise(2), 0)}
	case stream.E4GSR:
		return []float64{round(0.4+0.05*math.Sin(2*math.Pi*t/90)+noise(0.005), 4)}
	case stream.E4Temperature:
		return []float64{round(33.1+noise(0.02), 2)}
	case stream.E4HR:
		return []float64{round(g.hr, 1)}
	case stream.E4IBI:
		return []float64{round(beat+noise(0.02), 3)}
	case stream.E4Battery:
		g.battery = math.Max(0, g.battery-0.001)
		return []float64{round(g.battery, 3)}
	}
	return nil
}

// ecg approximates one PQRST complex at phase p in [0,1).
func ecg(p float64) float64 {
	wave := func(center, width, amp float64) float64 {
		d := (p - center) / width
		return amp * math.Exp(-d*d)
	}
	return wave(0.15, 0.03, 0.12) + wave(0.28, 0.01, -0.15) + wave(0.3, 0.012, 1) +
		wave(0.32, 0.01, -0.25) + wave(0.55, 0.05, 0.3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
