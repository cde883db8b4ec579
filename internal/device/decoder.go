package device

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/sencol/hub/internal/stream"
)

// Decoder turns raw transport bytes into records. Implementations keep
// partial units between calls and report each malformed unit as a
// *ProtocolError without stopping. Reset discards partial state when a new
// transport is opened.
type Decoder interface {
	Decode(data []byte) ([]stream.Record, []error)
	Reset()
}

// maxLineLength bounds a partial line kept between Decode calls.
const maxLineLength = 64 << 10

// LineDecoder decodes newline-terminated text units of the form
//
//	<kind>,<timestamp>,<v1>,...,<vn>
//
// as produced by TCP bridges and the simulated devices. Kinds are resolved
// within Family.
type LineDecoder struct {
	Family  stream.Family
	pending []byte
}

// NewLineDecoder returns a decoder for family.
func NewLineDecoder(family stream.Family) *LineDecoder {
	return &LineDecoder{Family: family}
}

func (d *LineDecoder) Reset() { d.pending = d.pending[:0] }

func (d *LineDecoder) Decode(data []byte) ([]stream.Record, []error) {
	d.pending = append(d.pending, data...)

	var recs []stream.Record
	var errs []error
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(d.pending[:i]), "\r")
		d.pending = d.pending[i+1:]
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := d.parse(line)
		if err != nil {
			errs = append(errs, &ProtocolError{Unit: line, Err: err})
			continue
		}
		recs = append(recs, rec)
	}

	if len(d.pending) > maxLineLength {
		errs = append(errs, &ProtocolError{Unit: string(d.pending[:32]) + "...", Err: errors.New("line too long")})
		d.pending = d.pending[:0]
	}
	// Compact so the backing array does not grow without bound.
	d.pending = append([]byte(nil), d.pending...)
	return recs, errs
}

func (d *LineDecoder) parse(line string) (stream.Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return stream.Record{}, errors.New("missing timestamp")
	}
	kind, err := stream.ParseKind(d.Family, strings.TrimSpace(parts[0]))
	if err != nil {
		return stream.Record{}, err
	}
	ts, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return stream.Record{}, err
	}
	values := make([]float64, 0, len(parts)-2)
	for _, p := range parts[2:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return stream.Record{}, err
		}
		values = append(values, v)
	}
	rec := stream.Record{Key: stream.Key{Kind: kind}, Timestamp: ts, Values: values}
	if err := rec.Validate(); err != nil {
		return stream.Record{}, err
	}
	return rec, nil
}

// FormatLine renders rec in the LineDecoder format.
func FormatLine(rec stream.Record) string {
	return rec.Key.Kind.String() + "," + strings.Join(rec.Row(), ",") + "\n"
}
