package device

import (
	"errors"
	"strings"
	"testing"

	"github.com/sencol/hub/internal/stream"
)

func TestLineDecoderSplitsAcrossChunks(t *testing.T) {
	d := NewLineDecoder(stream.Bioharness)

	recs, errs := d.Decode([]byte("breathing,10.5,"))
	if len(recs) != 0 || len(errs) != 0 {
		t.Fatalf("partial line decoded: %v %v", recs, errs)
	}
	recs, errs = d.Decode([]byte("812\r\nrr,11,0.9\n"))
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %d, want 2", len(recs))
	}
	if recs[0].Key.Kind != stream.BioBreathing || recs[0].Timestamp != 10.5 || recs[0].Values[0] != 812 {
		t.Errorf("first record = %+v", recs[0])
	}
}

func TestLineDecoderReportsProtocolErrors(t *testing.T) {
	d := NewLineDecoder(stream.Bioharness)
	recs, errs := d.Decode([]byte("ecg\nacceleration,1,1,2\n\necg,1,x\necg,2,7\n"))
	if len(recs) != 1 {
		t.Errorf("recs = %d, want 1", len(recs))
	}
	if len(errs) != 3 {
		t.Fatalf("errs = %d, want 3", len(errs))
	}
	for _, err := range errs {
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("error %v is not a ProtocolError", err)
		}
	}
}

func TestLineDecoderRejectsNonFiniteValues(t *testing.T) {
	d := NewLineDecoder(stream.Bioharness)
	recs, errs := d.Decode([]byte("ecg,1,NaN\necg,2,+Inf\necg,-Inf,5\necg,3,7\n"))
	if len(recs) != 1 || recs[0].Values[0] != 7 {
		t.Errorf("recs = %+v, want only the finite sample", recs)
	}
	if len(errs) != 3 {
		t.Errorf("errs = %d, want 3", len(errs))
	}
}

func TestLineDecoderReset(t *testing.T) {
	d := NewLineDecoder(stream.Bioharness)
	d.Decode([]byte("ecg,1,"))
	d.Reset()
	recs, errs := d.Decode([]byte("ecg,2,3\n"))
	if len(recs) != 1 || len(errs) != 0 || recs[0].Timestamp != 2 {
		t.Errorf("after reset: %v %v", recs, errs)
	}
}

func TestLineDecoderBoundsPendingLine(t *testing.T) {
	d := NewLineDecoder(stream.Bioharness)
	_, errs := d.Decode([]byte(strings.Repeat("x", maxLineLength+1)))
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want one line-too-long error", errs)
	}
	recs, _ := d.Decode([]byte("ecg,1,1\n"))
	if len(recs) != 1 {
		t.Error("decoder did not recover after dropping an oversized line")
	}
}

func TestFormatLineRoundTrip(t *testing.T) {
	rec := stream.Record{Key: stream.Key{Kind: stream.BioAcceleration}, Timestamp: 3.25, Values: []float64{-1, 0, 1.5}}
	line := FormatLine(rec)
	if line != "acceleration,3.25,-1,0,1.5\n" {
		t.Fatalf("FormatLine = %q", line)
	}
	recs, errs := NewLineDecoder(stream.Bioharness).Decode([]byte(line))
	if len(errs) != 0 || len(recs) != 1 || recs[0].Values[2] != 1.5 {
		t.Errorf("decode = %v %v", recs, errs)
	}
}
