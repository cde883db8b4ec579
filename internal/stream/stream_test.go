package stream

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestFamilyKinds(t *testing.T) {
	got := Bioharness.Kinds()
	want := []Kind{BioSummary, BioBreathing, BioECG, BioRR, BioAcceleration}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bioharness.Kinds() = %v, want %v", got, want)
	}
	for _, k := range E4.Kinds() {
		if k.Family() != E4 {
			t.Errorf("kind %s reports family %s", k, k.Family())
		}
	}
}

func TestColumnsStartWithTimestamp(t *testing.T) {
	for _, f := range []Family{Bioharness, E4} {
		for _, k := range f.Kinds() {
			cols := k.Columns()
			if len(cols) == 0 || cols[0] != "timestamp" {
				t.Errorf("%s columns = %v, want timestamp first", k, cols)
			}
		}
	}
	if got := BioECG.Columns(); !reflect.DeepEqual(got, []string{"timestamp", "sample"}) {
		t.Errorf("ecg columns = %v", got)
	}
}

func TestChannels(t *testing.T) {
	tests := []struct {
		kind Kind
		want []string
	}{
		{BioECG, []string{"ecg"}},
		{BioAcceleration, []string{"acceleration_x", "acceleration_y", "acceleration_z"}},
		{E4Acc, []string{"acc_x", "acc_y", "acc_z"}},
	}
	for _, tt := range tests {
		if got := tt.kind.Channels(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Channels() = %v, want %v", tt.kind, got, tt.want)
		}
	}
	if !BioAcceleration.IsVector() || BioECG.IsVector() {
		t.Error("IsVector mismatch")
	}
}

func TestDefaultBuffersCoverDeclaredChannels(t *testing.T) {
	bufs := Bioharness.DefaultBuffers()
	want := map[string]int{
		"rr": 18, "ecg": 250, "breathing": 25,
		"acceleration_x": 100, "acceleration_y": 100, "acceleration_z": 100,
	}
	if !reflect.DeepEqual(bufs, want) {
		t.Errorf("DefaultBuffers() = %v, want %v", bufs, want)
	}
	bufs["ecg"] = 1
	if Bioharness.DefaultBuffers()["ecg"] != 250 {
		t.Error("DefaultBuffers returned shared map")
	}
}

func TestParse(t *testing.T) {
	f, err := ParseFamily("BioHarness")
	if err != nil || f != Bioharness {
		t.Fatalf("ParseFamily = %v, %v", f, err)
	}
	if _, err := ParseFamily("muse"); err == nil {
		t.Error("ParseFamily(muse) returned nil error")
	}
	k, err := ParseKind(E4, "gsr")
	if err != nil || k != E4GSR {
		t.Errorf("ParseKind(e4, gsr) = %v, %v", k, err)
	}
	if _, err := ParseKind(Bioharness, "gsr"); err == nil {
		t.Error("ParseKind(bioharness, gsr) returned nil error")
	}
}

func TestKeyNaming(t *testing.T) {
	bio := Key{Kind: BioECG}
	if got := bio.String(); got != "ecg" {
		t.Errorf("String() = %q", got)
	}
	if got := bio.FileName("P01_T1_20240101_120000"); got != "BIO_ecg_P01_T1_20240101_120000.csv" {
		t.Errorf("FileName() = %q", got)
	}
	e4 := Key{Label: "R", Kind: E4Acc}
	if got := e4.String(); got != "R.acc" {
		t.Errorf("String() = %q", got)
	}
	if got := e4.FileName("S"); got != "E4_R_acc_S.csv" {
		t.Errorf("FileName() = %q", got)
	}
}

func TestRecordValidate(t *testing.T) {
	ok := Record{Key: Key{Kind: BioAcceleration}, Values: []float64{1, 2, 3}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	bad := Record{Key: Key{Kind: BioAcceleration}, Values: []float64{1}}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() with short values returned nil")
	}
	if err := (Record{}).Validate(); err == nil {
		t.Error("Validate() with zero kind returned nil")
	}
	for _, r := range []Record{
		{Key: Key{Kind: BioECG}, Values: []float64{math.NaN()}},
		{Key: Key{Kind: BioECG}, Values: []float64{math.Inf(1)}},
		{Key: Key{Kind: BioECG}, Timestamp: math.Inf(-1), Values: []float64{1}},
	} {
		if err := r.Validate(); err == nil {
			t.Errorf("Validate(%v, %v) returned nil", r.Timestamp, r.Values)
		}
	}
}

func TestRecordRow(t *testing.T) {
	r := Record{Key: Key{Kind: BioECG}, Timestamp: 12.5, Values: []float64{512}}
	if got := r.Row(); !reflect.DeepEqual(got, []string{"12.5", "512"}) {
		t.Errorf("Row() = %v", got)
	}
}

func TestRecordEvent(t *testing.T) {
	scalar := Record{Key: Key{Kind: BioECG}, Timestamp: 1.5, Values: []float64{7}}
	data, err := json.Marshal(scalar.Event())
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != `{"type":"ecg","timestamp":1.5,"value":7}` {
		t.Errorf("scalar event = %s", got)
	}

	vec := Record{Key: Key{Label: "L", Kind: E4Acc}, Timestamp: 2, Values: []float64{1, 2, 3}}
	ev := vec.Event()
	m, ok := ev.Value.(map[string]float64)
	if !ok {
		t.Fatalf("vector value type %T", ev.Value)
	}
	if ev.Type != "L.acc" || m["x"] != 1 || m["y"] != 2 || m["z"] != 3 {
		t.Errorf("vector event = %+v", ev)
	}

	tag := Record{Key: Key{Kind: E4Tag}, Timestamp: 3}
	if tag.Event().Value != nil {
		t.Errorf("tag event value = %v, want nil", tag.Event().Value)
	}
}
