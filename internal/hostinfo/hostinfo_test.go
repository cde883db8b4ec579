package hostinfo

import "testing"

func TestCollectMissingDirReportsError(t *testing.T) {
	info := Collect("/nonexistent/sencol/data")
	if len(info.Errors) == 0 {
		t.Fatal("expected a disk error for a missing directory")
	}
	if info.LowDisk(1) {
		t.Error("unreadable volume reported as low on disk")
	}
}

func TestCollectTempDir(t *testing.T) {
	info := Collect(t.TempDir())
	if info.DiskTotal == 0 {
		t.Skipf("disk usage unavailable: %v", info.Errors)
	}
	if info.DiskFree > info.DiskTotal {
		t.Errorf("DiskFree = %d > DiskTotal = %d", info.DiskFree, info.DiskTotal)
	}
	if info.Goroutines < 1 {
		t.Errorf("Goroutines = %d, want >= 1", info.Goroutines)
	}
}

func TestLowDisk(t *testing.T) {
	tests := []struct {
		info Info
		min  uint64
		want bool
	}{
		{Info{DiskTotal: 100, DiskFree: 10}, 20, true},
		{Info{DiskTotal: 100, DiskFree: 30}, 20, false},
		{Info{}, 20, false},
	}
	for _, tt := range tests {
		if got := tt.info.LowDisk(tt.min); got != tt.want {
			t.Errorf("LowDisk(%+v, %d) = %v, want %v", tt.info, tt.min, got, tt.want)
		}
	}
}
