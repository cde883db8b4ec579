// Package hostinfo reports host resources relevant to a recording hub:
// free space on the data volume and memory pressure.
package hostinfo

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Info is a point-in-time snapshot. Fields that could not be read are
// zero and the reason is listed in Errors.
type Info struct {
	DataDir         string   `json:"dataDir"`
	DiskTotal       uint64   `json:"diskTotal"`
	DiskFree        uint64   `json:"diskFree"`
	DiskUsedPercent float64  `json:"diskUsedPercent"`
	MemTotal        uint64   `json:"memTotal"`
	MemUsedPercent  float64  `json:"memUsedPercent"`
	ProcessRSS      uint64   `json:"processRss"`
	Goroutines      int      `json:"goroutines"`
	Errors          []string `json:"errors,omitempty"`
}

// Collect samples disk usage for dataDir, system memory, and this
// process's resident set size.
func Collect(dataDir string) Info {
	info := Info{DataDir: dataDir, Goroutines: runtime.NumGoroutine()}

	if u, err := disk.Usage(dataDir); err != nil {
		info.Errors = append(info.Errors, "disk: "+err.Error())
	} else {
		info.DiskTotal = u.Total
		info.DiskFree = u.Free
		info.DiskUsedPercent = u.UsedPercent
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		info.Errors = append(info.Errors, "memory: "+err.Error())
	} else {
		info.MemTotal = vm.Total
		info.MemUsedPercent = vm.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err != nil {
		info.Errors = append(info.Errors, "process: "+err.Error())
	} else if mi, err := p.MemoryInfo(); err != nil {
		info.Errors = append(info.Errors, "process: "+err.Error())
	} else {
		info.ProcessRSS = mi.RSS
	}
	return info
}

// LowDisk reports whether free space has dropped below minFree bytes.
// An unreadable volume is not reported as low.
func (i Info) LowDisk(minFree uint64) bool {
	return i.DiskTotal > 0 && i.DiskFree < minFree
}
