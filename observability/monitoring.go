// Package observability collects process-level health metrics.
package observability

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/process"
)

// Stats is a point-in-time snapshot of the fan-out engine and its process.
type Stats struct {
	Rooms      int
	Sessions   int
	RSSBytes   uint64
	CPUPercent float64
	AllocMb    uint64
	NumGC      uint32
}

// Monitor reads technical metrics (memory, CPU) for the running process.
type Monitor struct {
	proc *process.Process
}

func NewMonitor() (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{proc: p}, nil
}

// Collect merges the given registry occupancy with fresh process metrics.
func (m *Monitor) Collect(rooms, sessions int) (Stats, error) {
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return Stats{}, err
	}
	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		return Stats{}, err
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Stats{
		Rooms:      rooms,
		Sessions:   sessions,
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
		AllocMb:    memStats.Alloc / 1024 / 1024,
		NumGC:      memStats.NumGC,
	}, nil
}
