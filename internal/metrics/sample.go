package metrics

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample is a best-effort point-in-time CPU/memory reading for one
// managed process.
type ProcessSample struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
}

// SampleProcess reads CPU and memory for pid. Any failure yields a zeroed
// sample; callers treat sampling as optional.
func SampleProcess(pid int) ProcessSample {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessSample{}
	}
	var s ProcessSample
	if cpuPct, err := p.CPUPercent(); err == nil {
		s.CPUPercent = cpuPct
	}
	if mi, err := p.MemoryInfo(); err == nil {
		s.MemoryMB = float64(mi.RSS) / 1024 / 1024
	}
	return s
}

// HostInfo summarizes host CPU, memory and disk usage for the system info
// endpoint.
type HostInfo struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskUsedGB    float64 `json:"disk_used_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
}

// SampleHost gathers host usage. Individual probe failures leave the
// corresponding fields zeroed.
func SampleHost() HostInfo {
	var h HostInfo
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		h.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemoryPercent = vm.UsedPercent
		h.MemoryUsedGB = float64(vm.Used) / 1024 / 1024 / 1024
		h.MemoryTotalGB = float64(vm.Total) / 1024 / 1024 / 1024
	}
	if du, err := disk.Usage("/"); err == nil {
		h.DiskPercent = du.UsedPercent
		h.DiskUsedGB = float64(du.Used) / 1024 / 1024 / 1024
		h.DiskTotalGB = float64(du.Total) / 1024 / 1024 / 1024
	}
	return h
}
