package system

import (
	"context"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a snapshot of process and host resource usage for the run report.
type Stats struct {
	RSS          uint64  `json:"rss_bytes"`
	CPUPercent   float64 `json:"cpu_percent"`
	HostMemUsed  float64 `json:"host_mem_used_percent"`
	HostMemTotal uint64  `json:"host_mem_total_bytes"`
	Goroutines   int     `json:"goroutines"`
	LogicalCPUs  int     `json:"logical_cpus"`
}

func CollectStats(ctx context.Context) (Stats, error) {
	s := Stats{
		Goroutines:  runtime.NumGoroutine(),
		LogicalCPUs: runtime.NumCPU(),
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return s, errors.Wrap(err, "failed to inspect process")
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
		s.RSS = mi.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, errors.Wrap(err, "failed to read host memory")
	}
	s.HostMemUsed = vm.UsedPercent
	s.HostMemTotal = vm.Total
	return s, nil
}
