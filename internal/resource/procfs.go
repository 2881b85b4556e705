package resource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/procfs"
)

// ProcProvider reads CPU and memory usage from the Linux /proc filesystem.
type ProcProvider struct {
	fs procfs.FS
}

// NewProcProvider returns a provider over the default /proc mount.
func NewProcProvider() (*ProcProvider, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcProvider{fs: fs}, nil
}

// NewProcProviderAt returns a provider over a /proc mount at mountPoint.
func NewProcProviderAt(mountPoint string) (*ProcProvider, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs at %s: %w", mountPoint, err)
	}
	return &ProcProvider{fs: fs}, nil
}

func (p *ProcProvider) SampleCPU(ctx context.Context, interval time.Duration) (CPUSample, error) {
	before, err := p.fs.Stat()
	if err != nil {
		return CPUSample{}, fmt.Errorf("read stat: %w", err)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return CPUSample{}, ctx.Err()
	case <-timer.C:
	}

	after, err := p.fs.Stat()
	if err != nil {
		return CPUSample{}, fmt.Errorf("read stat: %w", err)
	}

	prev := make(map[int64]procfs.CPUStat, len(before.CPU))
	for id, c := range before.CPU {
		prev[int64(id)] = c
	}
	ids := make([]int64, 0, len(after.CPU))
	cur := make(map[int64]procfs.CPUStat, len(after.CPU))
	for id, c := range after.CPU {
		ids = append(ids, int64(id))
		cur[int64(id)] = c
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	sample := CPUSample{
		Total:   cpuUtilization(before.CPUTotal, after.CPUTotal),
		PerCore: make([]float64, 0, len(ids)),
	}
	for _, id := range ids {
		sample.PerCore = append(sample.PerCore, cpuUtilization(prev[id], cur[id]))
	}

	return sample, nil
}

func (p *ProcProvider) Memory(ctx context.Context) (MemorySample, error) {
	if err := ctx.Err(); err != nil {
		return MemorySample{}, err
	}

	mi, err := p.fs.Meminfo()
	if err != nil {
		return MemorySample{}, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil {
		return MemorySample{}, fmt.Errorf("meminfo has no MemTotal")
	}

	var availKB uint64
	switch {
	case mi.MemAvailable != nil:
		availKB = *mi.MemAvailable
	default:
		// Kernels older than 3.14 don't report MemAvailable.
		for _, v := range []*uint64{mi.MemFree, mi.Buffers, mi.Cached} {
			if v != nil {
				availKB += *v
			}
		}
	}

	return MemorySample{
		TotalBytes:     *mi.MemTotal * 1024,
		AvailableBytes: availKB * 1024,
	}, nil
}

// cpuUtilization returns the busy share of jiffies elapsed between two readings.
func cpuUtilization(a, b procfs.CPUStat) float64 {
	idle := (b.Idle + b.Iowait) - (a.Idle + a.Iowait)
	total := cpuTotal(b) - cpuTotal(a)
	if total <= 0 {
		return 0
	}
	u := (total - idle) / total
	switch {
	case u < 0:
		return 0
	case u > 1:
		return 1
	}
	return u
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}
