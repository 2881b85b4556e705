package resource

import (
	"context"
	"time"
)

// CPUSample is the CPU utilization measured over a window, in [0,1].
type CPUSample struct {
	Total   float64
	PerCore []float64
}

// MemorySample is a snapshot of physical memory.
type MemorySample struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// UsedFraction returns the used share of memory in [0,1].
func (m MemorySample) UsedFraction() float64 {
	if m.TotalBytes == 0 || m.AvailableBytes >= m.TotalBytes {
		return 0
	}
	return float64(m.TotalBytes-m.AvailableBytes) / float64(m.TotalBytes)
}

// Provider reads host resource usage.
type Provider interface {
	// SampleCPU measures CPU utilization across interval. It must return
	// early with the context error when ctx is done.
	SampleCPU(ctx context.Context, interval time.Duration) (CPUSample, error)
	Memory(ctx context.Context) (MemorySample, error)
}
