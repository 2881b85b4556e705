// Package fake provides an in-memory resource provider for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/fentz26/hivemind/internal/resource"
)

// Provider returns configured utilization values.
type Provider struct {
	mu      sync.Mutex
	cpu     resource.CPUSample
	mem     resource.MemorySample
	err     error
	block   bool
	samples int
}

var _ resource.Provider = &Provider{}

// NewProvider returns a provider reporting the given CPU and RAM usage
// fractions on a 16 GiB host with four cores.
func NewProvider(cpu, ram float64) *Provider {
	p := &Provider{}
	p.Set(cpu, ram)
	return p
}

// Set changes the reported CPU and RAM usage fractions.
func (p *Provider) Set(cpu, ram float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const total = 16 << 30
	p.cpu = resource.CPUSample{Total: cpu, PerCore: []float64{cpu, cpu, cpu, cpu}}
	p.mem = resource.MemorySample{
		TotalBytes:     total,
		AvailableBytes: uint64(float64(total) * (1 - ram)),
	}
}

// SetError makes every sample fail with err. A nil err clears it.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetBlocking makes CPU sampling wait until the context is done.
func (p *Provider) SetBlocking(block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = block
}

// Samples returns how many CPU samples were taken.
func (p *Provider) Samples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}

func (p *Provider) SampleCPU(ctx context.Context, _ time.Duration) (resource.CPUSample, error) {
	p.mu.Lock()
	p.samples++
	block, err, cpu := p.block, p.err, p.cpu
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return resource.CPUSample{}, ctx.Err()
	}
	if err != nil {
		return resource.CPUSample{}, err
	}
	return cpu, nil
}

func (p *Provider) Memory(_ context.Context) (resource.MemorySample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return resource.MemorySample{}, p.err
	}
	return p.mem, nil
}
