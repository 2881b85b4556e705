package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUUtilization(t *testing.T) {
	tests := map[string]struct {
		a, b procfs.CPUStat
		exp  float64
	}{
		"Half busy.": {
			a:   procfs.CPUStat{User: 100, Idle: 100},
			b:   procfs.CPUStat{User: 150, Idle: 150},
			exp: 0.5,
		},
		"Iowait counts as idle.": {
			a:   procfs.CPUStat{System: 10, Idle: 10, Iowait: 0},
			b:   procfs.CPUStat{System: 40, Idle: 30, Iowait: 50},
			exp: 0.3,
		},
		"Fully busy.": {
			a:   procfs.CPUStat{User: 1, Nice: 1, IRQ: 1, SoftIRQ: 1, Steal: 1},
			b:   procfs.CPUStat{User: 5, Nice: 5, IRQ: 5, SoftIRQ: 5, Steal: 5},
			exp: 1,
		},
		"No elapsed time should be zero.": {
			a:   procfs.CPUStat{User: 10, Idle: 10},
			b:   procfs.CPUStat{User: 10, Idle: 10},
			exp: 0,
		},
		"Counter reset should be zero.": {
			a:   procfs.CPUStat{User: 100, Idle: 100},
			b:   procfs.CPUStat{User: 1, Idle: 1},
			exp: 0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, test.exp, cpuUtilization(test.a, test.b), 1e-9)
		})
	}
}

const statFixture = `cpu  301854 612 111922 8979004 3552 2 3944 0 0 0
cpu0 44490 19 21045 1087069 220 1 3410 0 0 0
cpu1 47869 23 16474 1110787 591 0 46 0 0 0
intr 8885917 17 0 0 0 0 0 0 0 1 79281 0 0 0 0 0 0 0 231237 0 0 0 0 250586 103 0 0
ctxt 38014093
btime 1418183276
processes 26442
procs_running 2
procs_blocked 1
softirq 5057579 250191 1481983 1647 211099 186066 0 1783454 622196 12499 510444
`

const meminfoFixture = `MemTotal:       16384000 kB
MemFree:         1024000 kB
MemAvailable:    4096000 kB
Buffers:          512000 kB
Cached:          2048000 kB
`

func TestProcProvider(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dir, "stat"), []byte(statFixture), 0o644))
	require.NoError(os.WriteFile(filepath.Join(dir, "meminfo"), []byte(meminfoFixture), 0o644))

	p, err := NewProcProviderAt(dir)
	require.NoError(err)

	cpu, err := p.SampleCPU(context.Background(), time.Millisecond)
	require.NoError(err)
	require.Len(cpu.PerCore, 2)
	// Same counters on both reads.
	require.Equal(0.0, cpu.Total)

	mem, err := p.Memory(context.Background())
	require.NoError(err)
	require.Equal(uint64(16384000*1024), mem.TotalBytes)
	require.Equal(uint64(4096000*1024), mem.AvailableBytes)
	require.InDelta(0.75, mem.UsedFraction(), 1e-9)
}

func TestProcProviderHonorsContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(statFixture), 0o644))

	p, err := NewProcProviderAt(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SampleCPU(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
