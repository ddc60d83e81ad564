package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// cpuSampleInterval is the window over which CPU utilization is measured.
const cpuSampleInterval = 100 * time.Millisecond

// System reads live CPU, memory, and disk IO metrics from the host.
// It keeps the previous IO counters so successive calls can derive an IO
// busy fraction from the io-time delta.
type System struct {
	mu         sync.Mutex
	lastIOTime uint64
	lastAt     time.Time
}

// NewSystem creates a live system collector.
func NewSystem() *System {
	return &System{}
}

// Collect gathers one sample. CPU is measured over a short interval, so a
// call takes at least cpuSampleInterval; bound it with a context deadline.
func (c *System) Collect(ctx context.Context) (types.Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return types.Sample{}, fmt.Errorf("%w: cpu: %v", types.ErrCollection, err)
	}
	if len(percents) == 0 {
		return types.Sample{}, fmt.Errorf("%w: cpu: no data", types.ErrCollection)
	}
	cpuFrac := percents[0] / 100

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.Sample{}, fmt.Errorf("%w: memory: %v", types.ErrCollection, err)
	}

	ioFrac := c.ioBusyFraction(ctx)

	if err := ctx.Err(); err != nil {
		return types.Sample{}, fmt.Errorf("%w: %v", types.ErrCollection, err)
	}

	return types.Sample{
		LoadFraction: clampFraction(cpuFrac),
		Usage: types.ResourceUsage{
			CPU:    clampFraction(cpuFrac),
			Memory: clampFraction(vm.UsedPercent / 100),
			IO:     clampFraction(ioFrac),
		},
		Timestamp: time.Now(),
	}, nil
}

// ioBusyFraction derives the fraction of wall time the disks were busy
// since the previous call. The first call, and platforms without IO
// counters, report zero.
func (c *System) ioBusyFraction(ctx context.Context) float64 {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil || len(counters) == 0 {
		return 0
	}

	var ioTime uint64
	for _, stat := range counters {
		ioTime += stat.IoTime
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		c.lastIOTime = ioTime
		c.lastAt = now
	}()

	if c.lastAt.IsZero() || ioTime < c.lastIOTime {
		return 0
	}

	elapsed := now.Sub(c.lastAt).Milliseconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(ioTime-c.lastIOTime) / float64(elapsed)
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
