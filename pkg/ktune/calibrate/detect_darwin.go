//go:build darwin

package calibrate

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Detect queries platform capabilities and builds a hardware profile.
// On darwin it uses sysctl for core counts, memory, and CPU frequency.
func Detect() (types.HardwareProfile, error) {
	profile := types.HardwareProfile{
		LogicalCores: runtime.NumCPU(),
		Caps:         make(map[string]any),
	}

	physical, err := unix.SysctlUint32("hw.physicalcpu")
	if err != nil {
		return profile, fmt.Errorf("sysctl hw.physicalcpu: %w", err)
	}
	profile.PhysicalCores = int(physical)

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return profile, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	profile.TotalMemory = int64(memsize)

	// Frequency sysctls are absent on Apple Silicon; leave zero when
	// unavailable.
	if freq, err := unix.SysctlUint64("hw.cpufrequency_max"); err == nil {
		profile.MaxFrequencyMHz = float64(freq) / 1e6
	}
	if freq, err := unix.SysctlUint64("hw.cpufrequency_min"); err == nil {
		profile.MinFrequencyMHz = float64(freq) / 1e6
	}

	profile.Caps["smt"] = profile.LogicalCores > profile.PhysicalCores
	if l3, err := unix.SysctlUint64("hw.l3cachesize"); err == nil && l3 > 0 {
		profile.Caps["cache_l3_bytes"] = int64(l3)
	}

	return profile, nil
}
