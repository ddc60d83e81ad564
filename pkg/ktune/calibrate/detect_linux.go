//go:build linux

package calibrate

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Detect queries platform capabilities and builds a hardware profile.
// On linux it uses sysinfo for memory, /proc/cpuinfo for the physical
// core topology, and sysfs cpufreq for the clock range.
func Detect() (types.HardwareProfile, error) {
	profile := types.HardwareProfile{
		LogicalCores: runtime.NumCPU(),
		Caps:         make(map[string]any),
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return profile, fmt.Errorf("sysinfo: %w", err)
	}
	profile.TotalMemory = int64(info.Totalram) * int64(info.Unit)

	physical, err := physicalCoreCount()
	if err != nil {
		// Topology parsing failure is not fatal; the logical count
		// stands in and calibration runs degraded.
		profile.PhysicalCores = 0
	} else {
		profile.PhysicalCores = physical
	}

	profile.MinFrequencyMHz = readCPUFreqMHz("cpuinfo_min_freq")
	profile.MaxFrequencyMHz = readCPUFreqMHz("cpuinfo_max_freq")

	profile.Caps["smt"] = profile.PhysicalCores > 0 && profile.LogicalCores > profile.PhysicalCores

	return profile, nil
}

// physicalCoreCount counts unique (physical id, core id) pairs in
// /proc/cpuinfo.
func physicalCoreCount() (int, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cores := make(map[string]struct{})
	var physID, coreID string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "physical id"):
			physID = fieldValue(line)
		case strings.HasPrefix(line, "core id"):
			coreID = fieldValue(line)
		case line == "":
			if physID != "" || coreID != "" {
				cores[physID+":"+coreID] = struct{}{}
			}
			physID, coreID = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if physID != "" || coreID != "" {
		cores[physID+":"+coreID] = struct{}{}
	}

	if len(cores) == 0 {
		return 0, fmt.Errorf("no core topology in /proc/cpuinfo")
	}
	return len(cores), nil
}

func fieldValue(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}

// readCPUFreqMHz reads a cpufreq value (reported in kHz) for cpu0.
// Returns 0 when the file is absent, e.g. in VMs without cpufreq.
func readCPUFreqMHz(name string) float64 {
	data, err := os.ReadFile("/sys/devices/system/cpu/cpu0/cpufreq/" + name)
	if err != nil {
		return 0
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0
	}
	return khz / 1000
}
