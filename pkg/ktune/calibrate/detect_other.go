//go:build !darwin && !linux

package calibrate

import (
	"runtime"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// defaultTotalMemory is the fallback RAM value when detection is not
// implemented for the platform. 8GB is a reasonable floor for modern hosts.
const defaultTotalMemory = 8 * 1024 * 1024 * 1024

// Detect builds a hardware profile from runtime information and
// conservative defaults on platforms without native detection.
func Detect() (types.HardwareProfile, error) {
	return types.HardwareProfile{
		PhysicalCores: runtime.NumCPU(),
		LogicalCores:  runtime.NumCPU(),
		TotalMemory:   defaultTotalMemory,
		Caps:          map[string]any{"smt": false},
	}, nil
}
