package calibrate

import (
	"errors"
	"testing"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

func TestCalibrate_FullProfile(t *testing.T) {
	profile := types.HardwareProfile{
		PhysicalCores: 8,
		LogicalCores:  16,
		TotalMemory:   16 * 1024 * 1024 * 1024,
	}

	res, err := Calibrate(profile)
	if err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}

	if res.Degraded {
		t.Error("full profile should not calibrate degraded")
	}
	if res.ScaleMin >= res.ScaleMax {
		t.Errorf("ScaleMin %v >= ScaleMax %v", res.ScaleMin, res.ScaleMax)
	}
	if res.ScaleMax > maxScaleMax {
		t.Errorf("ScaleMax %v exceeds cap %v", res.ScaleMax, maxScaleMax)
	}
}

func TestCalibrate_Deterministic(t *testing.T) {
	profile := types.HardwareProfile{
		PhysicalCores: 4,
		LogicalCores:  8,
		TotalMemory:   8 * 1024 * 1024 * 1024,
	}

	a, err := Calibrate(profile)
	if err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	b, err := Calibrate(profile)
	if err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}

	if a != b {
		t.Errorf("Calibrate() not deterministic: %+v vs %+v", a, b)
	}
}

func TestCalibrate_CoresScaleCeiling(t *testing.T) {
	small := types.HardwareProfile{PhysicalCores: 2, LogicalCores: 2, TotalMemory: 1 << 32}
	large := types.HardwareProfile{PhysicalCores: 32, LogicalCores: 32, TotalMemory: 1 << 32}

	smallRes, err := Calibrate(small)
	if err != nil {
		t.Fatalf("Calibrate(small) error = %v", err)
	}
	largeRes, err := Calibrate(large)
	if err != nil {
		t.Fatalf("Calibrate(large) error = %v", err)
	}

	if largeRes.ScaleMax <= smallRes.ScaleMax {
		t.Errorf("more cores should raise the ceiling: %v <= %v", largeRes.ScaleMax, smallRes.ScaleMax)
	}
	// Curve shape inputs (the floor) stay fixed across hardware
	if largeRes.ScaleMin != smallRes.ScaleMin {
		t.Errorf("floor should not vary with core count: %v vs %v", largeRes.ScaleMin, smallRes.ScaleMin)
	}
}

func TestCalibrate_PartialProfile_Degraded(t *testing.T) {
	tests := []struct {
		name    string
		profile types.HardwareProfile
	}{
		{"no physical cores", types.HardwareProfile{LogicalCores: 8, TotalMemory: 1 << 33}},
		{"no memory", types.HardwareProfile{PhysicalCores: 4, LogicalCores: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calibrate(tt.profile)
			if err != nil {
				t.Fatalf("Calibrate() error = %v, partial profiles must not fail", err)
			}
			if !res.Degraded {
				t.Error("partial profile should calibrate degraded")
			}
			if res.ScaleMin >= res.ScaleMax {
				t.Errorf("ScaleMin %v >= ScaleMax %v", res.ScaleMin, res.ScaleMax)
			}
		})
	}
}

func TestCalibrate_EmptyProfile(t *testing.T) {
	_, err := Calibrate(types.HardwareProfile{})
	if !errors.Is(err, types.ErrUnsupportedPlatform) {
		t.Errorf("Calibrate(empty) error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestDetect(t *testing.T) {
	profile, err := Detect()
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if profile.LogicalCores <= 0 {
		t.Errorf("LogicalCores = %d, want > 0", profile.LogicalCores)
	}
	if profile.TotalMemory <= 0 {
		t.Errorf("TotalMemory = %d, want > 0", profile.TotalMemory)
	}

	// Whatever Detect produced must calibrate
	if _, err := Calibrate(profile); err != nil {
		t.Errorf("Calibrate(Detect()) error = %v", err)
	}
}
