package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatusFileRoundTrip(t *testing.T) {
	path := StatusPath(t.TempDir())

	want := Status{
		PID:          1234,
		StartedAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Uptime:       "2h30m0s",
		MemoryUsed:   "12 MiB",
		RefinerState: "idle",
		Degraded:     true,
		Samples:      42,
		FitError:     0.031,
	}
	if err := WriteStatus(path, want); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	got, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if got.PID != want.PID || got.Uptime != want.Uptime || got.MemoryUsed != want.MemoryUsed {
		t.Errorf("status drifted: got %+v, want %+v", got, want)
	}
	if got.RefinerState != want.RefinerState || got.Degraded != want.Degraded {
		t.Errorf("refiner fields drifted: got %+v, want %+v", got, want)
	}
	if got.Samples != want.Samples || got.FitError != want.FitError {
		t.Errorf("model fields drifted: got %+v, want %+v", got, want)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("started at %v, want %v", got.StartedAt, want.StartedAt)
	}

	// The temp file from the atomic write must not linger.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestRemoveStatus_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ktuned.status")
	if err := RemoveStatus(path); err != nil {
		t.Errorf("RemoveStatus on missing file: %v", err)
	}
}
