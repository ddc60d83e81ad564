package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is the daemon's self-reported state, refreshed on each save tick
// and read by the CLI. It lives in a file because the model store is
// locked by the daemon while it runs.
type Status struct {
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	Uptime       string    `json:"uptime"`
	MemoryUsed   string    `json:"memory_used"`
	RefinerState string    `json:"refiner_state"`
	Degraded     bool      `json:"degraded"`
	Samples      int       `json:"samples"`
	FitError     float64   `json:"fit_error"`
	ModelUpdated time.Time `json:"model_updated"`
}

// Status builds the current status snapshot.
func (s *Service) Status() Status {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := s.refiner.Snapshot()
	return Status{
		PID:          os.Getpid(),
		StartedAt:    s.startTime,
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		MemoryUsed:   humanize.IBytes(mem.Alloc),
		RefinerState: s.refiner.State().String(),
		Degraded:     s.refiner.Degraded(),
		Samples:      len(snap.Samples),
		FitError:     snap.Params.FitError,
		ModelUpdated: snap.UpdatedAt,
	}
}

// WriteStatus writes the status file atomically via a rename, so readers
// never observe a partial write.
func WriteStatus(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file written by a running daemon.
func ReadStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// RemoveStatus removes the status file. A missing file is not an error.
func RemoveStatus(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// StatusPath returns the status file path under a state directory.
func StatusPath(stateDir string) string {
	return filepath.Join(stateDir, "ktuned.status")
}
