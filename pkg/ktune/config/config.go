package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Path         string            `mapstructure:"path"`
	ConsoleLevel string            `mapstructure:"console_level"`
	Components   map[string]string `mapstructure:"components"`
}

// RefinerConfig configures the background refinement loop.
type RefinerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WindowSize    int           `mapstructure:"window_size"`
	DegradeAfter  int           `mapstructure:"degrade_after"`
	DegradeFactor float64       `mapstructure:"degrade_factor"`
}

// ScanConfig configures quick-scan behavior.
type ScanConfig struct {
	StabilizeWait  time.Duration `mapstructure:"stabilize_wait"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	CollectTimeout time.Duration `mapstructure:"collect_timeout"`
}

// BudgetConfig holds the resource ceilings recommendations must respect.
type BudgetConfig struct {
	CPU              float64 `mapstructure:"cpu"`
	Memory           float64 `mapstructure:"memory"`
	MaxBatchSize     int     `mapstructure:"max_batch_size"`
	MaxWorkers       int     `mapstructure:"max_workers"`
	MaxCacheFraction float64 `mapstructure:"max_cache_fraction"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	PIDPath      string        `mapstructure:"pid_path"`
	StorePath    string        `mapstructure:"store_path"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// Config represents the application configuration.
type Config struct {
	Refiner RefinerConfig `mapstructure:"refiner"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Budget  BudgetConfig  `mapstructure:"budget"`
	Logging LoggingConfig `mapstructure:"logging"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/ktune/config.yaml
//   - $HOME/.config/ktune/config.yaml
//
// Environment variables are prefixed with KTUNE_
// (e.g., KTUNE_REFINER_INTERVAL).
func Load() (*Config, error) {
	return load("")
}

// LoadFile loads configuration from an explicit file path instead of the
// XDG search paths. Environment variables still apply.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "ktune"))
		}

		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "ktune"))
	}

	v.SetEnvPrefix("KTUNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers all default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("refiner.interval", DefaultRefineInterval)
	v.SetDefault("refiner.window_size", DefaultWindowSize)
	v.SetDefault("refiner.degrade_after", DefaultDegradeAfter)
	v.SetDefault("refiner.degrade_factor", DefaultDegradeFactor)

	v.SetDefault("scan.stabilize_wait", DefaultStabilizeWait)
	v.SetDefault("scan.retry_backoff", DefaultRetryBackoff)
	v.SetDefault("scan.collect_timeout", DefaultCollectTimeout)

	v.SetDefault("budget.cpu", DefaultCPUBudget)
	v.SetDefault("budget.memory", DefaultMemoryBudget)
	v.SetDefault("budget.max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("budget.max_workers", DefaultMaxWorkers)
	v.SetDefault("budget.max_cache_fraction", DefaultMaxCacheFraction)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // empty means DefaultLogPath
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.components", map[string]string{
		"daemon":  "info",
		"refiner": "info",
		"scanner": "info",
		"curve":   "warn",
	})

	v.SetDefault("daemon.pid_path", "")   // empty means default XDG path
	v.SetDefault("daemon.store_path", "") // empty means default XDG path
	v.SetDefault("daemon.save_interval", DefaultSaveInterval)
}

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks configuration value ranges.
func (c *Config) Validate() error {
	if c.Refiner.Interval <= 0 {
		return fmt.Errorf("%w: refiner.interval must be positive", ErrInvalidConfig)
	}
	if c.Refiner.WindowSize < 2 {
		return fmt.Errorf("%w: refiner.window_size must be at least 2", ErrInvalidConfig)
	}
	if c.Refiner.DegradeAfter < 1 {
		return fmt.Errorf("%w: refiner.degrade_after must be at least 1", ErrInvalidConfig)
	}
	if c.Refiner.DegradeFactor <= 0 || c.Refiner.DegradeFactor > 1 {
		return fmt.Errorf("%w: refiner.degrade_factor must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Budget.CPU <= 0 || c.Budget.CPU > 1 {
		return fmt.Errorf("%w: budget.cpu must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Budget.Memory <= 0 || c.Budget.Memory > 1 {
		return fmt.Errorf("%w: budget.memory must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Scan.StabilizeWait < 0 {
		return fmt.Errorf("%w: scan.stabilize_wait must not be negative", ErrInvalidConfig)
	}
	if c.Scan.RetryBackoff < 0 {
		return fmt.Errorf("%w: scan.retry_backoff must not be negative", ErrInvalidConfig)
	}
	if c.Scan.CollectTimeout <= 0 {
		return fmt.Errorf("%w: scan.collect_timeout must be positive", ErrInvalidConfig)
	}
	if c.Daemon.SaveInterval <= 0 {
		return fmt.Errorf("%w: daemon.save_interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "ktune"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "ktune"), nil
}

// ConfigPath returns the config file path, or empty when the directory
// cannot be determined.
func ConfigPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DataDir returns $XDG_DATA_HOME/ktune/ for the model store and pid file.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "ktune")
}

// StateDir returns $XDG_STATE_HOME/ktune/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "ktune")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "ktuned.pid")
}

// DefaultStorePath returns the default model store path.
func DefaultStorePath() string {
	return filepath.Join(DataDir(), "model.db")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "ktune.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# ktune configuration

# Background refinement loop
refiner:
  # How often to sample live usage and refit the curve
  interval: %s
  # Sample retention window capacity
  window_size: %d
  # Consecutive sampling failures before degraded operation
  degrade_after: %d
  # Confidence multiplier while degraded
  degrade_factor: %.2f

# Quick scan behavior
scan:
  stabilize_wait: %s
  retry_backoff: %s
  collect_timeout: %s

# Resource ceilings recommendations must respect
budget:
  cpu: %.2f
  memory: %.2f
  max_batch_size: %d
  max_workers: %d
  max_cache_fraction: %.2f

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means $XDG_STATE_HOME/ktune/ktune.log)
  path: ""
  # Console output level (empty disables console output)
  console_level: ""
  # Per-component log levels
  components:
    daemon: info
    refiner: info
    scanner: info
    curve: warn

# Daemon configuration
daemon:
  # PID file path (empty means $XDG_DATA_HOME/ktune/ktuned.pid)
  pid_path: ""
  # Model store path (empty means $XDG_DATA_HOME/ktune/model.db)
  store_path: ""
  # How often to persist model state
  save_interval: %s
`, DefaultRefineInterval, DefaultWindowSize, DefaultDegradeAfter, DefaultDegradeFactor,
		DefaultStabilizeWait, DefaultRetryBackoff, DefaultCollectTimeout,
		DefaultCPUBudget, DefaultMemoryBudget, DefaultMaxBatchSize, DefaultMaxWorkers,
		DefaultMaxCacheFraction, DefaultSaveInterval)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}
