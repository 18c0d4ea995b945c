package pgtemp

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// EnvPrefix prefixes every environment override, e.g. PGTEMP_BASE_PORT
const EnvPrefix = "PGTEMP"

// Settings holds user-tunable factory configuration
type Settings struct {
	BasePort      int    `mapstructure:"base_port" json:"base_port" yaml:"base_port"`
	MaxProcesses  int    `mapstructure:"max_processes" json:"max_processes" yaml:"max_processes"`
	SharedBuffers string `mapstructure:"shared_buffers" json:"shared_buffers" yaml:"shared_buffers"`
	TempDir       string `mapstructure:"temp_dir" json:"temp_dir" yaml:"temp_dir"`
	BinDir        string `mapstructure:"bin_dir" json:"bin_dir" yaml:"bin_dir"`
	Scheduler     string `mapstructure:"scheduler" json:"scheduler" yaml:"scheduler"`
	LogLevel      string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
}

// DefaultSettings returns the built-in configuration
func DefaultSettings() Settings {
	return Settings{
		BasePort:      DefaultBasePort,
		MaxProcesses:  procmgr.DefaultCapacity,
		SharedBuffers: "12MB",
		Scheduler:     "cooperative",
		LogLevel:      "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("base_port", d.BasePort)
	v.SetDefault("max_processes", d.MaxProcesses)
	v.SetDefault("shared_buffers", d.SharedBuffers)
	v.SetDefault("temp_dir", d.TempDir)
	v.SetDefault("bin_dir", d.BinDir)
	v.SetDefault("scheduler", d.Scheduler)
	v.SetDefault("log_level", d.LogLevel)
}

// LoadSettings reads configuration from defaults, an optional pgtemp.yaml and
// PGTEMP_* environment variables, in increasing priority. An explicit
// configFile must exist; the implicit search in the working directory and
// ~/.config/pgtemp tolerates its absence.
func LoadSettings(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pgtemp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pgtemp"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every field
func (s *Settings) Validate() error {
	if s.BasePort < 1 || s.BasePort > 65535 {
		return fmt.Errorf("base_port must be between 1 and 65535, got %d", s.BasePort)
	}
	if s.MaxProcesses < 1 {
		return fmt.Errorf("max_processes must be at least 1, got %d", s.MaxProcesses)
	}
	if _, err := s.SharedBufferBytes(); err != nil {
		return err
	}
	switch s.Scheduler {
	case "blocking", "cooperative":
	default:
		return fmt.Errorf("scheduler must be blocking or cooperative, got %q", s.Scheduler)
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// SharedBufferBytes parses SharedBuffers as a binary size such as "12MB"
func (s *Settings) SharedBufferBytes() (int64, error) {
	n, err := units.RAMInBytes(s.SharedBuffers)
	if err != nil {
		return 0, fmt.Errorf("invalid shared_buffers %q: %w", s.SharedBuffers, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("shared_buffers must be positive, got %q", s.SharedBuffers)
	}
	if n%1024 != 0 {
		return 0, fmt.Errorf("shared_buffers must be a multiple of 1kB, got %q", s.SharedBuffers)
	}
	return n, nil
}

// NewScheduler returns the configured scheduling strategy. The default
// capacity shares the process-wide limiter.
func (s *Settings) NewScheduler() procmgr.Scheduler {
	if s.Scheduler == "blocking" {
		return procmgr.Blocking()
	}
	if s.MaxProcesses == procmgr.DefaultCapacity {
		return procmgr.DefaultCooperative()
	}
	return procmgr.Cooperative(int64(s.MaxProcesses))
}

// ParseLogLevel maps a level name to a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
