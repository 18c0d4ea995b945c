package pgtemp

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), *s)

	n, err := s.SharedBufferBytes()
	require.NoError(t, err)
	assert.Equal(t, DefaultSharedBuffers, n)
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PGTEMP_BASE_PORT", "7000")
	t.Setenv("PGTEMP_SHARED_BUFFERS", "64MB")
	t.Setenv("PGTEMP_SCHEDULER", "blocking")
	t.Setenv("PGTEMP_BIN_DIR", "/opt/pg/bin")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, 7000, s.BasePort)
	assert.Equal(t, "64MB", s.SharedBuffers)
	assert.Equal(t, "blocking", s.Scheduler)
	assert.Equal(t, "/opt/pg/bin", s.BinDir)
	assert.Equal(t, procmgr.DefaultCapacity, s.MaxProcesses)
}

func TestLoadSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgtemp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"base_port: 15432\n"+
			"max_processes: 3\n"+
			"shared_buffers: 1GB\n"+
			"log_level: debug\n"), 0o600))

	// Environment wins over the file
	t.Setenv("PGTEMP_MAX_PROCESSES", "4")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 15432, s.BasePort)
	assert.Equal(t, 4, s.MaxProcesses)
	assert.Equal(t, "debug", s.LogLevel)

	n, err := s.SharedBufferBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024*1024), n)
}

func TestLoadSettings_ExplicitFileMissing(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"port zero", func(s *Settings) { s.BasePort = 0 }},
		{"port too large", func(s *Settings) { s.BasePort = 70000 }},
		{"no processes", func(s *Settings) { s.MaxProcesses = 0 }},
		{"bad shared buffers", func(s *Settings) { s.SharedBuffers = "lots" }},
		{"shared buffers not whole kB", func(s *Settings) { s.SharedBuffers = "1536" }},
		{"bad scheduler", func(s *Settings) { s.Scheduler = "parallel" }},
		{"bad log level", func(s *Settings) { s.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			require.NoError(t, s.Validate())
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSettings_NewScheduler(t *testing.T) {
	s := DefaultSettings()
	assert.Same(t, procmgr.DefaultCooperative(), s.NewScheduler())

	s.MaxProcesses = 2
	coop, ok := s.NewScheduler().(*procmgr.CooperativeScheduler)
	require.True(t, ok)
	assert.Equal(t, int64(2), coop.Capacity())

	s.Scheduler = "blocking"
	assert.Equal(t, "blocking", s.NewScheduler().Name())
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestWithSettings(t *testing.T) {
	s := DefaultSettings()
	s.BasePort = 9000
	s.SharedBuffers = "256MB"
	s.TempDir = "/var/tmp"
	s.BinDir = "/opt/pg/bin"
	s.Scheduler = "blocking"

	f := &Factory{}
	WithSettings(&s)(f)

	assert.Equal(t, uint16(9000), f.basePort)
	assert.Equal(t, int64(256*1024*1024), f.sharedBuffers)
	assert.Equal(t, "/var/tmp", f.tempRoot)
	assert.NotNil(t, f.locator)
	assert.Equal(t, "blocking", f.scheduler.Name())
}
