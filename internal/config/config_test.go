package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrr-analyzer/internal/params"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, params.DefaultBounds(), cfg.Bounds)
	assert.Equal(t, 1e-3, cfg.Solver.Settings().FTol)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	d := Default()
	assert.Equal(t, d.Bounds, cfg.Bounds)
	assert.Equal(t, d.Solver, cfg.Solver)
	assert.Equal(t, d.Fit, cfg.Fit)
	assert.Equal(t, d.Server, cfg.Server)
	assert.Equal(t, d.Jobs, cfg.Jobs)
	assert.Equal(t, d.Log.Level, cfg.Log.Level)
	assert.Equal(t, ModelKiessig, cfg.Simulator.Model)
	assert.Equal(t, d.Simulator.CacheSize, cfg.Simulator.CacheSize)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "xrr.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
bounds:
  thickness:
    min: 5
    max: 800
fit:
  wavelength: 1.2
  timeout: 45s
simulator:
  model: exec
  command: ./refl
  args: [--fast]
jobs:
  workers: 2
`), 0o644))

	t.Setenv("XRR_JOBS_WORKERS", "6")
	t.Setenv("XRR_SOLVER_GTOL", "1e-6")

	cfg, err := Load(newFlags(t, "--config", file, "--wavelength", "0.71"))
	require.NoError(t, err)

	assert.Equal(t, params.Range{Min: 5, Max: 800}, cfg.Bounds.Thickness)
	assert.Equal(t, params.Range{Min: 0, Max: 50}, cfg.Bounds.SLD)
	assert.Equal(t, 0.71, cfg.Fit.Wavelength, "flag beats file")
	assert.Equal(t, 45*time.Second, cfg.Fit.Timeout)
	assert.Equal(t, ModelExec, cfg.Simulator.Model)
	assert.Equal(t, "./refl", cfg.Simulator.Exec().Path)
	assert.Equal(t, []string{"--fast"}, cfg.Simulator.Exec().Args)
	assert.Equal(t, 6, cfg.Jobs.Workers, "environment beats file")
	assert.Equal(t, 1e-6, cfg.Solver.GTol)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// Registered so the variable is removed again after the test.
	t.Setenv("XRR_SERVER_ADDR", "")
	require.NoError(t, os.Unsetenv("XRR_SERVER_ADDR"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("XRR_SERVER_ADDR=:9191\n"), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.Server.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(newFlags(t, "--model", "exec"))
	assert.ErrorContains(t, err, "simulator.command")

	_, err = Load(newFlags(t, "--config", "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty bounds", func(c *Config) { c.Bounds.SLD = params.Range{Min: 1, Max: 1} }},
		{"negative tolerance", func(c *Config) { c.Solver.FTol = -1 }},
		{"no tolerance", func(c *Config) { c.Solver = SolverConfig{} }},
		{"negative budget", func(c *Config) { c.Solver.MaxEvaluations = -3 }},
		{"wavelength", func(c *Config) { c.Fit.Wavelength = 0 }},
		{"unknown model", func(c *Config) { c.Simulator.Model = "parratt" }},
		{"cache", func(c *Config) { c.Simulator.CacheSize = -1 }},
		{"depth window", func(c *Config) { c.Predictor.MaxDepth = 10 }},
		{"workers", func(c *Config) { c.Jobs.Workers = 0 }},
		{"retain", func(c *Config) { c.Jobs.Retain = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
