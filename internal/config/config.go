// Package config loads xrr-analyzer settings from defaults, a YAML file,
// XRR_* environment variables (including a .env file) and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"xrr-analyzer/internal/extproc"
	"xrr-analyzer/internal/logging"
	"xrr-analyzer/internal/params"
	"xrr-analyzer/internal/solver"
)

// EnvPrefix prefixes every environment variable, e.g. XRR_FIT_WAVELENGTH.
const EnvPrefix = "XRR"

// Forward model kinds.
const (
	ModelKiessig = "kiessig"
	ModelExec    = "exec"
)

// Config is the full application configuration.
type Config struct {
	Bounds    params.Bounds   `mapstructure:"bounds" yaml:"bounds"`
	Solver    SolverConfig    `mapstructure:"solver" yaml:"solver"`
	Fit       FitConfig       `mapstructure:"fit" yaml:"fit"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
	Predictor PredictorConfig `mapstructure:"predictor" yaml:"predictor"`
	Log       logging.Options `mapstructure:"log" yaml:"log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Jobs      JobsConfig      `mapstructure:"jobs" yaml:"jobs"`
}

// SolverConfig mirrors solver.Settings without the observer.
type SolverConfig struct {
	FTol           float64 `mapstructure:"ftol" yaml:"ftol"`
	XTol           float64 `mapstructure:"xtol" yaml:"xtol"`
	GTol           float64 `mapstructure:"gtol" yaml:"gtol"`
	MaxEvaluations int     `mapstructure:"max_evaluations" yaml:"max_evaluations"`
	DiffStep       float64 `mapstructure:"diff_step" yaml:"diff_step"`
}

// Settings converts to solver settings.
func (s SolverConfig) Settings() solver.Settings {
	return solver.Settings{
		FTol:           s.FTol,
		XTol:           s.XTol,
		GTol:           s.GTol,
		MaxEvaluations: s.MaxEvaluations,
		DiffStep:       s.DiffStep,
	}
}

// FitConfig holds measurement defaults.
type FitConfig struct {
	// Wavelength of the X-ray source in Å. Cu Kα by default.
	Wavelength float64       `mapstructure:"wavelength" yaml:"wavelength"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Template is an optional stack file used instead of the built-in one.
	Template string `mapstructure:"template" yaml:"template"`
}

// SimulatorConfig selects the forward model.
type SimulatorConfig struct {
	Model     string        `mapstructure:"model" yaml:"model"`
	Command   string        `mapstructure:"command" yaml:"command"`
	Args      []string      `mapstructure:"args" yaml:"args"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
}

// Exec returns the external command for ModelExec.
func (s SimulatorConfig) Exec() extproc.Command {
	return extproc.Command{Path: s.Command, Args: s.Args, Timeout: s.Timeout}
}

// PredictorConfig selects how initial stacks are guessed. An empty command
// means the Fourier heuristic.
type PredictorConfig struct {
	Command  string        `mapstructure:"command" yaml:"command"`
	Args     []string      `mapstructure:"args" yaml:"args"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinDepth float64       `mapstructure:"min_depth" yaml:"min_depth"`
	MaxDepth float64       `mapstructure:"max_depth" yaml:"max_depth"`
}

// Exec returns the external command, if any.
func (p PredictorConfig) Exec() extproc.Command {
	return extproc.Command{Path: p.Command, Args: p.Args, Timeout: p.Timeout}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// JobsConfig bounds the asynchronous fit runner.
type JobsConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	Retain  int `mapstructure:"retain" yaml:"retain"`
}

// Default returns the built-in configuration.
func Default() Config {
	s := solver.DefaultSettings()
	return Config{
		Bounds: params.DefaultBounds(),
		Solver: SolverConfig{FTol: s.FTol, XTol: s.XTol, GTol: s.GTol},
		Fit: FitConfig{
			Wavelength: 1.5406,
			Timeout:    2 * time.Minute,
		},
		Simulator: SimulatorConfig{
			Model:     ModelKiessig,
			Timeout:   30 * time.Second,
			CacheSize: 4096,
		},
		Predictor: PredictorConfig{
			Timeout:  time.Minute,
			MinDepth: 20,
			MaxDepth: 1000,
		},
		Log: logging.DefaultOptions(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    16 << 20,
		},
		Jobs: JobsConfig{Workers: 4, Retain: 256},
	}
}

// Validate checks for values the rest of the program cannot work with.
func (c *Config) Validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if c.Solver.FTol < 0 || c.Solver.XTol < 0 || c.Solver.GTol < 0 {
		return errors.New("solver tolerances must be >= 0")
	}
	if c.Solver.FTol == 0 && c.Solver.XTol == 0 && c.Solver.GTol == 0 {
		return errors.New("at least one solver tolerance must be positive")
	}
	if c.Solver.MaxEvaluations < 0 {
		return fmt.Errorf("solver.max_evaluations must be >= 0, got %d", c.Solver.MaxEvaluations)
	}
	if c.Fit.Wavelength <= 0 {
		return fmt.Errorf("fit.wavelength must be positive, got %g", c.Fit.Wavelength)
	}
	switch c.Simulator.Model {
	case ModelKiessig:
	case ModelExec:
		if c.Simulator.Command == "" {
			return errors.New("simulator.command is required for the exec model")
		}
	default:
		return fmt.Errorf("unknown simulator.model %q", c.Simulator.Model)
	}
	if c.Simulator.CacheSize < 0 {
		return fmt.Errorf("simulator.cache_size must be >= 0, got %d", c.Simulator.CacheSize)
	}
	if c.Predictor.MaxDepth > 0 && c.Predictor.MaxDepth <= c.Predictor.MinDepth {
		return fmt.Errorf("predictor depth window [%g, %g] is empty", c.Predictor.MinDepth, c.Predictor.MaxDepth)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be >= 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.Retain < 1 {
		return fmt.Errorf("jobs.retain must be >= 1, got %d", c.Jobs.Retain)
	}
	return nil
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"wavelength":      "fit.wavelength",
	"timeout":         "fit.timeout",
	"template":        "fit.template",
	"ftol":            "solver.ftol",
	"max-evaluations": "solver.max_evaluations",
	"model":           "simulator.model",
	"simulator":       "simulator.command",
	"cache-size":      "simulator.cache_size",
	"predictor":       "predictor.command",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"addr":            "server.addr",
	"workers":         "jobs.workers",
}

// AddFlags registers the shared flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "YAML configuration file")
	fs.Float64("wavelength", d.Fit.Wavelength, "X-ray wavelength in Å")
	fs.Duration("timeout", d.Fit.Timeout, "fit timeout")
	fs.String("template", "", "initial layer stack file (.yaml or .json)")
	fs.Float64("ftol", d.Solver.FTol, "relative cost tolerance")
	fs.Int("max-evaluations", 0, "residual evaluation budget (0 = 100 per parameter)")
	fs.String("model", d.Simulator.Model, "forward model: kiessig or exec")
	fs.String("simulator", "", "external forward model command")
	fs.Int("cache-size", d.Simulator.CacheSize, "simulation cache entries (0 disables)")
	fs.String("predictor", "", "external initial-guess command")
	fs.String("log-level", d.Log.Level, "log level")
	fs.String("log-format", d.Log.Format, "log format: console or json")
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.Int("workers", d.Jobs.Workers, "concurrent fit jobs")
}

// Load merges defaults, the config file named by --config, the environment
// and the flags in fs that were set explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	for _, b := range []struct {
		name string
		r    params.Range
	}{
		{"thickness", d.Bounds.Thickness},
		{"sld", d.Bounds.SLD},
		{"roughness", d.Bounds.Roughness},
	} {
		v.SetDefault("bounds."+b.name+".min", b.r.Min)
		v.SetDefault("bounds."+b.name+".max", b.r.Max)
	}

	v.SetDefault("solver.ftol", d.Solver.FTol)
	v.SetDefault("solver.xtol", d.Solver.XTol)
	v.SetDefault("solver.gtol", d.Solver.GTol)
	v.SetDefault("solver.max_evaluations", d.Solver.MaxEvaluations)
	v.SetDefault("solver.diff_step", d.Solver.DiffStep)

	v.SetDefault("fit.wavelength", d.Fit.Wavelength)
	v.SetDefault("fit.timeout", d.Fit.Timeout)
	v.SetDefault("fit.template", d.Fit.Template)

	v.SetDefault("simulator.model", d.Simulator.Model)
	v.SetDefault("simulator.command", d.Simulator.Command)
	v.SetDefault("simulator.args", d.Simulator.Args)
	v.SetDefault("simulator.timeout", d.Simulator.Timeout)
	v.SetDefault("simulator.cache_size", d.Simulator.CacheSize)

	v.SetDefault("predictor.command", d.Predictor.Command)
	v.SetDefault("predictor.args", d.Predictor.Args)
	v.SetDefault("predictor.timeout", d.Predictor.Timeout)
	v.SetDefault("predictor.min_depth", d.Predictor.MinDepth)
	v.SetDefault("predictor.max_depth", d.Predictor.MaxDepth)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("jobs.workers", d.Jobs.Workers)
	v.SetDefault("jobs.retain", d.Jobs.Retain)
}
