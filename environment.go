package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"xrr-analyzer/internal/config"
	"xrr-analyzer/internal/curve"
	"xrr-analyzer/internal/fit"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/logging"
	"xrr-analyzer/internal/metrics"
	"xrr-analyzer/internal/predict"
	"xrr-analyzer/internal/simulate"
	"xrr-analyzer/internal/version"
)

// environment is what every command builds from the configuration.
type environment struct {
	cfg       *config.Config
	log       zerolog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	sim       simulate.Simulator
	predictor predict.Predictor
	template  layer.Stack
}

func addCommonFlags(fs *pflag.FlagSet) {
	config.AddFlags(fs)
	fs.Bool("demo", false, "use the built-in synthetic curve instead of a file")
}

func newEnvironment(fs *pflag.FlagSet) (*environment, error) {
	cfg, err := config.Load(fs)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
	}
	env.metrics = metrics.New(env.registry)

	env.template = layer.Default()
	if cfg.Fit.Template != "" {
		if env.template, err = layer.LoadStack(cfg.Fit.Template); err != nil {
			return nil, err
		}
	}

	if env.sim, err = newSimulator(cfg.Simulator, env.metrics); err != nil {
		return nil, err
	}
	env.predictor = newPredictor(cfg.Predictor, env.template)

	log.Debug().
		Str("version", version.String()).
		Str("model", cfg.Simulator.Model).
		Int("cache", cfg.Simulator.CacheSize).
		Msg("environment ready")
	return env, nil
}

// newSimulator builds the forward model chain: model, then cache, then
// instrumentation so cache hits are not counted as simulations.
func newSimulator(cfg config.SimulatorConfig, m *metrics.Metrics) (simulate.Simulator, error) {
	var sim simulate.Simulator = simulate.Kiessig{}
	if cfg.Model == config.ModelExec {
		sim = simulate.NewExec(cfg.Exec())
	}
	sim = simulate.NewInstrumented(sim, m)
	if cfg.CacheSize > 0 {
		cached, err := simulate.NewCached(sim, cfg.CacheSize, m)
		if err != nil {
			return nil, fmt.Errorf("simulation cache: %w", err)
		}
		sim = cached
	}
	return sim, nil
}

func newPredictor(cfg config.PredictorConfig, template layer.Stack) predict.Predictor {
	if cfg.Command != "" {
		return &predict.Exec{Command: cfg.Exec()}
	}
	return &predict.Heuristic{Template: template, MinDepth: cfg.MinDepth, MaxDepth: cfg.MaxDepth}
}

func (e *environment) fitter() *fit.Fitter {
	opts := fit.DefaultOptions().
		WithBounds(e.cfg.Bounds).
		WithSolver(e.cfg.Solver.Settings())
	opts.Logger = e.log
	opts.Metrics = e.metrics
	return fit.New(e.sim, opts)
}

// loadCurve reads the curve named by the first argument, or the synthetic
// demo curve when --demo is set.
func loadCurve(fs *pflag.FlagSet) (curve.Curve, string, error) {
	if demo, _ := fs.GetBool("demo"); demo {
		return curve.Synthetic(500, 0, 1), "demo", nil
	}
	if fs.NArg() < 1 {
		return curve.Curve{}, "", fmt.Errorf("missing curve file (or --demo)")
	}
	path := fs.Arg(0)
	c, err := curve.ReadFile(path)
	if err != nil {
		return curve.Curve{}, "", err
	}
	return c, path, nil
}

func versionLine() string {
	return "xrr-analyzer " + version.String()
}
