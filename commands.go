package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"xrr-analyzer/internal/curve"
	"xrr-analyzer/internal/fit"
	"xrr-analyzer/internal/fourier"
	"xrr-analyzer/internal/jobs"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/plot"
	"xrr-analyzer/internal/project"
	"xrr-analyzer/internal/server"
)

// Figure size in pixels.
const (
	figureWidth  = 960
	figureHeight = 1080
)

func fitFlags(fs *pflag.FlagSet) {
	fs.Bool("predict", false, "start from the predictor's stack instead of the template")
	fs.String("project", "", "session file to resume from and record into")
	fs.String("plot", "", "write a figure of the result (.png or .tiff)")
	fs.StringP("out", "o", "", "write the refined stack (.yaml or .json)")
}

func runFit(ctx context.Context, env *environment, fs *pflag.FlagSet, out io.Writer) error {
	usePredictor, _ := fs.GetBool("predict")
	projPath, _ := fs.GetString("project")
	plotPath, _ := fs.GetString("plot")
	outPath, _ := fs.GetString("out")

	var proj *project.File
	if projPath != "" {
		var err error
		if proj, err = openProject(projPath, env); err != nil {
			return err
		}
	}

	c, source, err := curveFor(fs, proj, projPath)
	if err != nil {
		return err
	}
	if proj != nil && source != "demo" {
		proj.SetCurve(projPath, source)
	}

	start := env.template
	if proj != nil {
		start = proj.Start()
	}
	var predicted *layer.Stack
	if usePredictor {
		s, err := env.predictor.Predict(c.Q, c.Intensity, env.cfg.Fit.Wavelength)
		if err != nil {
			env.log.Warn().Err(err).Msg("prediction failed, starting from template")
		} else {
			start, predicted = s, &s
			if proj != nil {
				proj.SetPrediction(s)
			}
		}
	}

	res, err := runJob(ctx, env, jobs.Request{
		Stack:      start,
		Q:          c.Q,
		Intensity:  c.Intensity,
		Wavelength: env.cfg.Fit.Wavelength,
	})
	if err != nil {
		return err
	}

	refined, ok := res.Refined()
	fmt.Fprintf(out, "Curve: %s (%d points)\n", source, c.Len())
	if ok {
		fmt.Fprintf(out, "Fit converged (%s) after %d iterations, %d evaluations\n",
			res.Status, res.Iterations, res.Evaluations)
		fmt.Fprintf(out, "Cost %.4g -> %.4g, RMS %.4g\n", res.InitialCost, res.Cost, res.RMS)
		if res.SimulationFailures > 0 {
			fmt.Fprintf(out, "%d of %d simulations failed\n", res.SimulationFailures, res.Evaluations)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintf(out, "Fit failed: %v\nShowing the starting stack.\n\n", res.Err)
	}
	if err := writeStackTable(out, refined); err != nil {
		return err
	}

	if proj != nil {
		proj.Record(res)
		if err := proj.Save(projPath); err != nil {
			return fmt.Errorf("save project: %w", err)
		}
		if plotPath == "" {
			plotPath = proj.GetPlotPath(projPath)
		}
	}
	if plotPath != "" {
		var fitted *layer.Stack
		if ok {
			fitted = &refined
		}
		if err := writeFigure(env, plotPath, c, predicted, fitted); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nFigure written to %s\n", plotPath)
	}
	if outPath != "" && ok {
		if err := layer.SaveStack(outPath, refined); err != nil {
			return err
		}
	}

	if !ok {
		return res.Err
	}
	return nil
}

func openProject(path string, env *environment) (*project.File, error) {
	proj, err := project.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		proj = project.New(name, env.cfg.Fit.Wavelength)
		proj.Initial = env.template
		proj.Settings.Model = env.cfg.Simulator.Model
		proj.Settings.Bounds = env.cfg.Bounds
		return proj, nil
	}
	return proj, err
}

// curveFor prefers an explicit curve argument, then the session's curve.
func curveFor(fs *pflag.FlagSet, proj *project.File, projPath string) (curve.Curve, string, error) {
	demo, _ := fs.GetBool("demo")
	if proj != nil && !demo && fs.NArg() == 0 && proj.CurvePath != "" {
		path := proj.GetCurvePath(projPath)
		c, err := curve.ReadFile(path)
		return c, path, err
	}
	return loadCurve(fs)
}

// runJob executes one fit through the job runner so the configured timeout
// applies.
func runJob(ctx context.Context, env *environment, req jobs.Request) (fit.Result, error) {
	runner, err := jobs.New(env.fitter(), jobs.Options{
		Workers: 1,
		Retain:  1,
		Timeout: env.cfg.Fit.Timeout,
		Logger:  env.log,
		Metrics: env.metrics,
	})
	if err != nil {
		return fit.Result{}, err
	}
	id, err := runner.Submit(req)
	if err != nil {
		return fit.Result{}, err
	}
	job, err := runner.Wait(ctx, id)
	if err != nil {
		return fit.Result{}, fmt.Errorf("fit interrupted: %w", err)
	}
	if job.State == jobs.StateTimedOut || job.Result == nil {
		return fit.Result{}, fmt.Errorf("fit timed out after %s", env.cfg.Fit.Timeout)
	}
	return *job.Result, nil
}

func fourierFlags(fs *pflag.FlagSet) {
	fs.Int("peaks", 5, "number of peaks to list")
	fs.Float64("min-depth", 10, "ignore peaks below this depth in Å")
}

func runFourier(_ context.Context, _ *environment, fs *pflag.FlagSet, out io.Writer) error {
	c, source, err := loadCurve(fs)
	if err != nil {
		return err
	}
	n, _ := fs.GetInt("peaks")
	minDepth, _ := fs.GetFloat64("min-depth")

	spectrum := fourier.Estimate(c.Q, c.Intensity)
	peaks := spectrum.Peaks(n, minDepth)
	fmt.Fprintf(out, "Curve: %s (%d points, %d bins)\n\n", source, c.Len(), spectrum.Len())
	return writePeakTable(out, peaks)
}

func predictFlags(fs *pflag.FlagSet) {
	fs.StringP("out", "o", "", "write the predicted stack (.yaml or .json)")
}

func runPredict(_ context.Context, env *environment, fs *pflag.FlagSet, out io.Writer) error {
	c, _, err := loadCurve(fs)
	if err != nil {
		return err
	}
	s, err := env.predictor.Predict(c.Q, c.Intensity, env.cfg.Fit.Wavelength)
	if err != nil {
		return err
	}
	if err := writeStackTable(out, s); err != nil {
		return err
	}
	if path, _ := fs.GetString("out"); path != "" {
		return layer.SaveStack(path, s)
	}
	return nil
}

func plotFlags(fs *pflag.FlagSet) {
	fs.String("stack", "", "stack file to simulate next to the data")
	fs.StringP("out", "o", "xrr.png", "output image (.png or .tiff)")
}

func runPlot(_ context.Context, env *environment, fs *pflag.FlagSet, out io.Writer) error {
	c, _, err := loadCurve(fs)
	if err != nil {
		return err
	}
	var fitted *layer.Stack
	if path, _ := fs.GetString("stack"); path != "" {
		s, err := layer.LoadStack(path)
		if err != nil {
			return err
		}
		fitted = &s
	}
	path, _ := fs.GetString("out")
	if err := writeFigure(env, path, c, nil, fitted); err != nil {
		return err
	}
	fmt.Fprintf(out, "Figure written to %s\n", path)
	return nil
}

func runServe(ctx context.Context, env *environment, _ *pflag.FlagSet, _ io.Writer) error {
	runner, err := jobs.New(env.fitter(), jobs.Options{
		Workers: env.cfg.Jobs.Workers,
		Retain:  env.cfg.Jobs.Retain,
		Timeout: env.cfg.Fit.Timeout,
		Logger:  env.log,
		Metrics: env.metrics,
	})
	if err != nil {
		return err
	}
	srv := server.New(runner, env.predictor, server.Options{
		Addr:            env.cfg.Server.Addr,
		ReadTimeout:     env.cfg.Server.ReadTimeout,
		ShutdownTimeout: env.cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    env.cfg.Server.MaxBodyBytes,
		Wavelength:      env.cfg.Fit.Wavelength,
		Template:        env.template,
		Gatherer:        env.registry,
		Logger:          env.log,
	})
	return srv.Run(ctx)
}

// writeFigure renders the reflectivity, residual and Fourier panels. The
// residual panel follows the fitted stack, else the predicted one.
func writeFigure(env *environment, path string, c curve.Curve, predicted, fitted *layer.Stack) error {
	scale := fit.ScaleFactor(c.Intensity)
	curves := plot.Curves{Measured: c}
	var residualModel []float64
	if predicted != nil {
		if m, err := fit.Model(env.sim, *predicted, c.Q, scale); err == nil {
			curves.Predicted, residualModel = m, m
		} else {
			env.log.Warn().Err(err).Msg("cannot simulate predicted stack")
		}
	}
	if fitted != nil {
		if m, err := fit.Model(env.sim, *fitted, c.Q, scale); err == nil {
			curves.Fitted, residualModel = m, m
		} else {
			env.log.Warn().Err(err).Msg("cannot simulate fitted stack")
		}
	}

	panels := []plot.Panel{plot.ReflectivityPanel(curves)}
	if residualModel != nil {
		panels = append(panels, plot.ResidualPanel(c.Q, fit.LogResiduals(c.Intensity, residualModel, 1)))
	}
	panels = append(panels, plot.FourierPanel(fourier.Estimate(c.Q, c.Intensity)))

	img := plot.Render(figureWidth, figureHeight*len(panels)/3, panels...)
	return plot.Save(path, img)
}

func writeStackTable(w io.Writer, s layer.Stack) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tROLE\tTHICKNESS (Å)\tSLD (1e-6/Å²)\tROUGHNESS (Å)")
	for _, r := range layer.FormatRows(s) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Role, r.Thickness, r.SLD, r.Roughness)
	}
	return tw.Flush()
}

func writePeakTable(w io.Writer, peaks []fourier.Peak) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDEPTH (Å)\tAMPLITUDE\t")
	for i, p := range peaks {
		fmt.Fprintf(tw, "%d\t%.1f\t%.4g\t\n", i+1, p.Depth, p.Amplitude)
	}
	return tw.Flush()
}
