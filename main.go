// Package main provides the entry point for the xrr-analyzer command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `Usage: xrr-analyzer <command> [flags] [curve]

Commands:
  fit       refine a layer stack against a measured curve
  fourier   list the strongest thickness peaks of a curve
  predict   guess a starting layer stack for a curve
  plot      render a curve, an optional model and its spectrum
  serve     run the HTTP API
  version   print the version

Run 'xrr-analyzer <command> --help' for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "xrr-analyzer: %v\n", err)
		}
		os.Exit(1)
	}
}

type command func(ctx context.Context, env *environment, fs *pflag.FlagSet, out io.Writer) error

// commands maps subcommand names to their flag setup and body.
var commands = map[string]struct {
	flags func(fs *pflag.FlagSet)
	run   command
}{
	"fit":     {fitFlags, runFit},
	"fourier": {fourierFlags, runFourier},
	"predict": {predictFlags, runPredict},
	"plot":    {plotFlags, runPlot},
	"serve":   {func(*pflag.FlagSet) {}, runServe},
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("no command given")
	}
	name := args[0]
	switch name {
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	case "version", "--version":
		fmt.Fprintln(out, versionLine())
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", name)
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	addCommonFlags(fs)
	cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	env, err := newEnvironment(fs)
	if err != nil {
		return err
	}
	return cmd.run(ctx, env, fs, out)
}
