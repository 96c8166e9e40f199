package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/internal/config"
	flag "github.com/spf13/pflag"
)

var (
	confPath = flag.StringP("config", "c", "./inkpost.toml", "Config path")
	debug    = flag.Bool("debug", false, "Debug logging and strict placeholder checks, regardless of config")
	dryRun   = flag.Bool("dry-run", false, "backfill: render rows without writing them back")
	tables   = flag.StringSlice("table", nil, "backfill: only process the named tables (default all configured)")
)

func usage() {
	fmt.Fprintf(os.Stderr, `inkpost %s renders markdown with math into safe HTML.

Usage:
  inkpost [flags] <command>

Commands:
  render    render markdown from stdin to stdout
  hasmath   print whether stdin contains math; exit code 1 when it does not
  serve     run the HTTP render service
  backfill  re-render markdown stored in the database
  config    write the effective configuration to the config path

Flags:
`, inkpost.Version)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(ExitUsage)
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		slog.Error("Couldn't load config", slog.Any("err", err))
		os.Exit(exitCodeFor(err))
	}
	if *debug {
		cfg.Common.Debug = true
	}

	logger, err := inkpost.NewLogger(cfg.Common.Debug, cfg.Common.LogDir)
	if err != nil {
		slog.Error("Couldn't initialize logger", slog.Any("err", err))
		os.Exit(ExitGeneral)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, flag.Arg(0), cfg)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cmd string, cfg *config.Config) int {
	var err error
	switch cmd {
	case "render":
		err = renderCmd(cfg, os.Stdin, os.Stdout)
	case "hasmath":
		var has bool
		has, err = hasMathCmd(cfg, os.Stdin, os.Stdout)
		if err == nil && !has {
			return ExitNoMath
		}
	case "serve":
		err = serveCmd(ctx, cfg)
	case "backfill":
		err = backfillCmd(ctx, cfg, os.Stdout)
	case "config":
		err = config.Save(*confPath, cfg)
		if err == nil {
			slog.Info("Wrote config", slog.String("path", *confPath))
		}
	default:
		err = fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	if err != nil {
		slog.Error("Command failed", slog.String("command", cmd), slog.Any("err", err))
	}
	return exitCodeFor(err)
}
