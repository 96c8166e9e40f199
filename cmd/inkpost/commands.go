package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/inkpost/inkpost/backfill"
	"github.com/inkpost/inkpost/internal/config"
	"github.com/inkpost/inkpost/mdrenderer"
	"github.com/inkpost/inkpost/mdrenderer/texrender"
	"github.com/inkpost/inkpost/metrics"
	"github.com/inkpost/inkpost/server"
)

var (
	ErrUsage = errors.New("usage error")
	ErrNoDSN = errors.New("database.dsn is not set")
)

// Exit codes. hasmath uses ExitNoMath the way grep reports no match.
const (
	ExitSuccess = 0
	ExitNoMath  = 1
	ExitUsage   = 2
	ExitGeneral = 3
)

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUsage),
		errors.Is(err, ErrNoDSN),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, texrender.ErrUnknownEngine),
		errors.Is(err, texrender.ErrNoKatexScript):
		return ExitUsage
	default:
		return ExitGeneral
	}
}

func rendererOptions(cfg *config.Config) mdrenderer.Options {
	return mdrenderer.Options{
		Math:           cfg.Math.Enabled,
		HardWraps:      cfg.Markdown.HardWraps,
		Highlight:      cfg.Markdown.Highlight,
		HighlightStyle: cfg.Markdown.HighlightStyle,
		Strict:         cfg.Common.Debug,
		Tex: texrender.Options{
			Engine:        cfg.Math.Engine,
			KatexScript:   cfg.Math.KatexScript,
			CacheSize:     cfg.Math.CacheSize,
			LogSnippetLen: cfg.Math.LogSnippetLen,
		},
	}
}

func newRenderer(cfg *config.Config) (*mdrenderer.LocalRenderer, error) {
	return mdrenderer.NewLocalRenderer(rendererOptions(cfg))
}

func renderCmd(cfg *config.Config, in io.Reader, out io.Writer) error {
	rd, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	defer rd.Close()

	src, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("couldn't read input: %w", err)
	}
	_, err = io.WriteString(out, rd.Render(string(src)))
	return err
}

func hasMathCmd(cfg *config.Config, in io.Reader, out io.Writer) (bool, error) {
	rd, err := newRenderer(cfg)
	if err != nil {
		return false, err
	}
	defer rd.Close()

	src, err := io.ReadAll(in)
	if err != nil {
		return false, fmt.Errorf("couldn't read input: %w", err)
	}
	has := rd.HasMath(string(src))
	_, err = fmt.Fprintln(out, has)
	return has, err
}

func serveCmd(ctx context.Context, cfg *config.Config) error {
	rd, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	defer rd.Close()

	metrics.InitMetrics(cfg.Metrics.Enabled, cfg.Metrics.Address)
	return server.New(rd, cfg.Server).Run(ctx)
}

func backfillCmd(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.Database.DSN == "" {
		return ErrNoDSN
	}
	selected, err := cfg.Database.Select(*tables)
	if err != nil {
		return err
	}

	rd, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	defer rd.Close()

	store, err := backfill.NewPostgres(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.InitMetrics(cfg.Metrics.Enabled, cfg.Metrics.Address)
	slog.InfoContext(ctx, "Starting backfill",
		slog.Int("tables", len(selected)),
		slog.Int("workers", cfg.Database.Workers),
		slog.String("batch_size", humanize.Comma(int64(cfg.Database.BatchSize))),
	)

	b := backfill.New(store, rd, backfill.Options{
		Workers:   cfg.Database.Workers,
		BatchSize: cfg.Database.BatchSize,
		DryRun:    *dryRun,
	})
	stats, err := b.Run(ctx, selected)
	for _, s := range stats {
		fmt.Fprintln(out, s)
	}
	return err
}
