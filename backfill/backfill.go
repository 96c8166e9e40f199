// Package backfill re-renders markdown already stored in the database, so that
// the stored HTML and math flag match the current renderer.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/internal/config"
	"github.com/inkpost/inkpost/metrics"
	"golang.org/x/sync/errgroup"
)

var ErrRenderPanic = errors.New("renderer panicked")

// Row is one stored document. Source is nil for NULL markdown.
type Row struct {
	ID     int64
	Source *string
}

// Store reads rows in ascending id order and writes rendered content back.
type Store interface {
	// Batch returns up to limit rows with an id greater than after.
	Batch(ctx context.Context, t config.Table, after int64, limit uint64) ([]Row, error)
	Update(ctx context.Context, t config.Table, id int64, content *inkpost.RenderedContent) error
}

type Options struct {
	Workers   int
	BatchSize uint64
	// DryRun renders every row but writes nothing.
	DryRun bool
}

// Stats are the totals for one table.
type Stats struct {
	Table    string
	Scanned  int64
	Rendered int64
	Updated  int64
	WithMath int64
	Skipped  int64
	Failed   int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("%s: %s scanned, %s rendered, %s updated (%s with math), %s skipped, %s failed",
		s.Table,
		humanize.Comma(s.Scanned),
		humanize.Comma(s.Rendered),
		humanize.Comma(s.Updated),
		humanize.Comma(s.WithMath),
		humanize.Comma(s.Skipped),
		humanize.Comma(s.Failed),
	)
}

type Backfiller struct {
	store Store
	rd    inkpost.ContentRenderer
	opts  Options
	// every record of one backfiller carries the same run id
	log *slog.Logger
}

func New(store Store, rd inkpost.ContentRenderer, opts Options) *Backfiller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	return &Backfiller{
		store: store,
		rd:    rd,
		opts:  opts,
		log:   slog.Default().With(slog.String("run", uuid.Must(uuid.NewV7()).String())),
	}
}

// Run processes the tables one after another. Row failures do not stop the
// run; they are joined into the returned error. A canceled context or a failed
// batch read stops the run.
func (b *Backfiller) Run(ctx context.Context, tables []config.Table) ([]*Stats, error) {
	var all []*Stats
	var errs []error
	for _, t := range tables {
		stats, err := b.Table(ctx, t)
		all = append(all, stats)
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return all, errors.Join(errs...)
}

// Table re-renders every row of t in keyset-paginated batches.
func (b *Backfiller) Table(ctx context.Context, t config.Table) (*Stats, error) {
	stats := &Stats{Table: t.Name}
	b.log.InfoContext(ctx, "Backfilling table", slog.String("table", t.Name), slog.Bool("dry_run", b.opts.DryRun))

	var (
		errs   []error
		errsMu sync.Mutex
		after  int64
	)
	for {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rows, err := b.store.Batch(ctx, t, after, b.opts.BatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("couldn't read batch of %s after id %d: %w", t.Name, after, err))
			break
		}
		if len(rows) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(b.opts.Workers)
		for _, row := range rows {
			g.Go(func() error {
				if err := b.row(ctx, t, row, stats); err != nil {
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
				return nil
			})
		}
		g.Wait()

		after = rows[len(rows)-1].ID
		b.log.DebugContext(ctx, "Finished batch", slog.String("table", t.Name), slog.Int64("last_id", after), slog.String("scanned", humanize.Comma(atomic.LoadInt64(&stats.Scanned))))
		if uint64(len(rows)) < b.opts.BatchSize {
			break
		}
	}

	b.log.InfoContext(ctx, "Backfill finished", slog.String("stats", stats.String()))
	return stats, errors.Join(errs...)
}

// render reports a renderer panic as ErrRenderPanic.
func (b *Backfiller) render(ctx context.Context, src *string) (content *inkpost.RenderedContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			content, err = nil, fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return b.rd.RenderContent(ctx, src)
}

func (b *Backfiller) row(ctx context.Context, t config.Table, row Row, stats *Stats) error {
	atomic.AddInt64(&stats.Scanned, 1)
	if row.Source == nil || *row.Source == "" {
		atomic.AddInt64(&stats.Skipped, 1)
		metrics.BackfillRows.WithLabelValues(t.Name, "skipped").Inc()
		return nil
	}

	content, err := b.render(ctx, row.Source)
	if err == nil {
		atomic.AddInt64(&stats.Rendered, 1)
		if !b.opts.DryRun {
			err = b.store.Update(ctx, t, row.ID, content)
		}
	}
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		metrics.BackfillRows.WithLabelValues(t.Name, "failed").Inc()
		b.log.WarnContext(ctx, "Couldn't backfill row", slog.String("table", t.Name), slog.Int64("id", row.ID), slog.Any("err", err))
		return fmt.Errorf("%s id %d: %w", t.Name, row.ID, err)
	}

	if content.HasMath {
		atomic.AddInt64(&stats.WithMath, 1)
	}
	if !b.opts.DryRun {
		atomic.AddInt64(&stats.Updated, 1)
		metrics.BackfillRows.WithLabelValues(t.Name, "updated").Inc()
	}
	return nil
}
