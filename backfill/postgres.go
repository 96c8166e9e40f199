package backfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/internal/config"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRowNotFound = errors.New("row not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres is the Store backed by a pgx connection pool.
type Postgres struct {
	conn *pgxpool.Pool
}

var _ Store = &Postgres{}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("couldn't ping database: %w", err)
	}
	return &Postgres{conn: conn}, nil
}

func (s *Postgres) Close() {
	s.conn.Close()
}

func batchQuery(t config.Table, after int64, limit uint64) (string, []any, error) {
	return psql.Select(t.IDColumn, t.SourceColumn).
		From(t.Name).
		Where(sq.Gt{t.IDColumn: after}).
		OrderBy(t.IDColumn + " ASC").
		Limit(limit).
		ToSql()
}

func updateQuery(t config.Table, id int64, content *inkpost.RenderedContent) (string, []any, error) {
	return psql.Update(t.Name).
		Set(t.HTMLColumn, content.HTML).
		Set(t.HasMathColumn, content.HasMath).
		Where(sq.Eq{t.IDColumn: id}).
		ToSql()
}

func (s *Postgres) Batch(ctx context.Context, t config.Table, after int64, limit uint64) ([]Row, error) {
	query, args, err := batchQuery(t, after, limit)
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	batch, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Row])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []Row{}, nil
		}
		return nil, err
	}
	return batch, nil
}

func (s *Postgres) Update(ctx context.Context, t config.Table, id int64, content *inkpost.RenderedContent) error {
	query, args, err := updateQuery(t, id, content)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s id %d", ErrRowNotFound, t.Name, id)
	}
	return nil
}
