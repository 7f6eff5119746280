package infra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface shared by pgxpool.Pool, pgxpool.Conn and pgx.Tx.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// SQLRunner logs every statement passed to the wrapped executor, keyed by the
// "-- name: X" header of the query text.
type SQLRunner struct {
	db     SQLExecutor
	logger zerolog.Logger
}

func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	name := queryName(query)
	start := time.Now()
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("query", name).Msg("sql exec failed")
		return tag, err
	}
	r.logger.Debug().
		Str("query", name).
		Int64("rows", tag.RowsAffected()).
		Dur("elapsed", time.Since(start)).
		Msg("sql exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	name := queryName(query)
	r.logger.Debug().Str("query", name).Msg("sql query_row")
	return loggingRow{row: r.db.QueryRow(ctx, query, args...), logger: r.logger, name: name}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	name := queryName(query)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("query", name).Msg("sql query failed")
		return nil, err
	}
	r.logger.Debug().Str("query", name).Msg("sql query")
	return rows, nil
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	name   string
}

// Scan logs unexpected errors; a missing row is a normal outcome and stays quiet.
func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && !IsNoRows(err) {
		l.logger.Error().Err(err).Str("query", l.name).Msg("sql scan failed")
	}
	return err
}

// IsNoRows reports whether err is pgx's no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func queryName(query string) string {
	trimmed := strings.TrimSpace(query)
	line, _, _ := strings.Cut(trimmed, "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "-- name:") {
		return "anonymous"
	}
	fields := strings.Fields(strings.TrimPrefix(line, "-- name:"))
	if len(fields) == 0 {
		return "anonymous"
	}
	return fields[0]
}

var _ SQLExecutor = (*SQLRunner)(nil)
