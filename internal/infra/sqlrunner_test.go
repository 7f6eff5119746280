package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type stubExecutor struct {
	execErr  error
	rowErr   error
	lastSQL  string
	lastArgs []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.lastSQL = query
	s.lastArgs = args
	return pgconn.NewCommandTag("UPDATE 1"), s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.lastSQL = query
	return stubRow{err: s.rowErr}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct{ err error }

func (r stubRow) Scan(dest ...any) error { return r.err }

func TestQueryName(t *testing.T) {
	cases := map[string]string{
		"-- name: GetJob :one\nSELECT 1":     "GetJob",
		"\n  -- name: ListStyles :many\nSELECT": "ListStyles",
		"SELECT 1":                             "anonymous",
		"-- name:\nSELECT 1":                   "anonymous",
	}
	for query, want := range cases {
		if got := queryName(query); got != want {
			t.Fatalf("queryName(%q) = %q, want %q", query, got, want)
		}
	}
}

func TestSQLRunnerPassesThroughAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	stub := &stubExecutor{execErr: errors.New("boom")}
	runner := NewSQLRunner(stub, logger)

	query := "-- name: FailJob :execrows\nUPDATE generation_jobs SET status = 'failed'"
	if _, err := runner.Exec(context.Background(), query, "job-1"); err == nil {
		t.Fatalf("expected exec error")
	}
	if stub.lastSQL != query || len(stub.lastArgs) != 1 {
		t.Fatalf("executor did not receive the query verbatim")
	}
	if !strings.Contains(buf.String(), `"query":"FailJob"`) {
		t.Fatalf("log missing query name: %s", buf.String())
	}
}

func TestLoggingRowQuietOnNoRows(t *testing.T) {
	var buf bytes.Buffer
	runner := NewSQLRunner(&stubExecutor{rowErr: pgx.ErrNoRows}, zerolog.New(&buf).Level(zerolog.InfoLevel))

	err := runner.QueryRow(context.Background(), "-- name: GetStyle :one\nSELECT").Scan()
	if !IsNoRows(err) {
		t.Fatalf("expected no rows, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no error log for missing row, got %s", buf.String())
	}
}
