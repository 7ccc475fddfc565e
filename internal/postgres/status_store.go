package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

type Config struct {
	DSN              string
	Table            string
	MaxConns         int32
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open creates a pgx pool and verifies the connection.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "deficiency-report"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	slog.Info("Connected to Postgres.", "maxConns", pc.MaxConns)
	return pool, nil
}

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StatusStore tracks PDF processing state in a table with columns
// id, pdf_file, status and deficiency_report.
type StatusStore struct {
	db      DB
	table   string
	timeout time.Duration
}

func NewStatusStore(db DB, table string, timeout time.Duration) *StatusStore {
	if table == "" {
		table = "pdf_documents"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatusStore{
		db:      db,
		table:   pgx.Identifier{table}.Sanitize(),
		timeout: timeout,
	}
}

func (s *StatusStore) ListByStatus(ctx context.Context, st models.Status) ([]models.DocumentRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id::text, pdf_file FROM %s WHERE status = $1 ORDER BY id`, s.table)
	rows, err := s.db.Query(ctx, query, st.StoredValue())
	if err != nil {
		return nil, &common.PersistenceError{Op: "list " + st.String(), Err: err}
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DocumentRef, error) {
		var ref models.DocumentRef
		err := row.Scan(&ref.ID, &ref.SourceRef)
		return ref, err
	})
	if err != nil {
		return nil, &common.PersistenceError{Op: "list " + st.String(), Err: err}
	}
	return refs, nil
}

// SetStatus compares the key column directly so the primary key index applies.
// pgx sends id as text and the server coerces it to the column type.
func (s *StatusStore) SetStatus(ctx context.Context, id string, st models.Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2`, s.table)
	return s.exec(ctx, "set status", id, query, st.StoredValue(), id)
}

// SetResult updates status and deficiency_report in one statement. A nil artifact clears the column.
func (s *StatusStore) SetResult(ctx context.Context, id string, artifact *string, st models.Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, deficiency_report = $2 WHERE id = $3`, s.table)
	return s.exec(ctx, "set result", id, query, st.StoredValue(), artifact, id)
}

func (s *StatusStore) exec(ctx context.Context, op, id, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		slog.Error("Status update failed.", "documentId", id, "op", op, "error", err)
		return &common.PersistenceError{Op: op, ID: id, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &common.PersistenceError{Op: op, ID: id, Err: common.ErrRecordNotFound}
	}
	slog.Debug("Status updated.", "documentId", id, "op", op, "rowsAffected", tag.RowsAffected())
	return nil
}
