package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tinoosan/fota/internal/data"
)

const attemptColumns = `id,started_at,finished_at,current_version,remote_version,outcome,bytes_written,total_bytes,error`

// PostgresRepo implements Repo backed by PostgreSQL, table update_attempts.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens dsn through the pgx driver, verifies the connection
// and creates the schema when missing.
func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS update_attempts (
    id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    current_version TEXT NOT NULL,
    remote_version TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    bytes_written BIGINT NOT NULL DEFAULT 0,
    total_bytes BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS update_attempts_started_at ON update_attempts (started_at DESC);
`)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) (data.Attempts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM update_attempts ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out data.Attempts
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*data.Attempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM update_attempts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepo) Add(ctx context.Context, a *data.Attempt) (*data.Attempt, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO update_attempts (`+attemptColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.StartedAt, a.FinishedAt, a.CurrentVersion, a.RemoteVersion, string(a.Outcome), a.BytesWritten, a.TotalBytes, a.Error)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, a.ID)
}

// Update serializes writers on the row with SELECT ... FOR UPDATE.
func (r *PostgresRepo) Update(ctx context.Context, id string, mutate func(*data.Attempt) error) (*data.Attempt, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanAttempt(tx.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM update_attempts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	next := cur.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE update_attempts SET finished_at=$1, remote_version=$2, outcome=$3, bytes_written=$4, total_bytes=$5, error=$6 WHERE id=$7`,
		next.FinishedAt, next.RemoteVersion, string(next.Outcome), next.BytesWritten, next.TotalBytes, next.Error, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	return next, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAttempt(rs rowScanner) (*data.Attempt, error) {
	var (
		a        data.Attempt
		outcome  string
		finished sql.NullTime
	)
	if err := rs.Scan(&a.ID, &a.StartedAt, &finished, &a.CurrentVersion, &a.RemoteVersion, &outcome, &a.BytesWritten, &a.TotalBytes, &a.Error); err != nil {
		return nil, err
	}
	a.Outcome = data.AttemptOutcome(outcome)
	if finished.Valid {
		t := finished.Time
		a.FinishedAt = &t
	}
	return &a, nil
}
