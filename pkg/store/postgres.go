package store

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/harunnryd/asisten/pkg/errorsx"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertTurn = `INSERT INTO turns (id, session_id, user_text, reply, phase, error, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET reply = EXCLUDED.reply, phase = EXCLUDED.phase,
error = EXCLUDED.error, ended_at = EXCLUDED.ended_at`

const selectRecent = `SELECT id, session_id, user_text, reply, phase, error, started_at, ended_at
FROM turns ORDER BY ended_at DESC LIMIT $1`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresJournal persists turns in a postgres table managed by goose.
type PostgresJournal struct {
	db    querier
	close func()
}

// OpenPostgres connects, applies pending migrations and returns the journal.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresJournal, error) {
	if dsn == "" {
		return nil, errorsx.New(errorsx.ReasonJournal, "postgres journal requires a dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresJournal{db: pool, close: pool.Close}, nil
}

// Migrate applies the embedded migrations through database/sql.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	if _, err := provider.Up(ctx); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonJournal, "apply migrations")
	}
	return nil
}

func (j *PostgresJournal) Append(ctx context.Context, rec TurnRecord) error {
	_, err := j.db.Exec(ctx, insertTurn,
		rec.ID, rec.SessionID, rec.UserText, rec.Reply, rec.Phase, rec.Error, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	return nil
}

func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[TurnRecord])
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonJournal)
	}
	return out, nil
}

func (j *PostgresJournal) Close() error {
	if j.close != nil {
		j.close()
	}
	return nil
}

// Open returns the journal for driver: "memory" (default) or "postgres".
func Open(ctx context.Context, driver, dsn string, capacity int) (Journal, error) {
	switch driver {
	case "", "memory":
		return NewMemoryJournal(capacity), nil
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, errorsx.New(errorsx.ReasonJournal, "unknown journal driver: "+driver)
	}
}
