package statestore

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// OpenSQLite opens the database at path and makes sure the schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open sqlite database %q", path)
	}
	// sqlite allows a single writer, keep one connection instead of retrying
	// SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "cannot enable WAL journal")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state_records (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			last_modified TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "cannot migrate sqlite schema")
		}
	}

	return nil
}

// SQLite keeps the record as one row of state_records. The conditional write
// is a single INSERT ... ON CONFLICT DO NOTHING for an empty store, or an
// UPDATE guarded by the expected last_modified; zero affected rows means the
// precondition failed.
type SQLite struct {
	db      *sql.DB
	l       *slog.Logger
	metrics *storeMetrics
}

func NewSQLite(db *sql.DB, l *slog.Logger) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("sqlite database cannot be nil")
	}
	if l == nil {
		l = hzlog.NopLogger()
	}

	return &SQLite{
		db:      db,
		l:       l.With(slog.String("component", "infra:sqlite_store")),
		metrics: newStoreMetrics("sqlite"),
	}, nil
}

func (s *SQLite) Get(ctx context.Context) (Record, error) {
	defer s.metrics.GetDuration.UpdateDuration(time.Now())

	row := s.db.QueryRowContext(
		ctx,
		`SELECT state, last_modified FROM state_records WHERE id = ?`,
		SingletonKey,
	)

	var state, lastModified string
	if err := row.Scan(&state, &lastModified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, nil
		}
		return Record{}, s.metrics.observe(errors.Wrap(err, "cannot read record from sqlite"))
	}

	lm, err := ParseTime(lastModified)
	if err != nil {
		return Record{}, s.metrics.observe(err)
	}

	return Record{State: []byte(state), LastModified: lm}, nil
}

func (s *SQLite) CompareAndSwap(ctx context.Context, expected time.Time, next Record) error {
	defer s.metrics.CompareAndSwapDuration.UpdateDuration(time.Now())

	var (
		res sql.Result
		err error
	)
	if expected.IsZero() {
		res, err = s.db.ExecContext(
			ctx,
			`INSERT INTO state_records (id, state, last_modified) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			SingletonKey, string(next.State), FormatTime(next.LastModified),
		)
	} else {
		res, err = s.db.ExecContext(
			ctx,
			`UPDATE state_records SET state = ?, last_modified = ?
			 WHERE id = ? AND last_modified = ?`,
			string(next.State), FormatTime(next.LastModified),
			SingletonKey, FormatTime(expected),
		)
	}
	if err != nil {
		return s.metrics.observe(errors.Wrap(err, "cannot write record to sqlite"))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return s.metrics.observe(errors.Wrap(err, "cannot get affected rows"))
	}
	if affected == 0 {
		s.l.DebugContext(ctx, "conditional write lost", slog.String("expected", formatExpected(expected)))
		return s.metrics.observe(ErrPreconditionFailed)
	}

	return nil
}
