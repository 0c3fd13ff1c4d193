package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists uploads, questions, exams, attempts and their answers.
// A Store returned to an InTx callback runs every statement in that
// transaction.
type Store struct {
	db     *sql.DB
	q      querier
	driver Driver
}

// New opens the database and ensures the schema exists. For SQLite, dsn is
// a file path or ":memory:"; for Postgres it is a connection URL.
func New(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "":
		driver, drvName = DriverSQLite, "sqlite"
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/studytool?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps a ":memory:" database on a single
		// connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, q: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver reports which database backs the store.
func (s *Store) Driver() Driver { return s.driver }

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, driver: s.driver}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// affectedOrNotFound maps an update that touched no rows to ErrNotFound.
func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS uploads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id INTEGER NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	stem TEXT NOT NULL,
	qtype TEXT NOT NULL,
	options TEXT NOT NULL DEFAULT 'null',
	answer TEXT NOT NULL DEFAULT 'null',
	explanation TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS exams (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id INTEGER NOT NULL,
	question_ids TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'in_progress',
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	score_pct REAL NOT NULL DEFAULT 0,
	duration_seconds INTEGER,
	exam_type TEXT NOT NULL DEFAULT 'exam',
	progress_state TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_attempts_exam_status ON attempts(exam_id, status);

CREATE TABLE IF NOT EXISTS attempt_answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id INTEGER NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
	question_id INTEGER NOT NULL,
	response TEXT NOT NULL DEFAULT 'null',
	correct BOOLEAN,
	ai_explanation TEXT,
	UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS app_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS uploads (
	id BIGSERIAL PRIMARY KEY,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	upload_id BIGINT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	stem TEXT NOT NULL,
	qtype TEXT NOT NULL,
	options TEXT NOT NULL DEFAULT 'null',
	answer TEXT NOT NULL DEFAULT 'null',
	explanation TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	upload_id BIGINT NOT NULL,
	question_ids TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
	id BIGSERIAL PRIMARY KEY,
	exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'in_progress',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	score_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_seconds INTEGER,
	exam_type TEXT NOT NULL DEFAULT 'exam',
	progress_state TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_attempts_exam_status ON attempts(exam_id, status);

CREATE TABLE IF NOT EXISTS attempt_answers (
	id BIGSERIAL PRIMARY KEY,
	attempt_id BIGINT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL,
	response TEXT NOT NULL DEFAULT 'null',
	correct BOOLEAN,
	ai_explanation TEXT,
	UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS app_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
