// Package store persists user sessions, the question bank and the answer log
// in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a session was saved by someone else
	// after it was loaded.
	ErrVersionConflict = errors.New("session version conflict")
)

type Store struct {
	db     *sql.DB
	driver string
}

// New opens (or creates) a SQLite database at dbPath. ":memory:" is allowed.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to the database and applies the schema.
// For SQLite dsn is a file path; for PostgreSQL it is a lib/pq connection string.
func Open(driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
		if err == nil {
			// One writer at a time; also keeps ":memory:" on a single database.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_sessions (
	user_id TEXT PRIMARY KEY,
	exam TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	task_type TEXT NOT NULL DEFAULT '',
	current_question TEXT NOT NULL DEFAULT '',
	current_question_id INTEGER,
	current_source TEXT NOT NULL DEFAULT '',
	waiting_for_answer BOOLEAN NOT NULL DEFAULT 0,
	attempts_count INTEGER NOT NULL DEFAULT 0,
	correct_count INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam TEXT NOT NULL,
	subject TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	task_type TEXT NOT NULL,
	text TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_lookup
	ON questions(source, exam, subject, difficulty, task_type);

CREATE TABLE IF NOT EXISTS answer_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	question_id INTEGER,
	source TEXT NOT NULL,
	question_text TEXT NOT NULL,
	submitted_text TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL,
	explanation TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answer_log_user ON answer_log(user_id);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	imported_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS user_sessions (
	user_id TEXT PRIMARY KEY,
	exam TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	task_type TEXT NOT NULL DEFAULT '',
	current_question TEXT NOT NULL DEFAULT '',
	current_question_id BIGINT,
	current_source TEXT NOT NULL DEFAULT '',
	waiting_for_answer BOOLEAN NOT NULL DEFAULT FALSE,
	attempts_count INTEGER NOT NULL DEFAULT 0,
	correct_count INTEGER NOT NULL DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	exam TEXT NOT NULL,
	subject TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	task_type TEXT NOT NULL,
	text TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_lookup
	ON questions(source, exam, subject, difficulty, task_type);

CREATE TABLE IF NOT EXISTS answer_log (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	question_id BIGINT,
	source TEXT NOT NULL,
	question_text TEXT NOT NULL,
	submitted_text TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL,
	explanation TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answer_log_user ON answer_log(user_id);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL
);
`
