package settings

import (
	"database/sql"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// SQLite is a Backend stored in a single SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Backend = &SQLite{}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open database %s", path)
	}
	// A single connection keeps writes serialized without busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to enable WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to create schema")
	}

	logrus.WithField("path", path).Debug("settings database opened")

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrapf(err, "failed to read %s", key)
	}
	return v, true, nil
}

func (s *SQLite) Set(pairs map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for k, v := range pairs {
		if _, err := stmt.Exec(k, v); err != nil {
			return pkgerrors.Wrapf(err, "failed to write %s", k)
		}
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "failed to commit")
	}

	logrus.WithField("keys", len(pairs)).Trace("settings written")
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
