// Package cache persists the id -> {numero, link} mapping for scraped
// proceedings so chat commands can resolve short ids between runs.
package cache

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coder7br/tjscope/internal/utils"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS processo_links (
  id        TEXT PRIMARY KEY,
  numero    TEXT NOT NULL,
  link      TEXT NOT NULL,
  saved_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_links_numero ON processo_links(numero);
`

type DB struct {
	sql *sql.DB
}

// Open returns a cache backed by the sqlite file at path. A store that cannot
// be opened degrades to an in-memory database: lookups start empty, the
// process still comes up.
func Open(path string) (*DB, error) {
	db, err := open("file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		utils.Log.Warn("link cache unusable, falling back to memory: ", err)
		db, err = open(":memory:")
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

func open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Save upserts an id. Re-saving the same id refreshes its timestamp.
func (d *DB) Save(ctx context.Context, id, numero, link string) error {
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO processo_links(id, numero, link, saved_at) VALUES(?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET numero = excluded.numero, link = excluded.link, saved_at = CURRENT_TIMESTAMP`,
		id, numero, link)
	return err
}

// Link resolves an id to its canonical link. A missing id is not an error.
func (d *DB) Link(ctx context.Context, id string) (string, bool, error) {
	var link string
	err := d.sql.QueryRowContext(ctx, "SELECT link FROM processo_links WHERE id = ?", id).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return link, true, nil
}

// Numero resolves an id to its proceeding number.
func (d *DB) Numero(ctx context.Context, id string) (string, bool, error) {
	var numero string
	err := d.sql.QueryRowContext(ctx, "SELECT numero FROM processo_links WHERE id = ?", id).Scan(&numero)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return numero, true, nil
}

// FindByNumero returns the id stored for a proceeding number, if any.
func (d *DB) FindByNumero(ctx context.Context, numero string) (string, bool, error) {
	var id string
	err := d.sql.QueryRowContext(ctx, "SELECT id FROM processo_links WHERE numero = ? LIMIT 1", numero).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
