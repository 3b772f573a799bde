// Package sqlite provides a single-node document store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/geocoder89/trialbooking/internal/domain/document"
	"github.com/geocoder89/trialbooking/internal/observability"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	collection  TEXT NOT NULL,
	body        TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection_created_idx ON documents (collection, created_at);
`

type DocumentsRepo struct {
	sqlDB *sql.DB
	prom  *observability.Prom
}

// Open opens (or creates) the database file and applies the schema.
func Open(path string, prom *observability.Prom) (*DocumentsRepo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// single writer
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DocumentsRepo{sqlDB: sqlDB, prom: prom}, nil
}

func (repo *DocumentsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *DocumentsRepo) Append(ctx context.Context, doc document.Document) error {
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return repo.observe("documents.append", func() error {
		_, e := repo.sqlDB.ExecContext(ctx,
			`INSERT INTO documents (id, collection, body, created_at) VALUES (?, ?, ?, ?)`,
			doc.ID, doc.Collection, string(body), doc.CreatedAt.UTC().UnixMilli(),
		)
		return e
	})
}

// Count returns how many documents a collection holds.
func (repo *DocumentsRepo) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := repo.observe("documents.count", func() error {
		return repo.sqlDB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection,
		).Scan(&n)
	})
	return n, err
}

// Body returns the stored JSON of one document.
func (repo *DocumentsRepo) Body(ctx context.Context, id string) (map[string]any, error) {
	var raw string
	err := repo.observe("documents.body", func() error {
		return repo.sqlDB.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&raw)
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func (repo *DocumentsRepo) Ping(ctx context.Context) error {
	return repo.sqlDB.PingContext(ctx)
}

func (repo *DocumentsRepo) Close() error {
	if repo == nil || repo.sqlDB == nil {
		return nil
	}
	return repo.sqlDB.Close()
}
