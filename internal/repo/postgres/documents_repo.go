package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geocoder89/trialbooking/internal/domain/document"
	"github.com/geocoder89/trialbooking/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDocumentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *DocumentsRepo {
	return &DocumentsRepo{pool: pool, prom: prom}
}

func (repo *DocumentsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Append stores one document. It is a single INSERT, so a failure leaves nothing behind.
func (repo *DocumentsRepo) Append(ctx context.Context, doc document.Document) error {
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return repo.observe("documents.append", func() error {
		_, e := repo.pool.Exec(ctx, `
		INSERT INTO documents (id, collection, body, created_at)
		VALUES ($1, $2, $3, $4)
	`, doc.ID, doc.Collection, body, doc.CreatedAt)
		return e
	})
}

// Count returns how many documents a collection holds.
func (repo *DocumentsRepo) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := repo.observe("documents.count", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM documents WHERE collection = $1`, collection,
		).Scan(&n)
	})
	return n, err
}

// Body returns the stored JSONB of one document.
func (repo *DocumentsRepo) Body(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	err := repo.observe("documents.body", func() error {
		return repo.pool.QueryRow(ctx, `SELECT body FROM documents WHERE id = $1`, id).Scan(&raw)
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func (repo *DocumentsRepo) Ping(ctx context.Context) error {
	return repo.pool.Ping(ctx)
}
