package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/trialbooking/internal/domain/document"
)

// DocumentsRepo keeps appended documents in process memory, per collection.
type DocumentsRepo struct {
	mu    sync.RWMutex
	items map[string][]document.Document
}

func NewDocumentsRepo() *DocumentsRepo {
	return &DocumentsRepo{
		items: make(map[string][]document.Document),
	}
}

func (r *DocumentsRepo) Append(ctx context.Context, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.items[doc.Collection] = append(r.items[doc.Collection], clone(doc))
	r.mu.Unlock()

	return nil
}

// List returns copies of the documents of a collection in append order.
func (r *DocumentsRepo) List(collection string) []document.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]document.Document, 0, len(r.items[collection]))
	for _, d := range r.items[collection] {
		out = append(out, clone(d))
	}
	return out
}

func (r *DocumentsRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func clone(d document.Document) document.Document {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	return d
}
