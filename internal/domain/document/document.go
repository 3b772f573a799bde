package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreatedAtKey is the field the gateway stamps on every stored document.
const CreatedAtKey = "createdAt"

var ErrEmptyCollection = errors.New("collection name is required")

// Document is one schemaless record appended to a collection.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Fields     map[string]any `json:"fields"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// New builds a document from client supplied fields. Any createdAt sent by the
// client is overwritten: the timestamp is owned by the server.
func New(collection string, fields map[string]any, now time.Time) (Document, error) {
	if collection == "" {
		return Document{}, ErrEmptyCollection
	}

	now = now.UTC()
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[CreatedAtKey] = now

	return Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Fields:     out,
		CreatedAt:  now,
	}, nil
}

// String returns a string field, or "" when absent or not a string.
func (d Document) String(key string) string {
	s, _ := d.Fields[key].(string)
	return s
}
