package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDocNotFound = errors.New("document not found")
	ErrDocExists   = errors.New("document already exists")
)

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value replaced by the store's current time when written.
var ServerTimestamp interface{} = serverTimestamp{}

type (
	// Document is a schemaless record of a collection.
	Document struct {
		ID   string
		Data map[string]interface{}
	}

	// DocWrite is one document mutation of a batch.
	// Set fields are merged into the document, Unset fields are removed. Set wins over Unset.
	DocWrite struct {
		Collection string
		ID         string
		Set        map[string]interface{}
		Unset      []string
	}

	// DocStore is the managed document database.
	DocStore interface {
		// Get returns ErrDocNotFound if the document does not exist.
		Get(ctx context.Context, collection, id string) (Document, error)
		// Create returns ErrDocExists if the document already exists.
		Create(ctx context.Context, collection, id string, data map[string]interface{}) error
		// FindEqual returns up to limit documents whose field equals value, ordered by id.
		FindEqual(ctx context.Context, collection, field string, value interface{}, limit int) ([]Document, error)
		// Page returns up to limit documents with an id strictly greater than startAfter, ordered by id ascending.
		Page(ctx context.Context, collection, startAfter string, limit int) ([]Document, error)
		// Commit applies all writes atomically. Writes to missing documents fail the whole batch with ErrDocNotFound.
		Commit(ctx context.Context, writes []DocWrite) error
		// Emulator reports whether the store is a local emulator rather than the production database.
		Emulator() bool
	}

	// DocWatcher is implemented by stores that can stream newly created documents.
	DocWatcher interface {
		// WatchCreates calls fn for each document created in collection until ctx is done.
		WatchCreates(ctx context.Context, collection string, fn func(Document)) error
	}
)

// ResolveTimestamps returns a copy of data where ServerTimestamp values (also nested) are replaced by now.
func ResolveTimestamps(data map[string]interface{}, now time.Time) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = now
		case map[string]interface{}:
			out[k] = ResolveTimestamps(val, now)
		default:
			out[k] = v
		}
	}
	return out
}
