package ports

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/mimir-go/internal/domain/index"
)

// Storage is the index lifecycle capability used by importers. Every method
// returns *index.Error values that can be matched with errors.Is against the
// index.Err* kinds.
type Storage interface {
	// CreateContainer creates an index from a textual configuration and
	// returns its materialized state.
	CreateContainer(ctx context.Context, config string) (*index.Index, error)
	// DeleteContainer deletes an index. Deleting an unknown index fails.
	DeleteContainer(ctx context.Context, name string) error
	// FindContainer returns nil, nil when no live index has that name.
	FindContainer(ctx context.Context, name string) (*index.Index, error)
	// InsertDocuments bulk loads docs. The returned stats are valid even when
	// an error reports failed chunks.
	InsertDocuments(ctx context.Context, name string, docs iter.Seq[index.Document]) (index.InsertStats, error)
	// PublishIndex rotates the aliases of the index dataset onto idx.
	PublishIndex(ctx context.Context, idx *index.Index, visibility index.Visibility) error
}

// DocumentLister scans every document stored in an index.
type DocumentLister interface {
	// ListDocuments yields the raw source of each document. Stopping the
	// iteration early releases the backend cursor.
	ListDocuments(ctx context.Context, name string) iter.Seq2[json.RawMessage, error]
}
