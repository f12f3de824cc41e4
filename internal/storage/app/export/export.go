// Package export reads the documents of an index back as typed values.
package export

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/ports"
)

// ListDocuments decodes every document of the named index into T. A
// document that does not decode ends the sequence with its error.
func ListDocuments[T any](ctx context.Context, lister ports.DocumentLister, name string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for source, err := range lister.ListDocuments(ctx, name) {
			if err != nil {
				yield(zero, err)
				return
			}
			var doc T
			if err := json.Unmarshal(source, &doc); err != nil {
				yield(zero, index.NewError(index.ErrMalformedResponse,
					index.WithIndex(name),
					index.WithReason("document does not decode"),
					index.WithCause(err)))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Collect drains a document sequence, stopping at the first error.
func Collect[T any](docs iter.Seq2[T, error]) ([]T, error) {
	var result []T
	for doc, err := range docs {
		if err != nil {
			return result, err
		}
		result = append(result, doc)
	}
	return result, nil
}

// WriteJSONLines writes each document of the sequence as one JSON line and
// returns how many were written.
func WriteJSONLines(enc *json.Encoder, docs iter.Seq2[json.RawMessage, error]) (int, error) {
	n := 0
	for doc, err := range docs {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(doc); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
