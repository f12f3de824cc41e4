package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/adapters/elasticsearch/estest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertDocuments(t *testing.T) {
	t.Run("CreatesEveryDocument", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(25))
		require.NoError(t, err)
		assert.Equal(t, index.InsertStats{Created: 25}, stats)
		assert.Equal(t, 3, srv.CountRequests("POST /"+testIndex+"/_bulk"))
		assert.Equal(t, 25, srv.DocCount(testIndex))

		source, ok := srv.Document(testIndex, "doc-7")
		require.True(t, ok)
		assert.JSONEq(t, `{"id":"doc-7","n":7}`, string(source))
	})

	t.Run("CountsUpdates", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		_, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(5))
		require.NoError(t, err)

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(8))
		require.NoError(t, err)
		assert.Equal(t, index.InsertStats{Created: 3, Updated: 5}, stats)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(0))
		require.NoError(t, err)
		assert.Equal(t, index.InsertStats{}, stats)
		assert.Zero(t, srv.CountRequests("POST /"+testIndex+"/_bulk"))
	})

	t.Run("RejectedDocument", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)
		srv.RejectDocument = func(_, id string, _ json.RawMessage) string {
			if id == "doc-13" {
				return "failed to parse field [n] of type [long]"
			}
			return ""
		}

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(25))
		assert.Equal(t, index.InsertStats{Created: 24, Error: 1}, stats)
		require.ErrorIs(t, err, index.ErrBulkInsert)
		assert.ErrorIs(t, err, index.ErrNotCreated)

		var bulkErr *index.BulkError
		require.True(t, errors.As(err, &bulkErr))
		require.Len(t, bulkErr.Chunks, 1)
		assert.Equal(t, 1, bulkErr.Chunks[0].Chunk)
		assert.Equal(t, 10, bulkErr.Chunks[0].Documents)
		assert.Equal(t, testIndex, bulkErr.Index)
	})

	t.Run("FailedChunk", func(t *testing.T) {
		storage, srv := setupTestStorage(t, func(o *Options) { o.Concurrency = 1 })
		srv.AddIndex(testIndex)
		srv.Intercept = failFirst(1, http.StatusServiceUnavailable, http.MethodPost, "/"+testIndex+"/_bulk")

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(25))
		assert.Equal(t, index.InsertStats{Created: 15, Error: 10}, stats)
		assert.Equal(t, 25, stats.Total())
		require.ErrorIs(t, err, index.ErrBulkInsert)
		assert.ErrorIs(t, err, index.ErrBackendTransport)
		assert.Equal(t, 15, srv.DocCount(testIndex))
	})

	t.Run("UnknownIndex", func(t *testing.T) {
		storage, _ := setupTestStorage(t)

		stats, err := storage.InsertDocuments(context.Background(), "missing", rawDocs(4))
		assert.Equal(t, index.InsertStats{Error: 4}, stats)
		assert.ErrorIs(t, err, index.ErrBulkInsert)
	})

	t.Run("DocumentWithoutIdentity", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		docs := func(yield func(index.Document) bool) {
			_ = yield(index.RawDocument{Identifier: "a", Body: json.RawMessage(`{}`)}) &&
				yield(index.RawDocument{Body: json.RawMessage(`{}`)})
		}
		stats, err := storage.InsertDocuments(context.Background(), testIndex, docs)
		assert.Equal(t, index.InsertStats{Created: 1, Error: 1}, stats)
		assert.ErrorIs(t, err, index.ErrBulkInsert)
	})

	t.Run("MalformedBulkResponse", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)
		srv.Intercept = func(method, path string, _ []byte) *estest.Reply {
			if path == "/"+testIndex+"/_bulk" {
				return &estest.Reply{Status: http.StatusOK, Body: `{"errors":false,"items":[{"index":{"_id":"doc-0","status":201,"result":"created"}}]}`}
			}
			return nil
		}

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(3))
		assert.Equal(t, index.InsertStats{Created: 1, Error: 2}, stats)
		assert.ErrorIs(t, err, index.ErrMalformedResponse)
	})
}

func TestInsertDocumentsConcurrency(t *testing.T) {
	storage, srv := setupTestStorage(t, func(o *Options) {
		o.Concurrency = 2
		o.ChunkSize = 5
	})
	srv.AddIndex(testIndex)
	srv.BulkDelay = 20 * time.Millisecond

	stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(50))
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Created)
	assert.Equal(t, 10, srv.CountRequests("POST /"+testIndex+"/_bulk"))
	assert.LessOrEqual(t, srv.MaxConcurrentBulk(), 2)
	assert.GreaterOrEqual(t, srv.MaxConcurrentBulk(), 1)
}

func TestInsertDocumentsCancellation(t *testing.T) {
	t.Run("CancelledBeforehand", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.InsertDocuments(ctx, testIndex, rawDocs(30))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, srv.CountRequests("POST /"+testIndex+"/_bulk"))
	})

	t.Run("CancelledWhileProducing", func(t *testing.T) {
		storage, srv := setupTestStorage(t, func(o *Options) { o.Concurrency = 1 })
		srv.AddIndex(testIndex)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		produced := 0
		docs := func(yield func(index.Document) bool) {
			for doc := range rawDocs(100) {
				produced++
				if produced == 15 {
					cancel()
				}
				if !yield(doc) {
					return
				}
			}
		}

		_, err := storage.InsertDocuments(ctx, testIndex, docs)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, produced, 100)
	})
}

func TestJoined(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("FinishedRunWinsOverCancellation", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		for i := 0; i < 100; i++ {
			assert.NoError(t, joined(cancelled, done))
		}
	})

	t.Run("CancelledWhileRunning", func(t *testing.T) {
		assert.ErrorIs(t, joined(cancelled, make(chan struct{})), context.Canceled)
	})

	t.Run("Finished", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(done)
		}()
		assert.NoError(t, joined(context.Background(), done))
	})
}

func TestInsertDocumentsRateLimited(t *testing.T) {
	storage, srv := setupTestStorage(t, func(o *Options) {
		o.ChunkSize = 1
		o.BulkRate = 50
	})
	srv.AddIndex(testIndex)

	start := time.Now()
	stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(4))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Created)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestInsertDocumentsWithPipeline(t *testing.T) {
	t.Run("Installed", func(t *testing.T) {
		storage, srv := setupTestStorage(t, func(o *Options) { o.Pipeline = IndexedAtPipeline })
		srv.AddIndex(testIndex)

		require.NoError(t, storage.EnsureIndexedAtPipeline(context.Background()))
		definition, ok := srv.Pipeline(IndexedAtPipeline)
		require.True(t, ok)
		assert.Contains(t, string(definition), "_ingest.timestamp")

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(3))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Created)
	})

	t.Run("Missing", func(t *testing.T) {
		storage, srv := setupTestStorage(t, func(o *Options) { o.Pipeline = IndexedAtPipeline })
		srv.AddIndex(testIndex)

		stats, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(3))
		assert.Equal(t, index.InsertStats{Error: 3}, stats)
		assert.ErrorIs(t, err, index.ErrNotCreated)
	})
}
