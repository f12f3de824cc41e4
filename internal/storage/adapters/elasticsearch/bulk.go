package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/metrics"
	"github.com/mimir-go/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// InsertDocuments loads docs into the named index in chunks, with at most
// Concurrency bulk requests in flight. Every document is counted exactly once
// as created, updated or failed. When chunks fail, the stats stay valid and
// the error is an *index.BulkError.
//
// Cancelling ctx stops dispatching and returns ctx.Err() at once; requests
// already sent are left to complete and their results are discarded.
func (s *Storage) InsertDocuments(ctx context.Context, name string, docs iter.Seq[index.Document]) (_ index.InsertStats, err error) {
	ctx, span := s.tracer.Start(ctx, "storage.InsertDocuments", trace.WithAttributes(telemetry.IndexAttr(name)))
	defer func() { telemetry.EndSpan(span, err) }()

	// Each chunk owns its result slot; slots are reduced once every worker
	// has joined.
	var results []*chunkResult

	sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
	g := new(errgroup.Group)
	sent := 0

	for chunk := range chunked(docs, s.opts.ChunkSize) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return index.InsertStats{}, dispatchError(ctx, err)
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return index.InsertStats{}, dispatchError(ctx, err)
		}

		res := &chunkResult{chunk: len(results), documents: len(chunk)}
		results = append(results, res)
		sent += len(chunk)

		g.Go(func() error {
			defer sem.Release(1)
			metrics.BulkChunksInFlight.Inc()
			defer metrics.BulkChunksInFlight.Dec()

			res.stats, res.err = s.insertChunk(context.WithoutCancel(ctx), name, chunk)
			if res.err != nil {
				metrics.BulkChunkFailuresTotal.WithLabelValues(name).Inc()
				s.logger.Error("Bulk chunk failed", "index", name, "chunk", res.chunk, "documents", res.documents, "error", res.err)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	if err := joined(ctx, done); err != nil {
		return index.InsertStats{}, err
	}

	var (
		total  index.InsertStats
		failed []index.ChunkError
	)
	for _, res := range results {
		total.Add(res.stats)
		if res.err != nil {
			failed = append(failed, index.ChunkError{Chunk: res.chunk, Documents: res.documents, Err: res.err})
		}
	}

	span.SetAttributes(
		attribute.Int("mimir.documents", sent),
		attribute.Int("mimir.created", total.Created),
		attribute.Int("mimir.updated", total.Updated),
		attribute.Int("mimir.errors", total.Error),
	)

	if total.Total() != sent {
		return total, index.NewError(index.ErrInternal,
			index.WithIndex(name),
			index.WithReason(fmt.Sprintf("accounted for %d documents out of %d", total.Total(), sent)))
	}

	s.logger.Info("Documents inserted",
		"index", name,
		"chunks", len(results),
		"created", total.Created,
		"updated", total.Updated,
		"errors", total.Error)

	if len(failed) > 0 {
		return total, &index.BulkError{Index: name, Chunks: failed}
	}
	return total, nil
}

type chunkResult struct {
	chunk     int
	documents int
	stats     index.InsertStats
	err       error
}

// joined waits for done unless ctx ends first. A run that finished wins over
// a cancellation observed at the same time.
func joined(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		select {
		case <-done:
			return nil
		default:
			return ctx.Err()
		}
	}
}

// dispatchError prefers the context error over the waiter's own error.
func dispatchError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// chunked groups docs into slices of at most size documents.
func chunked(docs iter.Seq[index.Document], size int) iter.Seq[[]index.Document] {
	return func(yield func([]index.Document) bool) {
		chunk := make([]index.Document, 0, size)
		for doc := range docs {
			chunk = append(chunk, doc)
			if len(chunk) == size {
				if !yield(chunk) {
					return
				}
				chunk = make([]index.Document, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string        `json:"_id"`
	Status int           `json:"status"`
	Result string        `json:"result"`
	Error  *ErrorDetails `json:"error"`
}

// insertChunk sends one bulk request. The returned stats account for every
// document of the chunk; the error describes the first failure.
func (s *Storage) insertChunk(ctx context.Context, name string, chunk []index.Document) (index.InsertStats, error) {
	var (
		stats    index.InsertStats
		firstErr error
		buf      bytes.Buffer
		ids      []string
	)
	fail := func(err error) {
		stats.Error++
		if firstErr == nil {
			firstErr = err
		}
	}

	enc := json.NewEncoder(&buf)
	for _, doc := range chunk {
		if doc.ID() == "" {
			fail(index.NewError(index.ErrNotCreated, index.WithIndex(name), index.WithReason("document without identity")))
			continue
		}
		source, err := json.Marshal(doc)
		if err != nil {
			fail(index.NewError(index.ErrNotCreated, index.WithIndex(name), index.WithField(doc.ID()), index.WithCause(err)))
			continue
		}
		_ = enc.Encode(map[string]interface{}{"index": map[string]string{"_id": doc.ID()}})
		buf.Write(source)
		buf.WriteByte('\n')
		ids = append(ids, doc.ID())
	}

	defer func() {
		metrics.DocumentsInsertedTotal.WithLabelValues(name, "created").Add(float64(stats.Created))
		metrics.DocumentsInsertedTotal.WithLabelValues(name, "updated").Add(float64(stats.Updated))
		metrics.DocumentsInsertedTotal.WithLabelValues(name, "error").Add(float64(stats.Error))
	}()

	if len(ids) == 0 {
		return stats, firstErr
	}

	req := esapi.BulkRequest{
		Index:    name,
		Body:     &buf,
		Pipeline: s.opts.Pipeline,
	}
	res, err := s.do(ctx, "bulk", req)
	if err != nil {
		stats.Error += len(ids)
		return stats, err
	}
	defer res.Body.Close()

	if res.IsError() {
		stats.Error += len(ids)
		return stats, responseError(res, "bulk")
	}

	var body bulkResponse
	if err := decode(res, "bulk", &body); err != nil {
		stats.Error += len(ids)
		return stats, err
	}

	for i, id := range ids {
		if i >= len(body.Items) {
			fail(index.NewError(index.ErrMalformedResponse,
				index.WithOperation("bulk"),
				index.WithIndex(name),
				index.WithReason(fmt.Sprintf("no outcome for document %s", id))))
			continue
		}
		var outcome bulkItemOutcome
		for _, o := range body.Items[i] {
			outcome = o
		}

		switch {
		case outcome.Error != nil:
			reason := outcome.Error.Reason
			if outcome.Error.Type != "" {
				reason = outcome.Error.Type + ": " + reason
			}
			fail(index.NewError(index.ErrNotCreated, index.WithIndex(name), index.WithField(id), index.WithReason(reason)))
		case outcome.Result == "created":
			stats.Created++
		case outcome.Result == "updated":
			stats.Updated++
			s.logger.Warn("Document overwritten in a fresh index", "index", name, "id", id)
		default:
			fail(index.NewError(index.ErrNotCreated,
				index.WithIndex(name),
				index.WithField(id),
				index.WithReason(fmt.Sprintf("unexpected result %q with status %d", outcome.Result, outcome.Status))))
		}
	}
	return stats, firstErr
}
