package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
)

// IndexedAtPipeline is the ingest pipeline stamping each document with the
// time it was indexed. Index scans sort on that field.
const IndexedAtPipeline = "indexed_at"

var indexedAtProcessors = json.RawMessage(`[{"set":{"field":"indexed_at","value":"{{_ingest.timestamp}}"}}]`)

// AddPipeline installs or replaces an ingest pipeline.
func (s *Storage) AddPipeline(ctx context.Context, id string, definition json.RawMessage) error {
	res, err := s.do(ctx, "put_pipeline", esapi.IngestPutPipelineRequest{
		PipelineID: id,
		Body:       bytes.NewReader(definition),
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "put_pipeline")
	}

	ok, err := acknowledged(res, "put_pipeline")
	if err != nil {
		return err
	}
	if !ok {
		return index.NewError(index.ErrNotAcknowledged, index.WithOperation("put_pipeline"), index.WithReason(id))
	}

	s.logger.Info("Ingest pipeline installed", "pipeline", id)
	return nil
}

// EnsureIndexedAtPipeline installs the pipeline named by the Pipeline option
// with the indexed_at processor.
func (s *Storage) EnsureIndexedAtPipeline(ctx context.Context) error {
	id := s.opts.Pipeline
	if id == "" {
		id = IndexedAtPipeline
	}
	definition, _ := json.Marshal(map[string]interface{}{
		"description": "Stamps documents with their indexation time",
		"processors":  indexedAtProcessors,
	})
	return s.AddPipeline(ctx, id, definition)
}
