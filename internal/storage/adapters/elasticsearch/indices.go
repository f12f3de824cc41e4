package elasticsearch

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/resilience"
	"github.com/mimir-go/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// CreateContainer creates an index from its textual configuration and reads
// back its state.
func (s *Storage) CreateContainer(ctx context.Context, config string) (_ *index.Index, err error) {
	cfg, err := index.ParseConfiguration(config)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "storage.CreateContainer", trace.WithAttributes(telemetry.IndexAttr(cfg.Name)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.createIndex(ctx, cfg); err != nil {
		return nil, err
	}

	idx, err := s.FindContainer(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, index.NewError(index.ErrUnknownIndex,
			index.WithIndex(cfg.Name),
			index.WithReason("index missing right after creation"))
	}

	s.logger.Info("Index created", "index", idx.Name, "status", idx.Status)
	return idx, nil
}

func (s *Storage) createIndex(ctx context.Context, cfg *index.Configuration) error {
	body, err := cfg.Body()
	if err != nil {
		return index.NewError(index.ErrInvalidConfiguration, index.WithIndex(cfg.Name), index.WithCause(err))
	}

	req := esapi.IndicesCreateRequest{
		Index:               cfg.Name,
		Body:                bytes.NewReader(body),
		Timeout:             cfg.Timeout(),
		WaitForActiveShards: cfg.Parameters.WaitForActiveShards,
	}
	res, err := s.do(ctx, "create_index", req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "create_index")
	}

	ok, err := acknowledged(res, "create_index")
	if err != nil {
		return err
	}
	if !ok {
		return index.NewError(index.ErrNotCreated, index.WithIndex(cfg.Name))
	}
	return nil
}

// DeleteContainer deletes an index.
func (s *Storage) DeleteContainer(ctx context.Context, name string) (err error) {
	ctx, span := s.tracer.Start(ctx, "storage.DeleteContainer", trace.WithAttributes(telemetry.IndexAttr(name)))
	defer func() { telemetry.EndSpan(span, err) }()

	res, err := s.do(ctx, "delete_index", esapi.IndicesDeleteRequest{Index: []string{name}})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "delete_index")
	}

	ok, err := acknowledged(res, "delete_index")
	if err != nil {
		return err
	}
	if !ok {
		return index.NewError(index.ErrNotDeleted, index.WithIndex(name))
	}

	s.logger.Info("Index deleted", "index", name)
	return nil
}

// FindContainer returns the state of an index, or nil when it does not exist.
func (s *Storage) FindContainer(ctx context.Context, name string) (_ *index.Index, err error) {
	ctx, span := s.tracer.Start(ctx, "storage.FindContainer", trace.WithAttributes(telemetry.IndexAttr(name)))
	defer func() { telemetry.EndSpan(span, err) }()

	return resilience.RetryWithResult(ctx, s.retryConfig("find_index"), func() (*index.Index, error) {
		return s.findIndex(ctx, name)
	})
}

type catIndex struct {
	Health    string  `json:"health"`
	Status    string  `json:"status"`
	Index     string  `json:"index"`
	DocsCount *string `json:"docs.count"`
}

func (s *Storage) findIndex(ctx context.Context, name string) (*index.Index, error) {
	req := esapi.CatIndicesRequest{
		Index:  []string{name},
		Format: "json",
	}
	res, err := s.do(ctx, "find_index", req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError(res, "find_index")
	}

	var rows []catIndex
	if err := decode(res, "find_index", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[len(rows)-1]
	for _, r := range rows {
		if r.Index == name {
			row = r
			break
		}
	}
	return s.toIndex(row)
}

func (s *Storage) toIndex(row catIndex) (*index.Index, error) {
	if row.Index == "" {
		return nil, index.NewError(index.ErrMalformedResponse,
			index.WithOperation("find_index"),
			index.WithReason("missing index name"))
	}

	idx := &index.Index{
		Name:   row.Index,
		Status: index.StatusNotAvailable,
	}
	if row.Health == "green" || row.Health == "yellow" {
		idx.Status = index.StatusAvailable
	}
	if row.DocsCount != nil && *row.DocsCount != "" {
		count, err := strconv.ParseUint(*row.DocsCount, 10, 64)
		if err != nil {
			return nil, index.NewError(index.ErrMalformedResponse,
				index.WithOperation("find_index"),
				index.WithIndex(row.Index),
				index.WithReason("invalid docs.count "+*row.DocsCount),
				index.WithCause(err))
		}
		idx.DocsCount = count
	}
	if docType, dataset, ok := index.SplitIndexName(s.opts.Root, row.Index); ok {
		idx.DocType = docType
		idx.Dataset = dataset
	}
	return idx, nil
}

// refreshIndex makes every document written so far visible to searches.
func (s *Storage) refreshIndex(ctx context.Context, name string) error {
	res, err := s.do(ctx, "refresh_index", esapi.IndicesRefreshRequest{Index: []string{name}})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "refresh_index")
	}
	return nil
}

func (s *Storage) retryConfig(op string) resilience.RetryConfig {
	cfg := s.opts.Retry
	cfg.OnRetry = func(attempt int, err error) {
		s.logger.Warn("Retrying backend request", "operation", op, "attempt", attempt, "error", err)
	}
	return cfg
}
