package elasticsearch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SearchDocuments runs a query DSL against indices or aliases and returns
// the source of every hit of the first page.
func (s *Storage) SearchDocuments(ctx context.Context, indices []string, dsl string) (_ []json.RawMessage, err error) {
	ctx, span := s.tracer.Start(ctx, "storage.SearchDocuments", trace.WithAttributes(
		attribute.StringSlice("mimir.indices", indices),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	if !json.Valid([]byte(dsl)) {
		return nil, index.NewError(index.ErrInvalidConfiguration,
			index.WithOperation("search"),
			index.WithReason("query is not valid JSON"))
	}

	res, err := s.do(ctx, "search", esapi.SearchRequest{
		Index: indices,
		Body:  strings.NewReader(dsl),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "search")
	}

	var page searchResponse
	if err := decode(res, "search", &page); err != nil {
		return nil, err
	}

	sources := make([]json.RawMessage, 0, len(page.Hits.Hits))
	for _, hit := range page.Hits.Hits {
		sources = append(sources, hit.Source)
	}
	return sources, nil
}
