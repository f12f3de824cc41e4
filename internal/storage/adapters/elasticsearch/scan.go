package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/metrics"
	"github.com/mimir-go/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const closePointInTimeTimeout = 10 * time.Second

// ListDocuments scans every document of an index in a stable order, through
// a point in time opened for the duration of the scan. The point in time is
// released once the sequence ends, fails or is abandoned by the consumer.
func (s *Storage) ListDocuments(ctx context.Context, name string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		ctx, span := s.tracer.Start(ctx, "storage.ListDocuments", trace.WithAttributes(telemetry.IndexAttr(name)))
		var (
			err     error
			scanned int
		)
		defer func() {
			span.SetAttributes(attribute.Int("mimir.documents", scanned))
			telemetry.EndSpan(span, err)
		}()

		pitID, err := s.openPointInTime(ctx, name)
		if err != nil {
			yield(nil, err)
			return
		}
		metrics.OpenScans.Inc()

		token := index.ContinuationToken{PitID: pitID}
		defer func() {
			metrics.OpenScans.Dec()
			s.closePointInTime(ctx, token.PitID)
		}()

		first := true
		for {
			var page []json.RawMessage
			page, token, err = s.searchPage(ctx, token, first)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				s.logger.Debug("Index scan complete", "index", name, "documents", scanned)
				return
			}
			first = false

			for _, source := range page {
				scanned++
				metrics.DocumentsScannedTotal.WithLabelValues(name).Inc()
				if !yield(source, nil) {
					return
				}
			}
		}
	}
}

func (s *Storage) openPointInTime(ctx context.Context, name string) (string, error) {
	req := esapi.OpenPointInTimeRequest{
		Index:     []string{name},
		KeepAlive: s.opts.KeepAlive,
	}
	res, err := s.do(ctx, "open_pit", req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", responseError(res, "open_pit")
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := decode(res, "open_pit", &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", index.NewError(index.ErrMalformedResponse,
			index.WithOperation("open_pit"),
			index.WithIndex(name),
			index.WithReason("expected point in time id"))
	}
	return body.ID, nil
}

// closePointInTime releases the backend cursor. It outlives the caller's
// context so that a cancelled scan still frees it; failures are only logged.
func (s *Storage) closePointInTime(ctx context.Context, pitID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closePointInTimeTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"id": pitID})
	res, err := s.do(ctx, "close_pit", esapi.ClosePointInTimeRequest{Body: bytes.NewReader(body)})
	if err != nil {
		s.logger.Warn("Failed to close point in time", "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.logger.Warn("Failed to close point in time", "error", responseError(res, "close_pit"))
	}
}

type pitSearch struct {
	Size        int               `json:"size"`
	Query       json.RawMessage   `json:"query"`
	PIT         pitRef            `json:"pit"`
	Sort        json.RawMessage   `json:"sort"`
	SearchAfter []json.RawMessage `json:"search_after,omitempty"`
	TrackTotal  bool              `json:"track_total_hits"`
}

type pitRef struct {
	ID        string `json:"id"`
	KeepAlive string `json:"keep_alive"`
}

type searchResponse struct {
	PitID string `json:"pit_id"`
	Hits  struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Index  string            `json:"_index"`
	ID     string            `json:"_id"`
	Source json.RawMessage   `json:"_source"`
	Sort   []json.RawMessage `json:"sort"`
}

var (
	matchAll = json.RawMessage(`{"match_all":{}}`)
	scanSort = json.RawMessage(`[{"indexed_at":{"order":"asc","unmapped_type":"date"}},{"_shard_doc":"asc"}]`)
)

// searchPage fetches the page following token and returns the token to
// resume after it.
func (s *Storage) searchPage(ctx context.Context, token index.ContinuationToken, first bool) ([]json.RawMessage, index.ContinuationToken, error) {
	query := pitSearch{
		Size:  s.opts.PageSize,
		Query: matchAll,
		PIT:   pitRef{ID: token.PitID, KeepAlive: s.opts.KeepAlive},
		Sort:  scanSort,
	}
	if !first {
		query.SearchAfter = token.SearchAfter()
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, token, index.NewError(index.ErrInternal, index.WithOperation("search"), index.WithCause(err))
	}

	res, err := s.do(ctx, "search", esapi.SearchRequest{Body: bytes.NewReader(body)})
	if err != nil {
		return nil, token, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, token, responseError(res, "search")
	}

	var page searchResponse
	if err := decode(res, "search", &page); err != nil {
		return nil, token, err
	}

	next := token
	if page.PitID != "" {
		next.PitID = page.PitID
	}

	sources := make([]json.RawMessage, 0, len(page.Hits.Hits))
	for _, hit := range page.Hits.Hits {
		if len(hit.Source) == 0 {
			return nil, next, index.NewError(index.ErrMalformedResponse,
				index.WithOperation("search"),
				index.WithReason("hit without _source: "+hit.ID))
		}
		sources = append(sources, hit.Source)
	}
	if n := len(page.Hits.Hits); n > 0 {
		last := page.Hits.Hits[n-1]
		if len(last.Sort) < 2 {
			return nil, next, index.NewError(index.ErrMalformedResponse,
				index.WithOperation("search"),
				index.WithReason("hit without sort values: "+last.ID))
		}
		next.Primary = last.Sort[0]
		next.Secondary = last.Sort[1]
	}
	return sources, next, nil
}
