// Package elasticsearch implements the storage port against an Elasticsearch
// cluster through the esapi request types.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/ports"
	"github.com/mimir-go/pkg/config"
	"github.com/mimir-go/pkg/logger"
	"github.com/mimir-go/pkg/metrics"
	"github.com/mimir-go/pkg/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultChunkSize   = 10
	DefaultConcurrency = 8
	DefaultPageSize    = 1000
	DefaultKeepAlive   = "1m"
)

var (
	_ ports.Storage        = (*Storage)(nil)
	_ ports.DocumentLister = (*Storage)(nil)
)

// Options tune the adapter. Zero values fall back to the defaults.
type Options struct {
	Root        string
	GeoDocTypes []string

	ChunkSize   int
	Concurrency int
	BulkRate    float64
	Pipeline    string

	PageSize  int
	KeepAlive string

	Retry   resilience.RetryConfig
	Breaker *resilience.CircuitBreaker
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Root:        index.DefaultRoot,
		GeoDocTypes: index.DefaultGeoDocTypes,
		ChunkSize:   DefaultChunkSize,
		Concurrency: DefaultConcurrency,
		PageSize:    DefaultPageSize,
		KeepAlive:   DefaultKeepAlive,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// OptionsFromConfig builds adapter options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Root = cfg.Naming.Root
	if len(cfg.Naming.GeoDocTypes) > 0 {
		opts.GeoDocTypes = cfg.Naming.GeoDocTypes
	}
	opts.ChunkSize = cfg.Ingest.ChunkSize
	opts.Concurrency = cfg.Ingest.Concurrency
	opts.BulkRate = cfg.Ingest.BulkRate
	opts.Pipeline = cfg.Ingest.Pipeline
	opts.PageSize = cfg.Export.PageSize
	opts.KeepAlive = cfg.Export.KeepAlive
	opts.Retry = cfg.Resilience.ToRetryConfig()
	opts.Breaker = resilience.NewCircuitBreaker(cfg.Resilience.ToCircuitBreakerConfig("elasticsearch"))
	return opts
}

// Storage is the Elasticsearch implementation of ports.Storage.
type Storage struct {
	client  *elasticsearch.Client
	logger  logger.Logger
	tracer  trace.Tracer
	opts    Options
	limiter *rate.Limiter
	geo     map[string]bool
}

// NewClient builds the wire client shared by every storage operation.
func NewClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	}
	if cfg.Timeout > 0 {
		esCfg.Transport = &http.Transport{
			ResponseHeaderTimeout: time.Duration(cfg.Timeout) * time.Second,
		}
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

func New(client *elasticsearch.Client, log logger.Logger, opts Options) *Storage {
	defaults := DefaultOptions()
	if opts.Root == "" {
		opts.Root = defaults.Root
	}
	if opts.GeoDocTypes == nil {
		opts.GeoDocTypes = defaults.GeoDocTypes
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.KeepAlive == "" {
		opts.KeepAlive = defaults.KeepAlive
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = defaults.Retry
	}
	opts.Retry.ShouldRetry = index.IsRetryable

	s := &Storage{
		client: client,
		logger: log.Named("storage"),
		tracer: otel.Tracer("github.com/mimir-go/internal/storage"),
		opts:   opts,
		geo:    make(map[string]bool, len(opts.GeoDocTypes)),
	}
	for _, docType := range opts.GeoDocTypes {
		s.geo[docType] = true
	}
	if opts.BulkRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.BulkRate), 1)
	}
	return s
}

// Root is the prefix of every index and alias managed by this storage.
func (s *Storage) Root() string {
	return s.opts.Root
}

// Ping checks that the backend answers.
func (s *Storage) Ping(ctx context.Context) error {
	res, err := s.do(ctx, "ping", esapi.PingRequest{})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return index.NewError(index.ErrBackendTransport,
			index.WithOperation("ping"),
			index.WithReason(res.Status()))
	}
	return nil
}

// do sends one request through the circuit breaker. Transport failures and
// overload statuses come back as ErrBackendTransport; other statuses are left
// to the caller.
func (s *Storage) do(ctx context.Context, op string, req esapi.Request) (*esapi.Response, error) {
	start := time.Now()
	res, err := resilience.Call(ctx, s.opts.Breaker, func(ctx context.Context) (*esapi.Response, error) {
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusInternalServerError && resilience.IsRetryableHTTPStatus(res.StatusCode) {
			res.Body.Close()
			return nil, fmt.Errorf("backend answered %s", res.Status())
		}
		return res, nil
	})
	metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.BackendRequestsTotal.WithLabelValues(op, metrics.OutcomeOf(err)).Inc()
	if err != nil {
		return nil, index.NewError(index.ErrBackendTransport, index.WithOperation(op), index.WithCause(err))
	}
	return res, nil
}

// decode reads a successful response body into v.
func decode(res *esapi.Response, op string, v interface{}) error {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return index.NewError(index.ErrBackendTransport, index.WithOperation(op), index.WithCause(err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return index.NewError(index.ErrMalformedResponse,
			index.WithOperation(op),
			index.WithReason(truncate(string(data))),
			index.WithCause(err))
	}
	return nil
}

type ackResponse struct {
	Acknowledged *bool `json:"acknowledged"`
}

// acknowledged decodes the {"acknowledged": bool} answer shared by the
// index and alias management APIs.
func acknowledged(res *esapi.Response, op string) (bool, error) {
	var ack ackResponse
	if err := decode(res, op, &ack); err != nil {
		return false, err
	}
	if ack.Acknowledged == nil {
		return false, index.NewError(index.ErrMalformedResponse,
			index.WithOperation(op),
			index.WithReason("expected 'acknowledged'"))
	}
	return *ack.Acknowledged, nil
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
