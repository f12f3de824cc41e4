package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/adapters/elasticsearch/estest"
	"github.com/mimir-go/pkg/logger"
	"github.com/mimir-go/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "munin_addr_fr_20240101_120000_abcd1234"

// Test helpers
func setupTestStorage(t *testing.T, configure ...func(*Options)) (*Storage, *estest.Server) {
	t.Helper()

	srv := estest.NewServer()
	t.Cleanup(srv.Close)

	opts := DefaultOptions()
	opts.Retry = resilience.RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return New(srv.Client(), logger.NewNop(), opts), srv
}

func indexConfig(name string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"parameters": {"timeout": "10s", "wait_for_active_shards": "1"},
		"settings": {"number_of_shards": 1, "number_of_replicas": 0},
		"mappings": {"properties": {"label": {"type": "text"}, "coord": {"type": "geo_point"}}}
	}`, name)
}

func rawDocs(n int) iter.Seq[index.Document] {
	return func(yield func(index.Document) bool) {
		for i := 0; i < n; i++ {
			doc := index.RawDocument{
				Identifier: fmt.Sprintf("doc-%d", i),
				Type:       "addr",
				Geo:        true,
				Body:       json.RawMessage(fmt.Sprintf(`{"id":"doc-%d","n":%d}`, i, i)),
			}
			if !yield(doc) {
				return
			}
		}
	}
}

// failFirst answers the first n requests to method and path with status.
func failFirst(n int32, status int, method, path string) func(string, string, []byte) *estest.Reply {
	var seen atomic.Int32
	return func(m, p string, _ []byte) *estest.Reply {
		if m != method || p != path {
			return nil
		}
		if seen.Add(1) > n {
			return nil
		}
		return &estest.Reply{Status: status, Body: `{"error":"unavailable","status":` + fmt.Sprint(status) + `}`}
	}
}

func TestCreateContainer(t *testing.T) {
	t.Run("CreatesAndReadsBack", func(t *testing.T) {
		storage, srv := setupTestStorage(t)

		idx, err := storage.CreateContainer(context.Background(), indexConfig(testIndex))
		require.NoError(t, err)
		assert.Equal(t, testIndex, idx.Name)
		assert.Equal(t, "addr", idx.DocType)
		assert.Equal(t, "fr", idx.Dataset)
		assert.Equal(t, uint64(0), idx.DocsCount)
		assert.Equal(t, index.StatusAvailable, idx.Status)
		assert.True(t, srv.HasIndex(testIndex))
	})

	t.Run("Duplicate", func(t *testing.T) {
		storage, _ := setupTestStorage(t)
		_, err := storage.CreateContainer(context.Background(), indexConfig(testIndex))
		require.NoError(t, err)

		_, err = storage.CreateContainer(context.Background(), indexConfig(testIndex))
		require.ErrorIs(t, err, index.ErrDuplicateIndex)

		var ierr *index.Error
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, testIndex, ierr.Index)
	})

	t.Run("InvalidConfigurationSendsNothing", func(t *testing.T) {
		storage, srv := setupTestStorage(t)

		_, err := storage.CreateContainer(context.Background(), `{"name": "x", "settings": { "index": }}`)
		require.ErrorIs(t, err, index.ErrInvalidConfiguration)
		assert.Empty(t, srv.Requests())
	})

	t.Run("UnknownSetting", func(t *testing.T) {
		storage, _ := setupTestStorage(t)

		_, err := storage.CreateContainer(context.Background(),
			`{"name": "munin_addr_fr", "settings": {"index": {"bogus": 1}}}`)
		require.ErrorIs(t, err, index.ErrUnknownSetting)

		var ierr *index.Error
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, "index.bogus", ierr.Setting)
	})

	t.Run("InvalidMapping", func(t *testing.T) {
		storage, _ := setupTestStorage(t)

		_, err := storage.CreateContainer(context.Background(),
			`{"name": "munin_addr_fr", "mappings": {"properties": {"label": {"type": "texte"}}}}`)
		require.ErrorIs(t, err, index.ErrInvalidMapping)

		var ierr *index.Error
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, "_doc", ierr.Field)
		assert.Contains(t, ierr.Reason, "texte")
	})

	t.Run("NotAcknowledged", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.Intercept = func(method, path string, _ []byte) *estest.Reply {
			if method == http.MethodPut {
				return &estest.Reply{Status: http.StatusOK, Body: `{"acknowledged":false}`}
			}
			return nil
		}

		_, err := storage.CreateContainer(context.Background(), indexConfig(testIndex))
		assert.ErrorIs(t, err, index.ErrNotCreated)
	})

	t.Run("MalformedAcknowledgement", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.Intercept = func(method, path string, _ []byte) *estest.Reply {
			if method == http.MethodPut {
				return &estest.Reply{Status: http.StatusOK, Body: `{"shards_acknowledged":true}`}
			}
			return nil
		}

		_, err := storage.CreateContainer(context.Background(), indexConfig(testIndex))
		assert.ErrorIs(t, err, index.ErrMalformedResponse)
	})
}

func TestDeleteContainer(t *testing.T) {
	t.Run("Deletes", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		require.NoError(t, storage.DeleteContainer(context.Background(), testIndex))
		assert.False(t, srv.HasIndex(testIndex))

		idx, err := storage.FindContainer(context.Background(), testIndex)
		require.NoError(t, err)
		assert.Nil(t, idx)
	})

	t.Run("Unknown", func(t *testing.T) {
		storage, _ := setupTestStorage(t)

		err := storage.DeleteContainer(context.Background(), "missing")
		assert.ErrorIs(t, err, index.ErrUnknownIndex)
	})

	t.Run("Unavailable", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)
		srv.Intercept = failFirst(1, http.StatusServiceUnavailable, http.MethodDelete, "/"+testIndex)

		err := storage.DeleteContainer(context.Background(), testIndex)
		assert.ErrorIs(t, err, index.ErrBackendTransport)
		assert.True(t, srv.HasIndex(testIndex))
	})
}

func TestFindContainer(t *testing.T) {
	t.Run("Absent", func(t *testing.T) {
		storage, _ := setupTestStorage(t)

		idx, err := storage.FindContainer(context.Background(), "munin_addr_fr")
		require.NoError(t, err)
		assert.Nil(t, idx)
	})

	t.Run("NameOutsideConvention", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex("idx-1")

		idx, err := storage.FindContainer(context.Background(), "idx-1")
		require.NoError(t, err)
		require.NotNil(t, idx)
		assert.Equal(t, "idx-1", idx.Name)
		assert.Empty(t, idx.DocType)
		assert.Empty(t, idx.Dataset)
		assert.False(t, idx.Publishable())
	})

	t.Run("Health", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		for health, want := range map[string]index.Status{
			"green":  index.StatusAvailable,
			"yellow": index.StatusAvailable,
			"red":    index.StatusNotAvailable,
		} {
			srv.SetHealth(testIndex, health)
			idx, err := storage.FindContainer(context.Background(), testIndex)
			require.NoError(t, err)
			assert.Equal(t, want, idx.Status, health)
		}
	})

	t.Run("DocsCount", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)

		_, err := storage.InsertDocuments(context.Background(), testIndex, rawDocs(12))
		require.NoError(t, err)

		idx, err := storage.FindContainer(context.Background(), testIndex)
		require.NoError(t, err)
		assert.Equal(t, uint64(12), idx.DocsCount)
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.AddIndex(testIndex)
		srv.Intercept = failFirst(2, http.StatusServiceUnavailable, http.MethodGet, "/_cat/indices/"+testIndex)

		idx, err := storage.FindContainer(context.Background(), testIndex)
		require.NoError(t, err)
		require.NotNil(t, idx)
		assert.Equal(t, 3, srv.CountRequests("GET /_cat/indices/"+testIndex))
	})

	t.Run("GivesUpAfterRetries", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.Intercept = failFirst(10, http.StatusServiceUnavailable, http.MethodGet, "/_cat/indices/"+testIndex)

		_, err := storage.FindContainer(context.Background(), testIndex)
		assert.ErrorIs(t, err, index.ErrBackendTransport)
		assert.Equal(t, 3, srv.CountRequests("GET /_cat/indices/"+testIndex))
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		storage, srv := setupTestStorage(t)
		srv.Intercept = func(method, path string, _ []byte) *estest.Reply {
			return &estest.Reply{Status: http.StatusOK, Body: `{"not":"a list"}`}
		}

		_, err := storage.FindContainer(context.Background(), testIndex)
		assert.ErrorIs(t, err, index.ErrMalformedResponse)
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("elasticsearch")
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5
	cfg.Timeout = time.Hour

	storage, srv := setupTestStorage(t, func(o *Options) {
		o.Breaker = resilience.NewCircuitBreaker(cfg)
		o.Retry.MaxAttempts = 1
	})
	srv.Intercept = failFirst(100, http.StatusServiceUnavailable, http.MethodDelete, "/"+testIndex)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, storage.DeleteContainer(context.Background(), testIndex), index.ErrBackendTransport)
	}
	before := len(srv.Requests())

	err := storage.DeleteContainer(context.Background(), testIndex)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, index.ErrBackendTransport)
	assert.Len(t, srv.Requests(), before)
}

func TestPing(t *testing.T) {
	storage, srv := setupTestStorage(t)
	require.NoError(t, storage.Ping(context.Background()))

	srv.Close()
	assert.ErrorIs(t, storage.Ping(context.Background()), index.ErrBackendTransport)
}
