package elasticsearch

import (
	"context"
	"testing"

	"github.com/mimir-go/internal/domain/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchDocuments(t *testing.T) {
	storage, srv := setupTestStorage(t)
	srv.AddIndex(firstAddr)
	_, err := storage.InsertDocuments(context.Background(), firstAddr, rawDocs(4))
	require.NoError(t, err)
	require.NoError(t, storage.PublishIndex(context.Background(), findIndex(t, storage, firstAddr), index.VisibilityPublic))

	t.Run("ThroughAlias", func(t *testing.T) {
		hits, err := storage.SearchDocuments(context.Background(), []string{"munin_addr"}, `{"query":{"match_all":{}}}`)
		require.NoError(t, err)
		assert.Len(t, hits, 4)
	})

	t.Run("Size", func(t *testing.T) {
		hits, err := storage.SearchDocuments(context.Background(), []string{"munin"}, `{"size":2,"query":{"match_all":{}}}`)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("InvalidQuery", func(t *testing.T) {
		_, err := storage.SearchDocuments(context.Background(), []string{"munin"}, `{"query":`)
		assert.ErrorIs(t, err, index.ErrInvalidConfiguration)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		_, err := storage.SearchDocuments(context.Background(), []string{"munin_poi"}, `{}`)
		assert.ErrorIs(t, err, index.ErrUnknownIndex)
	})
}

func TestAddPipeline(t *testing.T) {
	storage, srv := setupTestStorage(t)

	err := storage.AddPipeline(context.Background(), "custom", []byte(`{"processors":[]}`))
	require.NoError(t, err)
	_, ok := srv.Pipeline("custom")
	assert.True(t, ok)

	err = storage.AddPipeline(context.Background(), "broken", []byte(`{"processors":`))
	assert.ErrorIs(t, err, index.ErrFailedToParse)
}
