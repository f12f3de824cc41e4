package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/adapters/elasticsearch"
	"github.com/mimir-go/internal/storage/adapters/elasticsearch/estest"
	"github.com/mimir-go/internal/storage/source"
	"github.com/mimir-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportReplacesPreviousGeneration(t *testing.T) {
	srv := estest.NewServer()
	t.Cleanup(srv.Close)

	storage := elasticsearch.New(srv.Client(), logger.NewNop(), elasticsearch.DefaultOptions())
	service := NewService(storage, "munin", logger.NewNop())

	importOnce := func(at time.Time, n int) *Result {
		service.now = func() time.Time { return at }
		result, err := service.Import(context.Background(), Request{
			Template:  template,
			DocType:   "addr",
			Dataset:   "fr",
			Documents: docs(n),
		})
		require.NoError(t, err)
		return result
	}

	first := importOnce(time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC), 3)
	assert.Equal(t, uint64(3), first.Index.DocsCount)
	assert.Equal(t, []string{first.Index.Name}, srv.AliasIndices("munin_addr_fr"))

	second := importOnce(time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC), 5)
	assert.Equal(t, index.InsertStats{Created: 5}, second.Stats)
	assert.Equal(t, []string{second.Index.Name}, srv.AliasIndices("munin_addr_fr"))
	assert.Equal(t, []string{second.Index.Name}, srv.AliasIndices("munin_geo_data"))
	assert.Empty(t, srv.Aliases(first.Index.Name))
}

func TestImportRejectedConfigurationLeavesNothing(t *testing.T) {
	srv := estest.NewServer()
	t.Cleanup(srv.Close)

	storage := elasticsearch.New(srv.Client(), logger.NewNop(), elasticsearch.DefaultOptions())
	service := NewService(storage, "munin", logger.NewNop())

	_, err := service.Import(context.Background(), Request{
		Template:  `{"name": "munin_addr", "settings": {"index": {"bogus": true}}}`,
		DocType:   "addr",
		Dataset:   "fr",
		Documents: docs(2),
	})
	assert.ErrorIs(t, err, index.ErrUnknownSetting)
	assert.Empty(t, srv.AliasIndices("munin_addr_fr"))
}

func TestImportFailedSourceKeepsPreviousGeneration(t *testing.T) {
	srv := estest.NewServer()
	t.Cleanup(srv.Close)

	storage := elasticsearch.New(srv.Client(), logger.NewNop(), elasticsearch.DefaultOptions())
	service := NewService(storage, "munin", logger.NewNop())

	service.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	previous, err := service.Import(context.Background(), Request{
		Template:  template,
		DocType:   "addr",
		Dataset:   "fr",
		Documents: docs(5),
	})
	require.NoError(t, err)

	diskErr := errors.New("disk read error")
	lines := source.NewLines(
		io.MultiReader(strings.NewReader("{\"id\":\"a\"}\n{\"id\":\"b\"}\n"), iotest.ErrReader(diskErr)),
		source.NewDecoder("addr", true),
		logger.NewNop())

	service.now = func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) }
	result, err := service.Import(context.Background(), Request{
		Template:  template,
		DocType:   "addr",
		Dataset:   "fr",
		Documents: lines.Documents(),
		Err:       lines.Err,
	})
	assert.ErrorIs(t, err, diskErr)
	assert.Nil(t, result)

	for _, alias := range []string{"munin_addr_fr", "munin_addr", "munin", "munin_geo_data"} {
		assert.Equal(t, []string{previous.Index.Name}, srv.AliasIndices(alias), alias)
	}
	assert.Equal(t, 5, srv.DocCount(previous.Index.Name))

	var created []string
	for _, r := range srv.Requests() {
		if name, ok := strings.CutPrefix(r, "PUT /munin_addr_fr_20240415_"); ok && !strings.Contains(name, "/") {
			created = append(created, strings.TrimPrefix(r, "PUT /"))
		}
	}
	require.Len(t, created, 1)
	assert.False(t, srv.HasIndex(created[0]))
}
