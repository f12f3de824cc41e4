package index

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexName(t *testing.T) {
	at := time.Date(2021, 5, 2, 15, 19, 27, 0, time.UTC)
	name := IndexName("munin", "addr", "fr", at)

	assert.True(t, strings.HasPrefix(name, "munin_addr_fr_20210502_151927_"))
	assert.NotEqual(t, name, IndexName("munin", "addr", "fr", at))

	docType, dataset, ok := SplitIndexName("munin", name)
	require.True(t, ok)
	assert.Equal(t, "addr", docType)
	assert.Equal(t, "fr", dataset)
}

func TestSplitIndexName(t *testing.T) {
	tests := []struct {
		name    string
		docType string
		dataset string
		ok      bool
	}{
		{"munin_poi_idf", "poi", "idf", true},
		{"munin_stop_fr-ne_20210101_000000_abcd", "stop", "fr-ne", true},
		{"idx-1", "", "", false},
		{"munin_addr", "", "", false},
		{"other_addr_fr", "", "", false},
		{"munin__fr", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docType, dataset, ok := SplitIndexName("munin", tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.docType, docType)
			assert.Equal(t, tt.dataset, dataset)
		})
	}
}

func TestAliases(t *testing.T) {
	assert.Equal(t, "munin_addr_fr", DatasetAlias("munin", "addr", "fr"))
	assert.Equal(t, "munin_addr", DocTypeAlias("munin", "addr"))
	assert.Equal(t, "munin_geo_data", GeoDataAlias("munin"))
}

func TestParseVisibility(t *testing.T) {
	v, err := ParseVisibility("")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, v)

	v, err = ParseVisibility("private")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, v)

	_, err = ParseVisibility("secret")
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrBackendTransport, WithOperation("create"), WithCause(cause))

	assert.True(t, errors.Is(err, ErrBackendTransport))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "backend transport error [operation=create]: connection refused", err.Error())

	dup := NewError(ErrDuplicateIndex, WithIndex("idx-1"))
	var typed *Error
	require.True(t, errors.As(error(dup), &typed))
	assert.Equal(t, "idx-1", typed.Index)
	assert.False(t, IsRetryable(dup))
	assert.Equal(t, "duplicate index [index=idx-1]", dup.Error())
}

func TestInsertStats(t *testing.T) {
	var total InsertStats
	total.Add(InsertStats{Created: 3, Error: 1})
	total.Add(InsertStats{Created: 2, Updated: 1})

	assert.Equal(t, InsertStats{Created: 5, Updated: 1, Error: 1}, total)
	assert.Equal(t, 7, total.Total())
}
