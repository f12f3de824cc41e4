package elasticsearch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mimir-go/internal/domain/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootCause(reason string) Exception {
	return Exception{
		Status: 400,
		Error: ErrorDetails{
			Type:      "wrapper_exception",
			Reason:    "top level reason",
			RootCause: []RootCause{{Type: "cause", Reason: reason}},
		},
	}
}

func TestClassifyException(t *testing.T) {
	tests := []struct {
		name    string
		exc     Exception
		kind    error
		index   string
		field   string
		setting string
		reason  string
	}{
		{
			name:  "AlreadyExists",
			exc:   rootCause("index [munin_addr_fr/Xq2vTnK8R3GmJp7] already exists"),
			kind:  index.ErrDuplicateIndex,
			index: "munin_addr_fr",
		},
		{
			name:  "NoSuchIndex",
			exc:   rootCause("no such index [munin_poi_osm]"),
			kind:  index.ErrUnknownIndex,
			index: "munin_poi_osm",
		},
		{
			name:   "InvalidMapping",
			exc:    rootCause("Failed to parse mapping [_doc]: No handler for type [texte] declared on field [label]"),
			kind:   index.ErrInvalidMapping,
			field:  "_doc",
			reason: "No handler for type [texte] declared on field [label]",
		},
		{
			name: "FailedToParse",
			exc:  rootCause("failed to parse field [coord] of type [geo_point]"),
			kind: index.ErrFailedToParse,
		},
		{
			name:    "UnknownSetting",
			exc:     rootCause("unknown setting [index.bogus] please check that any required plugins are installed"),
			kind:    index.ErrUnknownSetting,
			setting: "index.bogus",
		},
		{
			name: "Unhandled",
			exc:  rootCause("circuit_breaking_exception: data too large"),
			kind: index.ErrUnhandledException,
		},
		{
			name: "TopLevelReasonFallback",
			exc: Exception{Status: 404, Error: ErrorDetails{
				Type:   "index_not_found_exception",
				Reason: "no such index [munin_stop_idfm]",
			}},
			kind:  index.ErrUnknownIndex,
			index: "munin_stop_idfm",
		},
		{
			name: "NoReason",
			exc:  Exception{Status: 500},
			kind: index.ErrUnhandledException,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyException(tt.exc)
			require.ErrorIs(t, err, tt.kind)

			var ierr *index.Error
			require.True(t, errors.As(err, &ierr))
			assert.Equal(t, tt.index, ierr.Index)
			assert.Equal(t, tt.field, ierr.Field)
			assert.Equal(t, tt.setting, ierr.Setting)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ierr.Reason)
			}
		})
	}
}

func TestErrorDetailsUnmarshal(t *testing.T) {
	t.Run("Object", func(t *testing.T) {
		var exc Exception
		require.NoError(t, json.Unmarshal([]byte(`{
			"error": {"type": "x", "reason": "top", "root_cause": [{"type": "y", "reason": "inner"}]},
			"status": 400
		}`), &exc))
		assert.Equal(t, 400, exc.Status)
		assert.Equal(t, "top", exc.Error.Reason)
		require.Len(t, exc.Error.RootCause, 1)
		assert.Equal(t, "inner", exc.Error.RootCause[0].Reason)
	})

	t.Run("String", func(t *testing.T) {
		var exc Exception
		require.NoError(t, json.Unmarshal([]byte(`{"error": "alias [munin_addr] missing", "status": 404}`), &exc))
		assert.Equal(t, "alias [munin_addr] missing", exc.Error.Reason)
		assert.Empty(t, exc.Error.RootCause)
	})
}
