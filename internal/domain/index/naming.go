package index

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRoot  = "munin"
	geoDataAlias = "geo_data"
)

// DefaultGeoDocTypes are the doc types also published under the geo data alias.
var DefaultGeoDocTypes = []string{"addr", "street", "admin", "poi"}

// IndexName builds a fresh index name <root>_<doc_type>_<dataset>_<time>_<suffix>.
func IndexName(root, docType, dataset string, t time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return strings.Join([]string{
		root,
		docType,
		dataset,
		t.UTC().Format("20060102_150405"),
		suffix,
	}, "_")
}

// SplitIndexName extracts the doc type and dataset from an index name built
// by IndexName. ok is false for names outside the convention.
func SplitIndexName(root, name string) (docType, dataset string, ok bool) {
	rest, found := strings.CutPrefix(name, root+"_")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// DatasetAlias is the alias serving one dataset of one doc type.
func DatasetAlias(root, docType, dataset string) string {
	return root + "_" + docType + "_" + dataset
}

// DocTypeAlias is the alias serving every public dataset of a doc type.
func DocTypeAlias(root, docType string) string {
	return root + "_" + docType
}

// GeoDataAlias is the alias serving every public geo doc type.
func GeoDataAlias(root string) string {
	return root + "_" + geoDataAlias
}
