package index

import "encoding/json"

// Status represents the availability of an index
type Status string

const (
	StatusAvailable    Status = "available"
	StatusNotAvailable Status = "not_available"
)

// Visibility controls which aliases an index is published under
type Visibility string

const (
	// VisibilityPrivate publishes under the dataset alias only.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic also publishes under the doc type, root and geo aliases.
	VisibilityPublic Visibility = "public"
)

// ParseVisibility converts a textual visibility, defaulting to public.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "", string(VisibilityPublic):
		return VisibilityPublic, nil
	case string(VisibilityPrivate):
		return VisibilityPrivate, nil
	default:
		return "", NewError(ErrInvalidConfiguration, WithReason("unknown visibility "+s))
	}
}

// Index represents the materialized state of a backend index
type Index struct {
	Name      string `json:"name"`
	DocType   string `json:"docType"`
	Dataset   string `json:"dataset"`
	DocsCount uint64 `json:"docsCount"`
	Status    Status `json:"status"`
}

// Publishable reports whether the index name carries a doc type and a dataset.
func (i *Index) Publishable() bool {
	return i.DocType != "" && i.Dataset != ""
}

// Document is a record that can be ingested into an index
type Document interface {
	// ID is the stable identity used as the backend document key.
	ID() string
	DocType() string
	IsGeoData() bool
}

// RawDocument is a schemaless document carried as raw JSON. It is used by
// generic sources (files, message brokers) that do not know the concrete type.
type RawDocument struct {
	Identifier string
	Type       string
	Geo        bool
	Body       json.RawMessage
}

func (d RawDocument) ID() string      { return d.Identifier }
func (d RawDocument) DocType() string { return d.Type }
func (d RawDocument) IsGeoData() bool { return d.Geo }

// MarshalJSON serializes the body verbatim.
func (d RawDocument) MarshalJSON() ([]byte, error) {
	if len(d.Body) == 0 {
		return []byte("{}"), nil
	}
	return d.Body, nil
}

// InsertStats counts the outcome of every document of one insertion run
type InsertStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Error   int `json:"error"`
}

// Add merges other into s.
func (s *InsertStats) Add(other InsertStats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Error += other.Error
}

// Total is the number of documents accounted for.
func (s InsertStats) Total() int {
	return s.Created + s.Updated + s.Error
}

// ContinuationToken is the resumption state of an index scan
type ContinuationToken struct {
	PitID     string
	Primary   json.RawMessage
	Secondary json.RawMessage
}

// SearchAfter returns the sort key to resume after.
func (t ContinuationToken) SearchAfter() []json.RawMessage {
	return []json.RawMessage{t.Primary, t.Secondary}
}
