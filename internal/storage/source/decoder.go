// Package source reads schemaless JSON records from files and message
// brokers and turns them into documents ready for insertion.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mimir-go/internal/domain/index"
)

const DefaultIDField = "id"

// Decoder turns one JSON object into a document of a fixed doc type. The
// document identity is read from IDField.
type Decoder struct {
	IDField string
	DocType string
	Geo     bool
}

func NewDecoder(docType string, geo bool) Decoder {
	return Decoder{IDField: DefaultIDField, DocType: docType, Geo: geo}
}

// Decode builds a document from data. fallbackID is used when the record
// carries no identity of its own.
func (d Decoder) Decode(data []byte, fallbackID string) (index.RawDocument, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return index.RawDocument{}, fmt.Errorf("record is not a JSON object: %w", err)
	}

	field := d.IDField
	if field == "" {
		field = DefaultIDField
	}
	id := fallbackID
	if raw, ok := fields[field]; ok {
		parsed, err := identity(raw)
		if err != nil {
			return index.RawDocument{}, fmt.Errorf("field %s: %w", field, err)
		}
		id = parsed
	}
	if id == "" {
		return index.RawDocument{}, fmt.Errorf("record has no %s", field)
	}

	var body bytes.Buffer
	if err := json.Compact(&body, data); err != nil {
		return index.RawDocument{}, err
	}
	return index.RawDocument{
		Identifier: id,
		Type:       d.DocType,
		Geo:        d.Geo,
		Body:       body.Bytes(),
	}, nil
}

// identity accepts string and integer identifiers.
func identity(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("unsupported identifier %s", string(raw))
}
