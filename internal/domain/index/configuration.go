package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultTimeout             = "30s"
	DefaultWaitForActiveShards = "1"
)

// Parameters are the query parameters of an index creation request
type Parameters struct {
	Timeout             string `json:"timeout"`
	WaitForActiveShards string `json:"wait_for_active_shards"`
}

// Configuration describes an index to create. Settings and mappings are
// opaque to this module and forwarded to the backend as they are.
type Configuration struct {
	Name       string          `json:"name"`
	Parameters Parameters      `json:"parameters"`
	Settings   json.RawMessage `json:"settings"`
	Mappings   json.RawMessage `json:"mappings"`
}

// ParseConfiguration parses a textual index configuration. Settings and
// mappings may be JSON objects or strings holding a JSON object.
func ParseConfiguration(text string) (*Configuration, error) {
	var cfg Configuration
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, invalidConfiguration("could not deserialize index configuration", err)
	}
	if cfg.Name == "" {
		return nil, invalidConfiguration("missing index name", nil)
	}

	var err error
	if cfg.Settings, err = normalizeBlob("settings", cfg.Settings); err != nil {
		return nil, err
	}
	if cfg.Mappings, err = normalizeBlob("mappings", cfg.Mappings); err != nil {
		return nil, err
	}

	if cfg.Parameters.Timeout == "" {
		cfg.Parameters.Timeout = DefaultTimeout
	}
	if cfg.Parameters.WaitForActiveShards == "" {
		cfg.Parameters.WaitForActiveShards = DefaultWaitForActiveShards
	}
	if _, err := time.ParseDuration(cfg.Parameters.Timeout); err != nil {
		return nil, invalidConfiguration("invalid timeout "+cfg.Parameters.Timeout, err)
	}

	return &cfg, nil
}

// Timeout returns the creation timeout. The value was validated by
// ParseConfiguration; a zero duration means the backend default.
func (c *Configuration) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.Parameters.Timeout)
	return d
}

// Body returns the creation request body.
func (c *Configuration) Body() ([]byte, error) {
	return json.Marshal(struct {
		Mappings json.RawMessage `json:"mappings"`
		Settings json.RawMessage `json:"settings"`
	}{
		Mappings: c.Mappings,
		Settings: c.Settings,
	})
}

// WithName returns a copy of the configuration under another index name.
func (c Configuration) WithName(name string) *Configuration {
	c.Name = name
	return &c
}

// String renders the configuration back to its textual form.
func (c *Configuration) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

func normalizeBlob(what string, raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage("{}"), nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, invalidConfiguration("invalid "+what, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, invalidConfiguration(fmt.Sprintf("%s is not a JSON object", what), err)
	}
	return raw, nil
}

func invalidConfiguration(reason string, cause error) error {
	return NewError(ErrInvalidConfiguration, WithReason(reason), WithCause(cause))
}
