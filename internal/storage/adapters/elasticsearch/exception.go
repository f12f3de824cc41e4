package elasticsearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
)

// Exception is the error document returned by the backend on failure.
type Exception struct {
	Status int          `json:"status"`
	Error  ErrorDetails `json:"error"`
}

// ErrorDetails describes a backend exception. Some endpoints answer with a
// bare string instead of an object; it is stored as the reason.
type ErrorDetails struct {
	Type      string      `json:"type"`
	Reason    string      `json:"reason"`
	RootCause []RootCause `json:"root_cause"`
}

type RootCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (d *ErrorDetails) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &d.Reason)
	}
	type plain ErrorDetails
	return json.Unmarshal(data, (*plain)(d))
}

var (
	reAlreadyExists  = regexp.MustCompile(`index \[([^\]/]+).*\] already exists`)
	reNoSuchIndex    = regexp.MustCompile(`no such index \[([^\]/]+).*\]`)
	reInvalidMapping = regexp.MustCompile(`Failed to parse mapping \[([^\]/]+).*\]: (.*)`)
	reFailedToParse  = regexp.MustCompile(`failed to parse`)
	reUnknownSetting = regexp.MustCompile(`unknown setting \[([^\]/]+).*\]`)
)

// ClassifyException maps a backend exception to a typed error. The reason of
// the first root cause is used, falling back to the top level reason.
func ClassifyException(exc Exception) error {
	reason := exc.Error.Reason
	if len(exc.Error.RootCause) > 0 && exc.Error.RootCause[0].Reason != "" {
		reason = exc.Error.RootCause[0].Reason
	}
	if reason == "" {
		return index.NewError(index.ErrUnhandledException,
			index.WithReason(fmt.Sprintf("status %d: unspecified root cause or reason", exc.Status)))
	}

	if m := reAlreadyExists.FindStringSubmatch(reason); m != nil {
		return index.NewError(index.ErrDuplicateIndex, index.WithIndex(m[1]), index.WithReason(reason))
	}
	if m := reNoSuchIndex.FindStringSubmatch(reason); m != nil {
		return index.NewError(index.ErrUnknownIndex, index.WithIndex(m[1]), index.WithReason(reason))
	}
	if m := reInvalidMapping.FindStringSubmatch(reason); m != nil {
		return index.NewError(index.ErrInvalidMapping, index.WithField(m[1]), index.WithReason(m[2]))
	}
	if reFailedToParse.MatchString(reason) {
		return index.NewError(index.ErrFailedToParse, index.WithReason(reason))
	}
	if m := reUnknownSetting.FindStringSubmatch(reason); m != nil {
		return index.NewError(index.ErrUnknownSetting, index.WithSetting(m[1]), index.WithReason(reason))
	}
	return index.NewError(index.ErrUnhandledException, index.WithReason(reason))
}

// responseError converts a failed response into a typed error, tagging it
// with the operation.
func responseError(res *esapi.Response, op string) error {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return index.NewError(index.ErrBackendTransport, index.WithOperation(op), index.WithCause(err))
	}

	var exc Exception
	if err := json.Unmarshal(data, &exc); err != nil || (exc.Error.Reason == "" && len(exc.Error.RootCause) == 0) {
		return index.NewError(index.ErrUnhandledException,
			index.WithOperation(op),
			index.WithReason(fmt.Sprintf("%s without exception: %s", res.Status(), truncate(string(data)))))
	}
	if exc.Status == 0 {
		exc.Status = res.StatusCode
	}

	classified := ClassifyException(exc)
	if e, ok := classified.(*index.Error); ok {
		e.Operation = op
	}
	return classified
}
