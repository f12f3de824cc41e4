package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidConfiguration = errors.New("invalid index configuration")
	ErrDuplicateIndex       = errors.New("duplicate index")
	ErrUnknownIndex         = errors.New("unknown index")
	ErrInvalidMapping       = errors.New("invalid mapping")
	ErrUnknownSetting       = errors.New("unknown setting")
	ErrFailedToParse        = errors.New("backend failed to parse request")
	ErrNotCreated           = errors.New("not created")
	ErrNotDeleted           = errors.New("not deleted")
	ErrNotAcknowledged      = errors.New("not acknowledged")
	ErrBackendTransport     = errors.New("backend transport error")
	ErrMalformedResponse    = errors.New("malformed backend response")
	ErrUnhandledException   = errors.New("unhandled backend exception")
	ErrBulkInsert           = errors.New("bulk insertion failed")
	ErrInternal             = errors.New("internal error")
)

// Error carries one error kind together with the details extracted for it.
// errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind      error
	Index     string
	Field     string
	Reason    string
	Setting   string
	Operation string
	Err       error
}

// ErrorOption sets a detail on an Error
type ErrorOption func(*Error)

func WithIndex(name string) ErrorOption      { return func(e *Error) { e.Index = name } }
func WithField(field string) ErrorOption     { return func(e *Error) { e.Field = field } }
func WithReason(reason string) ErrorOption   { return func(e *Error) { e.Reason = reason } }
func WithSetting(setting string) ErrorOption { return func(e *Error) { e.Setting = setting } }
func WithOperation(op string) ErrorOption    { return func(e *Error) { e.Operation = op } }
func WithCause(err error) ErrorOption        { return func(e *Error) { e.Err = err } }

// NewError builds an Error of the given kind.
func NewError(kind error, opts ...ErrorOption) *Error {
	e := &Error{Kind: kind}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	var details []string
	if e.Index != "" {
		details = append(details, "index="+e.Index)
	}
	if e.Field != "" {
		details = append(details, "field="+e.Field)
	}
	if e.Setting != "" {
		details = append(details, "setting="+e.Setting)
	}
	if e.Operation != "" {
		details = append(details, "operation="+e.Operation)
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(details, " "))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is a transient backend failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendTransport)
}

// ChunkError reports one bulk chunk that did not fully succeed.
type ChunkError struct {
	Chunk     int
	Documents int
	Err       error
}

// BulkError aggregates the failed chunks of an insertion run. It matches
// ErrBulkInsert and every chunk cause.
type BulkError struct {
	Index  string
	Chunks []ChunkError
}

func (e *BulkError) Error() string {
	if len(e.Chunks) == 0 {
		return fmt.Sprintf("%s [index=%s]", ErrBulkInsert, e.Index)
	}
	return fmt.Sprintf("%s [index=%s]: %d chunk(s) failed, first (chunk %d): %v",
		ErrBulkInsert, e.Index, len(e.Chunks), e.Chunks[0].Chunk, e.Chunks[0].Err)
}

func (e *BulkError) Unwrap() []error {
	errs := make([]error, 0, len(e.Chunks)+1)
	errs = append(errs, ErrBulkInsert)
	for _, c := range e.Chunks {
		errs = append(errs, c.Err)
	}
	return errs
}
