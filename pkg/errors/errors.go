// Package errors defines the error taxonomy shared by the index, writer and
// query layers. Every failure is a sentinel wrapped in an AppError that names
// the offending field when there is one, so callers can both branch with
// errors.Is and show a precise message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Schema errors.
var (
	ErrEmptySchema        = errors.New("schema has no fields")
	ErrDuplicateFieldName = errors.New("duplicate field name")
	ErrInvalidFieldName   = errors.New("invalid field name")
	ErrUnknownFieldType   = errors.New("unknown field type")
)

// Index errors.
var (
	ErrIndexAlreadyExists = errors.New("index already exists")
	ErrIndexNotFound      = errors.New("index not found")
	ErrIndexCreateFailed  = errors.New("index create failed")
	ErrIndexClosed        = errors.New("index closed")
)

// Conversion errors.
var (
	ErrFieldTypeMismatch = errors.New("field type mismatch")
)

// Query errors.
var (
	ErrFieldNotFound   = errors.New("field not found")
	ErrNotTextField    = errors.New("not a text field")
	ErrNotNumericField = errors.New("not a numeric field")
	ErrInvalidDistance = errors.New("invalid fuzzy distance")
	ErrInvalidPrefix   = errors.New("invalid prefix")
	ErrQueryParse      = errors.New("query parse error")
)

// Engine and transport errors.
var (
	ErrEngine       = errors.New("engine error")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// Kind is the taxonomy family an error belongs to.
type Kind string

const (
	KindSchema     Kind = "schema"
	KindIndex      Kind = "index"
	KindConversion Kind = "conversion"
	KindQuery      Kind = "query"
	KindEngine     Kind = "engine"
	KindOther      Kind = "other"
)

type AppError struct {
	Err        error
	Field      string
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	switch {
	case e.Field != "" && e.Message != "":
		return fmt.Sprintf("%s: field %q: %s", e.Err.Error(), e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: field %q", e.Err.Error(), e.Field)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	default:
		return e.Err.Error()
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// ForField builds an error attributed to a single schema field.
func ForField(sentinel error, field string, format string, args ...any) *AppError {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{
		Err:     sentinel,
		Field:   field,
		Message: msg,
	}
}

// TypeMismatch reports a document value whose type cannot be coerced to the
// field's declared type.
func TypeMismatch(field, expected, actual string) *AppError {
	return ForField(ErrFieldTypeMismatch, field, "expected %s, got %s", expected, actual)
}

// Engine wraps a failure surfaced by the underlying index engine.
func Engine(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngine, op, err)
}

// WithStatus overrides the HTTP status derived from the sentinel.
func WithStatus(err *AppError, statusCode int) *AppError {
	err.StatusCode = statusCode
	return err
}

// FieldOf returns the field name attached to err, if any.
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// KindOf classifies err into its taxonomy family.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptySchema), errors.Is(err, ErrDuplicateFieldName),
		errors.Is(err, ErrInvalidFieldName), errors.Is(err, ErrUnknownFieldType):
		return KindSchema
	case errors.Is(err, ErrIndexAlreadyExists), errors.Is(err, ErrIndexNotFound),
		errors.Is(err, ErrIndexCreateFailed), errors.Is(err, ErrIndexClosed):
		return KindIndex
	case errors.Is(err, ErrFieldTypeMismatch):
		return KindConversion
	case errors.Is(err, ErrFieldNotFound), errors.Is(err, ErrNotTextField),
		errors.Is(err, ErrNotNumericField), errors.Is(err, ErrInvalidDistance),
		errors.Is(err, ErrInvalidPrefix), errors.Is(err, ErrQueryParse):
		return KindQuery
	case errors.Is(err, ErrEngine):
		return KindEngine
	default:
		return KindOther
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrIndexClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}

	switch KindOf(err) {
	case KindSchema, KindConversion, KindQuery:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
