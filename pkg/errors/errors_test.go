package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, `field not found: field "title": no such field`,
		ForField(ErrFieldNotFound, "title", "no such field").Error())
	assert.Equal(t, `field not found: field "title"`, ForField(ErrFieldNotFound, "title", "").Error())
	assert.Equal(t, "invalid prefix: empty", New(ErrInvalidPrefix, "empty").Error())
	assert.Equal(t, "index closed", (&AppError{Err: ErrIndexClosed}).Error())
	assert.Equal(t, `field type mismatch: field "views": expected u64, got string`,
		TypeMismatch("views", "u64", "string").Error())
}

func TestUnwrapAndField(t *testing.T) {
	err := fmt.Errorf("adding document: %w", ForField(ErrFieldTypeMismatch, "views", "bad"))
	assert.ErrorIs(t, err, ErrFieldTypeMismatch)
	assert.Equal(t, "views", FieldOf(err))
	assert.Empty(t, FieldOf(errors.New("plain")))
}

func TestEngineKeepsCause(t *testing.T) {
	err := Engine("opening segment", fs.ErrPermission)
	assert.ErrorIs(t, err, ErrEngine)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, KindEngine, KindOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ErrEmptySchema, KindSchema},
		{New(ErrDuplicateFieldName, "x"), KindSchema},
		{ErrIndexNotFound, KindIndex},
		{ErrIndexClosed, KindIndex},
		{TypeMismatch("a", "u64", "string"), KindConversion},
		{ErrQueryParse, KindQuery},
		{ErrInvalidDistance, KindQuery},
		{ErrTimeout, KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrIndexNotFound, http.StatusNotFound},
		{ErrIndexAlreadyExists, http.StatusConflict},
		{ErrIndexClosed, http.StatusServiceUnavailable},
		{Newf(ErrTimeout, "slow"), http.StatusServiceUnavailable},
		{ErrInvalidInput, http.StatusBadRequest},
		{ForField(ErrNotNumericField, "title", ""), http.StatusBadRequest},
		{TypeMismatch("a", "u64", "string"), http.StatusBadRequest},
		{ErrEmptySchema, http.StatusBadRequest},
		{Engine("x", errors.New("boom")), http.StatusInternalServerError},
		{WithStatus(New(ErrInternal, "teapot"), http.StatusTeapot), http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), "%v", tt.err)
	}
}
