package operations_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	apperrors "healthetl/internal/errors"
	"healthetl/internal/operations"
)

func TestWrapErrorClassifies(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      operations.ErrorType
		wantRetryable bool
	}{
		{
			name:     "validation",
			err:      apperrors.NewAppValidationError("age out of range"),
			wantType: operations.ErrorTypeValidation,
		},
		{
			name:     "parsing",
			err:      apperrors.NewParsingError("bad date", errors.New("x")),
			wantType: operations.ErrorTypeParsing,
		},
		{
			name:     "schema",
			err:      apperrors.NewSchemaError("missing column Age"),
			wantType: operations.ErrorTypeParsing,
		},
		{
			name:          "storage",
			err:           apperrors.NewStorageError("disk full", errors.New("ENOSPC")),
			wantType:      operations.ErrorTypeStorage,
			wantRetryable: true,
		},
		{
			name:          "wrapped storage",
			err:           fmt.Errorf("failed to publish key: %w", apperrors.NewStorageError("upload", &googleapi.Error{Code: http.StatusServiceUnavailable})),
			wantType:      operations.ErrorTypeStorage,
			wantRetryable: true,
		},
		{
			name:     "permanent storage",
			err:      apperrors.NewStorageError("upload", &googleapi.Error{Code: http.StatusForbidden}),
			wantType: operations.ErrorTypeStorage,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantType: operations.ErrorTypeExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := operations.WrapError(tt.err, "publish")
			assert.Equal(t, tt.wantType, wrapped.Type)
			assert.Equal(t, "publish", wrapped.Step)
			assert.Equal(t, tt.wantRetryable, operations.IsRetryable(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestWrapErrorKeepsOperationError(t *testing.T) {
	original := operations.NewTimeoutError("", "1s")
	wrapped := operations.WrapError(original, "load")
	assert.Same(t, original, wrapped)
	assert.Equal(t, "load", wrapped.Step)
	assert.Nil(t, operations.WrapError(nil, "load"))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, operations.IsRetryable(nil))
	assert.False(t, operations.IsRetryable(errors.New("plain")))
	assert.False(t, operations.IsRetryable(operations.ErrRunInProgress))
	assert.False(t, operations.IsRetryable(operations.NewValidationError("validate", errors.New("age"))))
	assert.True(t, operations.IsRetryable(operations.NewTimeoutError("publish", "5m")))
	assert.True(t, operations.IsRetryable(fmt.Errorf("outer: %w", operations.NewExecutionError("publish", nil, true))))
}

func TestOperationErrorMessage(t *testing.T) {
	err := operations.NewValidationError("validate", errors.New("age out of range"))
	assert.Equal(t, "[validation] validate: records failed validation: age out of range", err.Error())
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(fmt.Errorf("x: %w", err)))
	assert.Equal(t, operations.ErrorTypeExecution, operations.GetErrorType(errors.New("plain")))
}
