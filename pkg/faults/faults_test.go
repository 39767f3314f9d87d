package faults

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "validation", err: NewValidationError("bad input"), expected: http.StatusBadRequest},
		{name: "not found", err: NewNotFoundError("missing", "e1"), expected: http.StatusNotFound},
		{name: "external service", err: NewExternalServiceError("oracle", "down", nil), expected: http.StatusBadGateway},
		{name: "transaction", err: NewTransactionError("apply failed", errors.New("boom")), expected: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), expected: http.StatusInternalServerError},
		{name: "wrapped validation", err: fmt.Errorf("context: %w", NewValidationError("bad")), expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusCode(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ValidationError", Kind(NewValidationError("x")))
	assert.Equal(t, "NotFoundError", Kind(NewNotFoundError("x")))
	assert.Equal(t, "ExternalServiceError", Kind(NewExternalServiceError("s", "x", nil)))
	assert.Equal(t, "TransactionError", Kind(NewTransactionError("x", nil)))
	assert.Equal(t, "InternalError", Kind(errors.New("x")))
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := NewNotFoundError("entities missing or already deleted", "e2", "e3")
	assert.Contains(t, err.Error(), "e2")
	assert.Contains(t, err.Error(), "e3")
}

func TestFromStorage(t *testing.T) {
	t.Run("NilPassesThrough", func(t *testing.T) {
		assert.NoError(t, FromStorage("op", nil))
	})

	t.Run("NoRowsBecomesNotFound", func(t *testing.T) {
		err := FromStorage("get entity", sql.ErrNoRows)
		assert.True(t, IsNotFound(err))
	})

	t.Run("DriverErrorBecomesTransaction", func(t *testing.T) {
		pqErr := &pq.Error{Code: "23505"}
		err := FromStorage("create person", pqErr)
		require.True(t, IsTransaction(err))
		assert.Contains(t, err.Error(), "unique_violation")
	})

	t.Run("OtherErrorsBecomeTransaction", func(t *testing.T) {
		err := FromStorage("op", errors.New("connection reset"))
		assert.True(t, IsTransaction(err))
	})
}
