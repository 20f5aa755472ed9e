package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIStatusUnwrapsChain(t *testing.T) {
	apiErr := NewAPIError("POST", "/api/foods", 409, "conflict", nil)
	wrapped := fmt.Errorf("create food: %w", apiErr)

	assert.Equal(t, 409, APIStatus(wrapped))
	assert.Equal(t, 0, APIStatus(errors.New("plain")))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(NewAPIError("POST", "/api/foods", 409, "", nil)))
	assert.False(t, IsConflict(NewAPIError("POST", "/api/foods", 422, "", nil)))
	assert.False(t, IsConflict(errors.New("plain")))
}

func TestIsDuplicateFoodError(t *testing.T) {
	body := `{"detail":"duplicate key value violates unique constraint \"ingredient_foods_name_group_id_key\""}`
	assert.True(t, IsDuplicateFoodError(NewAPIError("POST", "/api/foods", 500, body, nil)))
	assert.False(t, IsDuplicateFoodError(NewAPIError("POST", "/api/foods", 500, "boom", nil)))
}
