package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := domain.NewValidationError("duration", "must be positive, got %d", -5)

	assert.Equal(t, "validation failed: duration: must be positive, got -5", err.Error())
	assert.True(t, domain.IsValidation(err))
	assert.True(t, errors.Is(fmt.Errorf("booking: %w", err), domain.ErrValidation))

	var target *domain.ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, "duration", target.Field)
}

func TestValidationError_WithoutField(t *testing.T) {
	err := &domain.ValidationError{Message: "request body is empty"}

	assert.Equal(t, "validation failed: request body is empty", err.Error())
	assert.False(t, domain.IsValidation(domain.ErrNotFound))
}
