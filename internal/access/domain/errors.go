package domain

import (
	"errors"
	"fmt"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

var (
	ErrTokenNotFound = fmt.Errorf("action token %w", sharedDomain.ErrNotFound)

	// ErrTokenExpired is terminal; the recipient needs a new link.
	ErrTokenExpired = errors.New("action token has expired")

	ErrActionNotAllowed = fmt.Errorf("action not allowed for token: %w", sharedDomain.ErrValidation)

	// ErrTokenConsumed means the token was already used for a different
	// action.
	ErrTokenConsumed = fmt.Errorf("action token already used: %w", sharedDomain.ErrConflict)
)
