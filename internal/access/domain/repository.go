package domain

import (
	"context"
	"time"
)

// TokenRepository stores tokens by digest.
type TokenRepository interface {
	Create(ctx context.Context, token *ActionToken) error

	// FindByHash returns ErrTokenNotFound for unknown digests.
	FindByHash(ctx context.Context, hash string) (*ActionToken, error)

	// Claim marks an unexpired token as used for action. prior is the
	// action the token must currently be consumed with, empty for a token
	// not used yet. It returns false when another caller claimed it first.
	Claim(ctx context.Context, hash string, prior, action Action, now time.Time) (bool, error)

	// StoreResult saves the result to replay for later clicks.
	StoreResult(ctx context.Context, hash string, result ActionResult) error
}
