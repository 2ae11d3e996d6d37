// Package application runs the token gateway: minting single-purpose
// links and performing the action a link was issued for.
package application

import (
	"context"

	"github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingApp "github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
)

// TokenService mints action tokens. It implements the TokenIssuer port
// used by the scheduling and waitlist handlers and stores only digests.
type TokenService struct {
	tokens domain.TokenRepository
	clock  sharedApplication.Clock
}

// NewTokenService creates a TokenService.
func NewTokenService(tokens domain.TokenRepository, clock sharedApplication.Clock) *TokenService {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &TokenService{tokens: tokens, clock: clock}
}

var _ schedulingApp.TokenIssuer = (*TokenService)(nil)

// IssueToken stores a new token and returns the raw value. It joins the
// caller's transaction when ctx carries one.
func (s *TokenService) IssueToken(ctx context.Context, req schedulingApp.IssueTokenRequest) (string, error) {
	token, raw, err := domain.NewActionToken(req.SubjectKind, req.SubjectID, req.ActionClass, req.ExpiresAt, s.clock.Now())
	if err != nil {
		return "", err
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}
