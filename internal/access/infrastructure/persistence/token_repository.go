// Package persistence stores action tokens by digest.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/access/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
)

// TokenRepository is the SQL token store. The claim is a guarded update
// so two concurrent uses of one token cannot both win.
type TokenRepository struct {
	conn database.Connection
}

// NewTokenRepository creates a TokenRepository.
func NewTokenRepository(conn database.Connection) *TokenRepository {
	return &TokenRepository{conn: conn}
}

var _ domain.TokenRepository = (*TokenRepository)(nil)

func (r *TokenRepository) Create(ctx context.Context, token *domain.ActionToken) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, `
		INSERT INTO action_tokens (
			token_hash, subject_kind, subject_id, action_class, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		token.Hash(), string(token.SubjectKind()), token.SubjectID(), string(token.Class()),
		dbTime(token.ExpiresAt()), dbTime(token.CreatedAt()),
	)
	if err != nil {
		return fmt.Errorf("insert action token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*domain.ActionToken, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		kind, class          string
		subjectID            uuid.UUID
		expiresAt, createdAt time.Time
		consumedAt           *time.Time
		consumedAction       *string
		result               *string
	)
	err := exec.QueryRow(ctx, `
		SELECT subject_kind, subject_id, action_class, expires_at,
		       consumed_at, consumed_action, result, created_at
		FROM action_tokens
		WHERE token_hash = $1`, hash,
	).Scan(&kind, &subjectID, &class, &expiresAt, &consumedAt, &consumedAction, &result, &createdAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	parsedClass, err := domain.ParseActionClass(class)
	if err != nil {
		return nil, err
	}
	var action domain.Action
	if consumedAction != nil {
		action = domain.Action(*consumedAction)
	}
	var stored *domain.ActionResult
	if result != nil && *result != "" {
		stored = &domain.ActionResult{}
		if err := json.Unmarshal([]byte(*result), stored); err != nil {
			return nil, fmt.Errorf("decode token result: %w", err)
		}
	}
	if consumedAt != nil {
		v := consumedAt.UTC()
		consumedAt = &v
	}
	return domain.RehydrateActionToken(hash, domain.SubjectKind(kind), subjectID, parsedClass,
		expiresAt, consumedAt, action, stored, createdAt), nil
}

const claimToken = `
	UPDATE action_tokens
	SET consumed_at = $3, consumed_action = $2, result = NULL
	WHERE token_hash = $1
	  AND expires_at > $3`

func (r *TokenRepository) Claim(ctx context.Context, hash string, prior, action domain.Action, now time.Time) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	query := claimToken + ` AND consumed_at IS NULL`
	args := []any{hash, string(action), dbTime(now)}
	if prior != "" {
		query = claimToken + ` AND consumed_action = $4`
		args = append(args, string(prior))
	}
	result, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim action token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TokenRepository) StoreResult(ctx context.Context, hash string, res domain.ActionResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode token result: %w", err)
	}
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `UPDATE action_tokens SET result = $2 WHERE token_hash = $1`, hash, string(body))
	if err != nil {
		return fmt.Errorf("store token result: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
