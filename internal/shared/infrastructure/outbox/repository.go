package outbox

import (
	"context"
	"time"
)

// Repository stores outbox messages next to the aggregate tables. Save and
// SaveBatch join the caller's unit of work when the context carries one,
// so events commit or roll back with the booking or offer change.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns messages that are neither published nor
	// dead-lettered and whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	// MarkFailed bumps the retry count and parks the message until nextRetryAt.
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than olderThanDays.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
