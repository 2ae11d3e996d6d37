package application

import "context"

// UnitOfWork scopes a transaction to a context. Begin returns a context
// carrying the transaction; a nested Begin joins the outer transaction
// and only the outermost Commit reaches the store.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithUnitOfWork runs fn in a unit of work, committing when it returns
// nil. On error or panic the work is rolled back; fn's error is returned
// as is and a rollback failure is dropped.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback(txCtx)
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}
	committed = true
	return uow.Commit(txCtx)
}

// InUnitOfWork is WithUnitOfWork for work that yields a value. The value
// is discarded when the work rolls back.
func InUnitOfWork[T any](ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		var err error
		result, err = fn(txCtx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
