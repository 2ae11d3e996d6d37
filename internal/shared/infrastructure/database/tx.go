package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoTransaction is returned by Commit and Rollback outside Begin.
var ErrNoTransaction = errors.New("no transaction in context")

type txKey struct{}

// txState is the transaction carried by a context. Only the unit that
// opened it commits. A nested unit runs inside a savepoint, so rolling it
// back undoes its own writes and leaves the outer transaction usable,
// even on PostgreSQL after a failed statement.
type txState struct {
	tx        Transaction
	owned     bool
	savepoint string
	depth     int
	hooks     *[]func(context.Context)
	parent    *[]func(context.Context)
}

func stateFrom(ctx context.Context) (txState, bool) {
	st, ok := ctx.Value(txKey{}).(txState)
	return st, ok && st.tx != nil
}

// HasTx reports whether ctx carries an open transaction.
func HasTx(ctx context.Context) bool {
	_, ok := stateFrom(ctx)
	return ok
}

// ExecutorFromContext returns the transaction if present, otherwise the
// connection, so repositories work the same inside or outside a unit of
// work.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if st, ok := stateFrom(ctx); ok {
		return st.tx
	}
	return conn
}

// AfterCommit runs fn once the outermost transaction commits, or right
// away when ctx has no transaction. Rolled back work drops its hooks.
// Cache evictions use it so readers never refill a cache from
// uncommitted rows.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	st, ok := stateFrom(ctx)
	if !ok {
		fn(ctx)
		return
	}
	*st.hooks = append(*st.hooks, fn)
}

// GenericUnitOfWork implements application.UnitOfWork for either driver.
type GenericUnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work over conn.
func NewUnitOfWork(conn Connection) *GenericUnitOfWork {
	return &GenericUnitOfWork{conn: conn}
}

// Begin opens a transaction, or a savepoint inside the one already in
// ctx.
func (u *GenericUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if st, ok := stateFrom(ctx); ok {
		nested := txState{
			tx:     st.tx,
			depth:  st.depth + 1,
			hooks:  new([]func(context.Context)),
			parent: st.hooks,
		}
		nested.savepoint = fmt.Sprintf("chiroflow_sp_%d", nested.depth)
		if _, err := st.tx.Exec(ctx, "SAVEPOINT "+nested.savepoint); err != nil {
			return nil, fmt.Errorf("open savepoint: %w", err)
		}
		return context.WithValue(ctx, txKey{}, nested), nil
	}

	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txState{tx: tx, owned: true, hooks: new([]func(context.Context))}), nil
}

// Commit commits an owned transaction and then runs its hooks with a
// context that no longer carries it. A nested unit releases its
// savepoint and hands its hooks to the enclosing unit.
func (u *GenericUnitOfWork) Commit(ctx context.Context) error {
	st, ok := stateFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !st.owned {
		if _, err := st.tx.Exec(ctx, "RELEASE SAVEPOINT "+st.savepoint); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		*st.parent = append(*st.parent, *st.hooks...)
		return nil
	}
	if err := st.tx.Commit(ctx); err != nil {
		return err
	}

	after := context.WithValue(ctx, txKey{}, txState{})
	for _, fn := range *st.hooks {
		fn(after)
	}
	return nil
}

// Rollback rolls back an owned transaction, or a nested unit's savepoint.
func (u *GenericUnitOfWork) Rollback(ctx context.Context) error {
	st, ok := stateFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	*st.hooks = nil
	if !st.owned {
		if _, err := st.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+st.savepoint); err != nil {
			return fmt.Errorf("rollback to savepoint: %w", err)
		}
		_, err := st.tx.Exec(ctx, "RELEASE SAVEPOINT "+st.savepoint)
		return err
	}
	return st.tx.Rollback(ctx)
}

// InTx runs fn inside the caller's transaction, or inside a new one
// committed when fn succeeds.
func InTx(ctx context.Context, conn Connection, fn func(context.Context) error) error {
	if HasTx(ctx) {
		return fn(ctx)
	}
	uow := NewUnitOfWork(conn)
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}
	return uow.Commit(txCtx)
}
