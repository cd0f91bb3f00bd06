package engine

import (
	"context"
	"database/sql"
	"errors"

	"admindata/internal/apperr"
	"admindata/internal/store"
)

type txKey struct{}

// TxFrom returns the transaction carried by the context, or nil.
func TxFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Atomic runs fn inside a database transaction. The transaction travels
// on the context passed to fn, so every engine operation invoked within
// the scope participates in it. Nested Atomic calls join the outer
// transaction; only the outermost scope commits or rolls back. Any
// error from fn rolls the whole scope back and is returned unchanged.
func Atomic(ctx context.Context, s *store.Store, fn func(ctx context.Context) error) error {
	if TxFrom(ctx) != nil {
		// Already inside a transaction: join it.
		return fn(ctx)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return apperr.Transaction(err, "begin transaction")
	}

	settled := false
	defer func() {
		if !settled {
			// fn panicked; roll back before the panic unwinds further.
			tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		settled = true
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return apperr.Transaction(rbErr, "rollback after: %v", err)
		}
		return err
	}

	settled = true
	if err := tx.Commit(); err != nil {
		return apperr.Transaction(err, "commit transaction")
	}
	return nil
}
