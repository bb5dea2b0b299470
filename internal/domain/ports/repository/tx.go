package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// database transaction, passing the underlying transaction handle via `tx`.
//
// The billing executor uses it to append an attempt record and save the
// subscription it mutated as one unit:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		if err := attempts.Append(ctx, tx, rec); err != nil {
//			return err
//		}
//		return subs.Save(ctx, tx, sub)
//	})
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres).
// Repositories MUST accept a nil tx (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
