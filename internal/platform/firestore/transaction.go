package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txMaxAttempts = 5
	txTimeout     = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction executes fn within a transaction, bounding the attempt count
// and wall-clock time so a contended document cannot stall the caller.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	txnCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		txnCtx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	err := client.RunTransaction(txnCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(txMaxAttempts))

	return WrapError("transaction", err)
}
