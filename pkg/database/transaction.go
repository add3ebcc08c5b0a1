package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Only the transaction that began the sqlx.Tx
// (the owner) commits or rolls back; joined transactions defer to it.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed bool
	owner  *Transaction
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx joins the transaction already open on ctx, or begins a new one and
// stores it on the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if parent, ok := ctx.Value(txKey).(*Transaction); ok && parent.IsOpen() {
		return ctx, &Transaction{Tx: parent.Tx, logger: logger, owner: parent}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

// TxFromContext returns the transaction stored on ctx by GetTx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey).(*Transaction)
	if !ok || tx == nil {
		return nil, false
	}
	return tx, true
}

func (t *Transaction) IsOpen() bool {
	if t.owner != nil {
		return t.owner.IsOpen()
	}
	return !t.closed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.owner != nil || t.closed {
		return nil
	}

	t.closed = true
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.owner != nil || t.closed {
		return nil
	}

	t.closed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}
	return nil
}
