package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxManager wraps check-then-act flows in a single database transaction.
// Schedule booking and registration read the committed slot universe and
// insert in the same transaction so concurrent requests cannot both pass
// the conflict check; a storage-level uniqueness guard backstops the rest.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager constructs a TxManager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithSerializable runs fn inside a serializable transaction, rolling back
// on error.
func (m *TxManager) WithSerializable(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return m.withIsolation(ctx, sql.LevelSerializable, fn)
}

// WithTx runs fn inside a read-committed transaction.
func (m *TxManager) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return m.withIsolation(ctx, sql.LevelReadCommitted, fn)
}

func (m *TxManager) withIsolation(ctx context.Context, level sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
