package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

type PendingOrderRepository struct {
	db *sql.DB
}

func NewPendingOrderRepository(db *sql.DB) *PendingOrderRepository {
	return &PendingOrderRepository{db: db}
}

// Replace installs a fresh pending order for the account, discarding any
// earlier one. At most one order per account is live at a time.
func (r *PendingOrderRepository) Replace(ctx context.Context, order *models.PendingOrder) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE account_id = ?`, order.AccountID); err != nil {
		return fmt.Errorf("discard prior pending order: %w", err)
	}
	const insert = `
INSERT INTO pending_orders (order_id, account_id, tier_id, credits, amount)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, order.OrderID, order.AccountID, order.TierID, order.Credits, order.Amount); err != nil {
		return fmt.Errorf("insert pending order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pending order: %w", err)
	}
	return nil
}

func (r *PendingOrderRepository) Find(ctx context.Context, orderID string) (*models.PendingOrder, error) {
	const query = `
SELECT order_id, account_id, tier_id, credits, amount, created_at
FROM pending_orders WHERE order_id = ?`
	row := r.db.QueryRowContext(ctx, query, orderID)
	var o models.PendingOrder
	if err := row.Scan(&o.OrderID, &o.AccountID, &o.TierID, &o.Credits, &o.Amount, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pending order: %w", err)
	}
	return &o, nil
}

func (r *PendingOrderRepository) Delete(ctx context.Context, orderID string) error {
	const query = `DELETE FROM pending_orders WHERE order_id = ?`
	if _, err := r.db.ExecContext(ctx, query, orderID); err != nil {
		return fmt.Errorf("delete pending order: %w", err)
	}
	return nil
}
