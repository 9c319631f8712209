package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

var (
	// ErrPendingOrderNotFound means a success redirect arrived with no
	// matching pending order and no prior settlement. Granting here would
	// mean guessing an amount, so the caller must surface it instead.
	ErrPendingOrderNotFound = errors.New("pending order not found")
	// ErrAmountMismatch means the gateway-reported amount differs from the
	// amount recorded at checkout.
	ErrAmountMismatch = errors.New("payment amount mismatch")
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

type SettleResult struct {
	AccountID      string
	TierID         string
	CreditsGranted int
	AlreadySettled bool
}

// SettleSuccess converts a success redirect into a credit grant exactly once.
// The pending row is locked, the grant, audit insert, and pending delete all
// commit together; deleting the pending row is the commit point. A replay for
// an order that already has a paid row is a no-op.
func (r *PaymentRepository) SettleSuccess(ctx context.Context, orderID, paymentKey string, amount int) (*SettleResult, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var settled models.Payment
	row := tx.QueryRowContext(ctx, `SELECT account_id, tier_id, credits, status FROM payments WHERE order_id = ?`, orderID)
	err = row.Scan(&settled.AccountID, &settled.TierID, &settled.Credits, &settled.Status)
	switch {
	case err == nil:
		if settled.Status == models.PaymentStatusPaid {
			return &SettleResult{
				AccountID:      settled.AccountID,
				TierID:         settled.TierID,
				CreditsGranted: 0,
				AlreadySettled: true,
			}, nil
		}
	case errors.Is(err, sql.ErrNoRows):
		// first time we see this order
	default:
		return nil, fmt.Errorf("check settled payment: %w", err)
	}

	var pending models.PendingOrder
	row = tx.QueryRowContext(ctx, `
SELECT order_id, account_id, tier_id, credits, amount FROM pending_orders
WHERE order_id = ? FOR UPDATE`, orderID)
	if err := row.Scan(&pending.OrderID, &pending.AccountID, &pending.TierID, &pending.Credits, &pending.Amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingOrderNotFound
		}
		return nil, fmt.Errorf("lock pending order: %w", err)
	}

	if pending.Amount != amount {
		return nil, fmt.Errorf("%w: pending=%d gateway=%d", ErrAmountMismatch, pending.Amount, amount)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET credits = credits + ?, updated_at = NOW() WHERE id = ?`, pending.Credits, pending.AccountID); err != nil {
		return nil, fmt.Errorf("grant purchased credits: %w", err)
	}

	const insert = `
INSERT INTO payments (account_id, order_id, tier_id, payment_key, amount, credits, status)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, pending.AccountID, pending.OrderID, pending.TierID, paymentKey, amount, pending.Credits, models.PaymentStatusPaid); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE order_id = ?`, orderID); err != nil {
		return nil, fmt.Errorf("consume pending order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}

	return &SettleResult{
		AccountID:      pending.AccountID,
		TierID:         pending.TierID,
		CreditsGranted: pending.Credits,
	}, nil
}

// RecordFailure discards the pending order and writes a failed audit row.
// No credits move. Safe to replay; the second call finds nothing to do.
func (r *PaymentRepository) RecordFailure(ctx context.Context, orderID, code, message string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	row := tx.QueryRowContext(ctx, `SELECT status FROM payments WHERE order_id = ?`, orderID)
	if err := row.Scan(&existing); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check payment: %w", err)
	}

	var pending models.PendingOrder
	row = tx.QueryRowContext(ctx, `
SELECT order_id, account_id, tier_id, credits, amount FROM pending_orders
WHERE order_id = ? FOR UPDATE`, orderID)
	if err := row.Scan(&pending.OrderID, &pending.AccountID, &pending.TierID, &pending.Credits, &pending.Amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPendingOrderNotFound
		}
		return fmt.Errorf("lock pending order: %w", err)
	}

	const insert = `
INSERT INTO payments (account_id, order_id, tier_id, amount, credits, status, failure_code, failure_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, pending.AccountID, pending.OrderID, pending.TierID, pending.Amount, pending.Credits, models.PaymentStatusFailed, code, message); err != nil {
		return fmt.Errorf("insert failed payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("discard pending order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failure record: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	const query = `
SELECT id, account_id, order_id, tier_id, payment_key, amount, credits, status, failure_code, failure_message, created_at
FROM payments WHERE order_id = ?`
	row := r.db.QueryRowContext(ctx, query, orderID)
	var p models.Payment
	if err := row.Scan(&p.ID, &p.AccountID, &p.OrderID, &p.TierID, &p.PaymentKey, &p.Amount, &p.Credits, &p.Status, &p.FailureCode, &p.FailureMessage, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
