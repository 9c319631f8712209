package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

// AccountRepository owns the accounts table. Credit mutations are single
// conditional UPDATE statements so concurrent callers serialize on the row
// instead of racing a read-then-write.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) DB() *sql.DB {
	return r.db
}

const accountColumns = `id, email, password_hash, credits, daily_ad_count, last_ad_date, is_unmetered, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	var unmetered int
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Credits, &a.DailyAdCount, &a.LastAdDate, &unmetered, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.IsUnmetered = unmetered != 0
	return &a, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	const query = `
INSERT INTO accounts (id, email, password_hash, credits, daily_ad_count, last_ad_date, is_unmetered)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	unmetered := 0
	if account.IsUnmetered {
		unmetered = 1
	}
	if _, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.PasswordHash, account.Credits, account.DailyAdCount, account.LastAdDate, unmetered); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// ReserveCredits debits cost only if the balance covers it. Returns false
// when the conditional update matched no row, leaving the balance unchanged.
func (r *AccountRepository) ReserveCredits(ctx context.Context, accountID string, cost int) (bool, error) {
	const query = `
UPDATE accounts SET credits = credits - ?, updated_at = NOW()
WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, cost, accountID, cost)
	if err != nil {
		return false, fmt.Errorf("reserve credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *AccountRepository) AddCredits(ctx context.Context, accountID string, amount int) error {
	const query = `UPDATE accounts SET credits = credits + ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, accountID); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return nil
}

// RecordAdReward applies the whole check-then-reward sequence as one
// statement: the WHERE clause re-derives the effective daily count (a stale
// counter from a previous day does not count against the limit) and the SET
// clause rolls the window forward. Returns false when the daily cap is hit.
func (r *AccountRepository) RecordAdReward(ctx context.Context, accountID string, reward, dailyLimit int, today string) (bool, error) {
	const query = `
UPDATE accounts
SET credits = credits + ?,
    daily_ad_count = IF(last_ad_date = ?, daily_ad_count + 1, 1),
    last_ad_date = ?,
    updated_at = NOW()
WHERE id = ? AND (last_ad_date <> ? OR daily_ad_count < ?)`
	res, err := r.db.ExecContext(ctx, query, reward, today, today, accountID, today, dailyLimit)
	if err != nil {
		return false, fmt.Errorf("record ad reward: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ad reward rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *AccountRepository) SetUnmetered(ctx context.Context, accountID string, unmetered bool) error {
	value := 0
	if unmetered {
		value = 1
	}
	const query = `UPDATE accounts SET is_unmetered = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, accountID); err != nil {
		return fmt.Errorf("set unmetered: %w", err)
	}
	return nil
}
