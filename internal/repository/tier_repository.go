package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

type TierRepository struct {
	db *sql.DB
}

func NewTierRepository(db *sql.DB) *TierRepository {
	return &TierRepository{db: db}
}

const tierColumns = `id, name, price_krw, credits, description, is_free_tier, is_popular, sort_order`

func (r *TierRepository) List(ctx context.Context) ([]models.PricingTier, error) {
	query := `SELECT ` + tierColumns + ` FROM pricing_tiers ORDER BY sort_order ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.PricingTier
	for rows.Next() {
		var t models.PricingTier
		var free, popular int
		if err := rows.Scan(&t.ID, &t.Name, &t.PriceKRW, &t.Credits, &t.Description, &free, &popular, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		t.IsFreeTier = free != 0
		t.IsPopular = popular != 0
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *TierRepository) GetByID(ctx context.Context, id string) (*models.PricingTier, error) {
	query := `SELECT ` + tierColumns + ` FROM pricing_tiers WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var t models.PricingTier
	var free, popular int
	if err := row.Scan(&t.ID, &t.Name, &t.PriceKRW, &t.Credits, &t.Description, &free, &popular, &t.SortOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tier: %w", err)
	}
	t.IsFreeTier = free != 0
	t.IsPopular = popular != 0
	return &t, nil
}

// Upsert keeps the seeded catalog stable across restarts while letting the
// admin surface adjust prices and credit amounts.
func (r *TierRepository) Upsert(ctx context.Context, tier *models.PricingTier) error {
	const query = `
INSERT INTO pricing_tiers (id, name, price_krw, credits, description, is_free_tier, is_popular, sort_order)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), price_krw = VALUES(price_krw), credits = VALUES(credits),
description = VALUES(description), is_free_tier = VALUES(is_free_tier), is_popular = VALUES(is_popular), sort_order = VALUES(sort_order)`
	free, popular := 0, 0
	if tier.IsFreeTier {
		free = 1
	}
	if tier.IsPopular {
		popular = 1
	}
	if _, err := r.db.ExecContext(ctx, query, tier.ID, tier.Name, tier.PriceKRW, tier.Credits, tier.Description, free, popular, tier.SortOrder); err != nil {
		return fmt.Errorf("upsert tier: %w", err)
	}
	return nil
}

func (r *TierRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM pricing_tiers WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete tier: %w", err)
	}
	return nil
}

func (r *TierRepository) Count(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pricing_tiers`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count tiers: %w", err)
	}
	return count, nil
}
