package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, entry *models.GenerationLog) error {
	const query = `
INSERT INTO generation_logs (account_id, prompt, style, panel_count, credits_spent, failed_panels)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.AccountID, entry.Prompt, entry.Style, entry.PanelCount, entry.CreditsSpent, entry.FailedPanels); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}
