package service

import (
	"context"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
)

type TierService struct {
	repo *repository.TierRepository
}

func NewTierService(repo *repository.TierRepository) *TierService {
	return &TierService{repo: repo}
}

// defaultTiers is the launch catalog. The free tier earns credits through
// ad views; the rest go through the payment gateway.
var defaultTiers = []models.PricingTier{
	{ID: "free", Name: "Free", PriceKRW: 0, Credits: 2, Description: "Watch a 15s ad (5 per day)", IsFreeTier: true, SortOrder: 0},
	{ID: "basic", Name: "Basic", PriceKRW: 4900, Credits: 20, Description: "For beginning creators", SortOrder: 1},
	{ID: "basic2", Name: "Basic 2", PriceKRW: 9900, Credits: 50, Description: "For intermediate creators", SortOrder: 2},
	{ID: "pro", Name: "Pro", PriceKRW: 15900, Credits: 120, Description: "The professional choice", IsPopular: true, SortOrder: 3},
	{ID: "vip", Name: "VIP", PriceKRW: 19900, Credits: 200, Description: "For large projects", SortOrder: 4},
}

// EnsureDefaultTiers seeds the catalog on first boot and leaves any
// admin-edited catalog alone afterwards.
func (s *TierService) EnsureDefaultTiers(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for i := range defaultTiers {
		if err := s.repo.Upsert(ctx, &defaultTiers[i]); err != nil {
			return fmt.Errorf("seed tier %s: %w", defaultTiers[i].ID, err)
		}
	}
	return nil
}

func (s *TierService) List(ctx context.Context) ([]models.PricingTier, error) {
	return s.repo.List(ctx)
}

func (s *TierService) GetByID(ctx context.Context, id string) (*models.PricingTier, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TierService) Save(ctx context.Context, tier *models.PricingTier) error {
	if tier.ID == "" || tier.Name == "" {
		return fmt.Errorf("tier id and name are required")
	}
	if tier.Credits <= 0 {
		return fmt.Errorf("credits must be positive")
	}
	if !tier.IsFreeTier && tier.PriceKRW <= 0 {
		return fmt.Errorf("price must be positive for paid tiers")
	}
	return s.repo.Upsert(ctx, tier)
}

func (s *TierService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
