package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits, purchase required")
	ErrDailyAdLimitReached = errors.New("daily ad reward limit reached")
	ErrAccountNotFound     = errors.New("account not found")
)

// AccountStore is the slice of the account repository the ledger relies on.
// Every mutation must be atomic per account row.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	ReserveCredits(ctx context.Context, accountID string, cost int) (bool, error)
	AddCredits(ctx context.Context, accountID string, amount int) error
	RecordAdReward(ctx context.Context, accountID string, reward, dailyLimit int, today string) (bool, error)
}

// LedgerService gatekeeps every balance change. Nothing else in the codebase
// is allowed to decide whether an action may spend or earn credits.
type LedgerService struct {
	cfg   config.Config
	store AccountStore
	now   func() time.Time
}

func NewLedgerService(cfg config.Config, store AccountStore) *LedgerService {
	return &LedgerService{cfg: cfg, store: store, now: time.Now}
}

func (s *LedgerService) today() string {
	return s.cfg.Today(s.now())
}

// EffectiveDailyAdCount is the single place the lazy daily reset happens.
// A stored counter from a previous day reads as zero; the row itself is only
// rewritten on the next reward.
func (s *LedgerService) EffectiveDailyAdCount(account *models.Account) int {
	if account.LastAdDate != s.today() {
		return 0
	}
	return account.DailyAdCount
}

func (s *LedgerService) CanAfford(account *models.Account, cost int) bool {
	if account.IsUnmetered {
		return true
	}
	return account.Credits >= cost
}

// Reserve debits cost up front, failing closed on insufficient balance.
// Unmetered accounts skip the debit entirely and always succeed. Returns the
// amount actually debited.
func (s *LedgerService) Reserve(ctx context.Context, account *models.Account, cost int) (int, error) {
	if cost <= 0 {
		return 0, fmt.Errorf("invalid reservation cost: %d", cost)
	}
	if account.IsUnmetered {
		return 0, nil
	}
	ok, err := s.store.ReserveCredits(ctx, account.ID, cost)
	if err != nil {
		return 0, fmt.Errorf("reserve %d credits: %w", cost, err)
	}
	if !ok {
		return 0, ErrInsufficientCredits
	}
	account.Credits -= cost
	return cost, nil
}

// Grant credits amount unconditionally. Used by purchase settlement and ad
// rewards; there is no upper bound on a balance.
func (s *LedgerService) Grant(ctx context.Context, accountID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid grant amount: %d", amount)
	}
	if err := s.store.AddCredits(ctx, accountID, amount); err != nil {
		return fmt.Errorf("grant %d credits: %w", amount, err)
	}
	return nil
}

type AdEligibility struct {
	CanWatch       bool `json:"canWatch"`
	RemainingToday int  `json:"remainingToday"`
}

func (s *LedgerService) AdEligibility(account *models.Account) AdEligibility {
	remaining := s.cfg.DailyAdLimit - s.EffectiveDailyAdCount(account)
	if remaining < 0 {
		remaining = 0
	}
	return AdEligibility{
		CanWatch:       remaining > 0,
		RemainingToday: remaining,
	}
}

// CompleteAdView applies the reward for one finished ad view. The cap check
// and the reward are a single conditional update at the store, so two
// concurrent completions cannot both sneak past a stale counter.
func (s *LedgerService) CompleteAdView(ctx context.Context, accountID string) (*models.Account, error) {
	ok, err := s.store.RecordAdReward(ctx, accountID, s.cfg.AdRewardCredits, s.cfg.DailyAdLimit, s.today())
	if err != nil {
		return nil, fmt.Errorf("record ad reward: %w", err)
	}
	if !ok {
		return nil, ErrDailyAdLimitReached
	}
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}
