package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
)

var (
	ErrTierNotFound = errors.New("pricing tier not found")
	// ErrFreeTierNotPurchasable: the free tier earns credits through the
	// ad-reward flow, never through the gateway.
	ErrFreeTierNotPurchasable = errors.New("free tier is not purchasable")
	// ErrPaymentAmbiguous covers success redirects that cannot be matched to
	// a checkout: no pending order, or an amount that disagrees with it.
	// Credits must never be granted on a guess.
	ErrPaymentAmbiguous = errors.New("payment could not be matched to a pending order")
	ErrPaymentFailed    = errors.New("payment failed")
)

type TierCatalog interface {
	GetByID(ctx context.Context, id string) (*models.PricingTier, error)
}

type PendingOrderStore interface {
	Replace(ctx context.Context, order *models.PendingOrder) error
}

type SettlementStore interface {
	SettleSuccess(ctx context.Context, orderID, paymentKey string, amount int) (*repository.SettleResult, error)
	RecordFailure(ctx context.Context, orderID, code, message string) error
}

type Alerter interface {
	Alert(format string, args ...any)
}

// PaymentService bridges the redirect-based gateway flow: it records a
// pending order before the browser leaves for the gateway and reconciles the
// redirect that comes back, exactly once.
type PaymentService struct {
	cfg         config.Config
	tiers       TierCatalog
	pending     PendingOrderStore
	settlements SettlementStore
	ops         Alerter
}

func NewPaymentService(cfg config.Config, tiers TierCatalog, pending PendingOrderStore, settlements SettlementStore, ops Alerter) *PaymentService {
	return &PaymentService{
		cfg:         cfg,
		tiers:       tiers,
		pending:     pending,
		settlements: settlements,
		ops:         ops,
	}
}

// CheckoutOrder is everything the browser needs to open the gateway widget.
type CheckoutOrder struct {
	OrderID       string `json:"orderId"`
	OrderName     string `json:"orderName"`
	Amount        int    `json:"amount"`
	Credits       int    `json:"credits"`
	CustomerEmail string `json:"customerEmail"`
	ClientKey     string `json:"clientKey"`
	SuccessURL    string `json:"successUrl"`
	FailURL       string `json:"failUrl"`
}

// Checkout writes the pending order that the success redirect will be
// matched against. Any earlier pending order for the account is discarded.
func (s *PaymentService) Checkout(ctx context.Context, account *models.Account, tierID string) (*CheckoutOrder, error) {
	tier, err := s.tiers.GetByID(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("load tier: %w", err)
	}
	if tier == nil {
		return nil, ErrTierNotFound
	}
	if tier.IsFreeTier {
		return nil, ErrFreeTierNotPurchasable
	}

	order := &models.PendingOrder{
		OrderID:   newOrderID(),
		AccountID: account.ID,
		TierID:    tier.ID,
		Credits:   tier.Credits,
		Amount:    tier.PriceKRW,
	}
	if err := s.pending.Replace(ctx, order); err != nil {
		return nil, fmt.Errorf("store pending order: %w", err)
	}

	return &CheckoutOrder{
		OrderID:       order.OrderID,
		OrderName:     fmt.Sprintf("%s (%d credits)", tier.Name, tier.Credits),
		Amount:        order.Amount,
		Credits:       order.Credits,
		CustomerEmail: account.Email,
		ClientKey:     s.cfg.TossClientKey,
		SuccessURL:    s.cfg.PaymentSuccessURL,
		FailURL:       s.cfg.PaymentFailURL,
	}, nil
}

// ConfirmSuccess settles a success redirect. Replays of an already-settled
// order report zero newly granted credits; anything that cannot be matched
// raises an ops alert and returns ErrPaymentAmbiguous.
func (s *PaymentService) ConfirmSuccess(ctx context.Context, orderID, paymentKey string, amount int) (*repository.SettleResult, error) {
	if orderID == "" || paymentKey == "" || amount <= 0 {
		return nil, fmt.Errorf("%w: incomplete redirect parameters", ErrPaymentAmbiguous)
	}

	result, err := s.settlements.SettleSuccess(ctx, orderID, paymentKey, amount)
	if err != nil {
		if errors.Is(err, repository.ErrPendingOrderNotFound) || errors.Is(err, repository.ErrAmountMismatch) {
			s.ops.Alert("payment settlement mismatch: order=%s amount=%d err=%v", orderID, amount, err)
			return nil, fmt.Errorf("%w: %v", ErrPaymentAmbiguous, err)
		}
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	return result, nil
}

// ConfirmFailure discards the pending order for a failure redirect. A
// failure for an unknown order is a no-op; there is nothing to discard.
func (s *PaymentService) ConfirmFailure(ctx context.Context, orderID, code, message string) error {
	if orderID == "" {
		return nil
	}
	if err := s.settlements.RecordFailure(ctx, orderID, code, message); err != nil {
		if errors.Is(err, repository.ErrPendingOrderNotFound) {
			return nil
		}
		return fmt.Errorf("record payment failure: %w", err)
	}
	return nil
}

func newOrderID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORDER_" + raw[:20]
}
