package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
)

type fakeTierCatalog struct {
	tiers map[string]*models.PricingTier
}

func (f *fakeTierCatalog) GetByID(_ context.Context, id string) (*models.PricingTier, error) {
	return f.tiers[id], nil
}

type fakePendingStore struct {
	replaced []*models.PendingOrder
}

func (f *fakePendingStore) Replace(_ context.Context, order *models.PendingOrder) error {
	f.replaced = append(f.replaced, order)
	return nil
}

type fakeSettlementStore struct {
	result     *repository.SettleResult
	settleErr  error
	failureErr error
	settled    []string
	failed     []string
}

func (f *fakeSettlementStore) SettleSuccess(_ context.Context, orderID, _ string, _ int) (*repository.SettleResult, error) {
	f.settled = append(f.settled, orderID)
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return f.result, nil
}

func (f *fakeSettlementStore) RecordFailure(_ context.Context, orderID, _, _ string) error {
	f.failed = append(f.failed, orderID)
	return f.failureErr
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(format string, args ...any) {
	f.alerts = append(f.alerts, fmt.Sprintf(format, args...))
}

func paymentFixture() (*PaymentService, *fakePendingStore, *fakeSettlementStore, *fakeAlerter) {
	catalog := &fakeTierCatalog{tiers: map[string]*models.PricingTier{
		"free": {ID: "free", Name: "Free", PriceKRW: 0, Credits: 2, IsFreeTier: true},
		"pro":  {ID: "pro", Name: "Pro", PriceKRW: 15900, Credits: 120},
	}}
	pending := &fakePendingStore{}
	settlements := &fakeSettlementStore{}
	ops := &fakeAlerter{}
	cfg := config.Config{TossClientKey: "test_ck", PaymentSuccessURL: "/payment/success", PaymentFailURL: "/payment/fail"}
	return NewPaymentService(cfg, catalog, pending, settlements, ops), pending, settlements, ops
}

func TestCheckoutWritesPendingOrder(t *testing.T) {
	t.Parallel()

	svc, pending, _, _ := paymentFixture()
	account := &models.Account{ID: "a1", Email: "buyer@example.com"}

	order, err := svc.Checkout(context.Background(), account, "pro")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.OrderID, "ORDER_"))
	assert.Equal(t, 15900, order.Amount)
	assert.Equal(t, 120, order.Credits)
	assert.Equal(t, "buyer@example.com", order.CustomerEmail)
	assert.Equal(t, "test_ck", order.ClientKey)

	require.Len(t, pending.replaced, 1)
	stored := pending.replaced[0]
	assert.Equal(t, order.OrderID, stored.OrderID)
	assert.Equal(t, "a1", stored.AccountID)
	assert.Equal(t, "pro", stored.TierID)
	assert.Equal(t, 15900, stored.Amount)
	assert.Equal(t, 120, stored.Credits)
}

func TestCheckoutRejectsFreeTier(t *testing.T) {
	t.Parallel()

	svc, pending, _, _ := paymentFixture()
	_, err := svc.Checkout(context.Background(), &models.Account{ID: "a1"}, "free")
	require.ErrorIs(t, err, ErrFreeTierNotPurchasable)
	assert.Empty(t, pending.replaced)
}

func TestCheckoutUnknownTier(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := paymentFixture()
	_, err := svc.Checkout(context.Background(), &models.Account{ID: "a1"}, "platinum")
	require.ErrorIs(t, err, ErrTierNotFound)
}

func TestConfirmSuccessGrantsOnce(t *testing.T) {
	t.Parallel()

	svc, _, settlements, ops := paymentFixture()
	settlements.result = &repository.SettleResult{AccountID: "a1", TierID: "pro", CreditsGranted: 120}

	result, err := svc.ConfirmSuccess(context.Background(), "ORDER_X", "pay_key", 15900)
	require.NoError(t, err)
	assert.Equal(t, 120, result.CreditsGranted)
	assert.False(t, result.AlreadySettled)
	assert.Empty(t, ops.alerts)
}

func TestConfirmSuccessReplayIsNoop(t *testing.T) {
	t.Parallel()

	svc, _, settlements, _ := paymentFixture()
	settlements.result = &repository.SettleResult{AccountID: "a1", TierID: "pro", CreditsGranted: 0, AlreadySettled: true}

	result, err := svc.ConfirmSuccess(context.Background(), "ORDER_X", "pay_key", 15900)
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.Zero(t, result.CreditsGranted)
}

func TestConfirmSuccessWithoutPendingIsAmbiguous(t *testing.T) {
	t.Parallel()

	svc, _, settlements, ops := paymentFixture()
	settlements.settleErr = repository.ErrPendingOrderNotFound

	_, err := svc.ConfirmSuccess(context.Background(), "ORDER_GHOST", "pay_key", 15900)
	require.ErrorIs(t, err, ErrPaymentAmbiguous)
	require.Len(t, ops.alerts, 1, "unmatched success redirects page the on-call")
	assert.Contains(t, ops.alerts[0], "ORDER_GHOST")
}

func TestConfirmSuccessAmountMismatchIsAmbiguous(t *testing.T) {
	t.Parallel()

	svc, _, settlements, ops := paymentFixture()
	settlements.settleErr = fmt.Errorf("%w: pending=15900 gateway=100", repository.ErrAmountMismatch)

	_, err := svc.ConfirmSuccess(context.Background(), "ORDER_X", "pay_key", 100)
	require.ErrorIs(t, err, ErrPaymentAmbiguous)
	assert.Len(t, ops.alerts, 1)
}

func TestConfirmSuccessRejectsIncompleteParams(t *testing.T) {
	t.Parallel()

	svc, _, settlements, _ := paymentFixture()

	_, err := svc.ConfirmSuccess(context.Background(), "", "pay_key", 15900)
	require.ErrorIs(t, err, ErrPaymentAmbiguous)
	_, err = svc.ConfirmSuccess(context.Background(), "ORDER_X", "", 15900)
	require.ErrorIs(t, err, ErrPaymentAmbiguous)
	_, err = svc.ConfirmSuccess(context.Background(), "ORDER_X", "pay_key", 0)
	require.ErrorIs(t, err, ErrPaymentAmbiguous)
	assert.Empty(t, settlements.settled, "incomplete redirects never reach the settlement store")
}

func TestConfirmFailureUnknownOrderIsNoop(t *testing.T) {
	t.Parallel()

	svc, _, settlements, _ := paymentFixture()
	settlements.failureErr = repository.ErrPendingOrderNotFound

	require.NoError(t, svc.ConfirmFailure(context.Background(), "ORDER_GHOST", "PAY_CANCEL", "user cancelled"))
	require.NoError(t, svc.ConfirmFailure(context.Background(), "", "PAY_CANCEL", ""))
	assert.Equal(t, []string{"ORDER_GHOST"}, settlements.failed)
}

func TestNewOrderIDShape(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newOrderID()
		assert.True(t, strings.HasPrefix(id, "ORDER_"))
		assert.Len(t, id, len("ORDER_")+20)
		assert.False(t, seen[id], "order ids must not repeat")
		seen[id] = true
	}
}
