package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdSessions(start time.Time) (*AdSessionManager, *time.Time) {
	now := start
	m := NewAdSessionManager(15 * time.Second)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestAdClaimRequiresMinimumWatch(t *testing.T) {
	t.Parallel()

	m, now := newTestAdSessions(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	token := m.Start("a1")

	*now = now.Add(10 * time.Second)
	require.ErrorIs(t, m.Claim(token, "a1"), ErrAdWatchTooShort)

	// A short claim does not burn the view.
	*now = now.Add(6 * time.Second)
	require.NoError(t, m.Claim(token, "a1"))
}

func TestAdClaimConsumesTokenOnce(t *testing.T) {
	t.Parallel()

	m, now := newTestAdSessions(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	token := m.Start("a1")
	*now = now.Add(20 * time.Second)

	require.NoError(t, m.Claim(token, "a1"))
	assert.ErrorIs(t, m.Claim(token, "a1"), ErrAdViewNotFound)
}

func TestAdClaimRejectsWrongAccount(t *testing.T) {
	t.Parallel()

	m, now := newTestAdSessions(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	token := m.Start("a1")
	*now = now.Add(20 * time.Second)

	require.ErrorIs(t, m.Claim(token, "someone-else"), ErrAdViewNotFound)
	require.NoError(t, m.Claim(token, "a1"), "the rightful owner can still claim")
}

func TestAdCancelForfeitsView(t *testing.T) {
	t.Parallel()

	m, now := newTestAdSessions(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	token := m.Start("a1")
	*now = now.Add(20 * time.Second)

	m.Cancel(token, "a1")
	assert.ErrorIs(t, m.Claim(token, "a1"), ErrAdViewNotFound)
}

func TestAdClaimUnknownToken(t *testing.T) {
	t.Parallel()

	m, _ := newTestAdSessions(time.Now())
	assert.ErrorIs(t, m.Claim("no-such-token", "a1"), ErrAdViewNotFound)
}
