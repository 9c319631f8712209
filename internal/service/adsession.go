package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAdViewNotFound  = errors.New("ad view not found")
	ErrAdWatchTooShort = errors.New("minimum ad watch time not reached")
)

type adView struct {
	accountID string
	startedAt time.Time
}

// AdSessionManager gates ad rewards on elapsed viewing time. Eligibility is
// time-based, not tied to a completion signal from the ad SDK: if the ad
// errors mid-playback the viewer still qualifies once the minimum watch has
// passed. This is a trust tradeoff, not fraud prevention.
type AdSessionManager struct {
	mu       sync.Mutex
	views    map[string]adView
	minWatch time.Duration
	now      func() time.Time
}

func NewAdSessionManager(minWatch time.Duration) *AdSessionManager {
	return &AdSessionManager{
		views:    make(map[string]adView),
		minWatch: minWatch,
		now:      time.Now,
	}
}

// Start registers a new ad view and returns its claim token.
func (m *AdSessionManager) Start(accountID string) string {
	token := uuid.NewString()
	m.mu.Lock()
	m.views[token] = adView{accountID: accountID, startedAt: m.now()}
	m.mu.Unlock()
	return token
}

// Claim consumes the view if it belongs to the account and the minimum watch
// time has elapsed. A claimed or cancelled token cannot be claimed again.
func (m *AdSessionManager) Claim(token, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view, ok := m.views[token]
	if !ok || view.accountID != accountID {
		return ErrAdViewNotFound
	}
	if m.now().Sub(view.startedAt) < m.minWatch {
		return ErrAdWatchTooShort
	}
	delete(m.views, token)
	return nil
}

// Cancel forfeits the view. No partial credit.
func (m *AdSessionManager) Cancel(token, accountID string) {
	m.mu.Lock()
	if view, ok := m.views[token]; ok && view.accountID == accountID {
		delete(m.views, token)
	}
	m.mu.Unlock()
}
