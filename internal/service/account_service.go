package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionInvalid     = errors.New("session invalid or expired")
)

// AccountService is the thin identity layer: signup with the welcome bonus,
// password sign-in, bearer-token sessions.
type AccountService struct {
	cfg      config.Config
	accounts *repository.AccountRepository
	sessions *repository.SessionRepository
	now      func() time.Time
}

func NewAccountService(cfg config.Config, accounts *repository.AccountRepository, sessions *repository.SessionRepository) *AccountService {
	return &AccountService{cfg: cfg, accounts: accounts, sessions: sessions, now: time.Now}
}

func (s *AccountService) SignUp(ctx context.Context, email, password string) (*models.Account, *models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Credits:      s.cfg.WelcomeCredits,
		DailyAdCount: 0,
		LastAdDate:   s.cfg.Today(s.now()),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

func (s *AccountService) SignIn(ctx context.Context, email, password string) (*models.Account, *models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

func (s *AccountService) SignOut(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Authenticate resolves a bearer token to its account.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	session, err := s.sessions.Find(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionInvalid
	}
	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrSessionInvalid
	}
	return account, nil
}

func (s *AccountService) createSession(ctx context.Context, accountID string) (*models.Session, error) {
	session := &models.Session{
		Token:     uuid.NewString(),
		AccountID: accountID,
		ExpiresAt: s.now().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}
