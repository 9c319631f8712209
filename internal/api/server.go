package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/models"
	"github.com/visionary-ai/storyboard-server/internal/repository"
	"github.com/visionary-ai/storyboard-server/internal/service"
)

type contextKey string

const accountContextKey contextKey = "account"

// Server hosts the public API and the basic-auth admin surface on one
// listener. All handlers are thin; every decision that touches credits lives
// in the service layer.
type Server struct {
	cfg        config.Config
	log        *slog.Logger
	accounts   *service.AccountService
	ledger     *service.LedgerService
	ads        *service.AdSessionManager
	payments   *service.PaymentService
	generation *service.GenerationService
	tiers      *service.TierService
	store      *repository.AccountRepository
	router     *chi.Mux
}

func NewServer(
	cfg config.Config,
	log *slog.Logger,
	accounts *service.AccountService,
	ledger *service.LedgerService,
	ads *service.AdSessionManager,
	payments *service.PaymentService,
	generation *service.GenerationService,
	tiers *service.TierService,
	store *repository.AccountRepository,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		log:        log,
		accounts:   accounts,
		ledger:     ledger,
		ads:        ads,
		payments:   payments,
		generation: generation,
		tiers:      tiers,
		store:      store,
		router:     r,
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signin", s.handleSignIn)
		r.Get("/tiers", s.handleListTiers)
		r.Get("/styles", s.handleListStyles)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Post("/auth/signout", s.handleSignOut)
			r.Get("/me", s.handleMe)
			r.Post("/generate", s.handleGenerate)
			r.Post("/panels/regenerate", s.handleRegenerate)
			r.Get("/ads/eligibility", s.handleAdEligibility)
			r.Post("/ads/start", s.handleAdStart)
			r.Post("/ads/complete", s.handleAdComplete)
			r.Post("/ads/cancel", s.handleAdCancel)
			r.Post("/payments/checkout", s.handleCheckout)
			// The gateway redirect lands on the frontend, which relays the
			// params here with the caller's session. Both verbs accepted.
			r.Get("/payments/success", s.handlePaymentSuccess)
			r.Post("/payments/success", s.handlePaymentSuccess)
			r.Get("/payments/fail", s.handlePaymentFail)
			r.Post("/payments/fail", s.handlePaymentFail)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.basicAuthMiddleware())
		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", s.handleAdminListTiers)
			r.Post("/", s.handleAdminSaveTier)
			r.Put("/{id}", s.handleAdminSaveTier)
			r.Delete("/{id}", s.handleAdminDeleteTier)
		})
		r.Post("/accounts/{id}/grant", s.handleAdminGrant)
		r.Post("/accounts/{id}/unmetered", s.handleAdminUnmetered)
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// sessionMiddleware resolves the bearer token and hangs the account on the
// request context. Everything behind it can assume an authenticated caller.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		account, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrSessionInvalid) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			s.internalError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.AdminUsername || pass != s.cfg.AdminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="storyboard-admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accountFrom(r *http.Request) *models.Account {
	account, _ := r.Context().Value(accountContextKey).(*models.Account)
	return account
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID            string                `json:"id"`
	Email         string                `json:"email"`
	Credits       int                   `json:"credits"`
	IsUnmetered   bool                  `json:"isUnmetered"`
	AdEligibility service.AdEligibility `json:"adEligibility"`
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   accountResponse `json:"account"`
}

func (s *Server) accountResponse(account *models.Account) accountResponse {
	return accountResponse{
		ID:            account.ID,
		Email:         account.Email,
		Credits:       account.Credits,
		IsUnmetered:   account.IsUnmetered,
		AdEligibility: s.ledger.AdEligibility(account),
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	account, session, err := s.accounts.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, service.ErrInvalidCredentials):
			http.Error(w, "email and password required", http.StatusBadRequest)
		default:
			s.internalError(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   s.accountResponse(account),
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	account, session, err := s.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   s.accountResponse(account),
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.SignOut(r.Context(), bearerToken(r)); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.accountResponse(accountFrom(r)))
}

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.tiers.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, models.ArtStyles)
}

type generateRequest struct {
	Prompt     string `json:"prompt"`
	StyleID    string `json:"styleId"`
	PanelCount int    `json:"panelCount"`
}

type generateResponse struct {
	Project *models.Project `json:"project"`
	Credits int             `json:"credits"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	project, err := s.generation.Generate(r.Context(), account, strings.TrimSpace(req.Prompt), req.StyleID, req.PanelCount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrInvalidPanelCount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.badRequest(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, generateResponse{Project: project, Credits: account.Credits})
}

type regenerateRequest struct {
	Panel   models.Panel `json:"panel"`
	StyleID string       `json:"styleId"`
}

type regenerateResponse struct {
	Panel   *models.Panel `json:"panel"`
	Credits int           `json:"credits"`
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	panel, err := s.generation.Regenerate(r.Context(), account, req.Panel, req.StyleID)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, regenerateResponse{Panel: panel, Credits: account.Credits})
}

func (s *Server) handleAdEligibility(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.AdEligibility(accountFrom(r)))
}

type adStartResponse struct {
	ViewToken       string `json:"viewToken"`
	MinWatchSeconds int    `json:"minWatchSeconds"`
}

func (s *Server) handleAdStart(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if !s.ledger.AdEligibility(account).CanWatch {
		http.Error(w, service.ErrDailyAdLimitReached.Error(), http.StatusTooManyRequests)
		return
	}
	s.writeJSON(w, http.StatusOK, adStartResponse{
		ViewToken:       s.ads.Start(account.ID),
		MinWatchSeconds: int(s.cfg.MinAdWatch.Seconds()),
	})
}

type adViewRequest struct {
	ViewToken string `json:"viewToken"`
}

type adCompleteResponse struct {
	Credits       int                   `json:"credits"`
	Rewarded      int                   `json:"rewarded"`
	AdEligibility service.AdEligibility `json:"adEligibility"`
}

func (s *Server) handleAdComplete(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	var req adViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := s.ads.Claim(req.ViewToken, account.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrAdViewNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrAdWatchTooShort):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.internalError(w, err)
		}
		return
	}

	updated, err := s.ledger.CompleteAdView(r.Context(), account.ID)
	if err != nil {
		if errors.Is(err, service.ErrDailyAdLimitReached) {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, adCompleteResponse{
		Credits:       updated.Credits,
		Rewarded:      s.cfg.AdRewardCredits,
		AdEligibility: s.ledger.AdEligibility(updated),
	})
}

func (s *Server) handleAdCancel(w http.ResponseWriter, r *http.Request) {
	var req adViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.ads.Cancel(req.ViewToken, accountFrom(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	TierID string `json:"tierId"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	order, err := s.payments.Checkout(r.Context(), account, req.TierID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTierNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrFreeTierNotPurchasable):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.internalError(w, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

type paymentSuccessRequest struct {
	OrderID    string `json:"orderId"`
	PaymentKey string `json:"paymentKey"`
	Amount     int    `json:"amount"`
}

type paymentSuccessResponse struct {
	CreditsGranted int  `json:"creditsGranted"`
	AlreadySettled bool `json:"alreadySettled"`
	Credits        int  `json:"credits"`
}

// handlePaymentSuccess settles the gateway's success redirect. The frontend
// relays orderId, paymentKey and amount exactly as received; replays are
// acknowledged without granting twice.
func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	req := paymentSuccessRequest{
		OrderID:    r.URL.Query().Get("orderId"),
		PaymentKey: r.URL.Query().Get("paymentKey"),
	}
	req.Amount, _ = strconv.Atoi(r.URL.Query().Get("amount"))
	if req.OrderID == "" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	result, err := s.payments.ConfirmSuccess(r.Context(), req.OrderID, req.PaymentKey, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrPaymentAmbiguous) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.internalError(w, err)
		return
	}

	credits := account.Credits
	if fresh, err := s.store.FindByID(r.Context(), account.ID); err == nil && fresh != nil {
		credits = fresh.Credits
	}
	s.writeJSON(w, http.StatusOK, paymentSuccessResponse{
		CreditsGranted: result.CreditsGranted,
		AlreadySettled: result.AlreadySettled,
		Credits:        credits,
	})
}

type paymentFailRequest struct {
	OrderID string `json:"orderId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handlePaymentFail(w http.ResponseWriter, r *http.Request) {
	req := paymentFailRequest{
		OrderID: r.URL.Query().Get("orderId"),
		Code:    r.URL.Query().Get("code"),
		Message: r.URL.Query().Get("message"),
	}
	if req.OrderID == "" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	if err := s.payments.ConfirmFailure(r.Context(), req.OrderID, req.Code, req.Message); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "failed", "orderId": req.OrderID})
}

func (s *Server) handleAdminListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.tiers.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handleAdminSaveTier(w http.ResponseWriter, r *http.Request) {
	var tier models.PricingTier
	if err := json.NewDecoder(r.Body).Decode(&tier); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		tier.ID = id
	}
	if err := s.tiers.Save(r.Context(), &tier); err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tier)
}

func (s *Server) handleAdminDeleteTier(w http.ResponseWriter, r *http.Request) {
	if err := s.tiers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleAdminGrant(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	account, err := s.store.FindByID(r.Context(), accountID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if account == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	if err := s.ledger.Grant(r.Context(), accountID, req.Amount); err != nil {
		s.internalError(w, err)
		return
	}
	account.Credits += req.Amount
	s.writeJSON(w, http.StatusOK, s.accountResponse(account))
}

type unmeteredRequest struct {
	Unmetered bool `json:"unmetered"`
}

func (s *Server) handleAdminUnmetered(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	var req unmeteredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	account, err := s.store.FindByID(r.Context(), accountID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if account == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	if err := s.store.SetUnmetered(r.Context(), accountID, req.Unmetered); err != nil {
		s.internalError(w, err)
		return
	}
	account.IsUnmetered = req.Unmetered
	s.writeJSON(w, http.StatusOK, s.accountResponse(account))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
