package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ikpa/internal/apperr"
	"ikpa/internal/auth"
	"ikpa/internal/commitment"
	"ikpa/internal/core"
	"ikpa/internal/debrief"
	"ikpa/internal/finance"
	"ikpa/internal/goal"
	"ikpa/internal/gps"
	ilog "ikpa/internal/log"
	"ikpa/internal/merchant"
	"ikpa/internal/middleware/ratelimit"
	"ikpa/internal/middleware/security"
	"ikpa/internal/middleware/trace"
	"ikpa/internal/shark"
	"ikpa/internal/simulation"
	"ikpa/internal/storycard"
	"ikpa/internal/worker"
)

// Per-minute request limits.
const (
	DefaultRateLimit = 60
	AuthRateLimit    = 10
	HeavyRateLimit   = 5
)

// Store is the record persistence the handlers use directly.
type Store interface {
	GetUser(ctx context.Context, id int64) (core.User, error)

	CreateIncome(ctx context.Context, in *core.Income) error
	ListIncomes(ctx context.Context, userID int64) ([]core.Income, error)
	DeleteIncome(ctx context.Context, userID, id int64) error

	CreateExpense(ctx context.Context, e *core.Expense) error
	ListExpenses(ctx context.Context, userID int64, from, to time.Time) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error

	CreateDebt(ctx context.Context, d *core.Debt) error
	ListDebts(ctx context.Context, userID int64) ([]core.Debt, error)
	DeleteDebt(ctx context.Context, userID, id int64) error

	CreateSavingsAccount(ctx context.Context, a *core.SavingsAccount) error
	ListSavingsAccounts(ctx context.Context, userID int64) ([]core.SavingsAccount, error)
	DeleteSavingsAccount(ctx context.Context, userID, id int64) error

	CreateBudget(ctx context.Context, b *core.Budget) error
	ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	DeleteBudget(ctx context.Context, userID, id int64) error

	CreateFamilySupport(ctx context.Context, f *core.FamilySupport) error
	ListFamilySupport(ctx context.Context, userID int64) ([]core.FamilySupport, error)
	DeleteFamilySupport(ctx context.Context, userID, id int64) error

	CreateGoal(ctx context.Context, g *core.Goal) error
	GetGoal(ctx context.Context, userID, goalID int64) (core.Goal, error)
	ListGoals(ctx context.Context, userID int64) ([]core.Goal, error)
	TopActiveGoal(ctx context.Context, userID int64) (core.Goal, error)
}

// Deps are the services behind the API.
type Deps struct {
	Logger      *ilog.Logger
	Store       Store
	Tokens      *auth.Tokens
	Auth        *auth.Service
	Snapshots   *finance.SnapshotService
	Goals       *goal.Service
	GPS         *gps.Service
	Shark       *shark.Service
	Commitments *commitment.Service
	Debriefs    *debrief.Service
	StoryCards  *storycard.Service
	Simulation  *simulation.Engine
	Merchants   *merchant.Matcher
	Jobs        *worker.Dispatcher

	// ExportEnabled reports whether a ledger writer is configured.
	ExportEnabled bool
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	Deps

	detector     *security.Detector
	trace        *trace.Middleware
	limiters     []*ratelimit.Limiter
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = ilog.New(ilog.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Deps:     deps,
		detector: security.NewDetector(),
		now:      time.Now,
	}
	s.trace = trace.NewMiddleware(deps.Logger.WithComponent(ilog.ComponentHTTP), s.detector.ExtractClientIP)

	defaultLimiter := s.newLimiter(DefaultRateLimit)
	authLimiter := s.newLimiter(AuthRateLimit)
	heavyLimiter := s.newLimiter(HeavyRateLimit)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: &apperr.Error{
			Code:    "METHOD_NOT_ALLOWED",
			Status:  http.StatusMethodNotAllowed,
			Message: "method not allowed",
		}})
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	public := v1.PathPrefix("/auth").Subrouter()
	public.Use(s.limit(authLimiter))
	public.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	heavy := v1.NewRoute().Subrouter()
	heavy.Use(s.limit(heavyLimiter), s.authenticate)
	heavy.HandleFunc("/simulations", s.handleSimulate).Methods(http.MethodPost)
	heavy.HandleFunc("/simulations/compare", s.handleCompare).Methods(http.MethodPost)
	heavy.HandleFunc("/commitments/{id}/debrief", s.handleRequestDebrief).Methods(http.MethodPost)

	api := v1.NewRoute().Subrouter()
	api.Use(s.limit(defaultLimiter), s.authenticate)

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/incomes", s.handleCreateIncome).Methods(http.MethodPost)
	api.HandleFunc("/incomes", s.handleListIncomes).Methods(http.MethodGet)
	api.HandleFunc("/incomes/{id}", s.handleDeleteIncome).Methods(http.MethodDelete)

	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	api.HandleFunc("/debts", s.handleCreateDebt).Methods(http.MethodPost)
	api.HandleFunc("/debts", s.handleListDebts).Methods(http.MethodGet)
	api.HandleFunc("/debts/{id}", s.handleDeleteDebt).Methods(http.MethodDelete)

	api.HandleFunc("/savings", s.handleCreateSavings).Methods(http.MethodPost)
	api.HandleFunc("/savings", s.handleListSavings).Methods(http.MethodGet)
	api.HandleFunc("/savings/{id}", s.handleDeleteSavings).Methods(http.MethodDelete)

	api.HandleFunc("/budgets", s.handleCreateBudget).Methods(http.MethodPost)
	api.HandleFunc("/budgets", s.handleListBudgets).Methods(http.MethodGet)
	api.HandleFunc("/budgets/{id}", s.handleDeleteBudget).Methods(http.MethodDelete)

	api.HandleFunc("/family-support", s.handleCreateFamilySupport).Methods(http.MethodPost)
	api.HandleFunc("/family-support", s.handleListFamilySupport).Methods(http.MethodGet)
	api.HandleFunc("/family-support/{id}", s.handleDeleteFamilySupport).Methods(http.MethodDelete)

	api.HandleFunc("/finance/snapshot", s.handleSnapshot).Methods(http.MethodGet)

	api.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/goals/{id}/contributions", s.handleContribute).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}/progress", s.handleGoalProgress).Methods(http.MethodGet)

	api.HandleFunc("/gps/recalculate", s.handleRecalculate).Methods(http.MethodPost)
	api.HandleFunc("/gps/sessions/{id}/select", s.handleSelectPath).Methods(http.MethodPost)

	api.HandleFunc("/shark/audit", s.handleSharkAudit).Methods(http.MethodGet)
	api.HandleFunc("/shark/subscriptions/{key}/decision", s.handleSharkDecision).Methods(http.MethodPost)

	api.HandleFunc("/commitments", s.handleCreateCommitment).Methods(http.MethodPost)
	api.HandleFunc("/commitments", s.handleListCommitments).Methods(http.MethodGet)
	api.HandleFunc("/commitments/{id}", s.handleGetCommitment).Methods(http.MethodGet)
	api.HandleFunc("/commitments/{id}/verify", s.handleVerifyCommitment).Methods(http.MethodPost)
	api.HandleFunc("/commitments/{id}/cancel", s.handleCancelCommitment).Methods(http.MethodPost)
	api.HandleFunc("/commitments/{id}/risk", s.handleCommitmentRisk).Methods(http.MethodGet)
	api.HandleFunc("/commitments/{id}/debrief", s.handleGetDebrief).Methods(http.MethodGet)

	api.HandleFunc("/ubuntu/assessment", s.handleUbuntuAssessment).Methods(http.MethodGet)
	api.HandleFunc("/ubuntu/emergency", s.handleUbuntuEmergency).Methods(http.MethodPost)

	api.HandleFunc("/story-cards", s.handleCreateStoryCard).Methods(http.MethodPost)
	api.HandleFunc("/story-cards", s.handleListStoryCards).Methods(http.MethodGet)

	api.HandleFunc("/exports/sheets", s.handleExportSheets).Methods(http.MethodPost)
	api.HandleFunc("/merchants/match", s.handleMerchantMatch).Methods(http.MethodGet)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = s.trace.Middleware(headers.Middleware(s.detector.Middleware(r)))
	return s
}

func (s *Server) newLimiter(perMinute int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(ratelimit.PerMinute(perMinute))
	s.limiters = append(s.limiters, l)
	return l
}

// limit applies a fixed-window limit keyed by user when a token is present
// and by client IP otherwise.
func (s *Server) limit(l *ratelimit.Limiter) mux.MiddlewareFunc {
	return l.Middleware(s.rateKey, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.RateLimited())
	})
}

func (s *Server) rateKey(r *http.Request) string {
	if id, ok := s.Tokens.PeekUserID(r); ok {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

// authenticate requires a valid bearer token and records the user for the
// request log.
func (s *Server) authenticate(next http.Handler) http.Handler {
	record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.UserIDFrom(r.Context()); ok {
			trace.SetUserID(r.Context(), id)
		}
		next.ServeHTTP(w, r)
	})
	return s.Tokens.Middleware(writeError)(record)
}

// Shutdown gracefully shuts down the server and the limiter cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		for _, l := range s.limiters {
			l.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ready(ctx); err != nil {
			s.Logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// invalidate drops the user's cached derived data after a write to their
// financial records.
func (s *Server) invalidate(userID int64, expenses bool) {
	s.Snapshots.Invalidate(userID)
	if expenses {
		s.Shark.Invalidate(userID)
	}
}
