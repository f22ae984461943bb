package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/cache"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Store is the persistence the handlers need.
type Store interface {
	auth.UserLookup
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateExpense(ctx context.Context, userID int64, e models.NewExpense) (*models.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error)
	ListExpenses(ctx context.Context, userID int64, f models.ExpenseFilter) ([]models.Expense, error)
	AllExpenses(ctx context.Context, userID int64) ([]models.Expense, error)
	UpdateExpense(ctx context.Context, userID, id int64, p models.ExpensePatch) (*models.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
	ExpenseStats(ctx context.Context, userID int64) (models.ExpenseStats, error)
}

// Tokens issues access tokens with a fixed lifetime.
type Tokens interface {
	auth.TokenIssuer
	TTL() time.Duration
}

// Deps are the collaborators of Handlers. Cache, Logger and Metrics are optional.
// StatsTTL is how long Cache keeps an entry.
type Deps struct {
	DB         Store
	Tokens     Tokens
	Guard      *auth.Guard
	Cache      cache.StatsCache
	StatsTTL   time.Duration
	Logger     *zap.Logger
	Metrics    *Metrics
	BcryptCost int
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db         Store
	tokens     Tokens
	guard      *auth.Guard
	cache      cache.StatsCache
	log        *zap.Logger
	metrics    *Metrics
	validate   *validator.Validate
	bcryptCost int

	statsTTL time.Duration
	now      func() time.Time
	// users whose cache invalidation failed, mapped to when their last entry expires
	bypassMu sync.Mutex
	bypass   map[int64]time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		db:         d.DB,
		tokens:     d.Tokens,
		guard:      d.Guard,
		cache:      d.Cache,
		log:        d.Logger,
		metrics:    d.Metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		bcryptCost: d.BcryptCost,
		statsTTL:   d.StatsTTL,
		now:        time.Now,
		bypass:     make(map[int64]time.Time),
	}
	if h.cache == nil {
		h.cache = cache.Nop{}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.bcryptCost == 0 {
		h.bcryptCost = bcrypt.DefaultCost
	}
	return h
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require a valid bearer token.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.guard.Authenticate(r.Context(), auth.BearerToken(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth is AuthMiddleware for a single handler function.
func (h *Handlers) RequireAuth(fn http.HandlerFunc) http.Handler {
	return h.AuthMiddleware(fn)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	hash, err := auth.HashPasswordWithCost(req.Password, h.bcryptCost)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Email, hash)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.log.Info("user registered", zap.Int64("user_id", user.ID))
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered", "id": user.ID})
}

// Login exchanges credentials for a bearer token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.fail(w, r, err)
			return
		}
		auth.BurnCompare(req.Password)
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int64(h.tokens.TTL().Seconds()),
	})
}

// Health reports whether the database is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and validates it. It writes the error response
// itself and reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeDetail(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" is "+describeTag(fe.Tag()))
	}
	return strings.Join(fields, "; ")
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "not a valid email"
	case "max":
		return "too long"
	default:
		return "invalid"
	}
}

// fail maps an error to its response. Anything unrecognised is logged and hidden.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
	case errors.Is(err, storage.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Expense not found")
	case errors.Is(err, storage.ErrEmailTaken):
		writeDetail(w, http.StatusConflict, "Email already exists")
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeDetail(w, http.StatusBadRequest, "password is too long")
	default:
		h.log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
		)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
