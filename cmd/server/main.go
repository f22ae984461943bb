package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/cache"
	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/logger"
	"expense-ledger/internal/storage"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	l, err := logger.New(cfg.LogEnv)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer l.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, l *zap.Logger) error {
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ensureAdmin(ctx, db, cfg, l); err != nil {
		return err
	}

	statsCache, err := cache.New(cfg.Cache)
	if err != nil {
		l.Warn("stats cache disabled", zap.Strings("hosts", cfg.Cache.MemcacheHosts), zap.Error(err))
		statsCache = cache.Nop{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens := auth.NewTokenService(cfg.Auth)
	h := handlers.NewHandlers(handlers.Deps{
		DB:         db,
		Tokens:     tokens,
		Guard:      auth.NewGuard(tokens, db),
		Cache:      statsCache,
		StatsTTL:   cfg.Cache.StatsTTL,
		Logger:     l,
		Metrics:    handlers.NewMetrics(reg),
		BcryptCost: cfg.Auth.BcryptCost,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, reg, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers, gatherer prometheus.Gatherer, origins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /expenses", h.RequireAuth(h.CreateExpense))
	mux.Handle("GET /expenses", h.RequireAuth(h.ListExpenses))
	mux.Handle("GET /expenses/stats", h.RequireAuth(h.Statistics))
	mux.Handle("GET /expenses/export", h.RequireAuth(h.Export))
	mux.Handle("GET /expenses/{id}", h.RequireAuth(h.GetExpense))
	mux.Handle("PUT /expenses/{id}", h.RequireAuth(h.UpdateExpense))
	mux.Handle("DELETE /expenses/{id}", h.RequireAuth(h.DeleteExpense))

	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "token"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	})

	return h.Instrument(withCORS(mux))
}

// ensureAdmin creates the bootstrap account from ADMIN_EMAIL/ADMIN_PASSWORD if it is
// configured and does not exist yet. Without one it warns when the database has no users.
func ensureAdmin(ctx context.Context, db *storage.DB, cfg *config.Config, l *zap.Logger) error {
	if cfg.AdminEmail == "" {
		n, err := db.UserCount(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			l.Warn("no users yet; register through POST /register or set ADMIN_EMAIL and ADMIN_PASSWORD")
		}
		return nil
	}
	if _, err := db.GetUserByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPasswordWithCost(cfg.AdminPassword, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	user, err := db.CreateUser(ctx, cfg.AdminEmail, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	l.Info("admin user created", zap.Int64("user_id", user.ID))
	return nil
}
