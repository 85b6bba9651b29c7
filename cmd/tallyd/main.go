// tallyd runs the reconciliation service: a scheduler that drives sync
// passes on an interval, plus the operational HTTP surface for on-demand
// triggers, dashboard reads and metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/fintally/tally/internal/auth"
	"github.com/fintally/tally/internal/config"
	"github.com/fintally/tally/internal/dashboard"
	"github.com/fintally/tally/internal/engine"
	"github.com/fintally/tally/internal/metrics"
	"github.com/fintally/tally/internal/middleware"
	"github.com/fintally/tally/internal/source"
	"github.com/fintally/tally/internal/source/partner"
	"github.com/fintally/tally/internal/source/table"
	"github.com/fintally/tally/internal/storage"
	"github.com/fintally/tally/internal/storage/sqlite"
	"github.com/fintally/tally/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	tableClient, err := table.New(cfg.TableBaseURL, cfg.TableToken, cfg.HTTPTimeout, source.DefaultBackoff)
	if err != nil {
		slog.Error("Failed to build table client", "error", err)
		os.Exit(1)
	}
	partnerClient, err := partner.New(cfg.PartnerBaseURL, cfg.PartnerToken, cfg.PartnerFriendID, cfg.HTTPTimeout, source.DefaultBackoff)
	if err != nil {
		slog.Error("Failed to build partner client", "error", err)
		os.Exit(1)
	}

	publisher := dashboard.New(dashboard.Config{
		Budget:      cfg.MonthlyBudget,
		ArtifactDir: cfg.ArtifactDir,
		SinkURL:     cfg.SinkURL,
		Logger:      slog.Default(),
	})

	eng, err := engine.New(engine.Config{
		Store:         store,
		Table:         tableClient,
		Partner:       partnerClient,
		Publisher:     publisher,
		Metrics:       metrics.New(prometheus.DefaultRegisterer),
		Logger:        slog.Default(),
		Workers:       cfg.Workers,
		LeaseTTL:      cfg.LeaseTTL,
		DefaultVendor: cfg.DefaultVendor,
	})
	if err != nil {
		slog.Error("Failed to build engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trigger := make(chan struct{}, 1)
	go schedule(ctx, eng, cfg.SyncInterval, trigger)

	opsAuth := auth.NewOpsAuthenticator(cfg.OpsTokenHash)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTDuration)

	mux := http.NewServeMux()
	mux.Handle("POST /sync/run", middleware.RequireOps(opsAuth, syncHandler(trigger)))
	mux.Handle("POST /auth/token", middleware.RequireOps(opsAuth, tokenHandler(jwtManager)))
	mux.Handle("GET /dashboard", middleware.RequireDashboard(jwtManager, opsAuth, dashboardHandler(store)))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.Logging(slog.Default(), mux)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	go func() {
		slog.Info("Server starting", "address", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

// schedule runs a pass on every tick and on every on-demand trigger until
// the context ends.
func schedule(ctx context.Context, eng *engine.Engine, interval time.Duration, trigger <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass(ctx, eng)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPass(ctx, eng)
		case <-trigger:
			runPass(ctx, eng)
		}
	}
}

func runPass(ctx context.Context, eng *engine.Engine) {
	res, err := eng.RunPass(ctx)
	switch {
	case errors.Is(err, engine.ErrLockContention):
		slog.Info("Pass skipped, another pass in progress")
	case err != nil:
		slog.Error("Pass failed", "error", err)
	default:
		slog.Debug("Pass finished",
			"processed", res.Processed,
			"failed", res.Failed,
			"skipped", res.Skipped,
			"table_unavailable", res.TableUnavailable,
			"partner_unavailable", res.PartnerUnavailable)
	}
}

// syncHandler queues an on-demand pass. A full trigger channel means a run
// is already queued, which is as good as queuing another.
func syncHandler(trigger chan<- struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case trigger <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	})
}

// tokenHandler issues a short-lived dashboard token to an ops caller.
func tokenHandler(jwtManager *auth.JWTManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := jwtManager.Generate("dashboard")
		if err != nil {
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// dashboardHandler serves the latest persisted snapshot.
func dashboardHandler(store storage.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.LatestSnapshot(r.Context())
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "no snapshot yet", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("Failed to load snapshot", "error", err)
			http.Error(w, "failed to load snapshot", http.StatusInternalServerError)
			return
		}

		balances := make(map[string]string, len(snap.AccountBalances))
		for name, bal := range snap.AccountBalances {
			balances[name] = bal.String()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"month":                 snap.Month.Format("2006-01"),
			"total_spend":           snap.TotalSpend.String(),
			"monthly_income":        snap.MonthlyIncome.String(),
			"monthly_housing":       snap.MonthlyHousing.String(),
			"monthly_savings":       snap.MonthlySavings.String(),
			"budget":                snap.Budget.String(),
			"budget_remaining":      snap.BudgetRemaining.String(),
			"percent_through_month": snap.PercentThroughMonth,
			"projected_savings":     snap.ProjectedSavings.String(),
			"partner_balance":       snap.PartnerBalance.String(),
			"account_balances":      balances,
			"artifact_ref":          snap.ArtifactRef,
			"generated_at":          snap.GeneratedAt,
		})
	})
}
