package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/crashops/internal/api"
	"github.com/punchamoorthee/crashops/internal/bonus"
	"github.com/punchamoorthee/crashops/internal/config"
	"github.com/punchamoorthee/crashops/internal/engine"
	"github.com/punchamoorthee/crashops/internal/payment"

	ledgerstore "github.com/punchamoorthee/crashops/internal/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	store, err := ledgerstore.NewPostgresStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Initialize Layers
	eng := engine.New(store, engine.InverseUniform{Edge: cfg.HouseEdge, Max: cfg.MaxCrash}, engine.Config{
		MinBet:     cfg.MinBet,
		MaxBet:     cfg.MaxBet,
		MinCashout: cfg.MinCashout,
		GrowthRate: cfg.GrowthRate,
	}, logger)
	eng.SetFirstBetListener(bonus.NewTrigger(store, cfg.ReferralBonus, logger))

	payments := payment.NewManager(store, buildProviders(cfg), payment.Config{
		DepositMin:      cfg.DepositMin,
		DepositMax:      cfg.DepositMax,
		WithdrawMin:     cfg.WithdrawMin,
		WithdrawMax:     cfg.WithdrawMax,
		SessionTTL:      cfg.SessionTTL,
		MaxPollAttempts: cfg.MaxPollAttempts,
	}, logger)

	reaper := engine.NewReaper(eng, payments, cfg.SweepEvery, cfg.RoundTimeout, logger)
	go reaper.Run(ctx)

	handler := api.NewHandler(store, eng, payments, cfg.WelcomeBonus)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(r.PathPrefix("/api/v1").Subrouter())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// buildProviders wires one adapter per operator: a REST gateway when its URL
// is configured, the simulator otherwise.
func buildProviders(cfg *config.Config) map[string]payment.Provider {
	providers := make(map[string]payment.Provider)
	for _, op := range []string{"airtel", "moov", "mobicash"} {
		if url, ok := cfg.ProviderURLs[op]; ok {
			providers[op] = payment.NewRestProvider(op, url, cfg.ProviderKey, cfg.ProviderTimeout)
		} else {
			providers[op] = payment.NewSimulator()
		}
	}
	return providers
}
