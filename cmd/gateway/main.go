package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	api "github.com/mind-engage/quizgate/internal/api/http"
	"github.com/mind-engage/quizgate/internal/attempt"
	auth "github.com/mind-engage/quizgate/internal/auth/middleware"
	"github.com/mind-engage/quizgate/internal/config"
	"github.com/mind-engage/quizgate/internal/deadline"
	"github.com/mind-engage/quizgate/internal/events"
	"github.com/mind-engage/quizgate/internal/logging"
	"github.com/mind-engage/quizgate/internal/metrics"
	"github.com/mind-engage/quizgate/internal/progress"
	"github.com/mind-engage/quizgate/internal/quiz"
	"github.com/mind-engage/quizgate/internal/rbac"
)

func main() {
	// .env is optional; real env wins
	envErr := godotenv.Load()
	cfg := config.FromEnv()
	log := logging.New("quizgate", cfg.LogLevel)
	if envErr != nil {
		log.WithError(envErr).Debug("no .env loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	be, err := openBackend(openCtx, cfg, log)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("backend init failed")
	}
	defer be.Close()

	if err := seedAdmin(ctx, cfg, be.users); err != nil {
		log.WithError(err).Fatal("admin seed failed")
	}
	if cfg.SeedFile != "" {
		if err := applySeed(ctx, cfg.SeedFile, be, log); err != nil {
			log.WithError(err).Fatal("seed failed")
		}
	}

	// --- Progress events ---
	pub, err := events.NewPublisher(cfg.RabbitMQURI, cfg.RabbitMQExchange, log)
	if err != nil {
		log.WithError(err).Fatal("rabbitmq connect failed")
	}
	defer pub.Close()

	// --- Engine ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gate := progress.NewGate(cfg.MaxAttempts, progress.Unlockers{be.unlocks, pub}, pub, log)
	bank := quiz.NewBank(be.store, log)
	opts := []attempt.Option{
		attempt.WithPolicy(gate),
		attempt.WithGradedHook(gate),
		attempt.WithObserver(m),
	}
	if be.journal != nil {
		opts = append(opts, attempt.WithJournal(be.journal))
	}
	coord := attempt.New(be.store, bank, deadline.New(nil), log, opts...)

	if cfg.AutoFinalizeInterval > 0 {
		go coord.RunSweeper(ctx, cfg.AutoFinalizeInterval, cfg.AutoFinalizeBatch)
	}
	if be.db != nil && cfg.MetricsEnabled {
		go recordDBStats(ctx, be, m)
	}

	// --- Router ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(log), m.Middleware, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, be.users, log))
	}

	// Protected API (JWT → role in context → RBAC)
	srvOpts := []api.ServerOption{api.WithUnlocks(be.unlocks)}
	if be.journal != nil {
		srvOpts = append(srvOpts, api.WithAudit(be.journal))
	}
	srv := api.NewServer(bank, coord, gate, be.guard, log, srvOpts...)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		srv.Mount(pr)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := be.Ping(r.Context()); err != nil {
			log.WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.MetricsEnabled {
		r.Handle("/metrics", m.Handler())
	}

	hs := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":      cfg.HTTPAddr,
		"mode":      cfg.Mode,
		"db":        cfg.DBDriver,
		"events":    pub.Enabled(),
		"max_tries": cfg.MaxAttempts,
	}).Info("listening")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server failed")
	}
	log.Info("stopped")
}

func seedAdmin(ctx context.Context, cfg config.Config, users userStore) error {
	if cfg.AdminUser == "" || cfg.AdminPassHash == "" {
		return nil
	}
	return users.Upsert(ctx, auth.User{Username: cfg.AdminUser, PasswordHash: cfg.AdminPassHash, Role: rbac.RoleAdmin})
}

func recordDBStats(ctx context.Context, be *backend, m *metrics.Metrics) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.RecordDBStats(be.db.Stats())
		}
	}
}
