// Package main runs the soul vault daemon: the HTTP API, the midnight
// harvest scheduler and the chosen persistence backend.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/httpapi"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/metrics"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage/postgres"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/config"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/middleware"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.NewDefault("soulvaultd").WithError(err).Fatal("load configuration")
	}

	log := logger.New(cfg.LoggerConfig()).WithField("component", "soulvaultd")

	stores, closeDB, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialise storage")
	}
	defer closeDB()

	application, err := app.New(stores, app.Options{HarvestSchedule: cfg.Harvest.Schedule}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}
	application.Harvest.WithWorkers(cfg.Harvest.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      buildHandler(cfg, application, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application stop")
	}

	log.Info("stopped")
}

// buildStores opens the configured backend. Memory needs no cleanup, so
// the returned closer is always safe to call.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.Driver != "postgres" {
		log.Info("using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	log.Info("using postgres storage")
	return app.Stores{
		Config:       store,
		Vaults:       store,
		Leaderboard:  store,
		Achievements: store,
		BoostPasses:  store,
	}, func() { db.Close() }, nil
}

// buildHandler assembles the middleware chain around the API handler and
// mounts the metrics endpoint outside of it.
func buildHandler(cfg *config.Config, application *app.Application, log *logger.Logger) http.Handler {
	var api http.Handler = httpapi.NewHandler(application)

	api = metrics.InstrumentHandler(api)

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		api = limiter.Handler(api)
	}

	if cfg.Auth.Enabled {
		auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), log, []string{"/healthz"})
		api = auth.Handler(api)
	}

	if len(cfg.CORS.AllowedOrigins) > 0 {
		api = middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler(api)
	}

	api = middleware.NewTracingMiddleware(log).Handler(api)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", api)
	return mux
}
