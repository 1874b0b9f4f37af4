package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/config"
	"github.com/chicomed/kalia-shop-sub000/internal/infra"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"
	"github.com/chicomed/kalia-shop-sub000/internal/router"
	"github.com/chicomed/kalia-shop-sub000/internal/service"
	"github.com/chicomed/kalia-shop-sub000/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker handlers are wired here (composition root) so that the pool has
	// full access to all infrastructure dependencies.
	mailer := infra.NewMailer(cfg)
	smtpCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	dispatcher := worker.NewDispatcher(rdb)

	orderRepo := repository.NewOrderRepository(db)
	clientRepo := repository.NewClientRepository(db)
	cashRepo := repository.NewCashRepository(db)
	stepRepo := repository.NewReconciliationRepository(db)

	locker := infra.NewRedisLocker(rdb)
	cashSvc := service.NewCashService(cashRepo, locker)
	clientSvc := service.NewClientService(clientRepo, cfg.VIPThresholdDecimal())
	reconcileSvc := service.NewReconcileService(stepRepo, orderRepo, clientSvc, cashSvc, locker, dispatcher)

	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, worker.Handlers{
		Email:     worker.NewEmailWorker(orderRepo, cashRepo, mailer, smtpCB, cfg.StoreName, cfg.SuperAdminEmail, cfg.PDFStoragePath),
		Reconcile: worker.NewReconcileWorker(reconcileSvc),
	})
	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		StepRepo:  stepRepo,
		Reconcile: reconcileSvc,
		RDB:       rdb,
	})

	r := router.New(cfg, router.Deps{
		DB:         db,
		RDB:        rdb,
		SMTPCB:     smtpCB,
		Dispatcher: dispatcher,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("kalia-shop backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
