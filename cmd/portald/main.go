package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"iesb-saude-portal/config"
	"iesb-saude-portal/internal/api"
	"iesb-saude-portal/internal/app"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/calendar"
	"iesb-saude-portal/internal/db"
	"iesb-saude-portal/internal/model"
	"iesb-saude-portal/internal/notification"
	"iesb-saude-portal/internal/scheduling"
	"iesb-saude-portal/internal/session"
	"iesb-saude-portal/internal/store"
)

func main() {
	dotenv := config.LoadDotEnv()

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Env, cfg.Log.Level)
	defer logger.Sync()
	logger.Info("configuration loaded",
		zap.String("path", configPath),
		zap.Bool("dotenv", dotenv),
		zap.String("env", cfg.Env))

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys are not configured, push notices are disabled")
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc := cfg.Backend.Location()
	backends := backend.NewFactory(backend.NewHTTPClient(cfg.Backend, logger), cfg.Backend.BaseURL, loc)

	sessions := session.NewManager(appStore, backends, cfg.Session, logger.Named("session"))
	go sessions.Run(ctx)

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions, logger.Named("push"))
	workerPool.Start(ctx)

	resolver := calendar.NewResolver(calendar.NewMonthCache(cfg.Calendar.CacheTTL), loc, cfg.Calendar.MaxRangeMonths)
	svc := scheduling.NewService(resolver, workerPool, logger.Named("scheduling"), scheduling.Options{
		RollbackPartialBatches: cfg.Scheduling.RollbackPartialBatches,
		Location:               loc,
	})

	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Sessions:   sessions,
		BackendFor: func(s model.Session) api.Backend { return sessions.Client(s) },
		Service:    svc,
		Store:      appStore,
		Webpush:    webpushOptions,
		Logger:     logger.Named("http"),
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port), zap.String("backend", cfg.Backend.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
