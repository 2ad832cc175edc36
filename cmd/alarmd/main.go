package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/example/alarm-engine/internal/application"
	"github.com/example/alarm-engine/internal/config"
	"github.com/example/alarm-engine/internal/holiday"
	httptransport "github.com/example/alarm-engine/internal/http"
	"github.com/example/alarm-engine/internal/occurrence"
	"github.com/example/alarm-engine/internal/persistence/sqlite"
	"github.com/example/alarm-engine/internal/reconcile"
	"github.com/example/alarm-engine/internal/ring"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(sqlite.DefaultConfig(cfg.SQLitePath))
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	holidays, err := holiday.LoadSeedFile(cfg.HolidaySeedPath)
	if err != nil {
		logger.Error("failed to load holiday seed", "error", err)
		os.Exit(1)
	}
	holidayRepo := sqlite.NewHolidayRepository(pool)
	if err := holidayRepo.SeedHolidays(context.Background(), holidays); err != nil {
		logger.Error("failed to seed holiday table", "error", err)
		os.Exit(1)
	}
	calendar := holiday.NewCalendar(holidays)
	logger.Info("holiday calendar loaded", "entries", len(holidays))

	idGenerator := uuid.NewString
	now := time.Now

	planRepo := sqlite.NewPlanRepository(pool)
	exceptionRepo := sqlite.NewExceptionRepository(pool)
	tokenRepo := sqlite.NewTokenRepository(pool)

	calculator := occurrence.NewCalculator(location, cfg.DayCap)
	platform := newTimerPlatform(logger)
	defer platform.Close()

	reconciler := reconcile.New(reconcile.Config{
		Plans:         planRepo,
		Exceptions:    exceptionRepo,
		Tokens:        tokenRepo,
		Adapter:       platform,
		Calculator:    calculator,
		Holidays:      calendar,
		Lookahead:     cfg.Lookahead,
		PlatformIDMax: cfg.PlatformIDMax,
		IDGenerator:   idGenerator,
		Now:           now,
		Logger:        logger,
	})

	ringController := ring.NewController(newLogPlayer(logger), nil, now, logger)
	platform.SetFireFunc(func(platformID int, info reconcile.RingInfo) {
		fireCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		token, err := reconciler.HandleFired(fireCtx, platformID)
		if err != nil {
			logger.Error("failed to settle fired token", "platform_id", platformID, "error", err)
			return
		}
		if _, err := ringController.Start(ring.StartParams{
			TokenID:     token.ID,
			PlanID:      info.PlanID,
			Label:       info.Label,
			RepeatCount: info.RepeatCount,
			IntervalMin: info.IntervalMin,
			SoundID:     info.SoundID,
		}); err != nil {
			logger.Error("failed to start ring session", "token_id", token.ID, "error", err)
		}
	})

	planService := application.NewPlanServiceWithLogger(planRepo, reconciler, idGenerator, now, logger)
	exceptionService := application.NewExceptionServiceWithLogger(exceptionRepo, planRepo, reconciler, idGenerator, now, logger)
	queueService := application.NewQueueService(planRepo, exceptionRepo, calendar, calculator, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Plans:      httptransport.NewPlanHandler(planService, logger),
		Exceptions: httptransport.NewExceptionHandler(exceptionService, logger),
		Queue:      httptransport.NewQueueHandler(queueService, logger),
		Tokens:     httptransport.NewTokenHandler(tokenRepo, logger),
		Events:     httptransport.NewEventHandler(reconciler, logger),
		Ring:       httptransport.NewRingHandler(ringController, logger),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	// Registrations do not survive a restart, so the first reconcile always
	// rebuilds them from persisted tokens.
	if result, err := reconciler.Reconcile(ctx, reconcile.EventBootCompleted); err != nil {
		logger.Error("boot reconcile failed", "error", err)
	} else {
		logger.Info("boot reconcile completed", "registered", result.Registered, "warnings", len(result.Warnings))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefreshCron, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := reconciler.Reconcile(refreshCtx, reconcile.EventScheduledRefresh); err != nil {
			logger.Error("scheduled refresh failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid refresh schedule", "schedule", cfg.RefreshCron, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("alarm engine API listening", "addr", server.Addr, "timezone", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
