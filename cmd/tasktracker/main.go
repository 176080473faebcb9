package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/api"
	"task-tracker/internal/auth"
	"task-tracker/internal/bot"
	"task-tracker/internal/config"
	"task-tracker/internal/lease"
	"task-tracker/internal/notify"
	"task-tracker/internal/repository"
	"task-tracker/internal/service"
)

// scanLeaseKey makes instances sharing one redis run one deadline pass per slot.
const scanLeaseKey = "task-tracker:scan-lease"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("db handle: %v", err)
	}
	defer sqlDB.Close()

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Fatalf("jwt secret: %v", err)
		}
		logger.Warn("JWT_SECRET is empty; using a random secret, tokens will not survive a restart")
	}
	tokens := auth.NewTokens(secret, cfg.TokenTTL)

	userSvc, err := service.NewUserService(userRepo, taskRepo, auth.NewHasher(cfg.BcryptCost), tokens, logger)
	if err != nil {
		logger.Fatalf("user service: %v", err)
	}
	taskSvc := service.NewTaskService(taskRepo, userRepo)

	seeded, err := userSvc.SeedAdmin(ctx, service.AdminSeed{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Email:    cfg.AdminEmail,
	})
	if err != nil {
		logger.Fatalf("seed admin: %v", err)
	}
	if seeded {
		logger.Warnf("administrator %q created with the configured password; change it for production", cfg.AdminUsername)
	}

	hub := notify.NewHub(logger, 0)
	var publisher notify.Publisher = hub
	var scanLease service.PassLease
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("redis url: %v", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()
		bridge := notify.NewRedisBridge(rc, hub, logger)
		go bridge.Run(ctx)
		publisher = bridge
		scanLease = lease.NewRedisLease(rc, scanLeaseKey, lease.SlotTTL(cfg.ScanInterval))
		logger.Info("notifications relayed through redis")
	}
	if cfg.TelegramToken != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			logger.Fatalf("telegram: %v", err)
		}
		publisher = notify.Fanout{publisher, notify.NewTelegramRelay(tg, userRepo, logger)}
		logger.Infof("telegram relay enabled as @%s", tg.Self.UserName)

		companion := bot.New(tg, userRepo, taskSvc, tokens, logger)
		go func() {
			if err := companion.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("telegram bot: %v", err)
			}
		}()
	}

	loc := cfg.Location()
	scanOpts := []service.ScannerOption{
		service.WithWindow(cfg.DeadlineWindow),
		service.WithLocation(loc),
	}
	if scanLease != nil {
		scanOpts = append(scanOpts, service.WithLease(scanLease))
	}
	scanner := service.NewDeadlineScanner(taskRepo, publisher, logger, scanOpts...)
	scan := func() {
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n, err := scanner.ScanOnce(jobCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("deadline scan: %v", err)
			return
		}
		logger.Debugf("deadline scan sent %d notifications", n)
	}

	scheduler := service.NewSchedulerService(loc, cron.PrintfLogger(logger))
	if _, err := scheduler.ScheduleInterval(cfg.ScanInterval, scan); err != nil {
		logger.Fatalf("schedule scan: %v", err)
	}
	scheduler.RunNow(scan)
	scheduler.Start()

	e := api.New(api.Deps{
		Users:       userSvc,
		Tasks:       taskSvc,
		Hub:         hub,
		Guard:       auth.NewGuard(tokens),
		DB:          sqlDB,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		logger.Infof("task tracker listening on %s", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	scheduler.Stop()
	logger.Info("shutdown complete")
}
