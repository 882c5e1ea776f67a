package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mentorium-bot/internal/config"
	"mentorium-bot/internal/domain/ports/adapter"
	pg "mentorium-bot/internal/infra/db/postgres"
	httpapi "mentorium-bot/internal/infra/http"
	"mentorium-bot/internal/infra/logging"
	"mentorium-bot/internal/infra/metrics"
	"mentorium-bot/internal/infra/payment/click"
	"mentorium-bot/internal/infra/payment/payme"
	"mentorium-bot/internal/infra/payment/stars"
	red "mentorium-bot/internal/infra/redis"
	"mentorium-bot/internal/infra/sched"
	tele "mentorium-bot/internal/infra/telegram"
	"mentorium-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	parentRepo := pg.NewParentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	paymeTxRepo := pg.NewPaymeTxRepo(pool)
	clickTxRepo := pg.NewClickTxRepo(pool)

	// ---- Payment providers ----
	paymeProv := payme.NewProvider(cfg.Payment.Payme.MerchantID, cfg.Payment.Payme.SecretKey, cfg.Payment.Payme.TestMode, logger)
	clickProv := click.NewProvider(cfg.Payment.Click.MerchantID, cfg.Payment.Click.ServiceID, cfg.Payment.Click.SecretKey, cfg.Payment.Click.TestMode, logger)
	starsProv := stars.NewProvider()
	providers := []adapter.PaymentProvider{paymeProv, clickProv, starsProv}

	// ---- Use cases ----
	ledger := usecase.NewSubscriptionLedger(subRepo, payRepo, tm, cfg.Billing.RejectOverlap, logger)

	// Billing needs the bot for notifications and the bot needs billing for
	// commands; the bot is attached after construction.
	billing := usecase.NewBillingService(parentRepo, payRepo, ledger, tm, providers, nil, cfg.Bot.Username, logger)

	// ---- Telegram ----
	bot, err := tele.NewRealBot(&cfg.Bot, billing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	billing.SetBot(bot)
	go func() {
		if err := bot.StartPolling(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Webhook dispatchers ----
	paymeRPC := payme.NewDispatcher(payRepo, paymeTxRepo, billing, locker, logger)
	clickHndl := click.NewHandler(clickProv, payRepo, clickTxRepo, billing, locker, logger)

	// ---- HTTP server ----
	srv := httpapi.NewServer(cfg, paymeProv, paymeRPC, clickProv, clickHndl, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Expiry worker ----
	worker := sched.NewExpiryWorker(cfg.Billing.SweepInterval, cfg.Billing.NotifyDays, billing, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	bot.StopPolling()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
