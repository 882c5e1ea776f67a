package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mentorium-bot/internal/usecase"
)

// ExpiryWorker runs the daily billing sweep: subscriptions past grace are
// expired and parents close to expiry get a renewal reminder.
type ExpiryWorker struct {
	interval   time.Duration
	notifyDays int
	billing    *usecase.BillingService
	log        *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, notifyDays int, billing *usecase.BillingService, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:   interval,
		notifyDays: notifyDays,
		billing:    billing,
		log:        &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	// Run once on startup, then on every tick.
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.billing.RunDailySweep(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("subscriptions expired")
	}

	sent, err := w.billing.NotifyExpiring(ctx, w.notifyDays)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry notifications failed")
	}
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("expiry notifications sent")
	}
}
