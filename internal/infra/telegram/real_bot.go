package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/config"
	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
	"mentorium-bot/internal/usecase"
)

var _ adapter.TelegramBot = (*RealBot)(nil)

// RealBot implements adapter.TelegramBot over tgbotapi with concurrent
// polling. Billing-relevant updates are the pre-checkout query and the
// successful-payment message of the Stars flow; everything else gets a
// minimal command surface.
type RealBot struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	billing     *usecase.BillingService
	adminIDsMap map[int64]struct{}
	workers     int
	log         *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewRealBot(cfg *config.BotConfig, billing *usecase.BillingService, logger *zerolog.Logger) (*RealBot, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if billing == nil {
		return nil, errors.New("billing service is nil")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	adminMap := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	l := logger.With().Str("component", "TelegramBot").Logger()

	return &RealBot{
		bot:         bot,
		cfg:         cfg,
		billing:     billing,
		adminIDsMap: adminMap,
		workers:     workers,
		log:         &l,
	}, nil
}

// StartPolling polls Telegram for updates until ctx is canceled.
func (r *RealBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := r.handleUpdate(ctx, update); err != nil {
						r.log.Error().Err(err).Msg("handle update")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	r.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (r *RealBot) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealBot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.PreCheckoutQuery != nil:
		return r.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		return r.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		return r.handleCommand(ctx, update.Message)
	}
	return nil
}

// handlePreCheckout approves the Stars invoice if its payload still points at
// a pending payment. Telegram requires an answer within 10 seconds.
func (r *RealBot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	ok := true
	errMsg := ""
	if _, err := r.billing.PaymentByID(ctx, q.InvoicePayload); err != nil {
		ok = false
		errMsg = "Платёж не найден. Начните оплату заново."
	}
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: q.ID,
		OK:                 ok,
		ErrorMessage:       errMsg,
	}
	_, err := r.bot.Request(answer)
	return err
}

func (r *RealBot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) error {
	sp := msg.SuccessfulPayment
	if err := r.billing.ActivatePayment(ctx, sp.InvoicePayload, sp.TelegramPaymentChargeID); err != nil {
		r.log.Error().Err(err).Str("payment_id", sp.InvoicePayload).Msg("stars activation failed")
		return r.SendMessage(ctx, msg.Chat.ID, "Не удалось подтвердить оплату. Напишите в поддержку.")
	}
	return r.SendMessage(ctx, msg.Chat.ID, "Оплата получена, подписка активна. Спасибо!")
}

func (r *RealBot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		arg := msg.CommandArguments()
		if strings.HasPrefix(arg, "payment_") {
			// Return deep link from a hosted checkout page; the webhook has
			// already settled the payment, just report current access.
			return r.replyStatus(ctx, msg.Chat.ID)
		}
		return r.SendMessage(ctx, msg.Chat.ID, "Здравствуйте! /status покажет вашу подписку, /tariffs доступные тарифы.")
	case "status":
		return r.replyStatus(ctx, msg.Chat.ID)
	case "sweep":
		// manual expiry sweep, admins only
		if msg.From == nil || !r.isAdmin(msg.From.ID) {
			return nil
		}
		n, err := r.billing.RunDailySweep(ctx, time.Now())
		if err != nil {
			return r.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Sweep failed: %v", err))
		}
		return r.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Sweep done, expired: %d", n))
	case "tariffs":
		var b strings.Builder
		b.WriteString("Доступные тарифы:\n")
		for _, t := range model.Tariffs() {
			fmt.Fprintf(&b, "%s: %d сум / %d дней\n", t.Code, t.PriceUZS, t.DurationDays)
		}
		return r.SendMessage(ctx, msg.Chat.ID, b.String())
	}
	return nil
}

func (r *RealBot) isAdmin(telegramID int64) bool {
	_, ok := r.adminIDsMap[telegramID]
	return ok
}

func (r *RealBot) replyStatus(ctx context.Context, chatID int64) error {
	st, err := r.billing.CheckAccess(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.SendMessage(ctx, chatID, "Подписка не найдена.")
		}
		return err
	}
	if !st.Active {
		return r.SendMessage(ctx, chatID, "Активной подписки нет. /tariffs покажет варианты.")
	}
	return r.SendMessage(ctx, chatID, fmt.Sprintf("Подписка активна, осталось дней: %d.", st.DaysLeft))
}

func (r *RealBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	m := tgbotapi.NewMessage(chatID, text)
	_, err := r.bot.Send(m)
	return err
}

// SendStarsInvoice issues a native invoice in XTR. Stars invoices carry no
// provider token and exactly one price row.
func (r *RealBot) SendStarsInvoice(ctx context.Context, chatID int64, title, description, payload string, amount int64) error {
	invoice := tgbotapi.NewInvoice(
		chatID,
		title,
		description,
		payload,
		"", // no provider token for Stars
		"", // no start parameter
		"XTR",
		[]tgbotapi.LabeledPrice{{Label: title, Amount: int(amount)}},
	)
	invoice.SuggestedTipAmounts = []int{}
	_, err := r.bot.Send(invoice)
	return err
}
