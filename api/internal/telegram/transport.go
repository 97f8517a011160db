package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath: секретный путь вебхука, производный от токена.
func WebhookPath(token string) string {
	return "/webhook/" + webhookSecret(token)
}

func webhookSecret(token string) string {
	sum := sha256.Sum256([]byte("lettera-webhook:" + token))
	return hex.EncodeToString(sum[:8])
}

// SetWebhook регистрирует публичный URL вебхука у Telegram.
func SetWebhook(bot *tgbotapi.BotAPI, baseURL, path string) error {
	public := strings.TrimRight(baseURL, "/") + path
	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	_, err = bot.Request(wh)
	return err
}

// WebhookHandler разбирает апдейт, отдаёт его диспетчеру и сразу отвечает 200.
func WebhookHandler(bot *tgbotapi.BotAPI, d *Dispatcher, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			log.Warn("webhook: bad update", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		d.Dispatch(*upd)
	})
}

// ---------------- Polling loop -----------------

const (
	pollBaseDelay = 1 * time.Second
	pollMaxDelay  = 15 * time.Second
	pollIdleDelay = 200 * time.Millisecond
)

// pollBackoff: пауза после ошибки getUpdates и её причина для логов.
// Telegram сам подсказывает паузу через parameters.retry_after при 429.
func pollBackoff(err error) (time.Duration, string) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.RetryAfter > 0 {
			return time.Duration(tgErr.RetryAfter) * time.Second, "retry_after"
		}
		if tgErr.Code == http.StatusTooManyRequests {
			return 3 * time.Second, "rate_limited"
		}
		return pollBaseDelay, "api_error"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second, "timeout"
	}
	return pollBaseDelay, "transport"
}

// RunPolling: устойчивый long polling с backoff; выходит по отмене ctx,
// дождавшись уже принятых апдейтов.
func RunPolling(ctx context.Context, bot *tgbotapi.BotAPI, d *Dispatcher, log *zap.Logger) {
	defer d.Wait()

	// getUpdates не работает при активном вебхуке
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("polling: delete webhook failed", zap.Error(err))
	}

	offset := 0
	for {
		if ctx.Err() != nil {
			log.Info("polling: context cancelled")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			delay, reason := pollBackoff(err)
			delay = min(max(delay, pollBaseDelay), pollMaxDelay)
			log.Warn("polling error",
				zap.Error(err),
				zap.String("reason", reason),
				zap.Duration("retry_in", delay),
				zap.Int("offset", offset),
			)
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			d.Dispatch(upd)
		}

		if len(updates) == 0 && !sleepCtx(ctx, pollIdleDelay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
