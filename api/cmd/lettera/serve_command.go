package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lettera/api/internal/compare"
	"lettera/api/internal/config"
	"lettera/api/internal/handle"
	"lettera/api/internal/httpserver"
	"lettera/api/internal/telegram"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the Telegram bot when configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runServe(cmd.Context(), cfg, log)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	// Graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, db, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	opts := []handle.Option{handle.WithTimeout(cfg.LLMTimeout)}
	if db != nil {
		opts = append(opts, handle.WithPinger(db))
	}
	h := handle.New(svc, log, opts...)

	srv := httpserver.New(httpserver.Options{
		Addr:         net.JoinHostPort("0.0.0.0", cfg.Port),
		MaxBodyBytes: cfg.MaxBodyBytes,
		// запас сверху на чтение тела и сериализацию
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
	}, h, log)

	if cfg.TelegramBotToken != "" {
		if err := startBot(ctx, cfg, svc, srv, log); err != nil {
			return err
		}
	} else {
		log.Info("telegram bot disabled: no TELEGRAM_BOT_TOKEN")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited")
	return nil
}

// startBot: вебхук монтируется в тот же HTTP-сервер, иначе long polling в горутине.
func startBot(ctx context.Context, cfg *config.Config, svc *compare.Service, srv *httpserver.Server, log *zap.Logger) error {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return err
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:        bot,
		Svc:        svc,
		Engines:    svc.Engines(),
		EngManager: compare.NewManager(cfg.DefaultLLM),
		Log:        log.Named("telegram"),
		Timeout:    cfg.LLMTimeout,
	}
	d := telegram.NewDispatcher(r.HandleUpdate, log.Named("telegram"))

	if cfg.WebhookURL != "" {
		path := telegram.WebhookPath(bot.Token)
		if err := telegram.SetWebhook(bot, cfg.WebhookURL, path); err != nil {
			return err
		}
		srv.Handle(http.MethodPost, path, telegram.WebhookHandler(bot, d, log))
		log.Info("telegram webhook mode", zap.String("bot", bot.Self.UserName))
		return nil
	}

	log.Info("telegram polling mode", zap.String("bot", bot.Self.UserName))
	go telegram.RunPolling(ctx, bot, d, log.Named("telegram"))
	return nil
}
