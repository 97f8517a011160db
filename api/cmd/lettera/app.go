package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"lettera/api/internal/compare"
	"lettera/api/internal/compare/gemini"
	"lettera/api/internal/compare/gpt"
	"lettera/api/internal/config"
	"lettera/api/internal/store"
)

func buildEngines(cfg *config.Config) *compare.Engines {
	engines := &compare.Engines{
		OpenAI: gpt.New(cfg.OpenAIAPIKey, cfg.OpenAIModel,
			gpt.WithBaseURL(cfg.OpenAIBaseURL),
			gpt.WithRetry(cfg.LLMRetryAttempts, 0, 0),
			gpt.WithStructuredOutput(cfg.OpenAIStructuredOutput),
		),
		Default: cfg.DefaultLLM,
	}
	// Gemini регистрируем только при наличии ключа
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, gemini.WithAttempts(cfg.LLMRetryAttempts))
	}
	return engines
}

// buildService собирает сервис сравнения; db == nil, если кэш выключен.
func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*compare.Service, *sql.DB, error) {
	engines := buildEngines(cfg)
	if _, err := engines.GetEngine(""); err != nil {
		return nil, nil, fmt.Errorf("DEFAULT_LLM: %w", err)
	}

	if cfg.DatabaseURL == "" {
		log.Info("verdict cache disabled: no DATABASE_URL")
		return compare.NewService(engines, log), nil, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("db connected", zap.String("dsn", store.SafeDSNSummary(cfg.DatabaseURL)))

	repo := store.NewVerdictRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	if n, err := repo.Prune(ctx, cfg.CacheTTL); err != nil {
		log.Warn("verdict cache prune failed", zap.Error(err))
	} else if n > 0 {
		log.Info("verdict cache pruned", zap.Int64("rows", n))
	}

	return compare.NewService(engines, log, compare.WithCache(repo, cfg.CacheTTL)), db, nil
}
