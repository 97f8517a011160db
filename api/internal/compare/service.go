package compare

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"lettera/api/internal/compare/types"
	"lettera/api/internal/util"
)

// Cache: хранилище готовых вердиктов. Промах возвращает sql.ErrNoRows.
type Cache interface {
	Find(ctx context.Context, key string, maxAge time.Duration) (types.Verdict, error)
	Upsert(ctx context.Context, key, engine, model string, v types.Verdict) error
}

type Service struct {
	engines  *Engines
	cache    Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithCache включает кэш вердиктов; ttl=0: без срока давности.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func NewService(engines *Engines, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{engines: engines, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Engines() *Engines { return s.engines }

// Compare нормализует обе картинки, вызывает движок и возвращает вердикт.
func (s *Service) Compare(ctx context.Context, llmName string, in types.CompareRequest) (types.CompareResult, error) {
	if err := in.Validate(); err != nil {
		return types.CompareResult{}, err
	}
	in = in.WithDefaults()
	in.UserImage = util.NormalizeImageRef(in.UserImage)
	in.ReferenceImage = util.NormalizeImageRef(in.ReferenceImage)

	engine, err := s.engines.GetEngine(llmName)
	if err != nil {
		return types.CompareResult{}, err
	}
	log := s.log.With(zap.String("engine", engine.Name()), zap.String("model", engine.GetModel()),
		zap.String("letter", in.Letter), zap.String("language", in.Language))

	key := CacheKey(engine.Name(), engine.GetModel(), in)
	if s.cache != nil {
		v, err := s.cache.Find(ctx, key, s.cacheTTL)
		if err == nil {
			log.Debug("verdict cache hit")
			return newResult(engine, v, true), nil
		}
		if !isCacheMiss(err) {
			log.Warn("verdict cache lookup failed", zap.Error(err))
		}
	}

	start := time.Now()
	v, err := engine.Compare(ctx, in)
	if err != nil {
		log.Error("compare failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return types.CompareResult{}, err
	}
	v.Status = types.StatusFor(v.Percents)
	log.Info("compare done", zap.Float64("percents", v.Percents), zap.Duration("elapsed", time.Since(start)))

	if s.cache != nil {
		if err := s.cache.Upsert(ctx, key, engine.Name(), engine.GetModel(), v); err != nil {
			log.Warn("verdict cache store failed", zap.Error(err))
		}
	}
	return newResult(engine, v, false), nil
}

func newResult(engine Engine, v types.Verdict, cached bool) types.CompareResult {
	return types.CompareResult{
		Percents: v.Percents,
		Result:   v,
		Engine:   engine.Name(),
		Model:    engine.GetModel(),
		Cached:   cached,
	}
}

// CacheKey: sha256 от движка, модели, параметров и нормализованных картинок.
func CacheKey(engine, model string, in types.CompareRequest) string {
	h := sha256.New()
	for _, part := range []string{engine, model, in.Letter, in.Language, in.SystemLanguage, in.UserImage, in.ReferenceImage} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// промах кэша (sql.ErrNoRows, в т.ч. устаревшая запись): не ошибка для логов
func isCacheMiss(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
