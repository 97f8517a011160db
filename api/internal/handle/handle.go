package handle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lettera/api/internal/compare"
)

// RequestIDKey: ключ gin.Context, под которым middleware кладёт X-Request-ID.
const RequestIDKey = "request_id"

// Pinger: проверка доступности БД для /healthz (*sql.DB подходит).
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handle struct {
	svc     *compare.Service
	db      Pinger
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Handle)

func WithPinger(p Pinger) Option {
	return func(h *Handle) { h.db = p }
}

// WithTimeout: дедлайн вызова модели по умолчанию.
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func New(svc *compare.Service, log *zap.Logger, opts ...Option) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handle{svc: svc, timeout: 60 * time.Second, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
