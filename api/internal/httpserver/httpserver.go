package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lettera/api/internal/handle"
)

type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	log        *zap.Logger
}

type Options struct {
	Addr         string
	MaxBodyBytes int64
	// WriteTimeout должен покрывать дедлайн LLM
	WriteTimeout time.Duration
}

func New(opts Options, h *handle.Handle, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(log), AccessLog(log), BodyLimit(opts.MaxBodyBytes))

	router.GET("/healthz", h.Healthz)
	router.POST("/sendImages", h.Compare)

	v1 := router.Group("/v1")
	{
		v1.POST("/compare", h.Compare)
		v1.GET("/engines", h.Engines)
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      writeTimeout,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		router: router,
		log:    log,
	}
}

// Handle монтирует дополнительный обработчик (например, вебхук бота).
func (s *Server) Handle(method, path string, h http.Handler) {
	s.router.Handle(method, path, gin.WrapH(h))
}

// Handler: для httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run() error {
	s.log.Info("Server is running", zap.String("address", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
