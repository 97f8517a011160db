package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handle) Healthz(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db: not ok\n"+err.Error())
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

// Engines: GET /v1/engines: какие движки настроены и какой по умолчанию.
func (h *Handle) Engines(c *gin.Context) {
	engs := h.svc.Engines()
	def := "gpt"
	if eng, err := engs.GetEngine(""); err == nil {
		def = eng.Name()
	}
	c.JSON(http.StatusOK, gin.H{"default": def, "engines": engs.Names()})
}
