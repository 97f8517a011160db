package handle

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lettera/api/internal/compare"
	"lettera/api/internal/compare/types"
)

type compareReq struct {
	LLMName string `json:"llm_name"`
	types.CompareRequest
}

// Compare: POST /sendImages и POST /v1/compare.
func (h *Handle) Compare(c *gin.Context) {
	var req compareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline(c.Request))
	defer cancel()

	res, err := h.svc.Compare(ctx, req.LLMName, req.CompareRequest)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.log.Error("compare error",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("llm_name", req.LLMName),
				zap.Error(err))
		}
		_ = c.Error(err)
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// deadline: X-Request-Timeout, затем ?timeoutSec=, иначе значение из конфига.
// Нечисловой или неположительный заголовок не мешает параметру запроса.
func (h *Handle) deadline(r *http.Request) time.Duration {
	for _, ts := range []string{r.Header.Get("X-Request-Timeout"), r.URL.Query().Get("timeoutSec")} {
		if v, err := strconv.Atoi(strings.TrimSpace(ts)); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.timeout
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrImageRequired), errors.Is(err, compare.ErrUnknownEngine):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
