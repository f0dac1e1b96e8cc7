package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]PingFunc
}

// create a new instance of the health handler; nil checks are skipped
func NewHealthHandler(checks map[string]PingFunc) *HealthHandler {
	active := make(map[string]PingFunc, len(checks))
	for name, fn := range checks {
		if fn != nil {
			active[name] = fn
		}
	}
	return &HealthHandler{checks: active}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 1*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, ping := range h.checks {
		if err := ping(cctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
