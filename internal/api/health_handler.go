package api

import (
	"net/http"

	"MatchOracle/internal/breaker"
	"MatchOracle/internal/cache"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查：暴露各端点类别的熔断状态与缓存规模
type HealthHandler struct {
	breaker *breaker.Breaker
	cache   *cache.Store
}

func NewHealthHandler(brk *breaker.Breaker, store *cache.Store) *HealthHandler {
	return &HealthHandler{breaker: brk, cache: store}
}

// Healthz GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"breakers":      h.breaker.Snapshot(),
		"cache_entries": h.cache.Len(),
	})
}
