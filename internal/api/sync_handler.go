package api

import (
	"net/http"
	"time"

	"MatchOracle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler 赛程同步触发接口（调度器或运维手动调用）
type SyncHandler struct {
	sync   *service.SyncService
	logger *logrus.Logger
}

func NewSyncHandler(sync *service.SyncService, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		logger: logger,
	}
}

// SyncLeague 同步指定联赛
// POST /sync/fixtures/:league?season=2025
func (h *SyncHandler) SyncLeague(c *gin.Context) {
	league := c.Param("league")
	if league == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "league不能为空"})
		return
	}
	season := service.ParseSeason(c.Query("season"), time.Now().Year())

	summary, err := h.sync.SyncLeague(c.Request.Context(), league, season)
	if err != nil {
		h.logger.WithError(err).WithField("league", league).Error("同步失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}
