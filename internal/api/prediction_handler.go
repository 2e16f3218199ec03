package api

import (
	"errors"
	"net/http"
	"strconv"

	"MatchOracle/internal/repository"
	"MatchOracle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PredictionHandler 预测查询接口
type PredictionHandler struct {
	predictions *service.PredictionService
	logger      *logrus.Logger
}

func NewPredictionHandler(predictions *service.PredictionService, logger *logrus.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		logger:      logger,
	}
}

// GetPrediction 单场预测。赛程不存在是唯一对外暴露的硬错误（404），
// 其余一切上游/信号/模型故障都已在引擎内降级
// GET /api/predictions/:fixture_id
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	fixtureID, err := strconv.ParseUint(c.Param("fixture_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fixture_id必须是数字"})
		return
	}

	result, err := h.predictions.PredictFixture(c.Request.Context(), fixtureID)
	if err != nil {
		if errors.Is(err, repository.ErrFixtureNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "赛程不存在"})
			return
		}
		h.logger.WithError(err).WithField("fixture_id", fixtureID).Error("生成预测失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
