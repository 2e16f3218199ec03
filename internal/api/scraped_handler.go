package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"MatchOracle/internal/config"
	"MatchOracle/internal/interfaces"
	"MatchOracle/internal/model"
	"MatchOracle/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ingestRequest POST /scraped-data 请求体
type ingestRequest struct {
	Source     string          `json:"source" binding:"required"`
	DataType   string          `json:"dataType" binding:"required"`
	SubjectID  string          `json:"subjectId" binding:"required"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	CapturedAt time.Time       `json:"capturedAt" binding:"required"`
}

// ScrapedDataHandler 爬虫上报网关：鉴权→schema校验→按类型定TTL→幂等入库。
// 鉴权失败401、schema违规400都直接返回，不走任何降级
type ScrapedDataHandler struct {
	signals interfaces.SignalStore
	cfg     *config.ScraperConfig
	now     interfaces.Clock
	logger  *logrus.Logger
}

// NewScrapedDataHandler 创建网关处理器
func NewScrapedDataHandler(signals interfaces.SignalStore, cfg *config.ScraperConfig,
	clock interfaces.Clock, logger *logrus.Logger) *ScrapedDataHandler {
	if clock == nil {
		clock = time.Now
	}
	if len(cfg.AuthToken) < cfg.MinTokenLength {
		// Token太短等同没配：启动时就把问题喊出来，网关会拒绝所有上报
		logger.Warnf("爬虫网关Token长度不足%d位，所有上报将被拒绝", cfg.MinTokenLength)
	}
	return &ScrapedDataHandler{
		signals: signals,
		cfg:     cfg,
		now:     clock,
		logger:  logger,
	}
}

// Ingest 接收爬虫信号
// POST /scraped-data
func (h *ScrapedDataHandler) Ingest(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "鉴权失败"})
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("请求体不合法: %v", err)})
		return
	}

	if !model.ValidSignalType(req.DataType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不支持的dataType: %s", req.DataType)})
		return
	}
	if err := validatePayload(req.DataType, req.Payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("payload校验失败: %v", err)})
		return
	}

	signal := &model.ScrapedSignal{
		Source:     req.Source,
		DataType:   req.DataType,
		SubjectID:  req.SubjectID,
		Payload:    datatypes.JSON(req.Payload),
		CapturedAt: req.CapturedAt.UTC(),
		TTLSeconds: h.cfg.SignalTTL(req.DataType),
	}

	applied, err := h.signals.UpsertSignal(c.Request.Context(), signal)
	if err != nil {
		h.logger.WithError(err).Error("信号入库失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "信号入库失败"})
		return
	}

	if !applied {
		// 乱序到达的旧数据：幂等忽略，返回200而非错误
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "capturedAt早于已存数据"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "accepted", "signal_uuid": signal.SignalUUID})
}

// Latest 读取最新信号（带HTTP缓存语义：ETag/Cache-Control/Age，支持If-None-Match）
// GET /scraped-data/latest/:dataType/:subjectId
func (h *ScrapedDataHandler) Latest(c *gin.Context) {
	dataType := c.Param("dataType")
	subjectID := c.Param("subjectId")
	if !model.ValidSignalType(dataType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不支持的dataType: %s", dataType)})
		return
	}

	signal, err := h.signals.LatestSignal(c.Request.Context(), dataType, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrSignalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "信号不存在"})
			return
		}
		h.logger.WithError(err).Error("查询最新信号失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	etag := signalETag(signal)
	now := h.now()

	c.Header("ETag", etag)
	c.Header("Age", fmt.Sprintf("%d", int(signal.Age(now).Seconds())))
	remaining := signal.TTLSeconds - int(signal.Age(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	c.Header("Cache-Control", fmt.Sprintf("max-age=%d", remaining))

	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":      signal.Source,
		"dataType":    signal.DataType,
		"subjectId":   signal.SubjectID,
		"payload":     json.RawMessage(signal.Payload),
		"capturedAt":  signal.CapturedAt,
		"ttlSeconds":  signal.TTLSeconds,
		"fresh":       signal.IsFresh(now),
		"signal_uuid": signal.SignalUUID,
	})
}

// authorized Bearer Token鉴权：长度不足直接拒绝，比较走常数时间（先哈希再比较，不泄漏长度）
func (h *ScrapedDataHandler) authorized(c *gin.Context) bool {
	if len(h.cfg.AuthToken) < h.cfg.MinTokenLength {
		return false
	}
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}
	want := sha256.Sum256([]byte(h.cfg.AuthToken))
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// signalETag 由内容+采集时间生成强ETag（流式写入哈希，不追加payload切片以免写其底层数组）
func signalETag(signal *model.ScrapedSignal) string {
	h := sha256.New()
	h.Write(signal.Payload)
	h.Write([]byte(signal.CapturedAt.UTC().Format(time.RFC3339Nano)))
	sum := h.Sum(nil)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// validatePayload 按dataType做schema校验（shape不对就400丢弃，绝不入库）
func validatePayload(dataType string, payload json.RawMessage) error {
	switch model.SignalType(dataType) {
	case model.SignalOdds:
		var odds struct {
			Opening map[string]float64 `json:"opening"`
			Current map[string]float64 `json:"current"`
		}
		if err := json.Unmarshal(payload, &odds); err != nil {
			return fmt.Errorf("odds payload解析失败: %w", err)
		}
		for name, side := range map[string]map[string]float64{"opening": odds.Opening, "current": odds.Current} {
			if len(side) == 0 {
				return fmt.Errorf("odds payload缺少%s赔率", name)
			}
			for outcome, price := range side {
				if price <= 1.0 {
					return fmt.Errorf("%s.%s赔率非法: %v（必须>1.0）", name, outcome, price)
				}
			}
		}
		return nil

	case model.SignalInjuries:
		var injuries struct {
			Home *struct {
				Count      int     `json:"count"`
				KeyPlayers int     `json:"key_players"`
				Severity   float64 `json:"severity"`
			} `json:"home"`
			Away *struct {
				Count      int     `json:"count"`
				KeyPlayers int     `json:"key_players"`
				Severity   float64 `json:"severity"`
			} `json:"away"`
		}
		if err := json.Unmarshal(payload, &injuries); err != nil {
			return fmt.Errorf("injuries payload解析失败: %w", err)
		}
		if injuries.Home == nil || injuries.Away == nil {
			return fmt.Errorf("injuries payload必须包含home与away")
		}
		for side, v := range map[string]*struct {
			Count      int     `json:"count"`
			KeyPlayers int     `json:"key_players"`
			Severity   float64 `json:"severity"`
		}{"home": injuries.Home, "away": injuries.Away} {
			if v.Count < 0 || v.KeyPlayers < 0 || v.KeyPlayers > v.Count {
				return fmt.Errorf("%s伤停人数非法", side)
			}
			if v.Severity < 0 || v.Severity > 3 {
				return fmt.Errorf("%s严重度超出0-3", side)
			}
		}
		return nil

	case model.SignalWeather, model.SignalStats:
		// 弱schema类型：要求是JSON对象即可
		var obj map[string]interface{}
		if err := json.Unmarshal(payload, &obj); err != nil {
			return fmt.Errorf("payload必须是JSON对象: %w", err)
		}
		if len(obj) == 0 {
			return fmt.Errorf("payload不能为空对象")
		}
		return nil
	}
	return fmt.Errorf("不支持的dataType: %s", dataType)
}
