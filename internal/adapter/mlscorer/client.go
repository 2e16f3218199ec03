package mlscorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"MatchOracle/internal/config"
	"MatchOracle/internal/model"
	"MatchOracle/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// ErrDisabled 未配置打分服务地址（预测引擎直接走规则估计器）
var ErrDisabled = errors.New("ML打分服务未启用")

// Scorer 外部打分服务的窄接口（预测引擎依赖接口，单测注入假实现）
type Scorer interface {
	Score(ctx context.Context, req *model.ScoreRequest) (*model.ScoreResponse, error)
}

// Client 外部ML打分服务客户端。打分服务被视为不透明外部协作方：
// 出错/超时由调用方静默降级为规则估计器，这里只负责透传错误
type Client struct {
	cfg        *config.ScorerConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建打分服务客户端
func NewClient(cfg *config.ScorerConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: httpclient.New(httpclient.Options{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}, logger),
		logger: logger,
	}
}

// Score 调用打分服务获取原始概率三元组。
// 响应中的可选字段可能显式为null或直接缺失，两者都按"无值"处理
func (c *Client) Score(ctx context.Context, req *model.ScoreRequest) (*model.ScoreResponse, error) {
	if c.cfg.BaseURL == "" {
		return nil, ErrDisabled
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化打分请求失败: %w", err)
	}

	scoreURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/score"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, scoreURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构建打分请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("打分服务请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("打分服务返回非200状态: %d", resp.StatusCode)
	}

	var scoreResp model.ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&scoreResp); err != nil {
		return nil, fmt.Errorf("打分响应解析失败: %w", err)
	}
	if !scoreResp.Valid() {
		return nil, fmt.Errorf("打分响应三元组非法: home=%v draw=%v away=%v",
			scoreResp.Home, scoreResp.Draw, scoreResp.Away)
	}

	if scoreResp.LatencyMs != nil {
		c.logger.WithFields(logrus.Fields{
			"model":      scoreResp.Model,
			"latency_ms": *scoreResp.LatencyMs,
		}).Debug("打分服务响应")
	}
	return &scoreResp, nil
}
