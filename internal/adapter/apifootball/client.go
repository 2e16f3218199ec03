package apifootball

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"MatchOracle/internal/breaker"
	"MatchOracle/internal/cache"
	"MatchOracle/internal/config"
	"MatchOracle/internal/model"
	"MatchOracle/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// 端点类别常量（熔断按类别隔离，缓存TTL按类别配置）
const (
	EndpointFixtures   = "fixtures"
	EndpointTeams      = "teams"
	EndpointStatistics = "statistics"
	EndpointHeadToHead = "headtohead"
)

// attemptResult 单次请求的分类结果
type attemptResult int

const (
	attemptSuccess   attemptResult = iota // 成功（含结果为空）
	attemptTransport                      // 传输/超时/畸形响应，常规退避重试
	attemptQuota                          // 限流/套餐限额，最多重试一次后快速降级
)

// Client 上游足球数据API的弹性客户端。
// 契约：Fetch永远返回可用的包络（真实数据/缓存/兜底三选一），任何失败都不会向上传播
type Client struct {
	cfg        *config.UpstreamConfig
	httpClient *http.Client
	cache      *cache.Store
	breaker    *breaker.Breaker
	backoff    *BackoffPolicy
	logger     *logrus.Logger
	sleep      func(time.Duration) // 注入式等待（单测替换避免真实sleep）
}

// NewClient 创建弹性客户端，缓存与熔断器由外部注入（多个消费方共享同一份状态）
func NewClient(cfg *config.UpstreamConfig, store *cache.Store, brk *breaker.Breaker, logger *logrus.Logger) *Client {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-apisports-key"] = cfg.APIKey
	}
	return &Client{
		cfg: cfg,
		httpClient: httpclient.New(httpclient.Options{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
			Proxy:   cfg.Proxy,
			Headers: headers,
		}, logger),
		cache:   store,
		breaker: brk,
		backoff: NewBackoffPolicy(cfg.RetryBaseDelay, cfg.RetryMaxDelay, 0.2, time.Now().UnixNano()),
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Fetch 拉取上游数据。返回包络与来源标签（api/cache/fallback）。
// 流程：新鲜缓存直读 → 熔断放行判定 → 网络请求（退避重试）→ 失败转过期缓存 → 兜底数据
func (c *Client) Fetch(ctx context.Context, endpoint string, params map[string]string) (*model.UpstreamEnvelope, string) {
	key := CacheKey(endpoint, params)

	// 新鲜缓存直接命中，不消耗上游配额
	if env, fresh, ok := c.readCache(key); ok && fresh {
		return env, model.SourceCache
	}

	maxAttempts := c.cfg.RetryCount + 1
	quotaRetried := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// 每次真实请求前都要过熔断（HALF_OPEN只放行单个试探请求）
		if err := c.breaker.Allow(endpoint); err != nil {
			c.logger.WithField("endpoint", endpoint).Info("熔断短路，转缓存/兜底")
			return c.degrade(key, endpoint, params)
		}

		env, result := c.doRequest(ctx, endpoint, params)
		switch result {
		case attemptSuccess:
			c.breaker.RecordSuccess(endpoint)
			c.writeThrough(key, endpoint, env)
			return env, model.SourceAPI

		case attemptQuota:
			c.breaker.RecordFailure(endpoint)
			// 限流错误属于受限套餐下的预期行为：记Info而非Error，且不做激进重试以免放大违规
			c.logger.WithField("endpoint", endpoint).Info("上游返回限流/套餐限额")
			if quotaRetried {
				return c.degrade(key, endpoint, params)
			}
			quotaRetried = true
			c.sleep(c.backoff.Max)

		case attemptTransport:
			c.breaker.RecordFailure(endpoint)
			if attempt < maxAttempts-1 {
				c.sleep(c.backoff.NextDelay(attempt))
			}
		}
	}

	return c.degrade(key, endpoint, params)
}

// doRequest 执行一次网络请求并分类结果
func (c *Client) doRequest(ctx context.Context, endpoint string, params map[string]string) (*model.UpstreamEnvelope, attemptResult) {
	reqURL := c.buildURL(endpoint, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.WithError(err).WithField("url", reqURL).Error("构建请求失败")
		return nil, attemptTransport
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 超时与传输错误同类处理：走退避重试
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("上游请求失败")
		return nil, attemptTransport
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, attemptQuota
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("上游返回非200状态")
		return nil, attemptTransport
	}

	var env model.UpstreamEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// 畸形响应计为失败（参与熔断计数），与传输错误同路降级
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("上游响应解析失败")
		return nil, attemptTransport
	}

	if env.Errors.HasError() {
		if env.Errors.IsQuotaError() {
			return nil, attemptQuota
		}
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"errors":   env.Errors,
		}).Warn("上游返回业务错误")
		return nil, attemptTransport
	}

	// 结果为空但格式合法也是成功（受限套餐下属于预期），绝不能计入熔断失败
	return &env, attemptSuccess
}

// degrade 降级链路：新鲜缓存 → 过期缓存 → 确定性兜底数据
func (c *Client) degrade(key, endpoint string, params map[string]string) (*model.UpstreamEnvelope, string) {
	if env, fresh, ok := c.readCache(key); ok {
		if !fresh {
			c.logger.WithField("endpoint", endpoint).Info("使用过期缓存降级响应")
		}
		return env, model.SourceCache
	}
	c.logger.WithField("endpoint", endpoint).Warn("缓存未命中，返回兜底数据")
	return syntheticEnvelope(endpoint, params), model.SourceFallback
}

// writeThrough 成功响应写穿缓存，TTL按端点类别配置
func (c *Client) writeThrough(key, endpoint string, env *model.UpstreamEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.WithError(err).Warn("缓存序列化失败，跳过写入")
		return
	}
	c.cache.Put(key, payload, c.cfg.TTL.Duration(endpoint), endpoint)
}

// readCache 读缓存并反序列化
func (c *Client) readCache(key string) (*model.UpstreamEnvelope, bool, bool) {
	payload, fresh, ok := c.cache.Get(key)
	if !ok {
		return nil, false, false
	}
	var env model.UpstreamEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("缓存数据损坏，按未命中处理")
		return nil, false, false
	}
	return &env, fresh, true
}

// buildURL 拼接请求URL，参数按key排序保证稳定
func (c *Client) buildURL(endpoint string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	base := strings.TrimSuffix(c.cfg.BaseURL, "/")
	if len(values) == 0 {
		return fmt.Sprintf("%s/%s", base, endpoint)
	}
	return fmt.Sprintf("%s/%s?%s", base, endpoint, values.Encode())
}

// CacheKey 由端点+排序后参数生成确定性缓存键
func CacheKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(endpoint)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}
