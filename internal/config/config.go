package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`     // 服务器配置
	Postgres   PostgresConfig   `mapstructure:"postgres"`   // PostgreSQL配置
	Upstream   UpstreamConfig   `mapstructure:"upstream"`   // 上游足球数据API配置
	Scorer     ScorerConfig     `mapstructure:"scorer"`     // 外部ML打分服务配置
	Breaker    BreakerConfig    `mapstructure:"breaker"`    // 熔断器配置
	Cache      CacheConfig      `mapstructure:"cache"`      // 本地缓存配置
	Scraper    ScraperConfig    `mapstructure:"scraper"`    // 爬虫上报网关配置
	Prediction PredictionConfig `mapstructure:"prediction"` // 预测引擎配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// UpstreamConfig 上游足球数据API配置（按付费套餐限流，必须配合熔断降级使用）
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`         // API基础地址
	APIKey         string        `mapstructure:"api_key"`          // API密钥（建议从.env覆盖）
	Timeout        int           `mapstructure:"timeout"`          // 单次请求超时（秒）
	RetryCount     int           `mapstructure:"retry_count"`      // 常规错误重试次数
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"` // 退避基础间隔
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`  // 退避最大间隔
	Proxy          string        `mapstructure:"proxy"`            // 代理地址
	TTL            TTLConfig     `mapstructure:"ttl"`              // 各端点缓存TTL
}

// TTLConfig 各端点类别的缓存TTL（秒）
type TTLConfig struct {
	Fixtures   int `mapstructure:"fixtures"`   // 赛程
	Teams      int `mapstructure:"teams"`      // 球队
	Statistics int `mapstructure:"statistics"` // 球队赛季统计
	HeadToHead int `mapstructure:"headtohead"` // 历史交锋
}

// Duration 将端点标签映射为TTL时长，未知端点走赛程TTL兜底
func (t *TTLConfig) Duration(endpointTag string) time.Duration {
	seconds := t.Fixtures
	switch endpointTag {
	case "teams":
		seconds = t.Teams
	case "statistics":
		seconds = t.Statistics
	case "headtohead":
		seconds = t.HeadToHead
	}
	return time.Duration(seconds) * time.Second
}

// ScorerConfig 外部ML打分服务配置（不可用时静默降级为规则估计器）
type ScorerConfig struct {
	BaseURL string `mapstructure:"base_url"` // 打分服务地址，为空表示禁用
	Timeout int    `mapstructure:"timeout"`  // 请求超时（秒）
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"` // 连续失败阈值，达到后熔断
	Cooldown         time.Duration `mapstructure:"cooldown"`          // 熔断冷却窗口
}

// CacheConfig 本地缓存配置
type CacheConfig struct {
	Capacity      int `mapstructure:"capacity"`       // 最大条目数（LRU淘汰）
	PredictionTTL int `mapstructure:"prediction_ttl"` // 预测结果缓存TTL（秒）
}

// ScraperConfig 爬虫上报网关配置
type ScraperConfig struct {
	AuthToken      string          `mapstructure:"auth_token"`       // Bearer Token（建议从.env覆盖）
	MinTokenLength int             `mapstructure:"min_token_length"` // Token最小长度
	TTL            SignalTTLConfig `mapstructure:"ttl"`              // 各信号类型TTL
}

// SignalTTLConfig 各信号类型的TTL（秒）：赔率短、伤病中、统计长
type SignalTTLConfig struct {
	Odds     int `mapstructure:"odds"`
	Injuries int `mapstructure:"injuries"`
	Weather  int `mapstructure:"weather"`
	Stats    int `mapstructure:"stats"`
}

// PredictionConfig 预测引擎配置（有界调整的上限均为运维可调项，不硬编码）
type PredictionConfig struct {
	FormSampleSize     int     `mapstructure:"form_sample_size"`     // 近况采样场次
	MarketNudgeCap     float64 `mapstructure:"market_nudge_cap"`     // 市场漂移调整上限（百分点）
	DriftThreshold     float64 `mapstructure:"drift_threshold"`      // 漂移显著性阈值
	InjuryAdjustCap    float64 `mapstructure:"injury_adjust_cap"`    // 伤病调整上限（百分点）
	InjuryGapThreshold float64 `mapstructure:"injury_gap_threshold"` // 伤病差距显著性阈值（0-10分制）
	TopFactorLimit     int     `mapstructure:"top_factor_limit"`     // topFactors最大数量
	NormalizeTolerance float64 `mapstructure:"normalize_tolerance"`  // 归一化容差（百分点）
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)

	// 4. 兜底默认值（配置缺失时保证子系统仍可运行）
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("UPSTREAM_PROXY"); v != "" {
		cfg.Upstream.Proxy = v
	}
	if v := os.Getenv("SCRAPER_AUTH_TOKEN"); v != "" {
		cfg.Scraper.AuthToken = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// ApplyDefaults 关键阈值的兜底默认值（导出供单测构造配置复用）
func ApplyDefaults(cfg *Config) {
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = 60 * time.Second
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 10
	}
	if cfg.Upstream.RetryCount <= 0 {
		cfg.Upstream.RetryCount = 3
	}
	if cfg.Upstream.RetryBaseDelay <= 0 {
		cfg.Upstream.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Upstream.RetryMaxDelay <= 0 {
		cfg.Upstream.RetryMaxDelay = 8 * time.Second
	}
	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = 2048
	}
	if cfg.Cache.PredictionTTL <= 0 {
		cfg.Cache.PredictionTTL = 300
	}
	if cfg.Scraper.MinTokenLength <= 0 {
		cfg.Scraper.MinTokenLength = 16
	}
	if cfg.Prediction.FormSampleSize <= 0 {
		cfg.Prediction.FormSampleSize = 6
	}
	if cfg.Prediction.MarketNudgeCap <= 0 {
		cfg.Prediction.MarketNudgeCap = 2.0
	}
	if cfg.Prediction.DriftThreshold <= 0 {
		cfg.Prediction.DriftThreshold = 0.08
	}
	if cfg.Prediction.InjuryAdjustCap <= 0 {
		cfg.Prediction.InjuryAdjustCap = 3.0
	}
	if cfg.Prediction.InjuryGapThreshold <= 0 {
		cfg.Prediction.InjuryGapThreshold = 2.0
	}
	if cfg.Prediction.TopFactorLimit <= 0 {
		cfg.Prediction.TopFactorLimit = 4
	}
	if cfg.Prediction.NormalizeTolerance <= 0 {
		cfg.Prediction.NormalizeTolerance = 0.1
	}
	if cfg.Scorer.Timeout <= 0 {
		cfg.Scorer.Timeout = 5
	}
	if cfg.Scraper.TTL.Odds <= 0 {
		cfg.Scraper.TTL.Odds = 600
	}
	if cfg.Scraper.TTL.Injuries <= 0 {
		cfg.Scraper.TTL.Injuries = 3600
	}
	if cfg.Scraper.TTL.Weather <= 0 {
		cfg.Scraper.TTL.Weather = 1800
	}
	if cfg.Scraper.TTL.Stats <= 0 {
		cfg.Scraper.TTL.Stats = 86400
	}
	if cfg.Upstream.TTL.Fixtures <= 0 {
		cfg.Upstream.TTL.Fixtures = 3600
	}
	if cfg.Upstream.TTL.Teams <= 0 {
		cfg.Upstream.TTL.Teams = 86400
	}
	if cfg.Upstream.TTL.Statistics <= 0 {
		cfg.Upstream.TTL.Statistics = 21600
	}
	if cfg.Upstream.TTL.HeadToHead <= 0 {
		cfg.Upstream.TTL.HeadToHead = 86400
	}
}

// SignalTTL 按信号类型返回TTL秒数（odds短/injuries中/stats长）
func (s *ScraperConfig) SignalTTL(dataType string) int {
	switch dataType {
	case "odds":
		return s.TTL.Odds
	case "injuries":
		return s.TTL.Injuries
	case "weather":
		return s.TTL.Weather
	case "stats":
		return s.TTL.Stats
	default:
		return s.TTL.Odds
	}
}
