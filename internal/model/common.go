package model

import "time"

// SignalType 爬虫信号类型枚举
type SignalType string

const (
	SignalOdds     SignalType = "odds"
	SignalInjuries SignalType = "injuries"
	SignalWeather  SignalType = "weather"
	SignalStats    SignalType = "stats"
)

// ValidSignalType 校验信号类型合法性（网关schema校验的第一关）
func ValidSignalType(dataType string) bool {
	switch SignalType(dataType) {
	case SignalOdds, SignalInjuries, SignalWeather, SignalStats:
		return true
	default:
		return false
	}
}

// 数据来源标签（FeatureSet/PredictionResult 的 dataSources 溯源用，增量追加不回填）
const (
	SourceAPI             = "api"
	SourceCache           = "cache"
	SourceFallback        = "fallback"
	SourceScraperOdds     = "scraper:odds"
	SourceScraperInjuries = "scraper:injuries"
)

// 影响因子类别
const (
	FactorCategoryForm       = "form"
	FactorCategoryGoals      = "goals"
	FactorCategoryHeadToHead = "headtohead"
	FactorCategoryMarket     = "market"
	FactorCategoryInjury     = "injury"
)

// SideMetric 主客双方各自的指标值
type SideMetric struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// MarketMetrics 市场信号：开盘价到现价的归一化漂移速度与方向
type MarketMetrics struct {
	DriftVelocity float64 `json:"drift_velocity"` // 归一化漂移速率，正值偏向主队
	Sentiment     string  `json:"sentiment"`      // home/away/neutral
}

// FeatureSet 单场赛程的特征集合（按请求临时构建，不落库）
type FeatureSet struct {
	FixtureID        uint64         `json:"fixture_id"`
	HomeTeamID       uint64         `json:"home_team_id"`
	AwayTeamID       uint64         `json:"away_team_id"`
	Form             SideMetric     `json:"form"`           // 近况积分率 0-1
	ExpectedGoals    SideMetric     `json:"expected_goals"` // 近况场均期望进球
	HeadToHead       float64        `json:"head_to_head"`   // 历史交锋偏向，-1（客强）~ +1（主强）
	MarketMetrics    *MarketMetrics `json:"market_metrics,omitempty"`
	InjuryImpact     *SideMetric    `json:"injury_impact,omitempty"` // 伤病影响 0-10
	DataSources      []string       `json:"data_sources"`
	DataQualityScore float64        `json:"data_quality_score"` // 可选信号齐备度 0-1
}

// TopFactor 单个影响因子（按影响力排序后截断）
type TopFactor struct {
	Factor   string  `json:"factor"`
	Impact   float64 `json:"impact"`
	Category string  `json:"category"`
}

// PredictionResult 预测结果。不变式：HomeWin+Draw+AwayWin == 100.0 ± 容差，返回前强制校验
type PredictionResult struct {
	PredictionID string      `json:"prediction_id"`
	FixtureID    uint64      `json:"fixture_id"`
	HomeWin      float64     `json:"home_win"`
	Draw         float64     `json:"draw"`
	AwayWin      float64     `json:"away_win"`
	Confidence   string      `json:"confidence"` // high/medium/low
	TopFactors   []TopFactor `json:"top_factors"`
	MLModel      string      `json:"ml_model"` // 实际使用的打分来源：外部模型名或 rule-based
	DataSources  []string    `json:"data_sources"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// Sum 概率三元组合计（校验归一化不变式用）
func (p *PredictionResult) Sum() float64 {
	return p.HomeWin + p.Draw + p.AwayWin
}
