package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"MatchOracle/internal/config"
	"MatchOracle/internal/interfaces"
	"MatchOracle/internal/model"

	"github.com/sirupsen/logrus"
)

// oddsPayload 爬虫赔率信号的内容schema（欧赔三元组，开盘价+现价）
type oddsPayload struct {
	Bookmaker string `json:"bookmaker"`
	Opening   struct {
		Home float64 `json:"home"`
		Draw float64 `json:"draw"`
		Away float64 `json:"away"`
	} `json:"opening"`
	Current struct {
		Home float64 `json:"home"`
		Draw float64 `json:"draw"`
		Away float64 `json:"away"`
	} `json:"current"`
}

// injuriesPayload 爬虫伤病信号的内容schema
type injuriesPayload struct {
	Home sideInjuries `json:"home"`
	Away sideInjuries `json:"away"`
}

type sideInjuries struct {
	Count      int     `json:"count"`       // 伤停人数
	KeyPlayers int     `json:"key_players"` // 其中主力人数
	Severity   float64 `json:"severity"`    // 平均严重度 0-3
}

// FeatureService 特征提取：从存储聚合近况/期望进球/交锋，叠加新鲜的爬虫信号。
// 可选信号缺失不算错误——降级产出不完整但可用的特征集，只降低数据质量分
type FeatureService struct {
	store   interfaces.FixtureStore
	signals interfaces.SignalStore
	cfg     *config.PredictionConfig
	now     interfaces.Clock
	logger  *logrus.Logger
}

func NewFeatureService(store interfaces.FixtureStore, signals interfaces.SignalStore,
	cfg *config.PredictionConfig, clock interfaces.Clock, logger *logrus.Logger) *FeatureService {
	if clock == nil {
		clock = time.Now
	}
	return &FeatureService{
		store:   store,
		signals: signals,
		cfg:     cfg,
		now:     clock,
		logger:  logger,
	}
}

// Extract 构建单场赛程的特征集。唯一硬错误：赛程不存在
func (s *FeatureService) Extract(ctx context.Context, fixtureID uint64) (*model.FeatureSet, error) {
	fixture, err := s.store.GetFixture(ctx, fixtureID)
	if err != nil {
		return nil, err
	}

	fs := &model.FeatureSet{
		FixtureID:   fixture.ID,
		HomeTeamID:  fixture.HomeTeamID,
		AwayTeamID:  fixture.AwayTeamID,
		DataSources: []string{model.SourceAPI},
	}

	// 1. 近况与期望进球（主客分别统计最近N场）
	homeForm, homeXG, err := s.teamForm(ctx, fixture.HomeTeamID)
	if err != nil {
		return nil, fmt.Errorf("统计主队近况失败: %w", err)
	}
	awayForm, awayXG, err := s.teamForm(ctx, fixture.AwayTeamID)
	if err != nil {
		return nil, fmt.Errorf("统计客队近况失败: %w", err)
	}
	fs.Form = model.SideMetric{Home: homeForm, Away: awayForm}
	fs.ExpectedGoals = model.SideMetric{Home: homeXG, Away: awayXG}

	// 2. 历史交锋偏向
	h2h, err := s.store.GetHeadToHead(ctx, fixture.HomeTeamID, fixture.AwayTeamID)
	if err != nil {
		return nil, fmt.Errorf("统计历史交锋失败: %w", err)
	}
	fs.HeadToHead = headToHeadBias(h2h, fixture.HomeTeamID)

	// 3. 可选信号：市场赔率漂移（失败只降质量分，不传播）
	if metrics := s.marketMetrics(ctx, fixtureID); metrics != nil {
		fs.MarketMetrics = metrics
		fs.DataSources = append(fs.DataSources, model.SourceScraperOdds)
	}

	// 4. 可选信号：伤病影响
	if impact := s.injuryImpact(ctx, fixtureID); impact != nil {
		fs.InjuryImpact = impact
		fs.DataSources = append(fs.DataSources, model.SourceScraperInjuries)
	}

	// 5. 数据质量分 = 可选信号齐备度（两类可选信号各占一半）
	present := 0.0
	if fs.MarketMetrics != nil {
		present++
	}
	if fs.InjuryImpact != nil {
		present++
	}
	fs.DataQualityScore = present / 2.0

	return fs, nil
}

// teamForm 最近N场的积分率（0-1）与场均进球
func (s *FeatureService) teamForm(ctx context.Context, teamID uint64) (float64, float64, error) {
	matches, err := s.store.GetRecentMatches(ctx, teamID, s.cfg.FormSampleSize)
	if err != nil {
		return 0, 0, err
	}
	if len(matches) == 0 {
		// 无历史数据时取中性值，保证仍能产出可用特征
		return 0.5, 1.2, nil
	}

	points := 0.0
	goals := 0.0
	for _, m := range matches {
		scored, conceded := m.HomeGoals, m.AwayGoals
		xg := m.HomeXG
		if m.AwayTeamID == teamID {
			scored, conceded = m.AwayGoals, m.HomeGoals
			xg = m.AwayXG
		}
		switch {
		case scored > conceded:
			points += 3
		case scored == conceded:
			points += 1
		}
		// 有期望进球数据用期望进球，否则退回真实进球
		if xg > 0 {
			goals += xg
		} else {
			goals += float64(scored)
		}
	}
	formRate := points / (3.0 * float64(len(matches)))
	avgGoals := goals / float64(len(matches))
	return formRate, avgGoals, nil
}

// headToHeadBias 历史交锋偏向：+1主队全胜 … -1客队全胜，无交锋为0
func headToHeadBias(records []*model.MatchRecord, homeTeamID uint64) float64 {
	if len(records) == 0 {
		return 0
	}
	balance := 0
	for _, m := range records {
		winner := uint64(0)
		if m.HomeGoals > m.AwayGoals {
			winner = m.HomeTeamID
		} else if m.AwayGoals > m.HomeGoals {
			winner = m.AwayTeamID
		}
		switch winner {
		case 0:
			// 平局不计偏向
		case homeTeamID:
			balance++
		default:
			balance--
		}
	}
	return float64(balance) / float64(len(records))
}

// marketMetrics 从最新赔率信号计算漂移速度与方向，信号缺失/过期/损坏均返回nil
func (s *FeatureService) marketMetrics(ctx context.Context, fixtureID uint64) *model.MarketMetrics {
	signal, err := s.signals.LatestSignal(ctx, string(model.SignalOdds), fmt.Sprintf("%d", fixtureID))
	if err != nil {
		return nil
	}
	if !signal.IsFresh(s.now()) {
		s.logger.WithField("fixture_id", fixtureID).Debug("赔率信号已过期，跳过市场指标")
		return nil
	}

	var odds oddsPayload
	if err := json.Unmarshal(signal.Payload, &odds); err != nil {
		s.logger.WithError(err).Warn("赔率信号内容损坏，跳过市场指标")
		return nil
	}
	if odds.Opening.Home <= 1 || odds.Opening.Away <= 1 || odds.Current.Home <= 1 || odds.Current.Away <= 1 {
		return nil
	}

	// 漂移速度：主客两侧隐含概率自开盘以来的相对变化之差。
	// 正值=市场资金流向主队（主队赔率缩水），负值偏向客队
	homeShift := (1.0/odds.Current.Home - 1.0/odds.Opening.Home) / (1.0 / odds.Opening.Home)
	awayShift := (1.0/odds.Current.Away - 1.0/odds.Opening.Away) / (1.0 / odds.Opening.Away)
	drift := homeShift - awayShift

	sentiment := "neutral"
	if drift > 0.02 {
		sentiment = "home"
	} else if drift < -0.02 {
		sentiment = "away"
	}

	return &model.MarketMetrics{
		DriftVelocity: drift,
		Sentiment:     sentiment,
	}
}

// injuryImpact 伤病影响0-10分：人数+主力缺阵+严重度的有界加权
func (s *FeatureService) injuryImpact(ctx context.Context, fixtureID uint64) *model.SideMetric {
	signal, err := s.signals.LatestSignal(ctx, string(model.SignalInjuries), fmt.Sprintf("%d", fixtureID))
	if err != nil {
		return nil
	}
	if !signal.IsFresh(s.now()) {
		s.logger.WithField("fixture_id", fixtureID).Debug("伤病信号已过期，跳过伤病指标")
		return nil
	}

	var injuries injuriesPayload
	if err := json.Unmarshal(signal.Payload, &injuries); err != nil {
		s.logger.WithError(err).Warn("伤病信号内容损坏，跳过伤病指标")
		return nil
	}

	return &model.SideMetric{
		Home: injuryScore(injuries.Home),
		Away: injuryScore(injuries.Away),
	}
}

// injuryScore 单侧伤病分：普通伤停1分/人，主力额外2分/人，再按严重度放大，封顶10
func injuryScore(side sideInjuries) float64 {
	base := float64(side.Count) + float64(side.KeyPlayers)*2.0
	score := base * (1.0 + side.Severity/3.0) * 0.8
	return math.Min(10.0, math.Max(0.0, score))
}
