package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"MatchOracle/internal/adapter/mlscorer"
	"MatchOracle/internal/cache"
	"MatchOracle/internal/config"
	"MatchOracle/internal/interfaces"
	"MatchOracle/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const ruleBasedModel = "rule-based"

// PredictionService 预测引擎：原始三元组（外部模型或规则估计器）→ 有界调整 → 归一化。
// 除赛程不存在外不对调用方暴露任何错误，一切降级静默完成
type PredictionService struct {
	features *FeatureService
	scorer   mlscorer.Scorer
	cfg      *config.PredictionConfig
	store    *cache.Store
	cacheTTL time.Duration
	now      interfaces.Clock
	logger   *logrus.Logger
}

func NewPredictionService(features *FeatureService, scorer mlscorer.Scorer,
	cfg *config.PredictionConfig, store *cache.Store, cacheTTL time.Duration,
	clock interfaces.Clock, logger *logrus.Logger) *PredictionService {
	if clock == nil {
		clock = time.Now
	}
	return &PredictionService{
		features: features,
		scorer:   scorer,
		cfg:      cfg,
		store:    store,
		cacheTTL: cacheTTL,
		now:      clock,
		logger:   logger,
	}
}

// PredictFixture 按赛程ID出预测：短TTL缓存命中直接返回，否则提特征→预测→写缓存
func (s *PredictionService) PredictFixture(ctx context.Context, fixtureID uint64) (*model.PredictionResult, error) {
	cacheKey := fmt.Sprintf("prediction|%d", fixtureID)
	if payload, fresh, ok := s.store.Get(cacheKey); ok && fresh {
		var cached model.PredictionResult
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}
	}

	fs, err := s.features.Extract(ctx, fixtureID)
	if err != nil {
		return nil, err
	}

	result, err := s.Predict(ctx, fs)
	if err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(result); merr == nil {
		s.store.Put(cacheKey, payload, s.cacheTTL, "prediction")
	}
	return result, nil
}

// Predict 由特征集生成归一化预测结果
func (s *PredictionService) Predict(ctx context.Context, fs *model.FeatureSet) (*model.PredictionResult, error) {
	// 规则估计器始终要算：既是模型不可用时的退路，也用于计算模型一致度
	ruleHome, ruleDraw, ruleAway := ruleBasedTriple(fs)

	home, draw, away := ruleHome, ruleDraw, ruleAway
	mlModel := ruleBasedModel
	agreement := -1.0 // 负值表示外部模型不可用

	if s.scorer != nil {
		resp, err := s.scorer.Score(ctx, &model.ScoreRequest{
			FixtureID:     fs.FixtureID,
			Form:          fs.Form,
			ExpectedGoals: fs.ExpectedGoals,
			HeadToHead:    fs.HeadToHead,
		})
		if err != nil {
			// 打分服务出错静默降级为规则估计器（只记日志，不向上传播）
			s.logger.WithError(err).WithField("fixture_id", fs.FixtureID).Info("ML打分不可用，降级为规则估计器")
		} else {
			home, draw, away = scaleTo100(resp.Home, resp.Draw, resp.Away)
			if resp.Model != "" {
				mlModel = resp.Model
			} else {
				mlModel = "external"
			}
			agreement = tripleAgreement(home, draw, away, ruleHome, ruleDraw, ruleAway)
		}
	}

	// 有界市场调整：漂移显著时向市场偏向侧挪动概率质量，封顶且不改变强弱次序
	marketShift := 0.0
	if fs.MarketMetrics != nil {
		home, away, marketShift = applyMarketNudge(home, away, fs.MarketMetrics.DriftVelocity,
			s.cfg.DriftThreshold, s.cfg.MarketNudgeCap)
	}

	// 有界伤病调整：从伤病更重的一侧挪走概率质量
	injuryShift := 0.0
	if fs.InjuryImpact != nil {
		home, away, injuryShift = applyInjuryAdjustment(home, away,
			fs.InjuryImpact.Home, fs.InjuryImpact.Away,
			s.cfg.InjuryGapThreshold, s.cfg.InjuryAdjustCap)
	}

	// 归一化（确定性、与调整顺序无关），返回前强制校验不变式
	home, draw, away = normalizeTriple(home, draw, away)
	if sum := home + draw + away; math.Abs(sum-100.0) > s.cfg.NormalizeTolerance {
		// 到这里说明归一化实现有bug，重做一次线性缩放兜底
		s.logger.WithField("sum", sum).Error("概率归一化越出容差，执行兜底缩放")
		home, draw, away = scaleTo100(home, draw, away)
	}

	result := &model.PredictionResult{
		PredictionID: uuid.NewString(),
		FixtureID:    fs.FixtureID,
		HomeWin:      home,
		Draw:         draw,
		AwayWin:      away,
		Confidence:   confidenceLabel(fs.DataQualityScore, agreement),
		TopFactors:   s.topFactors(fs, marketShift, injuryShift),
		MLModel:      mlModel,
		DataSources:  fs.DataSources,
		GeneratedAt:  s.now(),
	}
	return result, nil
}

// applyMarketNudge 市场漂移调整。返回调整后的主/客胜概率与实际挪动的百分点。
// 约束：|挪动|≤cap；不会把市场偏向侧直接抬成新的强侧（最多追平）
func applyMarketNudge(home, away, drift, threshold, cap float64) (float64, float64, float64) {
	magnitude := math.Abs(drift)
	if magnitude < threshold {
		return home, away, 0
	}

	// 超出阈值越多挪动越大，2倍阈值处达到上限
	shift := cap * math.Min(1.0, (magnitude-threshold)/threshold)

	favored, other := home, away
	if drift < 0 {
		favored, other = away, home
	}
	// 不翻盘：市场偏向弱侧时，挪动以两侧追平为限
	if favored < other {
		shift = math.Min(shift, (other-favored)/2)
	}
	// 不把对侧挪成负数
	shift = math.Min(shift, other)
	if shift <= 0 {
		return home, away, 0
	}

	if drift > 0 {
		return home + shift, away - shift, shift
	}
	return home - shift, away + shift, shift
}

// applyInjuryAdjustment 伤病调整：双侧伤病分差显著时，把概率质量从伤得重的一侧挪走
func applyInjuryAdjustment(home, away, homeImpact, awayImpact, gapThreshold, cap float64) (float64, float64, float64) {
	gap := homeImpact - awayImpact
	magnitude := math.Abs(gap)
	if magnitude < gapThreshold {
		return home, away, 0
	}

	// 伤病分满量程10，差距越接近满量程挪动越接近上限
	shift := cap * math.Min(1.0, (magnitude-gapThreshold)/(10.0-gapThreshold))

	if gap > 0 {
		// 主队伤得更重
		shift = math.Min(shift, home)
		return home - shift, away + shift, shift
	}
	shift = math.Min(shift, away)
	return home + shift, away - shift, shift
}

// normalizeTriple 确定性归一化：线性缩放到100后保留两位小数，残差补到最大分量上。
// 相同输入必然得到相同输出，且结果合计严格等于100.00
func normalizeTriple(home, draw, away float64) (float64, float64, float64) {
	home, draw, away = scaleTo100(home, draw, away)

	home = math.Round(home*100) / 100
	draw = math.Round(draw*100) / 100
	away = math.Round(away*100) / 100

	residual := 100.0 - (home + draw + away)
	residual = math.Round(residual*100) / 100

	// 残差固定补给最大分量（并列时按主>平>客的固定次序，保证顺序无关）
	switch {
	case home >= draw && home >= away:
		home += residual
	case draw >= away:
		draw += residual
	default:
		away += residual
	}
	return home, draw, away
}

// scaleTo100 线性缩放使三元组合计为100，非法输入退回中性先验
func scaleTo100(home, draw, away float64) (float64, float64, float64) {
	if home < 0 {
		home = 0
	}
	if draw < 0 {
		draw = 0
	}
	if away < 0 {
		away = 0
	}
	total := home + draw + away
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 40, 30, 30
	}
	factor := 100.0 / total
	return home * factor, draw * factor, away * factor
}

// tripleAgreement 外部模型与规则估计器的一致度 0-1（L1距离的补）
func tripleAgreement(h1, d1, a1, h2, d2, a2 float64) float64 {
	distance := math.Abs(h1-h2) + math.Abs(d1-d2) + math.Abs(a1-a2)
	agreement := 1.0 - distance/200.0
	if agreement < 0 {
		return 0
	}
	return agreement
}

// confidenceLabel 置信度：数据质量分 + 模型/规则一致度（模型不可用时上限压低）
func confidenceLabel(quality, agreement float64) string {
	var score float64
	if agreement >= 0 {
		score = 0.5*quality + 0.5*agreement
	} else {
		score = 0.3 + 0.4*quality
	}
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.45:
		return "medium"
	default:
		return "low"
	}
}

// topFactors 按影响力排序的贡献因子，数量封顶。
// 缺失的可选信号不产生对应类别的条目
func (s *PredictionService) topFactors(fs *model.FeatureSet, marketShift, injuryShift float64) []model.TopFactor {
	factors := []model.TopFactor{
		{
			Factor:   "form_differential",
			Impact:   math.Abs(fs.Form.Home-fs.Form.Away) * 30,
			Category: model.FactorCategoryForm,
		},
		{
			Factor:   "expected_goals_differential",
			Impact:   math.Abs(fs.ExpectedGoals.Home-fs.ExpectedGoals.Away) * 12,
			Category: model.FactorCategoryGoals,
		},
		{
			Factor:   "head_to_head_bias",
			Impact:   math.Abs(fs.HeadToHead) * 10,
			Category: model.FactorCategoryHeadToHead,
		},
	}
	if marketShift > 0 {
		factors = append(factors, model.TopFactor{
			Factor:   "market_drift",
			Impact:   marketShift,
			Category: model.FactorCategoryMarket,
		})
	}
	if injuryShift > 0 {
		factors = append(factors, model.TopFactor{
			Factor:   "injury_gap",
			Impact:   injuryShift,
			Category: model.FactorCategoryInjury,
		})
	}

	// 影响力降序，同分按因子名稳定排序
	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Impact != factors[j].Impact {
			return factors[i].Impact > factors[j].Impact
		}
		return factors[i].Factor < factors[j].Factor
	})

	// 去掉零影响项后截断
	ranked := make([]model.TopFactor, 0, len(factors))
	for _, f := range factors {
		if f.Impact <= 0 {
			continue
		}
		f.Impact = math.Round(f.Impact*100) / 100
		ranked = append(ranked, f)
		if len(ranked) >= s.cfg.TopFactorLimit {
			break
		}
	}
	return ranked
}
