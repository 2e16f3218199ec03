package service

import (
	"math"

	"MatchOracle/internal/model"
)

// 规则估计器的固定参数：主场优势与各特征对进球期望的影响权重。
// 权重决定的是估计器本身的倾向，不属于运维可调的有界调整上限
const (
	homeAdvantage  = 0.20 // 主场进球期望加成
	formWeight     = 0.35 // 近况差对进球期望的影响
	headToHeadBump = 0.10 // 历史交锋偏向的影响
	maxGoalRange   = 8    // 比分矩阵边长（0..7球足够覆盖概率质量）
	minLambda      = 0.2
	maxLambda      = 6.0
)

// ruleBasedTriple 规则估计器：用近况/期望进球/交锋推导进球期望，
// 经Poisson比分矩阵求胜平负概率（解析PMF，完全确定性）。
// 返回百分比三元组（合计约100，最终归一化由引擎统一做）
func ruleBasedTriple(fs *model.FeatureSet) (home, draw, away float64) {
	formDiff := fs.Form.Home - fs.Form.Away

	// 进球期望：己方期望进球为基底，按近况差与交锋偏向有界缩放
	lambdaHome := fs.ExpectedGoals.Home * (1 + homeAdvantage) * (1 + formWeight*formDiff + headToHeadBump*fs.HeadToHead)
	lambdaAway := fs.ExpectedGoals.Away * (1 - formWeight*formDiff - headToHeadBump*fs.HeadToHead)

	lambdaHome = clampLambda(lambdaHome)
	lambdaAway = clampLambda(lambdaAway)

	// 比分矩阵下三角=主胜、对角线=平、上三角=客胜
	for h := 0; h < maxGoalRange; h++ {
		ph := poissonPMF(h, lambdaHome)
		for a := 0; a < maxGoalRange; a++ {
			p := ph * poissonPMF(a, lambdaAway)
			switch {
			case h > a:
				home += p
			case h == a:
				draw += p
			default:
				away += p
			}
		}
	}

	total := home + draw + away
	if total <= 0 {
		// 参数异常时退回中性先验（带主场优势）
		return 40, 30, 30
	}
	return home / total * 100, draw / total * 100, away / total * 100
}

// poissonPMF 解析Poisson概率质量函数 P(X=k)=λ^k e^{-λ}/k!
func poissonPMF(k int, lambda float64) float64 {
	logP := float64(k)*math.Log(lambda) - lambda - logFactorial(k)
	return math.Exp(logP)
}

func logFactorial(k int) float64 {
	sum := 0.0
	for i := 2; i <= k; i++ {
		sum += math.Log(float64(i))
	}
	return sum
}

func clampLambda(lambda float64) float64 {
	if math.IsNaN(lambda) || lambda < minLambda {
		return minLambda
	}
	if lambda > maxLambda {
		return maxLambda
	}
	return lambda
}
