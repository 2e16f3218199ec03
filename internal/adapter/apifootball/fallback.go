package apifootball

import (
	"sort"

	"MatchOracle/internal/model"
)

// syntheticEnvelope 生成兜底响应：上游与缓存全部不可用时返回的确定性空包络。
// Synthetic=true 明确标记数据来源，下游据此降低数据质量分而不是报错
func syntheticEnvelope(endpoint string, params map[string]string) *model.UpstreamEnvelope {
	// 参数按key排序后拷贝，保证相同入参生成完全一致的兜底数据
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]string, len(params))
	for _, k := range keys {
		ordered[k] = params[k]
	}

	return &model.UpstreamEnvelope{
		Get:        endpoint,
		Parameters: ordered,
		Errors:     model.UpstreamErrors{},
		Results:    0,
		Response:   nil,
		Synthetic:  true,
	}
}
