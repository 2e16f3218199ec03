package model

// ScoreRequest 发给外部ML打分服务的特征子集
type ScoreRequest struct {
	FixtureID     uint64     `json:"fixture_id"`
	Form          SideMetric `json:"form"`
	ExpectedGoals SideMetric `json:"expected_goals"`
	HeadToHead    float64    `json:"head_to_head"`
}

// ScoreResponse 外部ML打分服务的响应。
// 可选字段可能显式为 null（指针为nil）也可能直接缺失，两者都必须接受，
// 不能假设缺省与null等价
type ScoreResponse struct {
	Home        float64           `json:"home"`
	Draw        float64           `json:"draw"`
	Away        float64           `json:"away"`
	Model       string            `json:"model"`
	LatencyMs   *float64          `json:"latency_ms"`  // 可空
	Calibration *ScoreCalibration `json:"calibration"` // 可空
}

// ScoreCalibration 可选的校准元数据
type ScoreCalibration struct {
	Method      string   `json:"method"`
	Applied     *bool    `json:"applied"`     // 可空
	Temperature *float64 `json:"temperature"` // 可空
}

// Valid 三元组必须为有限非负数且合计大于0，否则视为不可用响应
func (r *ScoreResponse) Valid() bool {
	for _, v := range []float64{r.Home, r.Draw, r.Away} {
		if v < 0 || v != v { // NaN自不等
			return false
		}
	}
	return r.Home+r.Draw+r.Away > 0
}
