package model

import (
	"encoding/json"
	"strings"
	"time"
)

// UpstreamEnvelope 上游足球数据API的统一响应包络。
// 正常时 Response 为数组（可能为空——受限套餐下属于预期行为，不算失败）；
// 出错时 Errors 携带 rate_limit / plan_limit / 其他错误码
type UpstreamEnvelope struct {
	Get        string            `json:"get"`
	Parameters map[string]string `json:"parameters"`
	Errors     UpstreamErrors    `json:"errors"`
	Results    int               `json:"results"`
	Response   []json.RawMessage `json:"response"`
	// Synthetic 为真表示本地生成的兜底数据（上游与缓存均不可用时），调用方据此标记溯源
	Synthetic bool `json:"synthetic,omitempty"`
}

// UpstreamErrors 上游错误对象。API在不同错误下返回 map 或数组，这里统一成 map
type UpstreamErrors map[string]string

// UnmarshalJSON 兼容上游把 errors 返回成 [] 或 {} 两种形态
func (e *UpstreamErrors) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		*e = UpstreamErrors{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = m
	return nil
}

// HasError 是否携带任何错误
func (e UpstreamErrors) HasError() bool { return len(e) > 0 }

// IsQuotaError 是否为限流/套餐限额类错误（该类错误不做激进重试，快速降级）
func (e UpstreamErrors) IsQuotaError() bool {
	for key, msg := range e {
		k := strings.ToLower(key)
		if k == "rate_limit" || k == "ratelimit" || k == "plan_limit" || k == "requests" || k == "plan" {
			return true
		}
		m := strings.ToLower(msg)
		if strings.Contains(m, "rate limit") || strings.Contains(m, "plan limit") || strings.Contains(m, "request limit") {
			return true
		}
	}
	return false
}

// UpstreamFixture 赛程条目（/fixtures端点 response 数组元素）
type UpstreamFixture struct {
	Fixture struct {
		ID     uint64    `json:"id"`
		Date   time.Time `json:"date"`
		Status struct {
			Short string `json:"short"`
			Long  string `json:"long"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     uint64 `json:"id"`
		Name   string `json:"name"`
		Season int    `json:"season"`
	} `json:"league"`
	Teams struct {
		Home UpstreamTeamRef `json:"home"`
		Away UpstreamTeamRef `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

// UpstreamTeamRef 赛程中内嵌的球队引用
type UpstreamTeamRef struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Winner *bool  `json:"winner"`
}

// UpstreamTeam 球队条目（/teams端点）
type UpstreamTeam struct {
	Team struct {
		ID      uint64 `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"team"`
	Venue struct {
		Name string `json:"name"`
	} `json:"venue"`
}
