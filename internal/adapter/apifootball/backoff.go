package apifootball

import (
	"math/rand"
	"sync"
	"time"
)

// BackoffPolicy 指数退避+抖动。NextDelay是纯计算（抖动来自注入的随机源），
// 调用方只做有界循环，挂起点仅在网络调用处
type BackoffPolicy struct {
	Base   time.Duration // 首次重试间隔
	Max    time.Duration // 间隔上限
	Jitter float64       // 抖动比例，如0.2表示±20%
	mu     sync.Mutex    // rand.Rand非并发安全，策略被所有请求goroutine共享
	rng    *rand.Rand
}

// NewBackoffPolicy 创建退避策略，seed固定时输出可复现（单测用）
func NewBackoffPolicy(base, max time.Duration, jitter float64, seed int64) *BackoffPolicy {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 8 * time.Second
	}
	return &BackoffPolicy{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NextDelay 第attempt次重试前的等待时长（attempt从0开始）：base * 2^attempt，封顶后加抖动
func (p *BackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.Max {
			delay = p.Max
			break
		}
	}

	if p.Jitter > 0 {
		// 抖动范围 [-Jitter, +Jitter]
		p.mu.Lock()
		roll := p.rng.Float64()
		p.mu.Unlock()
		factor := 1.0 + p.Jitter*(roll*2.0-1.0)
		delay = time.Duration(float64(delay) * factor)
	}
	if delay > p.Max {
		delay = p.Max
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
