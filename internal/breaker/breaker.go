package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State 熔断器状态
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrOpen 熔断打开期间的短路错误（调用方转缓存/兜底，不发网络请求）
var ErrOpen = errors.New("熔断器处于OPEN状态，请求被短路")

// Clock 注入式时钟
type Clock func() time.Time

// Snapshot 某一端点类别的熔断状态快照（健康检查用）
type Snapshot struct {
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	OpenedAt             time.Time `json:"opened_at,omitempty"`
}

// endpointBreaker 单个端点类别的熔断状态，转换必须原子（每类一把锁即可，无需全局锁）
type endpointBreaker struct {
	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	halfOpenInFlight     bool // HALF_OPEN只放行一个试探请求
}

// Breaker 按端点类别隔离的熔断器集合。
// 核心规则：语义为空但格式合法的响应记success，只有传输错误/限流/畸形响应记failure——
// 把"没有数据"当失败会导致误熔断与连锁降级
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       Clock
	logger    *logrus.Logger
	endpoints map[string]*endpointBreaker
}

// New 创建熔断器，threshold为连续失败阈值，cooldown为OPEN后的冷却窗口
func New(threshold int, cooldown time.Duration, clock Clock, logger *logrus.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       clock,
		logger:    logger,
		endpoints: make(map[string]*endpointBreaker),
	}
}

// forEndpoint 取出（或惰性创建）端点类别的状态
func (b *Breaker) forEndpoint(endpointClass string) *endpointBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	eb, ok := b.endpoints[endpointClass]
	if !ok {
		eb = &endpointBreaker{state: StateClosed}
		b.endpoints[endpointClass] = eb
	}
	return eb
}

// Allow 请求放行判定。OPEN期间冷却未到返回ErrOpen；冷却已过转HALF_OPEN放行一个试探请求
func (b *Breaker) Allow(endpointClass string) error {
	eb := b.forEndpoint(endpointClass)
	eb.mu.Lock()
	defer eb.mu.Unlock()

	switch eb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(eb.openedAt) < b.cooldown {
			return ErrOpen
		}
		// 冷却期已过，进入半开试探
		eb.state = StateHalfOpen
		eb.halfOpenInFlight = true
		b.logger.WithField("endpoint", endpointClass).Info("熔断器冷却结束，进入HALF_OPEN试探")
		return nil
	case StateHalfOpen:
		if eb.halfOpenInFlight {
			return ErrOpen // 试探请求尚未返回，其余请求继续短路
		}
		eb.halfOpenInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess 记录成功（包括"结果为空但格式合法"的响应）
func (b *Breaker) RecordSuccess(endpointClass string) {
	eb := b.forEndpoint(endpointClass)
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.consecutiveFailures = 0
	eb.consecutiveSuccesses++
	eb.halfOpenInFlight = false

	if eb.state == StateHalfOpen {
		eb.state = StateClosed
		b.logger.WithField("endpoint", endpointClass).Info("试探请求成功，熔断器恢复CLOSED")
	}
}

// RecordFailure 记录失败。CLOSED下连续失败达阈值转OPEN；HALF_OPEN下试探失败立即重新熔断
func (b *Breaker) RecordFailure(endpointClass string) {
	eb := b.forEndpoint(endpointClass)
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.consecutiveSuccesses = 0
	eb.consecutiveFailures++
	eb.halfOpenInFlight = false

	switch eb.state {
	case StateClosed:
		if eb.consecutiveFailures >= b.threshold {
			eb.state = StateOpen
			eb.openedAt = b.now()
			b.logger.WithFields(logrus.Fields{
				"endpoint": endpointClass,
				"failures": eb.consecutiveFailures,
			}).Warn("连续失败达到阈值，熔断器打开")
		}
	case StateHalfOpen:
		eb.state = StateOpen
		eb.openedAt = b.now()
		b.logger.WithField("endpoint", endpointClass).Warn("试探请求失败，熔断器重新打开")
	}
}

// State 当前状态（先走一次Allow相同的冷却判定会改状态，这里只读不动）
func (b *Breaker) State(endpointClass string) State {
	eb := b.forEndpoint(endpointClass)
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.state
}

// Snapshot 全部端点类别的状态快照
func (b *Breaker) Snapshot() map[string]Snapshot {
	b.mu.Lock()
	classes := make([]string, 0, len(b.endpoints))
	for class := range b.endpoints {
		classes = append(classes, class)
	}
	b.mu.Unlock()

	snaps := make(map[string]Snapshot, len(classes))
	for _, class := range classes {
		eb := b.forEndpoint(class)
		eb.mu.Lock()
		snaps[class] = Snapshot{
			State:                eb.state,
			ConsecutiveFailures:  eb.consecutiveFailures,
			ConsecutiveSuccesses: eb.consecutiveSuccesses,
			OpenedAt:             eb.openedAt,
		}
		eb.mu.Unlock()
	}
	return snaps
}
