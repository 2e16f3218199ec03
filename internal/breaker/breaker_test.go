package breaker

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(threshold, cooldown, clock.Now, logger), clock
}

func TestClosedAllowsRequests(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)
	assert.NoError(t, b.Allow("fixtures"))
	assert.Equal(t, StateClosed, b.State("fixtures"))
}

func TestOpensAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure("fixtures")
		assert.Equal(t, StateClosed, b.State("fixtures"))
	}
	b.RecordFailure("fixtures")
	assert.Equal(t, StateOpen, b.State("fixtures"))
	assert.ErrorIs(t, b.Allow("fixtures"), ErrOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure("teams")
	b.RecordFailure("teams")
	b.RecordSuccess("teams")
	b.RecordFailure("teams")
	b.RecordFailure("teams")

	// 中间的成功清零计数，两次新失败不足以熔断
	assert.Equal(t, StateClosed, b.State("teams"))
}

func TestCooldownTransitionsToHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure("fixtures")
	b.RecordFailure("fixtures")
	require.Equal(t, StateOpen, b.State("fixtures"))

	// 冷却期内继续短路
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, b.Allow("fixtures"), ErrOpen)

	// 冷却期过后放行一个试探请求
	clock.Advance(31 * time.Second)
	assert.NoError(t, b.Allow("fixtures"))
	assert.Equal(t, StateHalfOpen, b.State("fixtures"))

	// 试探未返回前其他请求继续短路
	assert.ErrorIs(t, b.Allow("fixtures"), ErrOpen)
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure("fixtures")
	b.RecordFailure("fixtures")
	clock.Advance(2 * time.Minute)
	require.NoError(t, b.Allow("fixtures"))

	b.RecordSuccess("fixtures")
	assert.Equal(t, StateClosed, b.State("fixtures"))
	assert.NoError(t, b.Allow("fixtures"))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure("fixtures")
	b.RecordFailure("fixtures")
	clock.Advance(2 * time.Minute)
	require.NoError(t, b.Allow("fixtures"))

	b.RecordFailure("fixtures")
	assert.Equal(t, StateOpen, b.State("fixtures"))
	assert.ErrorIs(t, b.Allow("fixtures"), ErrOpen)

	// 重新熔断后冷却窗口重新计时
	clock.Advance(2 * time.Minute)
	assert.NoError(t, b.Allow("fixtures"))
}

func TestEndpointIsolation(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	b.RecordFailure("fixtures")
	b.RecordFailure("fixtures")

	// fixtures熔断不影响teams
	assert.Equal(t, StateOpen, b.State("fixtures"))
	assert.Equal(t, StateClosed, b.State("teams"))
	assert.NoError(t, b.Allow("teams"))
}

func TestSnapshot(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	b.RecordSuccess("fixtures")
	b.RecordFailure("teams")
	b.RecordFailure("teams")

	snaps := b.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, StateClosed, snaps["fixtures"].State)
	assert.Equal(t, 1, snaps["fixtures"].ConsecutiveSuccesses)
	assert.Equal(t, StateOpen, snaps["teams"].State)
	assert.Equal(t, 2, snaps["teams"].ConsecutiveFailures)
}
