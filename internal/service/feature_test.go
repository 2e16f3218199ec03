package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"MatchOracle/internal/config"
	"MatchOracle/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeNotFound = errors.New("记录不存在")

// fakeFixtureStore 内存假存储（只读侧）
type fakeFixtureStore struct {
	fixtures map[uint64]*model.Fixture
	matches  map[uint64][]*model.MatchRecord
	h2h      []*model.MatchRecord
}

func newFakeFixtureStore() *fakeFixtureStore {
	return &fakeFixtureStore{
		fixtures: map[uint64]*model.Fixture{},
		matches:  map[uint64][]*model.MatchRecord{},
	}
}

func (f *fakeFixtureStore) GetFixture(_ context.Context, id uint64) (*model.Fixture, error) {
	fx, ok := f.fixtures[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return fx, nil
}

func (f *fakeFixtureStore) GetTeam(_ context.Context, id uint64) (*model.Team, error) {
	return nil, errFakeNotFound
}

func (f *fakeFixtureStore) GetRecentMatches(_ context.Context, teamID uint64, n int) ([]*model.MatchRecord, error) {
	matches := f.matches[teamID]
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func (f *fakeFixtureStore) GetHeadToHead(_ context.Context, _, _ uint64) ([]*model.MatchRecord, error) {
	return f.h2h, nil
}

// fakeSignalStore 内存假信号存储
type fakeSignalStore struct {
	signals map[string]*model.ScrapedSignal
	applied bool // UpsertSignal 的固定返回
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{signals: map[string]*model.ScrapedSignal{}, applied: true}
}

func signalKey(dataType, subjectID string) string { return dataType + "|" + subjectID }

func (f *fakeSignalStore) UpsertSignal(_ context.Context, signal *model.ScrapedSignal) (bool, error) {
	f.signals[signalKey(signal.DataType, signal.SubjectID)] = signal
	return f.applied, nil
}

func (f *fakeSignalStore) LatestSignal(_ context.Context, dataType, subjectID string) (*model.ScrapedSignal, error) {
	signal, ok := f.signals[signalKey(dataType, subjectID)]
	if !ok {
		return nil, errFakeNotFound
	}
	return signal, nil
}

func testPredictionConfig() *config.PredictionConfig {
	return &config.PredictionConfig{
		FormSampleSize:     6,
		MarketNudgeCap:     2.0,
		DriftThreshold:     0.08,
		InjuryAdjustCap:    3.0,
		InjuryGapThreshold: 2.0,
		TopFactorLimit:     4,
		NormalizeTolerance: 0.1,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testNow = time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func seedFixture(store *fakeFixtureStore) {
	store.fixtures[101] = &model.Fixture{
		ID: 101, League: "39", Season: "2025",
		HomeTeamID: 1, AwayTeamID: 2,
		KickoffAt: testNow.Add(24 * time.Hour), Status: "scheduled",
	}
}

func putOddsSignal(signals *fakeSignalStore, fixtureID uint64, payload string, capturedAt time.Time, ttl int) {
	signals.signals[signalKey("odds", fmt.Sprintf("%d", fixtureID))] = &model.ScrapedSignal{
		Source: "oddsbot", DataType: "odds", SubjectID: fmt.Sprintf("%d", fixtureID),
		Payload: []byte(payload), CapturedAt: capturedAt, TTLSeconds: ttl,
	}
}

func putInjurySignal(signals *fakeSignalStore, fixtureID uint64, payload string, capturedAt time.Time, ttl int) {
	signals.signals[signalKey("injuries", fmt.Sprintf("%d", fixtureID))] = &model.ScrapedSignal{
		Source: "newsbot", DataType: "injuries", SubjectID: fmt.Sprintf("%d", fixtureID),
		Payload: []byte(payload), CapturedAt: capturedAt, TTLSeconds: ttl,
	}
}

func TestExtractFixtureNotFound(t *testing.T) {
	svc := NewFeatureService(newFakeFixtureStore(), newFakeSignalStore(), testPredictionConfig(), fixedClock, testLogger())
	_, err := svc.Extract(context.Background(), 999)
	assert.ErrorIs(t, err, errFakeNotFound)
}

func TestExtractNeutralValuesWithoutHistory(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	svc := NewFeatureService(store, newFakeSignalStore(), testPredictionConfig(), fixedClock, testLogger())

	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)

	// 无历史数据取中性值而非报错
	assert.Equal(t, 0.5, fs.Form.Home)
	assert.Equal(t, 0.5, fs.Form.Away)
	assert.Equal(t, 1.2, fs.ExpectedGoals.Home)
	assert.Equal(t, 0.0, fs.HeadToHead)
	assert.Equal(t, 0.0, fs.DataQualityScore)
	assert.Equal(t, []string{model.SourceAPI}, fs.DataSources)
	assert.Nil(t, fs.MarketMetrics)
	assert.Nil(t, fs.InjuryImpact)
}

func TestExtractFormAndExpectedGoals(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)

	// 主队(1)：两胜一平 → 积分率 7/9；xG存在时优先用xG
	store.matches[1] = []*model.MatchRecord{
		{HomeTeamID: 1, AwayTeamID: 5, HomeGoals: 2, AwayGoals: 0, HomeXG: 1.8, AwayXG: 0.5},
		{HomeTeamID: 6, AwayTeamID: 1, HomeGoals: 1, AwayGoals: 3, HomeXG: 1.1, AwayXG: 2.4},
		{HomeTeamID: 1, AwayTeamID: 7, HomeGoals: 1, AwayGoals: 1}, // 无xG退回真实进球
	}
	// 客队(2)：三连败
	store.matches[2] = []*model.MatchRecord{
		{HomeTeamID: 2, AwayTeamID: 5, HomeGoals: 0, AwayGoals: 2, HomeXG: 0.6, AwayXG: 1.9},
		{HomeTeamID: 6, AwayTeamID: 2, HomeGoals: 3, AwayGoals: 1, HomeXG: 2.2, AwayXG: 0.8},
		{HomeTeamID: 2, AwayTeamID: 7, HomeGoals: 0, AwayGoals: 1, HomeXG: 0.4, AwayXG: 1.0},
	}

	svc := NewFeatureService(store, newFakeSignalStore(), testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)

	assert.InDelta(t, 7.0/9.0, fs.Form.Home, 1e-9)
	assert.InDelta(t, 0.0, fs.Form.Away, 1e-9)
	// 主队场均：(1.8 + 2.4 + 1) / 3
	assert.InDelta(t, (1.8+2.4+1.0)/3.0, fs.ExpectedGoals.Home, 1e-9)
	assert.InDelta(t, (0.6+0.8+0.4)/3.0, fs.ExpectedGoals.Away, 1e-9)
}

func TestHeadToHeadBias(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	// 主队(1)两胜，客队(2)一胜，一平 → (2-1)/4
	store.h2h = []*model.MatchRecord{
		{HomeTeamID: 1, AwayTeamID: 2, HomeGoals: 2, AwayGoals: 0},
		{HomeTeamID: 2, AwayTeamID: 1, HomeGoals: 0, AwayGoals: 1},
		{HomeTeamID: 2, AwayTeamID: 1, HomeGoals: 2, AwayGoals: 1},
		{HomeTeamID: 1, AwayTeamID: 2, HomeGoals: 1, AwayGoals: 1},
	}

	svc := NewFeatureService(store, newFakeSignalStore(), testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, fs.HeadToHead, 1e-9)
}

func TestMarketDriftTowardHome(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()

	// 主队赔率缩水 2.0→1.8，客队放大 3.5→3.8：资金流向主队
	putOddsSignal(signals, 101, `{
		"bookmaker": "bet365",
		"opening": {"home": 2.0, "draw": 3.4, "away": 3.5},
		"current": {"home": 1.8, "draw": 3.5, "away": 3.8}
	}`, testNow.Add(-time.Minute), 600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)

	require.NotNil(t, fs.MarketMetrics)
	homeShift := (1.0/1.8 - 1.0/2.0) / (1.0 / 2.0)
	awayShift := (1.0/3.8 - 1.0/3.5) / (1.0 / 3.5)
	assert.InDelta(t, homeShift-awayShift, fs.MarketMetrics.DriftVelocity, 1e-9)
	assert.Equal(t, "home", fs.MarketMetrics.Sentiment)
	assert.Contains(t, fs.DataSources, model.SourceScraperOdds)
	assert.Equal(t, 0.5, fs.DataQualityScore)
}

func TestMarketSentimentNeutralAndAway(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()

	// 几乎无漂移 → neutral
	putOddsSignal(signals, 101, `{
		"opening": {"home": 2.0, "draw": 3.4, "away": 3.5},
		"current": {"home": 2.0, "draw": 3.4, "away": 3.5}
	}`, testNow.Add(-time.Minute), 600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)
	require.NotNil(t, fs.MarketMetrics)
	assert.Equal(t, "neutral", fs.MarketMetrics.Sentiment)

	// 客队赔率明显缩水 → away
	putOddsSignal(signals, 101, `{
		"opening": {"home": 2.0, "draw": 3.4, "away": 3.5},
		"current": {"home": 2.2, "draw": 3.4, "away": 3.0}
	}`, testNow.Add(-time.Minute), 600)
	fs, err = svc.Extract(context.Background(), 101)
	require.NoError(t, err)
	require.NotNil(t, fs.MarketMetrics)
	assert.Equal(t, "away", fs.MarketMetrics.Sentiment)
	assert.Less(t, fs.MarketMetrics.DriftVelocity, 0.0)
}

func TestStaleSignalSkipped(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()

	// TTL 600秒，采集于20分钟前 → 过期信号只降质量分，不参与特征
	putOddsSignal(signals, 101, `{
		"opening": {"home": 2.0, "draw": 3.4, "away": 3.5},
		"current": {"home": 1.8, "draw": 3.5, "away": 3.8}
	}`, testNow.Add(-20*time.Minute), 600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)
	assert.Nil(t, fs.MarketMetrics)
	assert.NotContains(t, fs.DataSources, model.SourceScraperOdds)
	assert.Equal(t, 0.0, fs.DataQualityScore)
}

func TestCorruptSignalSkipped(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()
	putOddsSignal(signals, 101, `{"opening": "坏数据`, testNow.Add(-time.Minute), 600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)
	assert.Nil(t, fs.MarketMetrics)
}

func TestInjuryImpactScoring(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()

	putInjurySignal(signals, 101, `{
		"home": {"count": 2, "key_players": 1, "severity": 1.5},
		"away": {"count": 0, "key_players": 0, "severity": 0}
	}`, testNow.Add(-time.Minute), 3600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)

	require.NotNil(t, fs.InjuryImpact)
	// (2 + 1*2) * (1 + 1.5/3) * 0.8 = 4.8
	assert.InDelta(t, 4.8, fs.InjuryImpact.Home, 1e-9)
	assert.Equal(t, 0.0, fs.InjuryImpact.Away)
	assert.Contains(t, fs.DataSources, model.SourceScraperInjuries)
}

func TestInjuryScoreCappedAtTen(t *testing.T) {
	score := injuryScore(sideInjuries{Count: 10, KeyPlayers: 5, Severity: 3})
	assert.Equal(t, 10.0, score)
}

func TestFullQualityWithBothSignals(t *testing.T) {
	store := newFakeFixtureStore()
	seedFixture(store)
	signals := newFakeSignalStore()
	putOddsSignal(signals, 101, `{
		"opening": {"home": 2.0, "draw": 3.4, "away": 3.5},
		"current": {"home": 1.9, "draw": 3.4, "away": 3.6}
	}`, testNow.Add(-time.Minute), 600)
	putInjurySignal(signals, 101, `{
		"home": {"count": 1, "key_players": 0, "severity": 1},
		"away": {"count": 3, "key_players": 2, "severity": 2}
	}`, testNow.Add(-time.Minute), 3600)

	svc := NewFeatureService(store, signals, testPredictionConfig(), fixedClock, testLogger())
	fs, err := svc.Extract(context.Background(), 101)
	require.NoError(t, err)

	assert.Equal(t, 1.0, fs.DataQualityScore)
	assert.Equal(t, []string{model.SourceAPI, model.SourceScraperOdds, model.SourceScraperInjuries}, fs.DataSources)

	// JSON序列化后可选字段存在
	payload, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "market_metrics")
}
