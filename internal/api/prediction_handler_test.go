package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MatchOracle/internal/cache"
	"MatchOracle/internal/config"
	"MatchOracle/internal/model"
	"MatchOracle/internal/repository"
	"MatchOracle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFixtures 只含一场赛程的假存储
type fakeFixtures struct {
	fixture *model.Fixture
}

func (f *fakeFixtures) GetFixture(_ context.Context, id uint64) (*model.Fixture, error) {
	if f.fixture != nil && f.fixture.ID == id {
		return f.fixture, nil
	}
	return nil, repository.ErrFixtureNotFound
}

func (f *fakeFixtures) GetTeam(_ context.Context, _ uint64) (*model.Team, error) {
	return nil, repository.ErrTeamNotFound
}

func (f *fakeFixtures) GetRecentMatches(_ context.Context, _ uint64, _ int) ([]*model.MatchRecord, error) {
	return nil, nil
}

func (f *fakeFixtures) GetHeadToHead(_ context.Context, _, _ uint64) ([]*model.MatchRecord, error) {
	return nil, nil
}

func newPredictionRouter(fixtures *fakeFixtures) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	signals := newFakeSignals()
	featureSvc := service.NewFeatureService(fixtures, signals, &cfg.Prediction, time.Now, logger)
	predictionSvc := service.NewPredictionService(featureSvc, nil, &cfg.Prediction,
		cache.NewStore(16, time.Now), 5*time.Minute, time.Now, logger)

	r := gin.New()
	handler := NewPredictionHandler(predictionSvc, logger)
	r.GET("/api/predictions/:fixture_id", handler.GetPrediction)
	return r
}

func TestGetPredictionOK(t *testing.T) {
	r := newPredictionRouter(&fakeFixtures{fixture: &model.Fixture{
		ID: 101, League: "39", HomeTeamID: 1, AwayTeamID: 2,
		KickoffAt: time.Now().Add(24 * time.Hour), Status: "scheduled",
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/predictions/101", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result model.PredictionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, uint64(101), result.FixtureID)
	assert.InDelta(t, 100.0, result.Sum(), 0.1)
	assert.NotEmpty(t, result.PredictionID)
	assert.Contains(t, []string{"high", "medium", "low"}, result.Confidence)
}

func TestGetPredictionNotFound(t *testing.T) {
	r := newPredictionRouter(&fakeFixtures{})
	req := httptest.NewRequest(http.MethodGet, "/api/predictions/999", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPredictionBadID(t *testing.T) {
	r := newPredictionRouter(&fakeFixtures{})
	req := httptest.NewRequest(http.MethodGet, "/api/predictions/不是数字", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
