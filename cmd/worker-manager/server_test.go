package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relationship-metrics/internal/cache"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestServer(t *testing.T, checks map[string]readinessCheck) (*httptest.Server, *cache.ScoreCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	scores := cache.NewScoreCache(client, time.Hour, logger.NewTestLogger(t))
	srv := httptest.NewServer(newRouter(&server{
		results: scores,
		params:  "params-v1",
		checks:  checks,
		logger:  logger.NewTestLogger(t),
	}))
	t.Cleanup(srv.Close)
	return srv, scores
}

func cachedResult() *models.Result {
	return &models.Result{
		RunID:       "run-9",
		Fingerprint: "fp1",
		GoalScores:  []models.ScoreRow{{Provider: "Amy", Method: models.MethodGoal, Overall: models.Some(70)}},
		ZScores:     []models.ScoreRow{{Provider: "Amy", Method: models.MethodZScore, Overall: models.Null()}},
	}
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

// ==========================
// Health Endpoint Tests
// ==========================

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Ready(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	srv, _ := newTestServer(t, map[string]readinessCheck{"redis": ok, "zeebe": ok})
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/ready", nil))

	srv, _ = newTestServer(t, map[string]readinessCheck{"redis": ok, "zeebe": down})
	var body struct {
		Status string            `json:"status"`
		Failed map[string]string `json:"failed"`
	}
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/ready", &body))
	assert.Equal(t, map[string]string{"zeebe": "connection refused"}, body.Failed)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ==========================
// Score Endpoint Tests
// ==========================

func TestServer_Scores(t *testing.T) {
	srv, scores := newTestServer(t, nil)
	scope := models.NewAnalysisScope([]string{"North", "South"}, nil, []string{"Zed"})
	require.NoError(t, scores.Put(context.Background(), cache.Key("fp1", "params-v1", scope), cachedResult()))

	var body scoresResponse
	status := getJSON(t, srv.URL+"/scores/fp1?locations=South,North&exclude=Zed", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run-9", body.RunID)
	assert.Equal(t, "goal", body.Method)
	require.Len(t, body.Scores, 1)
	assert.Equal(t, models.Some(70), body.Scores[0].Overall)

	status = getJSON(t, srv.URL+"/scores/fp1?locations=North&locations=South&exclude=Zed&method=zscore", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "zscore", body.Method)
	assert.False(t, body.Scores[0].Overall.Valid)
}

func TestServer_ScoresIgnoresOtherSettings(t *testing.T) {
	srv, scores := newTestServer(t, nil)
	all := models.NewAnalysisScope(nil, nil, nil)
	require.NoError(t, scores.Put(context.Background(), cache.Key("fp1", "params-v0", all), cachedResult()))

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/scores/fp1", nil))
}

func TestServer_ScoresErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/scores/unknown", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/scores/fp1?method=median", nil))

	resp, err := http.Post(srv.URL+"/scores/fp1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, splitList([]string{"C, A", "B", " "}))
	assert.Nil(t, splitList(nil))
}
