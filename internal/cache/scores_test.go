package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func sampleResult() *models.Result {
	return &models.Result{
		RunID:       "run-1",
		Fingerprint: "abc123",
		Cutoff:      time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		GoalScores: []models.ScoreRow{
			{Provider: "Amy", Method: models.MethodGoal, Overall: models.Some(72.5)},
			{Provider: "Ben", Method: models.MethodGoal, Overall: models.Null()},
		},
	}
}

func newMiniredisCache(t *testing.T) (*ScoreCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewScoreCache(client, time.Hour, logger.NewTestLogger(t)), mr
}

// ==========================
// Key Tests
// ==========================

func TestKey(t *testing.T) {
	all := models.NewAnalysisScope(nil, nil, nil)
	north := models.NewAnalysisScope([]string{"North"}, nil, nil)
	reordered := models.NewAnalysisScope([]string{"South", "North"}, nil, nil)
	sorted := models.NewAnalysisScope([]string{"North", "South"}, nil, nil)

	assert.Equal(t, Key("fp", "p1", all), Key("fp", "p1", all))
	assert.NotEqual(t, Key("fp", "p1", all), Key("fp", "p1", north))
	assert.NotEqual(t, Key("fp", "p1", all), Key("other", "p1", all))
	assert.NotEqual(t, Key("fp", "p1", all), Key("fp", "p2", all))
	assert.Equal(t, Key("fp", "p1", reordered), Key("fp", "p1", sorted))
	assert.Contains(t, Key("fp", "p1", all), keyPrefix+"fp:p1:")
}

// ==========================
// Round Trip Tests
// ==========================

func TestScoreCache_PutGet(t *testing.T) {
	c, mr := newMiniredisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k1", sampleResult()))
	assert.Equal(t, time.Hour, mr.TTL("k1"))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "abc123", got.Fingerprint)
	require.Len(t, got.GoalScores, 2)
	assert.Equal(t, models.Some(72.5), got.GoalScores[0].Overall)
	assert.False(t, got.GoalScores[1].Overall.Valid)
	assert.True(t, got.Cutoff.Equal(sampleResult().Cutoff))
}

func TestScoreCache_StoresCompressed(t *testing.T) {
	c, mr := newMiniredisCache(t)

	require.NoError(t, c.Put(context.Background(), "k1", sampleResult()))

	raw, err := mr.Get("k1")
	require.NoError(t, err)
	assert.NotContains(t, raw, `"runId"`)

	_, err = decode([]byte(raw))
	assert.NoError(t, err)
}

func TestScoreCache_Delete(t *testing.T) {
	c, mr := newMiniredisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k1", sampleResult()))
	require.NoError(t, c.Delete(ctx, "k1"))
	assert.False(t, mr.Exists("k1"))
}

// ==========================
// Error Tests
// ==========================

func TestScoreCache_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewScoreCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet("missing").RedisNil()

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCacheMiss, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreCache_GetFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewScoreCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet("k1").SetErr(errors.New("connection refused"))

	_, err := c.Get(context.Background(), "k1")

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCacheFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestScoreCache_CorruptEntry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewScoreCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet("k1").SetVal("not snappy")

	_, err := c.Get(context.Background(), "k1")

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCacheFailed, stdErr.Code)
	assert.Equal(t, "decode", stdErr.Metadata["operation"])
}

func TestScoreCache_PutFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewScoreCache(client, time.Minute, logger.NewTestLogger(t))

	data, err := encode(sampleResult())
	require.NoError(t, err)
	mock.ExpectSet("k1", data, time.Minute).SetErr(errors.New("READONLY"))

	err = c.Put(context.Background(), "k1", sampleResult())

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCacheFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
