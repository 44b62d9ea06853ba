package decisionlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/kvstore"
)

func newTestLogger(t *testing.T) (*Logger, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewLogger(store), store
}

func sampleLog(id string) *DecisionLog {
	return &DecisionLog{
		DecisionID:      id,
		Service:         "payment-api",
		ActionType:      "rollback_deploy",
		Decision:        DecisionApproved,
		FinalConfidence: 86.5,
		Threshold:       75,
		ExecutionMode:   "autonomous",
		Contributions: []Contribution{
			{Source: "rule", Value: 95, Weight: 0.4, Weighted: 38},
			{Source: "ai", Value: 85, Weight: 0.4, Weighted: 34},
			{Source: "history", Value: 72.5, Weight: 0.2, Weighted: 14.5},
		},
		SafetyChecks: []SafetyCheck{{Name: "cooldown", Passed: true}},
	}
}

func TestRecordAndGet(t *testing.T) {
	l, _ := newTestLogger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, sampleLog("d1")))

	got, err := l.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, got.Decision)
	assert.Len(t, got.Contributions, 3)
	assert.False(t, got.Timestamp.IsZero())
}

func TestRecordRequiresID(t *testing.T) {
	l, _ := newTestLogger(t)
	err := l.Record(context.Background(), &DecisionLog{Service: "api"})
	assert.Error(t, err)
}

func TestSetOutcomeInPlace(t *testing.T) {
	l, _ := newTestLogger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, sampleLog("d1")))
	require.NoError(t, l.SetOutcome(ctx, "d1", "success"))

	got, err := l.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "success", got.Outcome)
}

func TestRecentNewestFirst(t *testing.T) {
	l, _ := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, sampleLog(fmt.Sprintf("d%d", i))))
	}

	recent, err := l.Recent(ctx, "payment-api", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "d4", recent[0].DecisionID)
}

func TestTimelineCapped(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, l.Record(ctx, sampleLog(fmt.Sprintf("d%d", i))))
	}
	n, err := store.LLen(ctx, timelineKey)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(timelineCap))
	assert.Equal(t, int64(12), n)
}
