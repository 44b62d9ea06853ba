package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsloop/autopilot/internal/kvstore"
)

func newTestExecutor(t *testing.T, dryRun bool) (*Executor, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewExecutor(store, nil, dryRun, time.Second), store
}

func proposal(service string) ProposeRequest {
	return ProposeRequest{
		IncidentID: "inc-1",
		ActionType: "restart_service",
		Service:    service,
		Reasoning:  "memory leak suspected",
		Risk:       RiskLow,
		ProposedBy: "autopilot",
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	e, store := newTestExecutor(t, true)
	ctx := context.Background()

	a, err := e.Propose(ctx, proposal("api"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "kubernetes", a.ActionCategory)

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	assert.Contains(t, pending, a.ID)

	done, err := e.Approve(ctx, a.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, done.Status)
	assert.Equal(t, "oncall", done.ApprovedBy)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.DryRun)
	require.NotNil(t, done.CompletedAt)

	// Queues are drained.
	pending, err = e.Pending(ctx)
	require.NoError(t, err)
	assert.NotContains(t, pending, a.ID)
	n, err := store.LLen(ctx, approvedQueue)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidTransitions(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	ctx := context.Background()

	a, err := e.Propose(ctx, proposal("api"))
	require.NoError(t, err)

	// Execute before approval is rejected.
	_, err = e.Execute(ctx, a.ID)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusPending, ite.From)

	// Double approval is rejected; terminal states never change.
	done, err := e.Approve(ctx, a.ID, "oncall")
	require.NoError(t, err)
	require.True(t, done.Status.Terminal())

	_, err = e.Approve(ctx, a.ID, "oncall")
	require.ErrorAs(t, err, &ite)

	_, err = e.Cancel(ctx, a.ID, "too late")
	require.ErrorAs(t, err, &ite)

	got, err := e.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestCancelPending(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	ctx := context.Background()

	a, err := e.Propose(ctx, proposal("api"))
	require.NoError(t, err)

	cancelled, err := e.Cancel(ctx, a.ID, "operator said no")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "operator said no", cancelled.Error)

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	assert.NotContains(t, pending, a.ID)
}

func TestSuccessRateTracking(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := e.Propose(ctx, proposal("api"))
		require.NoError(t, err)
		_, err = e.Approve(ctx, a.ID, "oncall")
		require.NoError(t, err)
	}

	rate, total, err := e.SuccessRate(ctx, "restart_service", "api")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.InDelta(t, 1.0, rate, 0.001)

	// Unknown pair has no data.
	rate, total, err = e.SuccessRate(ctx, "rollback_deploy", "api")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, rate)
}

func TestDryRunFlagPropagates(t *testing.T) {
	e, _ := newTestExecutor(t, false)
	ctx := context.Background()

	a, err := e.Propose(ctx, proposal("api"))
	require.NoError(t, err)
	done, err := e.Approve(ctx, a.ID, "oncall")
	require.NoError(t, err)
	require.NotNil(t, done.Result)
	assert.False(t, done.Result.DryRun)
}

func TestCategoryDispatch(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	ctx := context.Background()

	req := proposal("api")
	req.ActionType = "rollback_deploy"
	a, err := e.Propose(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cicd", a.ActionCategory)

	req.ActionType = "made_up_action"
	a, err = e.Propose(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "generic", a.ActionCategory)

	done, err := e.Approve(ctx, a.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, done.Status)
}

func TestPopApproved(t *testing.T) {
	e, store := newTestExecutor(t, true)
	ctx := context.Background()

	_, err := e.PopApproved(ctx)
	assert.True(t, errors.Is(err, kvstore.ErrNotFound))

	require.NoError(t, store.LPush(ctx, approvedQueue, "some-id"))
	id, err := e.PopApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, "some-id", id)
}

func TestLoadMissingAction(t *testing.T) {
	e, _ := newTestExecutor(t, true)
	_, err := e.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, kvstore.ErrNotFound))
}
