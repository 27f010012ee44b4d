package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyConvergesAndSecondCycleIsQuiet(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	store.addShow(1, "Morning Drive")
	start, end := slot(20, 14)
	store.addEpisode(10, 1, "501", start, end)

	e := testEngine(store, api, planNow)
	plan, report, err := e.Reconcile(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Summary.Create)
	require.Equal(t, 1, report.Created)
	require.NotEmpty(t, report.SnapshotID)
	require.Empty(t, report.Errors)

	// the second cycle finds nothing to do
	plan2, report2, err := e.Reconcile(context.Background(), ApplyOptions{})
	require.NoError(t, err)
	require.Empty(t, plan2.Ensure)
	require.Empty(t, plan2.Remove)
	require.Zero(t, report2.Created)
	require.Zero(t, report2.Updated)
	require.Zero(t, report2.Deleted)
	require.Equal(t, 1, api.createPlayoutCalls)
}

// An ensure op that turns out to already match the engine is reported as
// unchanged, not lumped in with episodes the plan could not place.
func TestApplyCountsIdempotentEnsuresAsUnchanged(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	store.addShow(1, "Morning Drive")
	start, end := slot(20, 14)
	store.addEpisode(10, 1, "501", start, end)

	e := testEngine(store, api, planNow)
	plan, err := e.Plan(context.Background(), planNow)
	require.NoError(t, err)
	require.Len(t, plan.Ensure, 1)

	// the item gets provisioned out of band between diff and apply
	res := e.PlanOne(context.Background(), 10, 1, plan.Ensure[0].Start, plan.Ensure[0].End)
	require.True(t, res.Success)

	report, err := e.Apply(context.Background(), plan, ApplyOptions{SkipSnapshot: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.Unchanged)
	require.Zero(t, report.Created)
	require.Zero(t, report.Skipped)
	require.Equal(t, 1, api.createPlayoutCalls)
}

func TestApplyRemovesOrphansAndEmptyInstances(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()

	inst := api.addInstance(900, planNow.Add(2*time.Hour), planNow.Add(4*time.Hour))
	orphan := api.addPlayout(inst.ID, int64Ptr(777), planNow.Add(2*time.Hour), planNow.Add(3*time.Hour))
	empty := api.addInstance(900, planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))

	e := testEngine(store, api, planNow)
	plan, err := e.Plan(context.Background(), planNow)
	require.NoError(t, err)

	report, err := e.Apply(context.Background(), plan, ApplyOptions{SkipSnapshot: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, 1, report.InstancesDeleted)
	require.NotContains(t, api.playouts, orphan.ID)
	require.NotContains(t, api.instances, empty.ID)
	// inst held the orphan at diff time, so it was never an instance candidate
	require.Contains(t, api.instances, inst.ID)
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	store.addShow(1, "Morning Drive")
	start, end := slot(20, 14)
	store.addEpisode(10, 1, "501", start, end)
	inst := api.addInstance(900, planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))

	e := testEngine(store, api, planNow)
	plan, err := e.Plan(context.Background(), planNow)
	require.NoError(t, err)

	report, err := e.Apply(context.Background(), plan, ApplyOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.InstancesDeleted)
	require.Empty(t, report.SnapshotID)

	require.Zero(t, api.createPlayoutCalls)
	require.Contains(t, api.instances, inst.ID)
	require.Nil(t, store.episodes[10].PlayoutID)
}

func TestApplyRechecksInstanceEmptinessBeforeDelete(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	empty := api.addInstance(900, planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))

	e := testEngine(store, api, planNow)
	plan, err := e.Plan(context.Background(), planNow)
	require.NoError(t, err)
	require.Equal(t, []int{empty.ID}, plan.RemoveInstances)

	// a playout lands in the instance between diff and apply
	api.addPlayout(empty.ID, int64Ptr(888), planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))

	report, err := e.Apply(context.Background(), plan, ApplyOptions{SkipSnapshot: true})
	require.NoError(t, err)
	require.Zero(t, report.InstancesDeleted)
	require.Contains(t, api.instances, empty.ID)
}

func TestApplyCollectsPerItemErrorsWithoutAborting(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	store.addShow(1, "Morning Drive")
	start, end := slot(20, 14)
	store.addEpisode(10, 1, "501", start, end)
	inst := api.addInstance(900, planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))
	api.failCreatePlayout = true

	e := testEngine(store, api, planNow)
	plan, err := e.Plan(context.Background(), planNow)
	require.NoError(t, err)

	report, err := e.Apply(context.Background(), plan, ApplyOptions{SkipSnapshot: true})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.Zero(t, report.Created)
	// the removal phase still ran after the ensure failure
	require.NotContains(t, api.instances, inst.ID)
}
