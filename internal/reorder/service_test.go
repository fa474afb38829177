package reorder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/patrikvak/singq/internal/models"
	"github.com/patrikvak/singq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBroadcaster captures dispatched events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*models.ReorderAppliedEvent
}

func (b *recordingBroadcaster) ReorderApplied(_ context.Context, ev *models.ReorderAppliedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) dispatched() []*models.ReorderAppliedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.ReorderAppliedEvent(nil), b.events...)
}

// fakeOptimizer returns a canned result, so workflow tests control the
// proposed ordering exactly.
type fakeOptimizer struct {
	result *Result
	err    error
}

func (f *fakeOptimizer) Optimize(_ *models.QueueSnapshot, _ Constraints) (*Result, error) {
	return f.result, f.err
}

type serviceFixture struct {
	svc       *Service
	st        *store.Store
	plans     *DualPlanStore
	broadcast *recordingBroadcaster
}

func newServiceFixture(t *testing.T, optimizer Optimizer) *serviceFixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "singq.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	plans := NewDualPlanStore(st, slog.Default())
	broadcaster := &recordingBroadcaster{}
	svc := NewService(st, plans, st, broadcaster, optimizer, Config{PlanTTL: 5 * time.Minute}, slog.Default())

	return &serviceFixture{svc: svc, st: st, plans: plans, broadcast: broadcaster}
}

func (f *serviceFixture) seedQueue(t *testing.T, eventID int64, singers ...string) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, singer := range singers {
		require.NoError(t, f.st.AddEntry(&models.QueueEntry{
			ID:        fmt.Sprintf("e%d", i),
			EventID:   eventID,
			Singer:    singer,
			Active:    true,
			Position:  i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

// scenarioOptimizer reproduces the four-entry proposal: the frozen head
// stays at 0 and the rest rotate to [e0, e2, e3, e1].
func scenarioOptimizer() *fakeOptimizer {
	items := []models.PlanItem{
		{QueueID: "e0", OriginalIndex: 0, ProposedIndex: 0, IsLocked: true},
		{QueueID: "e2", OriginalIndex: 2, ProposedIndex: 1, Movement: -1},
		{QueueID: "e3", OriginalIndex: 3, ProposedIndex: 2, Movement: -1},
		{QueueID: "e1", OriginalIndex: 1, ProposedIndex: 3, Movement: 2},
	}
	assignments := []models.Assignment{
		{QueueID: "e2", Position: 1},
		{QueueID: "e3", Position: 2},
		{QueueID: "e1", Position: 3},
	}
	return &fakeOptimizer{result: &Result{
		Items:       items,
		Assignments: assignments,
		Summary:     models.PlanSummary{MoveCount: 3},
	}}
}

func TestService_PreviewApplyEndToEnd(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)
	require.NotEmpty(t, preview.PlanID)
	assert.Equal(t, 3, preview.Summary.MoveCount)

	applied, err := f.svc.Apply(ctx, ApplyRequest{
		EventID:        100,
		PlanID:         preview.PlanID,
		BasedOnVersion: preview.BasedOnVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied.MoveCount)
	assert.NotEqual(t, preview.BasedOnVersion, applied.AppliedVersion)

	// Resulting order is [e0, e2, e3, e1].
	entries, err := f.st.EligibleEntries(100)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"e0", "e2", "e3", "e1"}, ids)

	// Exactly two audit records, in order PREVIEW then APPLY.
	records, err := f.st.AuditForEvent(100)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ActionPreview, records[0].Action)
	assert.Equal(t, models.ActionApply, records[1].Action)
	assert.Equal(t, preview.PlanID, records[1].PlanID)

	// The plan is gone from both cache and durable store.
	assert.Equal(t, 0, f.plans.CacheSize())
	row, err := f.st.GetPlan(preview.PlanID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, row)

	// Broadcast dispatched exactly once, naming exactly the entries
	// whose stored position changed.
	events := f.broadcast.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, int64(100), events[0].EventID)
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, events[0].MovedQueueIDs)
	assert.Equal(t, applied.AppliedVersion, events[0].Version)
	assert.Len(t, events[0].Order, 4)
}

// gappedSwapOptimizer proposes swapping the first and last eligible
// entries around a middle entry that keeps its relative spot.
func gappedSwapOptimizer() *fakeOptimizer {
	items := []models.PlanItem{
		{QueueID: "e3", OriginalIndex: 2, ProposedIndex: 0, Movement: -2},
		{QueueID: "e2", OriginalIndex: 1, ProposedIndex: 1},
		{QueueID: "e0", OriginalIndex: 0, ProposedIndex: 2, Movement: 2},
	}
	return &fakeOptimizer{result: &Result{
		Items: items,
		Assignments: []models.Assignment{
			{QueueID: "e3", Position: 0},
			{QueueID: "e0", Position: 2},
		},
		Summary: models.PlanSummary{MoveCount: 2},
	}}
}

func TestService_ApplyAfterSkipKeepsPositionsContiguous(t *testing.T) {
	f := newServiceFixture(t, gappedSwapOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	// Skipping e1 leaves the survivors' stored positions gapped: 0, 2, 3.
	require.NoError(t, f.st.SkipEntry("e1", time.Now()))

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	applied, err := f.svc.Apply(ctx, ApplyRequest{
		EventID:        100,
		PlanID:         preview.PlanID,
		BasedOnVersion: preview.BasedOnVersion,
	})
	require.NoError(t, err)

	// Every surviving entry gets a fresh contiguous position; e2 held its
	// relative spot but its stored position compacts from 2 to 1, so no
	// two entries share a position.
	entries, err := f.st.EligibleEntries(100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"e3", "e2", "e0"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	seen := make(map[int]string, len(entries))
	for i, e := range entries {
		assert.Equal(t, i, e.Position, "entry %s", e.ID)
		require.NotContains(t, seen, e.Position, "position %d held by %s and %s", e.Position, seen[e.Position], e.ID)
		seen[e.Position] = e.ID
	}

	// All three rows changed position, and the broadcast reports exactly
	// those rows.
	assert.Equal(t, 3, applied.MoveCount)
	events := f.broadcast.dispatched()
	require.Len(t, events, 1)
	assert.ElementsMatch(t, []string{"e0", "e2", "e3"}, events[0].MovedQueueIDs)
}

func TestService_SecondApplyIsNotFound(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrPlanNotFound)

	// Only one APPLY audit record.
	records, err := f.st.AuditForEvent(100)
	require.NoError(t, err)
	applies := 0
	for _, rec := range records {
		if rec.Action == models.ActionApply {
			applies++
		}
	}
	assert.Equal(t, 1, applies)
}

func TestService_ApplyConflictAfterMutation(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	// Any eligible-entry mutation between preview and apply conflicts.
	require.NoError(t, f.st.SkipEntry("e2", time.Now().Add(time.Second)))

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrVersionConflict)

	// Nothing was written and no broadcast went out.
	assert.Empty(t, f.broadcast.dispatched())
	entry, err := f.st.GetEntry("e1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Position)
}

func TestService_ApplyNoAssignments(t *testing.T) {
	noop := &fakeOptimizer{result: &Result{
		Items: []models.PlanItem{
			{QueueID: "e0", OriginalIndex: 0, ProposedIndex: 0, IsLocked: true},
			{QueueID: "e1", OriginalIndex: 1, ProposedIndex: 1},
		},
		Summary: models.PlanSummary{FairnessBefore: 1, FairnessAfter: 1},
	}}
	f := newServiceFixture(t, noop)
	f.seedQueue(t, 100, "ana", "bo")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err, "no-op previews still succeed")

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrNoAssignments)
	assert.Contains(t, err.Error(), "does not contain any assignments")
}

func TestService_PreviewFailureStillAudited(t *testing.T) {
	f := newServiceFixture(t, &fakeOptimizer{err: ErrAllDeferred})
	f.seedQueue(t, 100, "ana")
	ctx := context.Background()

	_, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100, MaturePolicy: MatureDefer})
	require.ErrorIs(t, err, ErrAllDeferred)

	records, err := f.st.AuditForEvent(100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionPreview, records[0].Action)
	assert.Empty(t, records[0].PlanID, "failed computation audits without a plan")
}

func TestService_ApplyBlockedPlan(t *testing.T) {
	blocked := &fakeOptimizer{result: &Result{
		Items: []models.PlanItem{
			{QueueID: "e0", OriginalIndex: 0, ProposedIndex: 1, Movement: 1},
			{QueueID: "e1", OriginalIndex: 1, ProposedIndex: 0, Movement: -1},
		},
		Warnings: []models.ReorderWarning{
			{Code: "OPERATOR_REVIEW", Message: "manual review required", BlocksApproval: true},
		},
	}}
	f := newServiceFixture(t, blocked)
	f.seedQueue(t, 100, "ana", "bo")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err, "blocking warnings do not fail the preview")

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrPlanBlocked)
}

func TestService_ApplyWrongEvent(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 999, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestService_ApplyStaleBasedOnVersion(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: "bogus"})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestService_ApplyExpiredPlan(t *testing.T) {
	f := newServiceFixture(t, scenarioOptimizer())
	f.seedQueue(t, 100, "ana", "bo", "cy", "dex")
	ctx := context.Background()

	preview, err := f.svc.Preview(ctx, PreviewRequest{EventID: 100})
	require.NoError(t, err)

	// Jump past the TTL for both plan store sides.
	later := time.Now().Add(10 * time.Minute)
	f.plans.now = func() time.Time { return later }

	_, err = f.svc.Apply(ctx, ApplyRequest{EventID: 100, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestService_PreviewWithRealOptimizer(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "singq.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	plans := NewDualPlanStore(st, slog.Default())
	broadcaster := &recordingBroadcaster{}
	svc := NewService(st, plans, st, broadcaster,
		NewFairnessOptimizer(DefaultScoring()),
		Config{PlanTTL: 5 * time.Minute, Defaults: Constraints{FrozenHead: 1}},
		slog.Default())
	ctx := context.Background()

	// bo has waited much longer than cy and should pass her.
	now := time.Now()
	entries := []*models.QueueEntry{
		{ID: "a", EventID: 7, Singer: "ana", Active: true, Position: 0, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
		{ID: "b", EventID: 7, Singer: "cy", Active: true, Position: 1, CreatedAt: now.Add(-time.Minute), UpdatedAt: now.Add(-time.Minute)},
		{ID: "c", EventID: 7, Singer: "bo", Active: true, Position: 2, CreatedAt: now.Add(-90 * time.Minute), UpdatedAt: now.Add(-90 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, st.AddEntry(e))
	}

	preview, err := svc.Preview(ctx, PreviewRequest{EventID: 7})
	require.NoError(t, err)

	applied, err := svc.Apply(ctx, ApplyRequest{EventID: 7, PlanID: preview.PlanID, BasedOnVersion: preview.BasedOnVersion})
	require.NoError(t, err)
	assert.Equal(t, preview.Summary.MoveCount, applied.MoveCount)

	// Frozen head invariant: "a" still leads.
	after, err := st.EligibleEntries(7)
	require.NoError(t, err)
	assert.Equal(t, "a", after[0].ID)
	assert.Equal(t, []string{"a", "c", "b"}, []string{after[0].ID, after[1].ID, after[2].ID})
}
