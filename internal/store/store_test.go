package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/patrikvak/singq/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a SQLite store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

func addTestEntry(t *testing.T, st *Store, id string, eventID int64, singer string, position int) *models.QueueEntry {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := &models.QueueEntry{
		ID: id, EventID: eventID, Singer: singer, Active: true,
		Position: position, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.AddEntry(e))
	return e
}

// ==================== Store Tests ====================

func TestStore_Initialize(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Initialize())

	v, err := st.GetValue("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestStore_GetSetValue(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetValue("test_key", "test_value"))

	val, err := st.GetValue("test_key")
	require.NoError(t, err)
	assert.Equal(t, "test_value", val)

	val, err = st.GetValue("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, st.SetValue("test_key", "new_value"))
	val, err = st.GetValue("test_key")
	require.NoError(t, err)
	assert.Equal(t, "new_value", val)
}

// ==================== Queue Tests ====================

func TestStore_EligibleEntries(t *testing.T) {
	st := newTestStore(t)

	addTestEntry(t, st, "a", 100, "ana", 0)
	addTestEntry(t, st, "b", 100, "bo", 1)
	addTestEntry(t, st, "c", 100, "cy", 2)
	addTestEntry(t, st, "other", 200, "dex", 0)

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "c", entries[2].ID)

	// Skipped and sung entries drop out of the eligible set.
	require.NoError(t, st.SkipEntry("b", time.Now()))
	require.NoError(t, st.MarkSung("a", time.Now()))

	entries, err = st.EligibleEntries(100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].ID)
}

func TestStore_MutationsMoveVersion(t *testing.T) {
	st := newTestStore(t)
	addTestEntry(t, st, "a", 100, "ana", 0)
	addTestEntry(t, st, "b", 100, "bo", 1)

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	before := models.QueueVersion(entries)

	require.NoError(t, st.SetBreak("a", true, time.Now().Add(time.Second)))

	entries, err = st.EligibleEntries(100)
	require.NoError(t, err)
	assert.NotEqual(t, before, models.QueueVersion(entries))
}

func TestStore_ApplyPositions(t *testing.T) {
	st := newTestStore(t)
	addTestEntry(t, st, "a", 100, "ana", 0)
	addTestEntry(t, st, "b", 100, "bo", 1)
	addTestEntry(t, st, "c", 100, "cy", 2)

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	version := models.QueueVersion(entries)

	newVersion, moved, err := st.ApplyPositions(100, version, []models.Assignment{
		{QueueID: "a", Position: 0},
		{QueueID: "c", Position: 1},
		{QueueID: "b", Position: 2},
	}, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, version, newVersion)

	// Only rows whose stored position changed count as moved.
	assert.ElementsMatch(t, []string{"b", "c"}, moved)

	entries, err = st.EligibleEntries(100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, newVersion, models.QueueVersion(entries))
}

func TestStore_ApplyPositionsCompactsGaps(t *testing.T) {
	st := newTestStore(t)
	addTestEntry(t, st, "a", 100, "ana", 0)
	addTestEntry(t, st, "b", 100, "bo", 1)
	addTestEntry(t, st, "c", 100, "cy", 2)
	addTestEntry(t, st, "d", 100, "dex", 3)

	// Skipping b leaves the eligible positions gapped: 0, 2, 3.
	require.NoError(t, st.SkipEntry("b", time.Now()))

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	version := models.QueueVersion(entries)

	// Swap a and d around c; the full ordering renumbers c too.
	newVersion, moved, err := st.ApplyPositions(100, version, []models.Assignment{
		{QueueID: "d", Position: 0},
		{QueueID: "c", Position: 1},
		{QueueID: "a", Position: 2},
	}, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, version, newVersion)
	assert.ElementsMatch(t, []string{"a", "c", "d"}, moved)

	entries, err = st.EligibleEntries(100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"d", "c", "a"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	// Positions come out unique and contiguous despite the gap.
	for i, e := range entries {
		assert.Equal(t, i, e.Position, "entry %s", e.ID)
	}
}

func TestStore_ApplyPositionsStaleVersion(t *testing.T) {
	st := newTestStore(t)
	addTestEntry(t, st, "a", 100, "ana", 0)
	addTestEntry(t, st, "b", 100, "bo", 1)

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	version := models.QueueVersion(entries)

	// Mutate the queue after the version was observed.
	require.NoError(t, st.SkipEntry("a", time.Now().Add(time.Second)))

	_, _, err = st.ApplyPositions(100, version, []models.Assignment{{QueueID: "b", Position: 0}}, time.Now())
	require.ErrorIs(t, err, models.ErrStaleVersion)

	// No partial write: b keeps its original position.
	entry, err := st.GetEntry("b")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Position)
}

func TestStore_ApplyPositionsUnknownEntry(t *testing.T) {
	st := newTestStore(t)
	addTestEntry(t, st, "a", 100, "ana", 0)

	entries, err := st.EligibleEntries(100)
	require.NoError(t, err)
	version := models.QueueVersion(entries)

	_, _, err = st.ApplyPositions(100, version, []models.Assignment{{QueueID: "ghost", Position: 0}}, time.Now())
	require.ErrorIs(t, err, models.ErrStaleVersion)
}

// ==================== Plan Tests ====================

func testPlan(id string, now time.Time) *models.ReorderPlan {
	return &models.ReorderPlan{
		ID:              id,
		EventID:         100,
		BasedOnVersion:  "v-before",
		ProposedVersion: "v-after",
		Items: []models.PlanItem{
			{QueueID: "a", OriginalIndex: 0, ProposedIndex: 1, Movement: 1, Rationale: []string{"waited 30m (+15)"}},
			{QueueID: "b", OriginalIndex: 1, ProposedIndex: 0, Movement: -1},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestStore_SaveAndGetPlan(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.SavePlan(testPlan("plan-1", now)))

	plan, err := st.GetPlan("plan-1", now)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, int64(100), plan.EventID)
	assert.Equal(t, "v-before", plan.BasedOnVersion)
	require.Len(t, plan.Items, 2)
	assert.Equal(t, []string{"waited 30m (+15)"}, plan.Items[0].Rationale)
}

func TestStore_GetPlanMiss(t *testing.T) {
	st := newTestStore(t)

	plan, err := st.GetPlan("nope", time.Now())
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestStore_GetPlanExpired(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.SavePlan(testPlan("plan-1", now)))

	// Past the TTL the row counts as a miss and is lazily removed.
	plan, err := st.GetPlan("plan-1", now.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, plan)

	removed, err := st.DeletePlan("plan-1")
	require.NoError(t, err)
	assert.False(t, removed, "expired row should already be gone")
}

func TestStore_DeletePlanIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SavePlan(testPlan("plan-1", time.Now())))

	removed, err := st.DeletePlan("plan-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = st.DeletePlan("plan-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_PruneExpiredPlans(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.SavePlan(testPlan("old", now.Add(-10*time.Minute))))
	require.NoError(t, st.SavePlan(testPlan("fresh", now)))

	n, err := st.PruneExpiredPlans(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	plan, err := st.GetPlan("fresh", now)
	require.NoError(t, err)
	assert.NotNil(t, plan)
}

// ==================== Audit Tests ====================

func TestStore_AuditAppendOrder(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.AppendAudit(&models.AuditRecord{EventID: 100, Action: models.ActionPreview, PlanID: "p1", CreatedAt: now}))
	require.NoError(t, st.AppendAudit(&models.AuditRecord{EventID: 100, Action: models.ActionApply, PlanID: "p1", Actor: "dj", CreatedAt: now}))
	require.NoError(t, st.AppendAudit(&models.AuditRecord{EventID: 200, Action: models.ActionPreview, CreatedAt: now}))

	records, err := st.AuditForEvent(100)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ActionPreview, records[0].Action)
	assert.Equal(t, models.ActionApply, records[1].Action)
	assert.Equal(t, "dj", records[1].Actor)

	// Preview with no plan stores a null plan id.
	records, err = st.AuditForEvent(200)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].PlanID)
}
