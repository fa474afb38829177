package reorder

import (
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// BuildSnapshot projects the event's eligible entries into a snapshot
// for one preview computation. The first frozenHead entries are marked
// locked. The version token covers every entry's reorder-relevant
// content, so any later mutation invalidates plans computed from it.
func BuildSnapshot(eventID int64, entries []*models.QueueEntry, frozenHead int, now time.Time) *models.QueueSnapshot {
	snap := &models.QueueSnapshot{
		EventID: eventID,
		Entries: make([]models.SnapshotEntry, len(entries)),
		Version: models.QueueVersion(entries),
		TakenAt: now,
	}

	for i, e := range entries {
		snap.Entries[i] = models.SnapshotEntry{
			QueueID:       e.ID,
			OriginalIndex: i,
			Singer:        e.Singer,
			VIP:           e.VIP,
			OnBreak:       e.OnBreak,
			Mature:        e.Mature,
			Locked:        frozenHead > 0 && i < frozenHead,
			CreatedAt:     e.CreatedAt,
			UpdatedAt:     e.UpdatedAt,
		}
	}
	return snap
}
