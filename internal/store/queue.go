package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// AddEntry inserts a queue entry. The caller assigns the position.
func (s *Store) AddEntry(e *models.QueueEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO queue_entries (id, event_id, singer, vip, on_break, mature, active, skipped, sung_at, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventID, e.Singer, e.VIP, e.OnBreak, e.Mature, e.Active, e.Skipped,
		nullableTime(e.SungAt), e.Position,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetEntry retrieves a queue entry by ID
func (s *Store) GetEntry(id string) (*models.QueueEntry, error) {
	row := s.db.QueryRow(entrySelect+" WHERE id = ?", id)
	return scanEntry(row)
}

// EligibleEntries returns the event's active, unskipped, unsung entries
// in position order. This is the snapshot reader's data source.
func (s *Store) EligibleEntries(eventID int64) ([]*models.QueueEntry, error) {
	rows, err := s.db.Query(entrySelect+`
		WHERE event_id = ? AND active AND NOT skipped AND sung_at IS NULL
		ORDER BY position ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SkipEntry marks an entry as skipped and bumps its mutation timestamp.
func (s *Store) SkipEntry(id string, now time.Time) error {
	return s.touch(id, "skipped = TRUE", now)
}

// MarkSung records that an entry has been performed.
func (s *Store) MarkSung(id string, now time.Time) error {
	res, err := s.db.Exec(
		"UPDATE queue_entries SET sung_at = ?, updated_at = ? WHERE id = ?",
		now.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// SetBreak toggles an entry's on-break flag.
func (s *Store) SetBreak(id string, onBreak bool, now time.Time) error {
	if onBreak {
		return s.touch(id, "on_break = TRUE", now)
	}
	return s.touch(id, "on_break = FALSE", now)
}

// ApplyPositions writes a full proposed ordering as a single atomic
// unit, conditional on the live queue version still matching
// expectedVersion. The version is recomputed inside the transaction so
// the check and the write cannot race; on mismatch no row is written
// and models.ErrStaleVersion is returned.
//
// The caller must pass the complete ordering, one assignment per
// eligible entry. Skips and sungs leave holes in the stored positions,
// so writing only a moved subset could collide with an unmoved entry's
// gapped position; writing every entry keeps positions unique and
// contiguous. Rows whose position already matches are left untouched.
// Returns the queue version after the write and the ids of the rows
// that actually changed.
func (s *Store) ApplyPositions(eventID int64, expectedVersion string, order []models.Assignment, now time.Time) (string, []string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", nil, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback()

	live, err := eligibleEntriesTx(tx, eventID)
	if err != nil {
		return "", nil, fmt.Errorf("read live queue: %w", err)
	}
	if models.QueueVersion(live) != expectedVersion {
		return "", nil, models.ErrStaleVersion
	}

	byID := make(map[string]*models.QueueEntry, len(live))
	for _, e := range live {
		byID[e.ID] = e
	}

	stamp := now.UTC().Format(time.RFC3339Nano)
	var moved []string
	for _, a := range order {
		entry, ok := byID[a.QueueID]
		if !ok {
			return "", nil, fmt.Errorf("assignment targets unknown entry %s: %w", a.QueueID, models.ErrStaleVersion)
		}
		if entry.Position == a.Position {
			continue
		}
		if _, err := tx.Exec(
			"UPDATE queue_entries SET position = ?, updated_at = ? WHERE id = ?",
			a.Position, stamp, a.QueueID,
		); err != nil {
			return "", nil, fmt.Errorf("assign position for %s: %w", a.QueueID, err)
		}
		moved = append(moved, a.QueueID)
	}

	applied, err := eligibleEntriesTx(tx, eventID)
	if err != nil {
		return "", nil, fmt.Errorf("read applied queue: %w", err)
	}
	newVersion := models.QueueVersion(applied)

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit apply: %w", err)
	}
	return newVersion, moved, nil
}

func (s *Store) touch(id, set string, now time.Time) error {
	res, err := s.db.Exec(
		"UPDATE queue_entries SET "+set+", updated_at = ? WHERE id = ?",
		now.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %s not found", id)
	}
	return nil
}

const entrySelect = `
	SELECT id, event_id, singer, vip, on_break, mature, active, skipped, sung_at, position, created_at, updated_at
	FROM queue_entries`

func eligibleEntriesTx(tx *sql.Tx, eventID int64) ([]*models.QueueEntry, error) {
	rows, err := tx.Query(entrySelect+`
		WHERE event_id = ? AND active AND NOT skipped AND sung_at IS NULL
		ORDER BY position ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var sungAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.EventID, &e.Singer, &e.VIP, &e.OnBreak, &e.Mature,
		&e.Active, &e.Skipped, &sungAt, &e.Position, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	if sungAt.Valid {
		t := parseTimestamp(sungAt.String)
		e.SungAt = &t
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
