package store

import (
	"database/sql"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// AppendAudit appends a record to the reorder audit trail. Records are
// append-only; nothing in the store updates or deletes them.
func (s *Store) AppendAudit(rec *models.AuditRecord) error {
	res, err := s.db.Exec(`
		INSERT INTO audit_log (event_id, action, plan_id, actor, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.EventID, string(rec.Action),
		sql.NullString{String: rec.PlanID, Valid: rec.PlanID != ""},
		sql.NullString{String: rec.Actor, Valid: rec.Actor != ""},
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// AuditForEvent returns the event's audit records in append order.
func (s *Store) AuditForEvent(eventID int64) ([]*models.AuditRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, action, plan_id, actor, created_at
		FROM audit_log WHERE event_id = ? ORDER BY id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var action, createdAt string
		var planID, actor sql.NullString

		if err := rows.Scan(&rec.ID, &rec.EventID, &action, &planID, &actor, &createdAt); err != nil {
			return nil, err
		}
		rec.Action = models.AuditAction(action)
		rec.PlanID = planID.String
		rec.Actor = actor.String
		rec.CreatedAt = parseTimestamp(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
