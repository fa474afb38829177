package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// planBlob is the serialized body of a durable plan row.
type planBlob struct {
	Items    []models.PlanItem       `json:"items"`
	Warnings []models.ReorderWarning `json:"warnings,omitempty"`
}

// SavePlan writes a reorder plan's durable record. The durable row is
// the system of record for crash recovery during the preview->apply
// window; plan items and warnings are serialized as a JSON blob.
func (s *Store) SavePlan(plan *models.ReorderPlan) error {
	items, err := json.Marshal(planBlob{Items: plan.Items, Warnings: plan.Warnings})
	if err != nil {
		return fmt.Errorf("failed to marshal plan items: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO reorder_plans (id, event_id, based_on_version, proposed_version, items, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.EventID, plan.BasedOnVersion, plan.ProposedVersion, string(items),
		plan.CreatedAt.UTC().Format(time.RFC3339Nano),
		plan.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}
	return nil
}

// GetPlan retrieves a plan by ID. Returns (nil, nil) on a miss. A row
// whose TTL has lapsed counts as a miss and is lazily deleted.
func (s *Store) GetPlan(id string, now time.Time) (*models.ReorderPlan, error) {
	var plan models.ReorderPlan
	var itemsJSON, createdAt, expiresAt string

	err := s.db.QueryRow(`
		SELECT id, event_id, based_on_version, proposed_version, items, created_at, expires_at
		FROM reorder_plans WHERE id = ?`, id).Scan(
		&plan.ID, &plan.EventID, &plan.BasedOnVersion, &plan.ProposedVersion,
		&itemsJSON, &createdAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan.CreatedAt = parseTimestamp(createdAt)
	plan.ExpiresAt = parseTimestamp(expiresAt)

	if plan.Expired(now) {
		if _, err := s.DeletePlan(id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var blob planBlob
	if err := json.Unmarshal([]byte(itemsJSON), &blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan items: %w", err)
	}
	plan.Items = blob.Items
	plan.Warnings = blob.Warnings
	return &plan, nil
}

// DeletePlan removes a plan's durable record. Deleting an absent plan
// is not an error; the result reports whether a row was removed.
func (s *Store) DeletePlan(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM reorder_plans WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneExpiredPlans removes every durable plan whose TTL lapsed before
// now. Returns the number of rows removed.
func (s *Store) PruneExpiredPlans(now time.Time) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM reorder_plans WHERE expires_at < ?",
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
