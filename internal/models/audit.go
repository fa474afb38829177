package models

import "time"

// AuditAction identifies the type of auditable reorder action.
type AuditAction string

const (
	ActionPreview AuditAction = "PREVIEW"
	ActionApply   AuditAction = "APPLY"
)

// AuditRecord is one line in the append-only reorder audit trail.
// Records are created once per preview and once per successful apply,
// and are never updated or deleted. PlanID is empty for computation
// attempts that produced no plan.
type AuditRecord struct {
	ID        int64       `json:"id"`
	EventID   int64       `json:"eventId"`
	Action    AuditAction `json:"action"`
	PlanID    string      `json:"planId,omitempty"`
	Actor     string      `json:"actor,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
