// Package models defines the data contracts shared across the singq core:
// queue entries, snapshots, reorder plans, and audit records.
package models

import "time"

// QueueEntry is a singer's slot in an event's performance queue.
// The queue itself is owned by the queue subsystem; the reorder engine
// reads eligible entries and writes position assignments back.
type QueueEntry struct {
	ID        string     `json:"id"`
	EventID   int64      `json:"eventId"`
	Singer    string     `json:"singer"`
	VIP       bool       `json:"vip"`
	OnBreak   bool       `json:"onBreak"`
	Mature    bool       `json:"mature"`
	Active    bool       `json:"active"`
	Skipped   bool       `json:"skipped"`
	SungAt    *time.Time `json:"sungAt,omitempty"`
	Position  int        `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Eligible reports whether the entry participates in reordering:
// active, not skipped, and not yet sung.
func (e *QueueEntry) Eligible() bool {
	return e.Active && !e.Skipped && e.SungAt == nil
}

// SnapshotEntry is the projection of an eligible QueueEntry captured
// for a single preview computation.
type SnapshotEntry struct {
	QueueID       string    `json:"queueId"`
	OriginalIndex int       `json:"originalIndex"`
	Singer        string    `json:"singer"`
	VIP           bool      `json:"vip"`
	OnBreak       bool      `json:"onBreak"`
	Mature        bool      `json:"mature"`
	Locked        bool      `json:"locked"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// QueueSnapshot is the ordered set of eligible entries for an event at
// a point in time, together with the version token derived from them.
// Snapshots are computed fresh on every preview and never persisted.
type QueueSnapshot struct {
	EventID int64           `json:"eventId"`
	Entries []SnapshotEntry `json:"entries"`
	Version string          `json:"version"`
	TakenAt time.Time       `json:"takenAt"`
}
