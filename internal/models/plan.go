package models

import "time"

// PlanItem is one entry's proposed placement within a reorder plan.
type PlanItem struct {
	QueueID       string   `json:"queueId"`
	OriginalIndex int      `json:"originalIndex"`
	ProposedIndex int      `json:"proposedIndex"`
	Singer        string   `json:"singer"`
	Mature        bool     `json:"mature"`
	IsLocked      bool     `json:"isLocked"`
	IsDeferred    bool     `json:"isDeferred"`
	Movement      int      `json:"movement"`
	Rationale     []string `json:"rationale,omitempty"`
}

// ReorderPlan is a proposed, versioned reordering awaiting operator
// approval. A plan is created by a preview, consumed exactly once by a
// successful apply, or passively expires.
type ReorderPlan struct {
	ID              string           `json:"id"`
	EventID         int64            `json:"eventId"`
	BasedOnVersion  string           `json:"basedOnVersion"`
	ProposedVersion string           `json:"proposedVersion"`
	Items           []PlanItem       `json:"items"`
	Warnings        []ReorderWarning `json:"warnings,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`
}

// Blocked reports whether any warning attached to the plan blocks
// approval. Blocked plans preview fine but refuse to apply.
func (p *ReorderPlan) Blocked() bool {
	for _, w := range p.Warnings {
		if w.BlocksApproval {
			return true
		}
	}
	return false
}

// Expired reports whether the plan's TTL has lapsed. Expired plans are
// treated as misses everywhere, regardless of physical presence.
func (p *ReorderPlan) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Assignments derives the moves the plan proposes: every item whose
// proposed index differs from its original index. Locked items never
// move and are excluded by construction. An apply writes Order, not
// this subset; Assignments exists to detect no-op plans.
func (p *ReorderPlan) Assignments() []Assignment {
	var out []Assignment
	for _, item := range p.Items {
		if item.IsLocked || item.Movement == 0 {
			continue
		}
		out = append(out, Assignment{QueueID: item.QueueID, Position: item.ProposedIndex})
	}
	return out
}

// Order returns the full proposed ordering, one assignment per item.
func (p *ReorderPlan) Order() []Assignment {
	out := make([]Assignment, len(p.Items))
	for i, item := range p.Items {
		out[i] = Assignment{QueueID: item.QueueID, Position: item.ProposedIndex}
	}
	return out
}

// Assignment maps a queue entry to its new absolute position.
type Assignment struct {
	QueueID  string `json:"queueId"`
	Position int    `json:"position"`
}

// ReorderWarning is advisory unless BlocksApproval is set, in which
// case a preview still succeeds but an apply must refuse until the
// operator re-previews with different constraints.
type ReorderWarning struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	BlocksApproval bool   `json:"blocksApproval"`
}

// PlanSummary carries the operator-facing metrics for a plan.
type PlanSummary struct {
	MoveCount            int     `json:"moveCount"`
	FairnessBefore       float64 `json:"fairnessBefore"`
	FairnessAfter        float64 `json:"fairnessAfter"`
	NoAdjacentRepeat     bool    `json:"noAdjacentRepeat"`
	RequiresConfirmation bool    `json:"requiresConfirmation"`
}

// ReorderAppliedEvent is the broadcast payload published after a plan
// has been applied, on topic queue/reorder_applied.
type ReorderAppliedEvent struct {
	EventID       int64        `json:"eventId"`
	Version       string       `json:"version"`
	Mode          string       `json:"mode"`
	Metrics       PlanSummary  `json:"metrics"`
	Order         []Assignment `json:"order"`
	MovedQueueIDs []string     `json:"movedQueueIds"`
}

// BroadcastTopic is the real-time gateway topic for applied reorders.
const BroadcastTopic = "queue/reorder_applied"
