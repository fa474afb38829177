// Package reorder implements the two-phase queue reorder workflow:
// preview computes a fairness-optimized plan against a versioned
// snapshot, apply validates the version and commits the plan atomically.
package reorder

import "github.com/patrikvak/singq/internal/models"

// MaturePolicy controls how mature-flagged entries are reordered.
type MaturePolicy string

const (
	// MatureAllow interleaves mature entries freely.
	MatureAllow MaturePolicy = "allow"
	// MatureDefer holds mature entries behind all non-mature entries.
	MatureDefer MaturePolicy = "defer"
)

// Constraints bound what a single plan may propose. Values <= 0 mean
// "no constraint".
type Constraints struct {
	// FrozenHead keeps the first N eligible positions immovable,
	// protecting imminent performers from reshuffling.
	FrozenHead int
	// MovementCap is the maximum |movement| any single entry may receive.
	MovementCap int
	// Horizon limits reordering to the first K eligible entries; the
	// remainder keeps its original relative order.
	Horizon int
	// MaturePolicy defaults to MatureAllow when empty.
	MaturePolicy MaturePolicy
}

// Result is a computed reordering proposal.
type Result struct {
	Items       []models.PlanItem
	Assignments []models.Assignment
	Warnings    []models.ReorderWarning
	Summary     models.PlanSummary
}

// Optimizer computes a proposed assignment for a queue snapshot.
//
// Implementations must be deterministic for a given snapshot and
// constraints, and side-effect free; the workflow substitutes
// alternate strategies without touching preview/apply semantics.
type Optimizer interface {
	Optimize(snap *models.QueueSnapshot, c Constraints) (*Result, error)
}

// Warning codes attached to plans.
const (
	WarnMovementClamped  = "MOVEMENT_CAP_CLAMPED"
	WarnMovementExceeded = "MOVEMENT_CAP_EXCEEDED"
	WarnAllDeferred      = "ALL_MATURE_DEFERRED"
)
