package reorder

import "errors"

const Namespace = "reorder"

var (
	// ErrPlanNotFound covers plans that expired, never existed, or were
	// already consumed by a successful apply. The caller should re-preview.
	ErrPlanNotFound = errors.New(Namespace + ": plan not found or expired")

	// ErrVersionConflict means the queue mutated between preview and
	// apply. Nothing was written; the caller should re-preview.
	ErrVersionConflict = errors.New(Namespace + ": queue state has changed")

	// ErrNoAssignments means the plan does not contain any assignments
	// after filtering locked and unmoved entries.
	ErrNoAssignments = errors.New(Namespace + ": plan does not contain any assignments")

	// ErrAllDeferred means every eligible entry is mature content and the
	// defer policy leaves nothing to schedule. Not retryable as-is.
	ErrAllDeferred = errors.New(Namespace + ": all eligible entries are mature content held back by the defer policy")

	// ErrPlanBlocked means the plan carries a warning that blocks
	// approval; the operator must re-preview with different constraints.
	ErrPlanBlocked = errors.New(Namespace + ": plan has blocking warnings and cannot be applied")
)
