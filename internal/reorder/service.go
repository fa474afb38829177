package reorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrikvak/singq/internal/models"
	"github.com/ygrebnov/errorc"
)

// QueueStore is the external queue repository contract: a snapshot
// read plus a conditional position write. The queue itself is shared
// mutable state owned by the queue subsystem.
type QueueStore interface {
	EligibleEntries(eventID int64) ([]*models.QueueEntry, error)
	// ApplyPositions must be atomic and conditional on expectedVersion,
	// returning models.ErrStaleVersion without writing on a mismatch.
	// It receives the complete proposed ordering and reports the ids of
	// the rows whose stored position actually changed.
	ApplyPositions(eventID int64, expectedVersion string, order []models.Assignment, now time.Time) (string, []string, error)
}

// AuditLog is the append-only record of reorder actions.
type AuditLog interface {
	AppendAudit(rec *models.AuditRecord) error
	AuditForEvent(eventID int64) ([]*models.AuditRecord, error)
}

// Broadcaster fans a "reorder applied" notification out to connected
// clients. Implementations must not block the caller; delivery is
// fire-and-forget relative to the apply transaction.
type Broadcaster interface {
	ReorderApplied(ctx context.Context, ev *models.ReorderAppliedEvent)
}

// Config tunes the reorder workflow.
type Config struct {
	// PlanTTL bounds the preview->apply window.
	PlanTTL time.Duration
	// Defaults are the constraints used when a preview request does not
	// override them.
	Defaults Constraints
}

// Service orchestrates the two-phase reorder workflow. Correctness
// across the preview->apply gap relies on optimistic versioning only;
// no lock is held between the two requests.
type Service struct {
	queues    QueueStore
	plans     PlanStore
	audit     AuditLog
	broadcast Broadcaster
	optimizer Optimizer
	ttl       time.Duration
	defaults  Constraints
	now       func() time.Time
	logger    *slog.Logger
}

// NewService wires the workflow. A nil broadcaster disables broadcasting.
func NewService(queues QueueStore, plans PlanStore, audit AuditLog, broadcaster Broadcaster, optimizer Optimizer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.PlanTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		queues:    queues,
		plans:     plans,
		audit:     audit,
		broadcast: broadcaster,
		optimizer: optimizer,
		ttl:       ttl,
		defaults:  cfg.Defaults,
		now:       time.Now,
		logger:    logger,
	}
}

// PreviewRequest asks for a fresh reorder proposal. Nil overrides fall
// back to the configured defaults; explicit values <= 0 disable the
// corresponding constraint.
type PreviewRequest struct {
	EventID      int64        `json:"eventId"`
	MaturePolicy MaturePolicy `json:"maturePolicy,omitempty"`
	Horizon      *int         `json:"horizon,omitempty"`
	MovementCap  *int         `json:"movementCap,omitempty"`
	Actor        string       `json:"actor,omitempty"`
}

// PreviewResult is the operator-facing proposal.
type PreviewResult struct {
	PlanID          string                  `json:"planId"`
	BasedOnVersion  string                  `json:"basedOnVersion"`
	ProposedVersion string                  `json:"proposedVersion"`
	ExpiresAt       time.Time               `json:"expiresAt"`
	Summary         models.PlanSummary      `json:"summary"`
	Items           []models.PlanItem       `json:"items"`
	Warnings        []models.ReorderWarning `json:"warnings,omitempty"`
}

// Preview computes a fresh snapshot, runs the optimizer, and stores the
// resulting plan. Every computation attempt is audited, including
// optimizer failures and no-ops; the audit append is deferred so no
// early return can skip it.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	now := s.now()
	planID := ""
	defer func() {
		rec := &models.AuditRecord{
			EventID:   req.EventID,
			Action:    models.ActionPreview,
			PlanID:    planID,
			Actor:     req.Actor,
			CreatedAt: s.now(),
		}
		if err := s.audit.AppendAudit(rec); err != nil {
			s.logger.Error("preview audit append failed", "event_id", req.EventID, "error", err)
		}
	}()

	entries, err := s.queues.EligibleEntries(req.EventID)
	if err != nil {
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}

	constraints := s.constraintsFor(req)
	snap := BuildSnapshot(req.EventID, entries, constraints.FrozenHead, now)

	res, err := s.optimizer.Optimize(snap, constraints)
	if err != nil {
		s.logger.Info("reorder preview rejected",
			"event_id", req.EventID, "version", snap.Version, "error", err)
		return nil, err
	}

	plan := &models.ReorderPlan{
		ID:             uuid.New().String(),
		EventID:        req.EventID,
		BasedOnVersion: snap.Version,
		Items:          res.Items,
		Warnings:       res.Warnings,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	plan.ProposedVersion = models.ProposedVersion(plan.Order())

	if err := s.plans.Save(plan); err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}
	planID = plan.ID

	s.logger.Info("reorder preview computed",
		"event_id", req.EventID, "plan_id", plan.ID,
		"moves", res.Summary.MoveCount, "warnings", len(res.Warnings))

	return &PreviewResult{
		PlanID:          plan.ID,
		BasedOnVersion:  plan.BasedOnVersion,
		ProposedVersion: plan.ProposedVersion,
		ExpiresAt:       plan.ExpiresAt,
		Summary:         res.Summary,
		Items:           res.Items,
		Warnings:        res.Warnings,
	}, nil
}

func (s *Service) constraintsFor(req PreviewRequest) Constraints {
	c := s.defaults
	if req.MaturePolicy != "" {
		c.MaturePolicy = req.MaturePolicy
	}
	if c.MaturePolicy == "" {
		c.MaturePolicy = MatureAllow
	}
	if req.Horizon != nil {
		c.Horizon = *req.Horizon
	}
	if req.MovementCap != nil {
		c.MovementCap = *req.MovementCap
	}
	return c
}

// ApplyRequest asks to commit a previously previewed plan.
type ApplyRequest struct {
	EventID        int64  `json:"eventId"`
	PlanID         string `json:"planId"`
	BasedOnVersion string `json:"basedOnVersion"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Actor          string `json:"actor,omitempty"`
}

// ApplyResult reports a committed reorder.
type ApplyResult struct {
	AppliedVersion string    `json:"appliedVersion"`
	MoveCount      int       `json:"moveCount"`
	AppliedAt      time.Time `json:"appliedAt"`
}

// Apply validates the plan against the live queue version, writes its
// full proposed ordering as one atomic unit, audits, broadcasts, and retires the
// plan. A given plan transitions exactly once from pending to
// applied-and-removed; a second apply sees ErrPlanNotFound.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	now := s.now()

	plan, err := s.plans.Get(req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	if plan == nil || plan.EventID != req.EventID {
		return nil, errorc.With(ErrPlanNotFound, errorc.String("plan_id", req.PlanID))
	}

	if plan.Blocked() {
		return nil, ErrPlanBlocked
	}

	assignments := plan.Assignments()
	if len(assignments) == 0 {
		return nil, ErrNoAssignments
	}

	if req.BasedOnVersion != plan.BasedOnVersion {
		return nil, ErrVersionConflict
	}

	// The store receives the full ordering, not just the moved subset:
	// skips and sungs leave gaps in stored positions, and renumbering
	// every entry is what keeps positions unique and contiguous.
	appliedVersion, moved, err := s.queues.ApplyPositions(req.EventID, req.BasedOnVersion, plan.Order(), now)
	if errors.Is(err, models.ErrStaleVersion) {
		s.logger.Info("reorder apply conflict",
			"event_id", req.EventID, "plan_id", req.PlanID, "based_on", req.BasedOnVersion)
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("apply positions: %w", err)
	}

	// The queue mutation is committed from here on; the remaining side
	// effects must not fail the call.
	rec := &models.AuditRecord{
		EventID:   req.EventID,
		Action:    models.ActionApply,
		PlanID:    plan.ID,
		Actor:     req.Actor,
		CreatedAt: now,
	}
	if err := s.audit.AppendAudit(rec); err != nil {
		s.logger.Error("apply audit append failed", "event_id", req.EventID, "plan_id", plan.ID, "error", err)
	}

	if s.broadcast != nil {
		s.broadcast.ReorderApplied(ctx, &models.ReorderAppliedEvent{
			EventID:       req.EventID,
			Version:       appliedVersion,
			Mode:          "fairness",
			Metrics:       summarize(plan.Items, plan.Warnings),
			Order:         plan.Order(),
			MovedQueueIDs: moved,
		})
	}

	if _, err := s.plans.Delete(plan.ID); err != nil {
		s.logger.Error("plan retirement failed", "plan_id", plan.ID, "error", err)
	}

	s.logger.Info("reorder applied",
		"event_id", req.EventID, "plan_id", plan.ID,
		"moves", len(moved), "version", appliedVersion,
		"idempotency_key", req.IdempotencyKey)

	return &ApplyResult{
		AppliedVersion: appliedVersion,
		MoveCount:      len(moved),
		AppliedAt:      now,
	}, nil
}

// QueueView is the live eligible queue plus its current version token.
type QueueView struct {
	EventID int64                `json:"eventId"`
	Version string               `json:"version"`
	Entries []*models.QueueEntry `json:"entries"`
}

// Queue returns the event's eligible entries and current version.
func (s *Service) Queue(ctx context.Context, eventID int64) (*QueueView, error) {
	entries, err := s.queues.EligibleEntries(eventID)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	return &QueueView{EventID: eventID, Version: models.QueueVersion(entries), Entries: entries}, nil
}

// CurrentVersion returns the event's live version token.
func (s *Service) CurrentVersion(ctx context.Context, eventID int64) (string, error) {
	entries, err := s.queues.EligibleEntries(eventID)
	if err != nil {
		return "", fmt.Errorf("read queue: %w", err)
	}
	return models.QueueVersion(entries), nil
}

// Audit returns the event's audit trail in append order.
func (s *Service) Audit(ctx context.Context, eventID int64) ([]*models.AuditRecord, error) {
	return s.audit.AuditForEvent(eventID)
}
