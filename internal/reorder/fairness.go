package reorder

import (
	"fmt"
	"sort"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// Scoring holds the weights of the fairness score. A candidate's score
// is base + vip bonus - break penalty + capped wait credit - a penalty
// per other entry the same singer already has in the queue.
type Scoring struct {
	Base            float64       `toml:"base"`
	VIPBonus        float64       `toml:"vip_bonus"`
	BreakPenalty    float64       `toml:"break_penalty"`
	WaitWeight      float64       `toml:"wait_weight"` // points per minute waited
	WaitCap         time.Duration `toml:"wait_cap"`    // waits beyond this earn no extra credit
	MonopolyPenalty float64       `toml:"monopoly_penalty"`
}

// DefaultScoring returns the stock weights.
func DefaultScoring() Scoring {
	return Scoring{
		Base:            100,
		VIPBonus:        25,
		BreakPenalty:    40,
		WaitWeight:      0.5,
		WaitCap:         2 * time.Hour,
		MonopolyPenalty: 15,
	}
}

// FairnessOptimizer is the default Optimizer. It scores every unlocked
// entry, sorts by score descending with original order as the
// tie-break, then applies the mature policy, the reorder horizon, and
// the movement cap.
type FairnessOptimizer struct {
	scoring Scoring
}

// NewFairnessOptimizer creates the default optimizer with the given weights.
func NewFairnessOptimizer(scoring Scoring) *FairnessOptimizer {
	return &FairnessOptimizer{scoring: scoring}
}

type candidate struct {
	entry     models.SnapshotEntry
	score     float64
	rationale []string
	deferred  bool
}

// Optimize implements Optimizer.
func (o *FairnessOptimizer) Optimize(snap *models.QueueSnapshot, c Constraints) (*Result, error) {
	n := len(snap.Entries)
	if n == 0 {
		return &Result{Summary: models.PlanSummary{FairnessBefore: 1, FairnessAfter: 1, NoAdjacentRepeat: true}}, nil
	}

	if c.MaturePolicy == MatureDefer && allMature(snap.Entries) {
		return nil, ErrAllDeferred
	}

	frozen := c.FrozenHead
	if frozen < 0 {
		frozen = 0
	}
	if frozen > n {
		frozen = n
	}

	reorderEnd := n
	if c.Horizon > 0 && c.Horizon < n {
		reorderEnd = c.Horizon
		if reorderEnd < frozen {
			reorderEnd = frozen
		}
	}

	// Entries per singer across the snapshot, for the anti-monopolization
	// penalty.
	perSinger := make(map[string]int, n)
	for _, e := range snap.Entries {
		perSinger[e.Singer]++
	}

	order := make([]*candidate, 0, n)
	for i := 0; i < frozen; i++ {
		order = append(order, &candidate{
			entry:     snap.Entries[i],
			rationale: []string{"held in frozen head"},
		})
	}

	segment := make([]*candidate, 0, reorderEnd-frozen)
	for i := frozen; i < reorderEnd; i++ {
		segment = append(segment, o.score(snap.Entries[i], perSinger, snap.TakenAt))
	}

	sort.SliceStable(segment, func(i, j int) bool {
		if segment[i].score != segment[j].score {
			return segment[i].score > segment[j].score
		}
		return segment[i].entry.OriginalIndex < segment[j].entry.OriginalIndex
	})

	if c.MaturePolicy == MatureDefer {
		segment = deferMature(segment)
	}
	order = append(order, segment...)

	for i := reorderEnd; i < n; i++ {
		order = append(order, &candidate{
			entry:     snap.Entries[i],
			rationale: []string{"beyond reorder horizon"},
		})
	}

	var warnings []models.ReorderWarning
	if c.MovementCap > 0 {
		warnings = clampMovements(order, frozen, c.MovementCap)
	}

	items := make([]models.PlanItem, n)
	assignments := make([]models.Assignment, 0, n)
	for i, cand := range order {
		item := models.PlanItem{
			QueueID:       cand.entry.QueueID,
			OriginalIndex: cand.entry.OriginalIndex,
			ProposedIndex: i,
			Singer:        cand.entry.Singer,
			Mature:        cand.entry.Mature,
			IsLocked:      cand.entry.Locked,
			IsDeferred:    cand.deferred,
			Movement:      i - cand.entry.OriginalIndex,
			Rationale:     cand.rationale,
		}
		items[i] = item
		if !item.IsLocked && item.Movement != 0 {
			assignments = append(assignments, models.Assignment{QueueID: item.QueueID, Position: i})
		}
	}

	summary := summarize(items, warnings)
	return &Result{Items: items, Assignments: assignments, Warnings: warnings, Summary: summary}, nil
}

func (o *FairnessOptimizer) score(e models.SnapshotEntry, perSinger map[string]int, now time.Time) *candidate {
	cand := &candidate{entry: e, score: o.scoring.Base}

	if e.VIP {
		cand.score += o.scoring.VIPBonus
		cand.rationale = append(cand.rationale, fmt.Sprintf("vip priority (+%g)", o.scoring.VIPBonus))
	}
	if e.OnBreak {
		cand.score -= o.scoring.BreakPenalty
		cand.rationale = append(cand.rationale, fmt.Sprintf("on break (-%g)", o.scoring.BreakPenalty))
	}

	wait := now.Sub(e.CreatedAt)
	if wait < 0 {
		wait = 0
	}
	if wait > o.scoring.WaitCap {
		wait = o.scoring.WaitCap
	}
	if credit := wait.Minutes() * o.scoring.WaitWeight; credit > 0 {
		cand.score += credit
		cand.rationale = append(cand.rationale, fmt.Sprintf("waited %dm (+%.1f)", int(wait.Minutes()), credit))
	}

	if others := perSinger[e.Singer] - 1; others > 0 {
		penalty := float64(others) * o.scoring.MonopolyPenalty
		cand.score -= penalty
		cand.rationale = append(cand.rationale, fmt.Sprintf("%d other songs queued (-%g)", others, penalty))
	}

	return cand
}

func allMature(entries []models.SnapshotEntry) bool {
	for _, e := range entries {
		if !e.Mature {
			return false
		}
	}
	return len(entries) > 0
}

// deferMature stable-partitions mature entries behind non-mature ones
// within the reorderable segment, after scoring.
func deferMature(segment []*candidate) []*candidate {
	out := make([]*candidate, 0, len(segment))
	var held []*candidate
	for _, cand := range segment {
		if cand.entry.Mature {
			cand.deferred = true
			cand.rationale = append(cand.rationale, "mature content deferred")
			held = append(held, cand)
		} else {
			out = append(out, cand)
		}
	}
	return append(out, held...)
}

// clampMovements bounds every candidate's displacement to the cap by
// reinserting the worst offender at its bounded index, one at a time.
// Clamping shifts neighbours, so residual small violations are reported
// as a non-blocking warning rather than treated as failure.
func clampMovements(order []*candidate, frozen, maxMove int) []models.ReorderWarning {
	var warnings []models.ReorderWarning
	clamped := make(map[string]bool)

	for iter := 0; iter < len(order); iter++ {
		worst, excess := -1, 0
		for i, cand := range order {
			if cand.entry.Locked || clamped[cand.entry.QueueID] {
				continue
			}
			if over := abs(i-cand.entry.OriginalIndex) - maxMove; over > excess {
				worst, excess = i, over
			}
		}
		if worst < 0 {
			break
		}

		cand := order[worst]
		target := cand.entry.OriginalIndex + maxMove
		if worst < cand.entry.OriginalIndex {
			target = cand.entry.OriginalIndex - maxMove
		}
		if target < frozen {
			target = frozen
		}
		if target > len(order)-1 {
			target = len(order) - 1
		}

		reinsert(order, worst, target)
		clamped[cand.entry.QueueID] = true
		cand.rationale = append(cand.rationale, fmt.Sprintf("movement clamped to ±%d", maxMove))
		warnings = append(warnings, models.ReorderWarning{
			Code:    WarnMovementClamped,
			Message: fmt.Sprintf("entry %s exceeded the movement cap and was clamped to ±%d", cand.entry.QueueID, maxMove),
		})
	}

	for i, cand := range order {
		if !cand.entry.Locked && abs(i-cand.entry.OriginalIndex) > maxMove {
			warnings = append(warnings, models.ReorderWarning{
				Code:    WarnMovementExceeded,
				Message: fmt.Sprintf("entry %s still moves %d positions after clamping", cand.entry.QueueID, i-cand.entry.OriginalIndex),
			})
		}
	}
	return warnings
}

func reinsert(order []*candidate, from, to int) {
	cand := order[from]
	if from < to {
		copy(order[from:], order[from+1:to+1])
	} else {
		copy(order[to+1:from+1], order[to:from])
	}
	order[to] = cand
}

func summarize(items []models.PlanItem, warnings []models.ReorderWarning) models.PlanSummary {
	before := make([]string, len(items))
	after := make([]string, len(items))
	moveCount := 0
	for _, item := range items {
		before[item.OriginalIndex] = item.Singer
		after[item.ProposedIndex] = item.Singer
		if !item.IsLocked && item.Movement != 0 {
			moveCount++
		}
	}

	summary := models.PlanSummary{
		MoveCount:        moveCount,
		FairnessBefore:   fairnessScore(before),
		FairnessAfter:    fairnessScore(after),
		NoAdjacentRepeat: adjacentRepeats(after) == 0,
	}
	for _, w := range warnings {
		if w.BlocksApproval {
			summary.RequiresConfirmation = true
		}
	}
	if moveCount*2 > len(items) {
		summary.RequiresConfirmation = true
	}
	return summary
}

// fairnessScore rates an ordering by how well it spreads singers:
// 1.0 means no singer appears twice in a row.
func fairnessScore(singers []string) float64 {
	if len(singers) < 2 {
		return 1
	}
	return 1 - float64(adjacentRepeats(singers))/float64(len(singers)-1)
}

func adjacentRepeats(singers []string) int {
	repeats := 0
	for i := 1; i < len(singers); i++ {
		if singers[i] != "" && singers[i] == singers[i-1] {
			repeats++
		}
	}
	return repeats
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
