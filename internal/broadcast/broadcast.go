// Package broadcast fans "reorder applied" notifications out to
// connected clients. Delivery is asynchronous and best-effort: a failed
// dispatch is logged, never surfaced to the apply caller.
package broadcast

import (
	"context"

	"github.com/patrikvak/singq/internal/models"
)

// Broadcaster dispatches a reorder-applied event to a real-time sink.
type Broadcaster interface {
	ReorderApplied(ctx context.Context, ev *models.ReorderAppliedEvent)
}

// Multi dispatches to every configured sink.
type Multi []Broadcaster

// ReorderApplied implements Broadcaster.
func (m Multi) ReorderApplied(ctx context.Context, ev *models.ReorderAppliedEvent) {
	for _, b := range m {
		b.ReorderApplied(ctx, ev)
	}
}

// Nop discards every event.
type Nop struct{}

// ReorderApplied implements Broadcaster.
func (Nop) ReorderApplied(context.Context, *models.ReorderAppliedEvent) {}
