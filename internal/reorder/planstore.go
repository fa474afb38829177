package reorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// DurablePlanStore is the system-of-record side of the plan store,
// implemented by the SQLite store.
type DurablePlanStore interface {
	SavePlan(plan *models.ReorderPlan) error
	GetPlan(id string, now time.Time) (*models.ReorderPlan, error)
	DeletePlan(id string) (bool, error)
}

// PlanStore holds proposed plans between preview and apply.
type PlanStore interface {
	Save(plan *models.ReorderPlan) error
	Get(id string) (*models.ReorderPlan, error)
	Delete(id string) (bool, error)
}

// DualPlanStore backs the plan lifecycle with an in-memory cache (fast
// path) and a durable record (crash recovery). Reads consult the cache
// first and heal it from the durable row on a miss; a missing durable
// row with a live cache entry still resolves, so losing either side
// alone never loses an unexpired plan.
type DualPlanStore struct {
	cache   *planCache
	durable DurablePlanStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewDualPlanStore creates a plan store over the given durable backend.
func NewDualPlanStore(durable DurablePlanStore, logger *slog.Logger) *DualPlanStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DualPlanStore{
		cache:   newPlanCache(),
		durable: durable,
		now:     time.Now,
		logger:  logger,
	}
}

// Save writes both sides. The durable write happens first and its
// failure fails the save: a cache-only plan is not an acceptable
// degraded mode, since the durable row is the backstop the fallback
// read path assumes.
func (s *DualPlanStore) Save(plan *models.ReorderPlan) error {
	if err := s.durable.SavePlan(plan); err != nil {
		return fmt.Errorf("durable plan write: %w", err)
	}
	s.cache.put(plan)
	return nil
}

// Get returns the plan or (nil, nil) on a miss. Expired plans are
// misses regardless of physical presence.
func (s *DualPlanStore) Get(id string) (*models.ReorderPlan, error) {
	now := s.now()
	if plan := s.cache.get(id, now); plan != nil {
		return plan, nil
	}

	plan, err := s.durable.GetPlan(id, now)
	if err != nil {
		return nil, fmt.Errorf("durable plan read: %w", err)
	}
	if plan == nil {
		return nil, nil
	}

	// Heal the cache after eviction or restart.
	s.cache.put(plan)
	return plan, nil
}

// Delete removes the plan from both sides. Deleting an absent plan is
// not an error; the result reports whether either side held it.
func (s *DualPlanStore) Delete(id string) (bool, error) {
	cacheHeld := s.cache.delete(id)
	durableHeld, err := s.durable.DeletePlan(id)
	if err != nil {
		return cacheHeld, fmt.Errorf("durable plan delete: %w", err)
	}
	return cacheHeld || durableHeld, nil
}

// CacheSize reports the number of cached plans, for observability.
func (s *DualPlanStore) CacheSize() int {
	return s.cache.size()
}
