package reorder

import (
	"sync"
	"time"

	"github.com/patrikvak/singq/internal/models"
)

// planCache is the in-memory fast path of the plan store. It is safe
// for concurrent use and is authoritative for TTL expiry: an expired
// entry is a miss and is dropped on read.
type planCache struct {
	mu    sync.RWMutex
	plans map[string]*models.ReorderPlan
}

func newPlanCache() *planCache {
	return &planCache{plans: make(map[string]*models.ReorderPlan)}
}

func (c *planCache) get(id string, now time.Time) *models.ReorderPlan {
	c.mu.RLock()
	plan, ok := c.plans[id]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	if plan.Expired(now) {
		c.delete(id)
		return nil
	}
	return plan
}

func (c *planCache) put(plan *models.ReorderPlan) {
	c.mu.Lock()
	c.plans[plan.ID] = plan
	c.mu.Unlock()
}

func (c *planCache) delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.plans[id]
	delete(c.plans, id)
	return ok
}

func (c *planCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}
