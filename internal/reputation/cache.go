// Package reputation implements C11: a read-through, TTL-bounded cache
// of scene-group reputation records in front of catalog.ReputationRepo,
// grounded on the teacher's internal/metadata.Cache (same item+expiresAt
// map and RLock/Lock split), specialized to a single typed value instead
// of interface{} and to a fallback store instead of a provider client.
// There is no cleanup goroutine: an expired entry stays in the map until
// the next Get for it refetches it, or Invalidate removes it.
package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/cinequeue/cinequeue/internal/catalog"
)

// Store is the subset of catalog.ReputationRepo this cache fronts.
type Store interface {
	Get(ctx context.Context, name string) (*catalog.SceneGroupReputation, error)
}

type cacheItem struct {
	value     catalog.SceneGroupReputation
	expiresAt time.Time
}

// Cache is a read-through cache of scene_group_reputation records.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	store Store
	ttl   time.Duration
}

// Config configures the cache.
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns spec.md §4.11's suggested cache lifetime.
func DefaultConfig() Config {
	return Config{TTL: 15 * time.Minute}
}

// New creates a Cache reading through to store on a miss.
func New(store Store, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	return &Cache{items: make(map[string]cacheItem), store: store, ttl: cfg.TTL}
}

// Get returns the reputation record for sceneGroup, serving from cache
// when fresh and falling through to the store otherwise. An empty
// sceneGroup (release had no detected group) always resolves to a
// neutral default without touching the store.
func (c *Cache) Get(ctx context.Context, sceneGroup string) (catalog.SceneGroupReputation, error) {
	if sceneGroup == "" {
		return catalog.SceneGroupReputation{Name: "", Tier: catalog.TierNeutral}, nil
	}

	if rep, ok := c.lookup(sceneGroup); ok {
		return rep, nil
	}

	rep, err := c.store.Get(ctx, sceneGroup)
	if err != nil {
		return catalog.SceneGroupReputation{}, err
	}

	c.mu.Lock()
	c.items[sceneGroup] = cacheItem{value: *rep, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return *rep, nil
}

func (c *Cache) lookup(sceneGroup string) (catalog.SceneGroupReputation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[sceneGroup]
	if !ok || time.Now().After(item.expiresAt) {
		return catalog.SceneGroupReputation{}, false
	}
	return item.value, true
}

// Invalidate evicts a single cached entry, used when the offline
// analyzer writes a fresh score for sceneGroup.
func (c *Cache) Invalidate(sceneGroup string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, sceneGroup)
}

// Bonus converts a reputation record into the decisioning engine's
// additive score term (spec.md §4.11's tier-to-points mapping).
func Bonus(rep catalog.SceneGroupReputation) int {
	switch rep.Tier {
	case catalog.TierPremium:
		return 15
	case catalog.TierExcellent:
		return 10
	case catalog.TierGood:
		return 5
	case catalog.TierPoor:
		return -15
	default:
		return 0
	}
}

// BonusFunc adapts a Cache into the decisioning.Constraints.ReputationBonus
// callback, swallowing lookup failures into a neutral bonus so a cache
// outage never blocks release scoring.
func BonusFunc(ctx context.Context, c *Cache) func(sceneGroup string) int {
	return func(sceneGroup string) int {
		rep, err := c.Get(ctx, sceneGroup)
		if err != nil {
			return 0
		}
		return Bonus(rep)
	}
}
