package reputation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/reputation"
)

type fakeStore struct {
	calls int
	rep   catalog.SceneGroupReputation
	err   error
}

func (f *fakeStore) Get(ctx context.Context, name string) (*catalog.SceneGroupReputation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rep := f.rep
	rep.Name = name
	return &rep, nil
}

func TestCache_GetFallsThroughOnMissThenServesFromCache(t *testing.T) {
	store := &fakeStore{rep: catalog.SceneGroupReputation{Tier: catalog.TierExcellent}}
	c := reputation.New(store, reputation.Config{TTL: time.Minute})

	rep, err := c.Get(context.Background(), "GROUP")
	require.NoError(t, err)
	assert.Equal(t, catalog.TierExcellent, rep.Tier)
	assert.Equal(t, 1, store.calls)

	_, err = c.Get(context.Background(), "GROUP")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "second Get within TTL should not hit the store")
}

func TestCache_GetRefetchesAfterExpiry(t *testing.T) {
	store := &fakeStore{rep: catalog.SceneGroupReputation{Tier: catalog.TierGood}}
	c := reputation.New(store, reputation.Config{TTL: 10 * time.Millisecond})

	_, err := c.Get(context.Background(), "GROUP")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(context.Background(), "GROUP")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestCache_GetEmptySceneGroupNeverTouchesStore(t *testing.T) {
	store := &fakeStore{}
	c := reputation.New(store, reputation.Config{})

	rep, err := c.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, catalog.TierNeutral, rep.Tier)
	assert.Equal(t, 0, store.calls)
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	store := &fakeStore{rep: catalog.SceneGroupReputation{Tier: catalog.TierPoor}}
	c := reputation.New(store, reputation.Config{TTL: time.Minute})

	_, _ = c.Get(context.Background(), "GROUP")
	c.Invalidate("GROUP")
	_, err := c.Get(context.Background(), "GROUP")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestBonus_MapsTiersToPoints(t *testing.T) {
	assert.Equal(t, 15, reputation.Bonus(catalog.SceneGroupReputation{Tier: catalog.TierPremium}))
	assert.Equal(t, -15, reputation.Bonus(catalog.SceneGroupReputation{Tier: catalog.TierPoor}))
	assert.Equal(t, 0, reputation.Bonus(catalog.SceneGroupReputation{Tier: catalog.TierNeutral}))
}
