package listsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cinequeue/cinequeue/internal/catalog"
)

func TestResolveConflict_KeepExisting(t *testing.T) {
	list := List{Strategy: StrategyKeepExisting, DefaultQualityProfileID: 2, Monitored: true}
	existing := &catalog.Movie{QualityProfileID: 1, Monitored: false}

	decision, profileID, monitored := resolveConflict(list, Entry{}, existing)

	assert.Equal(t, catalog.DecisionKeepExisting, decision)
	assert.Equal(t, int64(1), profileID)
	assert.False(t, monitored)
}

func TestResolveConflict_UseNewOverwritesFields(t *testing.T) {
	list := List{Strategy: StrategyUseNew, DefaultQualityProfileID: 2, Monitored: true}
	existing := &catalog.Movie{QualityProfileID: 1, Monitored: false}

	decision, profileID, monitored := resolveConflict(list, Entry{}, existing)

	assert.Equal(t, catalog.DecisionUseNew, decision)
	assert.Equal(t, int64(2), profileID)
	assert.True(t, monitored)
}

func TestResolveConflict_IntelligentPromotesUnmonitoredOnly(t *testing.T) {
	list := List{Strategy: StrategyIntelligent, DefaultQualityProfileID: 2, Monitored: true}

	unmonitored := &catalog.Movie{QualityProfileID: 1, Monitored: false}
	decision, profileID, monitored := resolveConflict(list, Entry{}, unmonitored)
	assert.Equal(t, catalog.DecisionUseNew, decision)
	assert.Equal(t, int64(2), profileID)
	assert.True(t, monitored)

	alreadyMonitored := &catalog.Movie{QualityProfileID: 1, Monitored: true}
	decision, profileID, monitored = resolveConflict(list, Entry{}, alreadyMonitored)
	assert.Equal(t, catalog.DecisionKeepExisting, decision)
	assert.Equal(t, int64(1), profileID)
	assert.True(t, monitored)
}

func TestResolveConflict_RulesBasedHonorsExclusions(t *testing.T) {
	list := List{Strategy: StrategyRulesBased, Exclusions: map[string]bool{"tt1": true}}
	existing := &catalog.Movie{QualityProfileID: 1, Monitored: true}

	decision, _, _ := resolveConflict(list, Entry{ExternalKey: "tt1"}, existing)
	assert.Equal(t, catalog.DecisionIgnore, decision)

	decision, _, _ = resolveConflict(list, Entry{ExternalKey: "tt2"}, existing)
	assert.Equal(t, catalog.DecisionKeepExisting, decision)
}
