package listsync

import "github.com/cinequeue/cinequeue/internal/catalog"

// resolveConflict decides what to do with an entry that already
// matches an existing movie, per the list's configured strategy.
// Returns the decision to record and, when the decision mutates the
// movie, the fields that should be written back.
func resolveConflict(list List, entry Entry, existing *catalog.Movie) (decision catalog.ListSyncDecision, newProfileID int64, newMonitored bool) {
	switch list.Strategy {
	case StrategyUseNew:
		return catalog.DecisionUseNew, list.DefaultQualityProfileID, list.Monitored

	case StrategyIntelligent:
		// Only move to the list's profile when the existing movie is
		// unmonitored (nothing to lose) and the list turns monitoring
		// on; the list's profile then replaces the existing one without
		// any comparison between the two.
		if !existing.Monitored && list.Monitored {
			return catalog.DecisionUseNew, list.DefaultQualityProfileID, list.Monitored
		}
		return catalog.DecisionKeepExisting, existing.QualityProfileID, existing.Monitored

	case StrategyRulesBased:
		if list.Exclusions[entry.ExternalKey] {
			return catalog.DecisionIgnore, existing.QualityProfileID, existing.Monitored
		}
		return catalog.DecisionKeepExisting, existing.QualityProfileID, existing.Monitored

	case StrategyKeepExisting:
		fallthrough
	default:
		return catalog.DecisionKeepExisting, existing.QualityProfileID, existing.Monitored
	}
}

func snapshotMovie(m *catalog.Movie) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"external_key":       m.ExternalKey,
		"title":              m.Title,
		"year":               m.Year,
		"monitored":          m.Monitored,
		"quality_profile_id": m.QualityProfileID,
	}
}
