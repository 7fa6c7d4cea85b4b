package usecase

import "github.com/NasaVasa/pushwatch/internal/domain"

// FlipSet holds the ids of conditions that fired during the current tick.
type FlipSet map[string]struct{}

func (f FlipSet) Add(id string) bool {
	if _, ok := f[id]; ok {
		return false
	}
	f[id] = struct{}{}
	return true
}

func (f FlipSet) Has(id string) bool {
	_, ok := f[id]
	return ok
}

// MergeConditions latches FirstNotificationSent for every condition of the
// authoritative list whose id is in flips. Ids missing from the authoritative
// list are dropped, never re-inserted, and no flag is ever cleared. changed
// reports whether any flag moved from false to true.
func MergeConditions(authoritative []domain.Condition, flips FlipSet) ([]domain.Condition, bool) {
	merged := make([]domain.Condition, len(authoritative))
	changed := false
	for i, condition := range authoritative {
		if flips.Has(condition.ID) && !condition.FirstNotificationSent {
			condition.FirstNotificationSent = true
			changed = true
		}
		merged[i] = condition
	}
	return merged, changed
}

func conditionIDs(conditions []domain.Condition) map[string]bool {
	ids := make(map[string]bool, len(conditions))
	for _, condition := range conditions {
		ids[condition.ID] = true
	}
	return ids
}
