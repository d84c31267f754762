package tracker

import "time"

// LogQuery holds the optional log bounds; nil fields impose nothing.
type LogQuery struct {
	From  *time.Time
	To    *time.Time
	Limit *int
}

// FilterLog narrows exercises by From, then To, then takes the first Limit
// entries. Order is preserved and the input slice is never modified.
func FilterLog(exercises []Exercise, query LogQuery) []Exercise {
	filtered := make([]Exercise, 0, len(exercises))
	for _, e := range exercises {
		if query.From != nil && e.Date.Before(*query.From) {
			continue
		}
		if query.To != nil && e.Date.After(*query.To) {
			continue
		}
		filtered = append(filtered, e)
	}

	if query.Limit != nil && *query.Limit < len(filtered) {
		limit := *query.Limit
		if limit < 0 {
			limit = 0
		}
		filtered = filtered[:limit]
	}

	return filtered
}
