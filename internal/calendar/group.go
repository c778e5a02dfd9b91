package calendar

import (
	"sort"

	"racecal/internal/model"
)

// GroupByDate buckets events into day sections ordered by ascending key.
// Within a day, events keep their input order.
func GroupByDate(events []model.Event) []model.DayGroup {
	byKey := bucket(events)
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]model.DayGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, model.DayGroup{DateKey: k, Events: byKey[k]})
	}
	return groups
}

// EventsOn returns the events whose key equals key, in input order.
func EventsOn(events []model.Event, key string) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.Key() == key {
			out = append(out, ev)
		}
	}
	return out
}

// Upcoming drops groups dated before fromKey.
func Upcoming(groups []model.DayGroup, fromKey string) []model.DayGroup {
	i := sort.Search(len(groups), func(i int) bool {
		return groups[i].DateKey >= fromKey
	})
	return groups[i:]
}
