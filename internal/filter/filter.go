package filter

import (
	"strings"

	"racecal/internal/model"
)

// Apply returns the events that pass every active predicate of f.
//
// Predicates run in a fixed order:
//  1. club membership (skipped when no club is selected)
//  2. BMX exclusion on the event name
//  3. MTB exclusion on the event name ("mtb" or "mountain bike")
//
// Apply never mutates its input; the returned slice is freshly allocated and
// shares Event values with events.
func Apply(events []model.Event, f model.FilterState) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if Keep(ev, f) {
			out = append(out, ev)
		}
	}
	return out
}

// Keep reports whether a single event passes f.
func Keep(ev model.Event, f model.FilterState) bool {
	if len(f.SelectedClubs) > 0 && !f.Selected(ev.ClubName) {
		return false
	}
	if f.HideBMX && MatchesBMX(ev) {
		return false
	}
	if f.HideMTB && MatchesMTB(ev) {
		return false
	}
	return true
}

// MatchesBMX reports whether the event name mentions BMX.
func MatchesBMX(ev model.Event) bool {
	return strings.Contains(strings.ToLower(ev.EventName), "bmx")
}

// MatchesMTB reports whether the event name mentions MTB or mountain biking.
func MatchesMTB(ev model.Event) bool {
	name := strings.ToLower(ev.EventName)
	return strings.Contains(name, "mtb") || strings.Contains(name, "mountain bike")
}

// SearchClubs returns clubs whose name contains query (case-insensitive),
// leaving out any club for which exclude returns true. An empty query matches
// nothing, matching the club picker which closes on an empty input.
func SearchClubs(clubs []model.Club, query string, exclude func(string) bool) []model.Club {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	out := make([]model.Club, 0)
	for _, c := range clubs {
		if exclude != nil && exclude(c.ClubName) {
			continue
		}
		if strings.Contains(strings.ToLower(c.ClubName), q) {
			out = append(out, c)
		}
	}
	return out
}
