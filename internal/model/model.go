package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// KeyLayout is the layout of a date-bucket key.
const KeyLayout = "2006-01-02"

// MaxVisibleEvents is how many event indicators a calendar cell shows before
// collapsing the rest into a "+N more" counter. Presentation layers depend on it.
const MaxVisibleEvents = 3

// Event is a single race event as published in the events collection.
// Events are immutable once loaded and shared by reference downstream.
type Event struct {
	EventName string `json:"eventName"`
	EventDate string `json:"eventDate"` // ISO-8601, e.g. 2025-07-05T00:00:00Z
	ClubName  string `json:"clubName"`
	EventURL  string `json:"eventUrl"`
}

// Club is an entry of the clubs collection. Only ClubName is required.
type Club struct {
	ClubName string `json:"clubName"`
	ClubURL  string `json:"clubUrl,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// Key returns the event's date-bucket key.
func (e Event) Key() string {
	return DateKey(e.EventDate)
}

// DateKey truncates an ISO-8601 timestamp to its YYYY-MM-DD prefix.
//
// The key is taken from the string itself and never from a time.Time in some
// local zone, so an event dated 2025-07-05T00:00:00Z lands on the 5th for
// every viewer.
func DateKey(iso string) string {
	for i := 0; i < len(iso); i++ {
		if iso[i] == 'T' || iso[i] == ' ' {
			return iso[:i]
		}
	}
	if len(iso) > len(KeyLayout) {
		return iso[:len(KeyLayout)]
	}
	return iso
}

// ParseDateKey parses a date-bucket key into midnight UTC of that date.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.Parse(KeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// KeyOf formats the calendar date of t (in t's own location) as a key.
func KeyOf(t time.Time) string {
	return t.Format(KeyLayout)
}

// Day returns midnight UTC for the calendar date of t, dropping time of day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ErrInvalidEventDate is returned by Valid for events whose date has no
// parseable YYYY-MM-DD prefix.
var ErrInvalidEventDate = errors.New("invalid event date")

// Valid checks the event invariant: EventDate must yield a real calendar date.
func Valid(e Event) error {
	if _, err := ParseDateKey(e.Key()); err != nil {
		return fmt.Errorf("%w: %q (%s)", ErrInvalidEventDate, e.EventDate, e.EventName)
	}
	return nil
}

// DistinctClubs derives the club list from events: distinct ClubName values,
// sorted lexicographically.
func DistinctClubs(events []Event) []Club {
	seen := make(map[string]struct{}, len(events))
	names := make([]string, 0)
	for _, ev := range events {
		if ev.ClubName == "" {
			continue
		}
		if _, ok := seen[ev.ClubName]; ok {
			continue
		}
		seen[ev.ClubName] = struct{}{}
		names = append(names, ev.ClubName)
	}
	sort.Strings(names)

	clubs := make([]Club, 0, len(names))
	for _, n := range names {
		clubs = append(clubs, Club{ClubName: n})
	}
	return clubs
}

// SortClubs orders clubs by name in place.
func SortClubs(clubs []Club) {
	sort.SliceStable(clubs, func(i, j int) bool {
		return clubs[i].ClubName < clubs[j].ClubName
	})
}
