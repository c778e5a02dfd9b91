package model

import (
	"sort"
	"time"
)

// FilterState is the user's current filter selection. It is mutated only by
// explicit user actions and persisted on every mutation.
type FilterState struct {
	// SelectedClubs empty means "no club filter", not "show nothing".
	SelectedClubs map[string]struct{}
	HideBMX       bool
	HideMTB       bool
}

// NewFilterState builds a FilterState selecting the given clubs.
func NewFilterState(clubs ...string) FilterState {
	f := FilterState{SelectedClubs: make(map[string]struct{}, len(clubs))}
	for _, c := range clubs {
		f.SelectedClubs[c] = struct{}{}
	}
	return f
}

// Selected reports whether club is in the selection.
func (f FilterState) Selected(club string) bool {
	_, ok := f.SelectedClubs[club]
	return ok
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (f FilterState) Clone() FilterState {
	out := FilterState{
		SelectedClubs: make(map[string]struct{}, len(f.SelectedClubs)),
		HideBMX:       f.HideBMX,
		HideMTB:       f.HideMTB,
	}
	for k := range f.SelectedClubs {
		out.SelectedClubs[k] = struct{}{}
	}
	return out
}

// SortedClubs returns the selection in lexicographic order.
func (f FilterState) SortedClubs() []string {
	out := make([]string, 0, len(f.SelectedClubs))
	for k := range f.SelectedClubs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Mode is the display mode.
type Mode string

const (
	ModeList     Mode = "list"
	ModeCalendar Mode = "calendar"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeList || m == ModeCalendar
}

// Granularity is the calendar navigation step.
type Granularity string

const (
	GranularityMonth Granularity = "month"
	GranularityWeek  Granularity = "week"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == GranularityMonth || g == GranularityWeek
}

// ViewState describes what the user is looking at.
type ViewState struct {
	Mode        Mode
	Granularity Granularity
	// Anchor is the date whose month (or week) is displayed. Only its calendar
	// date is meaningful.
	Anchor time.Time
	// SelectedDate is a date-bucket key, or nil when nothing is selected.
	SelectedDate *string
}

// DefaultViewState is the state used before anything is persisted.
func DefaultViewState(now time.Time) ViewState {
	return ViewState{
		Mode:        ModeList,
		Granularity: GranularityMonth,
		Anchor:      Day(now),
	}
}

// DayCell is one day of a calendar grid.
type DayCell struct {
	Date           time.Time `json:"date"`
	Key            string    `json:"key"`
	Events         []Event   `json:"events"`
	IsCurrentMonth bool      `json:"isCurrentMonth"`
	IsToday        bool      `json:"isToday"`
}

// Visible returns at most MaxVisibleEvents events for display.
func (c DayCell) Visible() []Event {
	if len(c.Events) <= MaxVisibleEvents {
		return c.Events
	}
	return c.Events[:MaxVisibleEvents]
}

// Overflow is the number of events hidden behind the "+N more" counter.
func (c DayCell) Overflow() int {
	if n := len(c.Events) - MaxVisibleEvents; n > 0 {
		return n
	}
	return 0
}

// DayGroup is one day-section of the list view.
type DayGroup struct {
	DateKey string  `json:"dateKey"`
	Events  []Event `json:"events"`
}
