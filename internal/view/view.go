package view

import (
	"errors"
	"fmt"
	"math"
	"time"

	"racecal/internal/model"
)

// ErrInvalidDirection is returned by NavigatePeriod for anything but -1 or +1.
var ErrInvalidDirection = errors.New("direction must be -1 or +1")

// SwipeThreshold is the minimum gesture length, in pixels, that counts as a swipe.
const SwipeThreshold = 50.0

// NavigatePeriod moves the anchor one month or one week in dir.
//
// Month steps keep the day of month where possible and clamp it to the
// target month's length, so Jan 31 + 1 lands on the last day of February.
func NavigatePeriod(s model.ViewState, dir int) (model.ViewState, error) {
	if dir != 1 && dir != -1 {
		return s, fmt.Errorf("%w: got %d", ErrInvalidDirection, dir)
	}
	anchor := model.Day(s.Anchor)
	switch s.Granularity {
	case model.GranularityWeek:
		s.Anchor = anchor.AddDate(0, 0, 7*dir)
	default:
		s.Anchor = addMonthsClamped(anchor, dir)
	}
	return s, nil
}

func addMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SetMode switches between list and calendar. Unknown modes leave s unchanged.
func SetMode(s model.ViewState, m model.Mode) model.ViewState {
	if m.Valid() {
		s.Mode = m
	}
	return s
}

// SetGranularity switches between month and week navigation.
func SetGranularity(s model.ViewState, g model.Granularity) model.ViewState {
	if g.Valid() {
		s.Granularity = g
	}
	return s
}

// SelectDate selects the day with the given key. Selecting the day that is
// already selected clears the selection.
func SelectDate(s model.ViewState, key string) model.ViewState {
	if s.SelectedDate != nil && *s.SelectedDate == key {
		s.SelectedDate = nil
		return s
	}
	k := key
	s.SelectedDate = &k
	return s
}

func ClearSelection(s model.ViewState) model.ViewState {
	s.SelectedDate = nil
	return s
}

// Today moves the anchor to now's calendar date.
func Today(s model.ViewState, now time.Time) model.ViewState {
	s.Anchor = model.Day(now)
	return s
}

// Swipe classifies a touch gesture by its displacement. A left swipe
// (negative dx) advances, a right swipe goes back. Mostly-vertical or short
// gestures return 0.
func Swipe(dx, dy float64) int {
	if math.Hypot(dx, dy) <= SwipeThreshold {
		return 0
	}
	if math.Abs(dx) <= 2*math.Abs(dy) {
		return 0
	}
	if dx < 0 {
		return 1
	}
	return -1
}
