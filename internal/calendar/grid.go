package calendar

import (
	"fmt"
	"time"

	"racecal/internal/model"
)

const (
	// MonthCells is six full weeks.
	MonthCells = 42
	WeekCells  = 7
)

// bucket indexes events by date-bucket key, keeping input order per day.
func bucket(events []model.Event) map[string][]model.Event {
	out := make(map[string][]model.Event)
	for _, ev := range events {
		k := ev.Key()
		out[k] = append(out[k], ev)
	}
	return out
}

// WeekStart returns the Sunday on or before t, at midnight UTC.
func WeekStart(t time.Time) time.Time {
	d := model.Day(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// MonthGrid builds the 42-cell grid for month, starting on the Sunday on or
// before the 1st. Cells outside month have IsCurrentMonth false.
//
// Every event whose key falls inside the grid lands in exactly one cell.
func MonthGrid(year int, month time.Month, events []model.Event, today time.Time) [MonthCells]model.DayCell {
	var cells [MonthCells]model.DayCell

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := WeekStart(first)
	byKey := bucket(events)
	todayKey := model.KeyOf(today)

	for i := range cells {
		d := start.AddDate(0, 0, i)
		key := model.KeyOf(d)
		cells[i] = model.DayCell{
			Date:           d,
			Key:            key,
			Events:         byKey[key],
			IsCurrentMonth: d.Month() == first.Month(),
			IsToday:        key == todayKey,
		}
	}
	return cells
}

// WeekGrid builds seven cells starting at weekStart. All cells count as
// current; week views have no adjacent-month dimming.
func WeekGrid(weekStart time.Time, events []model.Event, today time.Time) [WeekCells]model.DayCell {
	var cells [WeekCells]model.DayCell

	start := model.Day(weekStart)
	byKey := bucket(events)
	todayKey := model.KeyOf(today)

	for i := range cells {
		d := start.AddDate(0, 0, i)
		key := model.KeyOf(d)
		cells[i] = model.DayCell{
			Date:           d,
			Key:            key,
			Events:         byKey[key],
			IsCurrentMonth: true,
			IsToday:        key == todayKey,
		}
	}
	return cells
}

// Range returns the first and last keys covered by cells.
func Range(cells []model.DayCell) (first, last string) {
	if len(cells) == 0 {
		return "", ""
	}
	return cells[0].Key, cells[len(cells)-1].Key
}

// Count returns the number of events placed in cells.
func Count(cells []model.DayCell) int {
	n := 0
	for _, c := range cells {
		n += len(c.Events)
	}
	return n
}

// Title is the heading for the period the view state shows:
// "January 2025" for months and "5 Jan - 11 Jan" for weeks.
func Title(s model.ViewState) string {
	if s.Granularity == model.GranularityWeek {
		start := WeekStart(s.Anchor)
		end := start.AddDate(0, 0, WeekCells-1)
		return fmt.Sprintf("%s - %s", ShortDate(start), ShortDate(end))
	}
	return s.Anchor.Format("January 2006")
}

// ShortDate formats t as "5 Jan".
func ShortDate(t time.Time) string {
	return t.Format("2 Jan")
}

// LongDate formats t as "Saturday, 5 July 2025".
func LongDate(t time.Time) string {
	return t.Format("Monday, 2 January 2006")
}
