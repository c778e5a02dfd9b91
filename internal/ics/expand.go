package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500

	DefaultHorizonDays  = 365
	DefaultBackfillDays = 1
)

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the occurrences that are produced.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps each recurring series.
	MaxOccurrencesPerEvent int

	// DefaultClub is used for events that carry no club of their own.
	DefaultClub string
}

// Window returns the expansion range around now: backfillDays back and
// horizonDays ahead. Non-positive values use the defaults.
func Window(now time.Time, horizonDays, backfillDays int) (time.Time, time.Time) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if backfillDays < 0 {
		backfillDays = DefaultBackfillDays
	}
	day := model.Day(now)
	return day.AddDate(0, 0, -backfillDays), day.AddDate(0, 0, horizonDays)
}

// ExpandResult holds the produced events and the series that hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// Expand turns parsed VEVENTs into concrete events inside the configured
// range. RRULE series are expanded, EXDATEs removed and RECURRENCE-ID
// overrides applied. Output is ordered by date key, then name.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)
	for uid, bases := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range bases {
			var occ []model.Event
			if ev.RawRRule == "" {
				occ = expandSingle(ev, ov, cfg)
			} else {
				var hitCap bool
				occ, hitCap = expandRecurring(ev, ov, cfg)
				truncated = truncated || hitCap
			}
			out = append(out, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: occurrences truncated", errors.New("max occurrences reached"),
				"uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki != kj {
			return ki < kj
		}
		return out[i].EventName < out[j].EventName
	})
	sort.Strings(result.TruncatedEvents)
	result.Events = out
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Event{toEvent(ev, ev.Start, cfg)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: invalid RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		inst := ev
		if o, ok := findOverride(overrides, start); ok {
			inst = o
			start = o.Start
		}
		out = append(out, toEvent(inst, start, cfg))
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toEvent renders an occurrence. All-day occurrences are dated at midnight
// UTC of their calendar date; timed ones keep their own offset so the date
// key is the local date of the event.
func toEvent(ev ParsedEvent, start time.Time, cfg ExpandConfig) model.Event {
	club := ev.Club
	if club == "" {
		club = cfg.DefaultClub
	}
	var date string
	if ev.AllDay {
		y, m, d := start.Date()
		date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	} else {
		date = start.Format(time.RFC3339)
	}
	return model.Event{
		EventName: ev.Summary,
		EventDate: date,
		ClubName:  club,
		EventURL:  ev.URL,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(aStart) {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
