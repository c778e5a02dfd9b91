package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "racecal/internal/log"
)

// PropertyClub is the non-standard property carrying the organising club.
const PropertyClub = ical.ComponentProperty("X-CLUB")

// ParsedEvent is a VEVENT reduced to the fields racecal uses. Recurrence
// expansion operates on this type.
type ParsedEvent struct {
	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string
	Club        string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, in the event's own location
	IsOverride bool
}

// Parse decodes an iCalendar payload. name identifies the feed in logs.
//
// VEVENTs that cannot be read are logged and skipped; only a payload that is
// not iCalendar at all fails.
func Parse(name string, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "feed", name)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "feed", name, "event_count", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func paramValue(prop *ical.IANAProperty, name string) string {
	if prop == nil || prop.ICalParameters == nil {
		return ""
	}
	if vs, ok := prop.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		return out, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(propValue(ve, ical.ComponentPropertySequence))); err == nil {
		out.Seq = n
	}

	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.URL = propValue(ve, ical.ComponentPropertyUrl)
	out.Club = clubOf(ve)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	if strings.EqualFold(paramValue(dtStart, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return out, err
	}

	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if out.AllDay {
		out.End = out.Start.AddDate(0, 0, 1)
	} else {
		out.End = out.Start
	}

	loc := out.Start.Location()

	out.RawRRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := loc
		if tz := paramValue(p, "TZID"); tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				exLoc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, exLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		ridLoc := loc
		if tz := paramValue(rid, "TZID"); tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				ridLoc = l
			}
		}
		if t, err := parseICSTime(rid.Value, ridLoc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// clubOf picks the organising club: X-CLUB, then the ORGANIZER common name,
// then the first category.
func clubOf(ve *ical.VEvent) string {
	if v := strings.TrimSpace(propValue(ve, PropertyClub)); v != "" {
		return v
	}
	if cn := strings.TrimSpace(paramValue(ve.GetProperty(ical.ComponentPropertyOrganizer), "CN")); cn != "" {
		return cn
	}
	if cats := propValue(ve, ical.ComponentPropertyCategories); cats != "" {
		first, _, _ := strings.Cut(cats, ",")
		return strings.TrimSpace(first)
	}
	return ""
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
// Values without a zone are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
