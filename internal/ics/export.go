package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"racecal/internal/model"
)

// Export writes events as an all-day VCALENDAR feed named name. Events
// whose date cannot be read are skipped.
func Export(w io.Writer, events []model.Event, name string, now time.Time) error {
	cal := ical.NewCalendarFor("racecal")
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	stamp := now.UTC()
	for _, ev := range events {
		day, err := model.ParseDateKey(ev.Key())
		if err != nil {
			continue
		}
		e := cal.AddEvent(eventUID(ev))
		e.SetDtStampTime(stamp)
		e.SetAllDayStartAt(day)
		e.SetAllDayEndAt(day.AddDate(0, 0, 1))
		e.SetSummary(ev.EventName)
		if ev.EventURL != "" {
			e.SetURL(ev.EventURL)
		}
		if ev.ClubName != "" {
			e.SetProperty(PropertyClub, ev.ClubName)
			e.AddCategory(ev.ClubName)
		}
	}
	return cal.SerializeTo(w)
}

// eventUID derives a UID from the event's name, date and club.
func eventUID(ev model.Event) string {
	sum := sha256.Sum256([]byte(ev.EventName + "\x00" + ev.EventDate + "\x00" + ev.ClubName))
	return hex.EncodeToString(sum[:12]) + "@racecal"
}
