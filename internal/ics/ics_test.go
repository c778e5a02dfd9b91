package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/model"
)

const sampleFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//racecal//test//EN
BEGIN:VEVENT
UID:crit-1
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250705
DTEND;VALUE=DATE:20250706
SUMMARY:Winter Criterium
URL:https://example.test/crit
X-CLUB:Brunswick Cycling Club
END:VEVENT
BEGIN:VEVENT
UID:bunch
DTSTAMP:20250101T000000Z
DTSTART:20250701T080000Z
DTEND:20250701T100000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20250708T080000Z
SUMMARY:Tuesday Bunch Ride
ORGANIZER;CN=Eastern Cycling Club:mailto:info@example.test
END:VEVENT
BEGIN:VEVENT
UID:bunch
DTSTAMP:20250101T000000Z
RECURRENCE-ID:20250715T080000Z
DTSTART:20250716T080000Z
DTEND:20250716T100000Z
SUMMARY:Wednesday Bunch Ride
ORGANIZER;CN=Eastern Cycling Club:mailto:info@example.test
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250101T000000Z
DTSTART:20250710T000000Z
SUMMARY:No UID
END:VEVENT
BEGIN:VEVENT
UID:track
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250801
SUMMARY:Track Omnium
CATEGORIES:Hamilton Wheelers,Track
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParse(t *testing.T) {
	parsed, err := Parse("sample", crlf(sampleFeed))
	require.NoError(t, err)
	require.Len(t, parsed, 4)

	byUID := map[string][]ParsedEvent{}
	for _, p := range parsed {
		byUID[p.UID] = append(byUID[p.UID], p)
	}

	crit := byUID["crit-1"][0]
	assert.True(t, crit.AllDay)
	assert.Equal(t, "Brunswick Cycling Club", crit.Club)
	assert.Equal(t, "https://example.test/crit", crit.URL)

	require.Len(t, byUID["bunch"], 2)
	assert.Equal(t, "Eastern Cycling Club", byUID["bunch"][0].Club)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", byUID["bunch"][0].RawRRule)
	require.Len(t, byUID["bunch"][0].ExDates, 1)
	assert.True(t, byUID["bunch"][1].IsOverride)

	track := byUID["track"][0]
	assert.Equal(t, "Hamilton Wheelers", track.Club)
	assert.True(t, track.AllDay)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("empty", []byte("  \n"))
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	parsed, err := Parse("sample", crlf(sampleFeed))
	require.NoError(t, err)

	res, err := Expand(parsed, ExpandConfig{
		RangeStart:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:    time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		DefaultClub: "Feed",
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 4)

	got := make([]string, 0, len(res.Events))
	for _, ev := range res.Events {
		got = append(got, ev.Key()+" "+ev.EventName)
	}
	assert.Equal(t, []string{
		"2025-07-01 Tuesday Bunch Ride",
		"2025-07-05 Winter Criterium",
		"2025-07-16 Wednesday Bunch Ride",
		"2025-07-22 Tuesday Bunch Ride",
	}, got)

	assert.Equal(t, "2025-07-05T00:00:00Z", res.Events[1].EventDate)
	assert.Equal(t, "Eastern Cycling Club", res.Events[0].ClubName)
	for _, ev := range res.Events {
		assert.NoError(t, model.Valid(ev))
	}
	assert.Empty(t, res.TruncatedEvents)
}

func TestExpand_Cap(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	parsed := []ParsedEvent{{
		UID: "daily", Summary: "Daily", Start: start, End: start.Add(time.Hour),
		RawRRule: "FREQ=DAILY",
	}}
	res, err := Expand(parsed, ExpandConfig{
		RangeStart:             start,
		RangeEnd:               start.AddDate(0, 0, 30),
		MaxOccurrencesPerEvent: 5,
		DefaultClub:            "Feed",
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 5)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)
	assert.Equal(t, "Feed", res.Events[0].ClubName)
}

func TestExpand_InvalidRange(t *testing.T) {
	now := time.Now()
	_, err := Expand(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, 7, 5, 13, 0, 0, 0, time.UTC)
	start, end := Window(now, 0, -1)
	assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC), end)

	start, end = Window(now, 30, 0)
	assert.Equal(t, time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC), end)
}

func TestExport_RoundTrip(t *testing.T) {
	events := []model.Event{
		{EventName: "Winter Criterium", EventDate: "2025-07-05T00:00:00Z", ClubName: "Brunswick Cycling Club", EventURL: "https://example.test/1"},
		{EventName: "Broken", EventDate: "someday", ClubName: "X"},
		{EventName: "Road Race", EventDate: "2025-07-12T00:00:00Z", ClubName: "Eastern Cycling Club"},
	}
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, events, "Race Calendar", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, buf.String(), "X-WR-CALNAME:Race Calendar")

	parsed, err := Parse("export", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	res, err := Expand(parsed, ExpandConfig{
		RangeStart: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, events[0], res.Events[0])
	assert.Equal(t, "Eastern Cycling Club", res.Events[1].ClubName)
	assert.Equal(t, "2025-07-12", res.Events[1].Key())
}

func TestEventUIDStable(t *testing.T) {
	ev := model.Event{EventName: "A", EventDate: "2025-01-01T00:00:00Z", ClubName: "C"}
	assert.Equal(t, eventUID(ev), eventUID(ev))
	ev2 := ev
	ev2.ClubName = "D"
	assert.NotEqual(t, eventUID(ev), eventUID(ev2))
}
