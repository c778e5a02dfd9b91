// Package render turns core state into plain view models for the CLI and
// the HTML/JSON server.
package render

import (
	"fmt"
	"sort"
	"time"

	"racecal/internal/calendar"
	"racecal/internal/colors"
	"racecal/internal/model"
)

// MobileBreakpoint is the viewport width below which calendars are shown
// as a list.
const MobileBreakpoint = 768

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Viewport describes the display. A zero Width means unknown and is treated
// as desktop.
type Viewport struct {
	Width      int
	Breakpoint int
}

// Mobile reports whether the viewport is narrower than its breakpoint.
func (v Viewport) Mobile() bool {
	bp := v.Breakpoint
	if bp <= 0 {
		bp = MobileBreakpoint
	}
	return v.Width > 0 && v.Width < bp
}

// Effective returns the state to display: calendar mode becomes list on
// mobile viewports. The persisted preference is not touched.
func Effective(s model.ViewState, vp Viewport) model.ViewState {
	if vp.Mobile() && s.Mode == model.ModeCalendar {
		s.Mode = model.ModeList
	}
	return s
}

// EventView is an event with its club colour.
type EventView struct {
	model.Event
	Color string `json:"color"`
}

type Cell struct {
	Key            string      `json:"key"`
	Day            int         `json:"day"`
	IsCurrentMonth bool        `json:"isCurrentMonth"`
	IsToday        bool        `json:"isToday"`
	IsSelected     bool        `json:"isSelected"`
	Events         []EventView `json:"events"`
	More           int         `json:"more"`
}

type Group struct {
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Events []EventView `json:"events"`
}

type Chip struct {
	Club  string `json:"club"`
	Color string `json:"color"`
}

type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Page is everything a presentation layer needs for one screen.
type Page struct {
	Title         string            `json:"title"`
	Mode          model.Mode        `json:"mode"`
	PreferredMode model.Mode        `json:"preferredMode"`
	Granularity   model.Granularity `json:"granularity"`
	Anchor        string            `json:"anchor"`
	Weekdays      []string          `json:"weekdays,omitempty"`
	Cells         []Cell            `json:"cells,omitempty"`
	Groups        []Group           `json:"groups,omitempty"`
	Selected      *Group            `json:"selected,omitempty"`
	Chips         []Chip            `json:"chips"`
	HideBMX       bool              `json:"hideBMX"`
	HideMTB       bool              `json:"hideMTB"`
	EventCount    int               `json:"eventCount"`
	ClubCount     int               `json:"clubCount"`
	Onboarding    bool              `json:"onboarding"`
	Notices       []Notice          `json:"notices,omitempty"`
}

// Input is the core state a Page is built from. Events must already be
// filtered.
type Input struct {
	View       model.ViewState
	Viewport   Viewport
	Filter     model.FilterState
	Events     []model.Event
	Clubs      []model.Club
	Colors     *colors.Map
	Today      time.Time
	Onboarding bool
	IsFallback bool
	Warnings   []error
}

// Build assembles the page for the effective view.
func Build(in Input) Page {
	eff := Effective(in.View, in.Viewport)
	p := Page{
		Mode:          eff.Mode,
		PreferredMode: in.View.Mode,
		Granularity:   eff.Granularity,
		Anchor:        model.KeyOf(eff.Anchor),
		HideBMX:       in.Filter.HideBMX,
		HideMTB:       in.Filter.HideMTB,
		EventCount:    len(in.Events),
		ClubCount:     len(in.Clubs),
		Onboarding:    in.Onboarding,
		Chips:         chips(in.Filter, in.Colors),
		Notices:       notices(in.IsFallback, in.Warnings),
	}

	if eff.Mode == model.ModeList {
		p.Title = "Upcoming events"
		for _, g := range calendar.GroupByDate(in.Events) {
			p.Groups = append(p.Groups, group(g.DateKey, g.Events, in.Colors))
		}
		return p
	}

	p.Title = calendar.Title(eff)
	p.Weekdays = weekdays
	selected := ""
	if eff.SelectedDate != nil {
		selected = *eff.SelectedDate
	}

	var cells []model.DayCell
	if eff.Granularity == model.GranularityWeek {
		g := calendar.WeekGrid(calendar.WeekStart(eff.Anchor), in.Events, in.Today)
		cells = g[:]
	} else {
		g := calendar.MonthGrid(eff.Anchor.Year(), eff.Anchor.Month(), in.Events, in.Today)
		cells = g[:]
	}
	p.Cells = make([]Cell, len(cells))
	for i, c := range cells {
		p.Cells[i] = Cell{
			Key:            c.Key,
			Day:            c.Date.Day(),
			IsCurrentMonth: c.IsCurrentMonth,
			IsToday:        c.IsToday,
			IsSelected:     c.Key == selected,
			Events:         views(c.Visible(), in.Colors),
			More:           c.Overflow(),
		}
	}
	if selected != "" {
		sel := group(selected, calendar.EventsOn(in.Events, selected), in.Colors)
		p.Selected = &sel
	}
	return p
}

// Events flattens the list groups in display order. Index i+1 is the
// number shown by WriteList.
func (p Page) Events() []EventView {
	var out []EventView
	for _, g := range p.Groups {
		out = append(out, g.Events...)
	}
	return out
}

func group(key string, events []model.Event, cm *colors.Map) Group {
	label := key
	if t, err := model.ParseDateKey(key); err == nil {
		label = calendar.LongDate(t)
	}
	return Group{Key: key, Label: label, Events: views(events, cm)}
}

func views(events []model.Event, cm *colors.Map) []EventView {
	out := make([]EventView, len(events))
	for i, ev := range events {
		out[i] = EventView{Event: ev, Color: colorOf(cm, ev.ClubName)}
	}
	return out
}

func colorOf(cm *colors.Map, club string) string {
	if cm == nil {
		return colors.Neutral
	}
	return cm.LookupOr(club, colors.Neutral)
}

func chips(f model.FilterState, cm *colors.Map) []Chip {
	clubs := f.SortedClubs()
	out := make([]Chip, len(clubs))
	for i, c := range clubs {
		out[i] = Chip{Club: c, Color: colorOf(cm, c)}
	}
	return out
}

func notices(fallback bool, warnings []error) []Notice {
	var out []Notice
	if fallback {
		out = append(out, Notice{
			Level: "warning",
			Text:  "Demo mode: event data could not be reached, showing sample events.",
		})
	}
	if n := len(warnings); n > 0 && !fallback {
		msgs := make([]string, 0, n)
		for _, w := range warnings {
			msgs = append(msgs, w.Error())
		}
		sort.Strings(msgs)
		text := msgs[0]
		if n > 1 {
			text = fmt.Sprintf("%s (and %d more)", text, n-1)
		}
		out = append(out, Notice{Level: "info", Text: text})
	}
	return out
}
