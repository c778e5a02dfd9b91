package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"racecal/internal/model"
)

const cellWidth = 16

// Write renders p as text in its effective mode.
func Write(w io.Writer, p Page) error {
	switch {
	case p.Mode == model.ModeList:
		return WriteList(w, p)
	case p.Granularity == model.GranularityWeek:
		return WriteWeek(w, p)
	default:
		return WriteMonth(w, p)
	}
}

// WriteList prints events grouped by day, numbered for `racecal open`.
func WriteList(w io.Writer, p Page) error {
	var b strings.Builder
	header(&b, p)

	if len(p.Groups) == 0 {
		b.WriteString("No events match the current filters.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	n := 0
	for _, g := range p.Groups {
		fmt.Fprintf(&b, "\n%s\n", g.Label)
		for _, ev := range g.Events {
			n++
			fmt.Fprintf(&b, "  %3d. %s\n", n, ev.EventName)
			fmt.Fprintf(&b, "       %s", ev.ClubName)
			if ev.EventURL != "" {
				fmt.Fprintf(&b, "  %s", ev.EventURL)
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMonth prints a six-row month grid.
func WriteMonth(w io.Writer, p Page) error {
	var b strings.Builder
	header(&b, p)
	writeWeekdays(&b, p.Weekdays)
	for row := 0; row*7 < len(p.Cells); row++ {
		writeRow(&b, p.Cells[row*7:min(row*7+7, len(p.Cells))])
	}
	writeSelected(&b, p.Selected)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteWeek prints a single seven-day row.
func WriteWeek(w io.Writer, p Page) error {
	var b strings.Builder
	header(&b, p)
	writeWeekdays(&b, p.Weekdays)
	writeRow(&b, p.Cells)
	writeSelected(&b, p.Selected)
	_, err := io.WriteString(w, b.String())
	return err
}

func header(b *strings.Builder, p Page) {
	for _, n := range p.Notices {
		fmt.Fprintf(b, "! %s\n", n.Text)
	}
	if p.Onboarding {
		b.WriteString("Tip: pick your clubs with `racecal select <club>` to narrow the events.\n")
	}
	fmt.Fprintf(b, "%s  (%d events, %d clubs)\n", p.Title, p.EventCount, p.ClubCount)

	var filters []string
	for _, c := range p.Chips {
		filters = append(filters, c.Club)
	}
	if p.HideBMX {
		filters = append(filters, "no BMX")
	}
	if p.HideMTB {
		filters = append(filters, "no MTB")
	}
	if len(filters) > 0 {
		fmt.Fprintf(b, "Filters: %s\n", strings.Join(filters, ", "))
	}
}

func writeWeekdays(b *strings.Builder, names []string) {
	for _, d := range names {
		b.WriteString(pad(d))
	}
	b.WriteByte('\n')
}

func writeRow(b *strings.Builder, cells []Cell) {
	for _, c := range cells {
		b.WriteString(pad(dayLabel(c)))
	}
	b.WriteByte('\n')

	for i := 0; i < model.MaxVisibleEvents; i++ {
		line := false
		var lb strings.Builder
		for _, c := range cells {
			name := ""
			if i < len(c.Events) {
				name = "- " + c.Events[i].EventName
				line = true
			}
			lb.WriteString(pad(name))
		}
		if line {
			b.WriteString(strings.TrimRight(lb.String(), " "))
			b.WriteByte('\n')
		}
	}

	more := false
	var mb strings.Builder
	for _, c := range cells {
		s := ""
		if c.More > 0 {
			s = "+" + strconv.Itoa(c.More) + " more"
			more = true
		}
		mb.WriteString(pad(s))
	}
	if more {
		b.WriteString(strings.TrimRight(mb.String(), " "))
		b.WriteByte('\n')
	}
}

func writeSelected(b *strings.Builder, g *Group) {
	if g == nil {
		return
	}
	fmt.Fprintf(b, "\n%s\n", g.Label)
	if len(g.Events) == 0 {
		b.WriteString("  No events on this day.\n")
		return
	}
	for _, ev := range g.Events {
		fmt.Fprintf(b, "  - %s (%s)\n", ev.EventName, ev.ClubName)
	}
}

// dayLabel marks today with '*', the selection with brackets and days of
// adjacent months with parentheses.
func dayLabel(c Cell) string {
	s := strconv.Itoa(c.Day)
	if c.IsToday {
		s += "*"
	}
	switch {
	case c.IsSelected:
		s = "[" + s + "]"
	case !c.IsCurrentMonth:
		s = "(" + s + ")"
	}
	return s
}

// pad truncates or right-pads s to one cell.
func pad(s string) string {
	r := []rune(s)
	if len(r) >= cellWidth {
		return string(r[:cellWidth-2]) + "… "
	}
	return s + strings.Repeat(" ", cellWidth-len(r))
}
