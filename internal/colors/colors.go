package colors

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Palette is the fixed set of club colours. Clubs beyond len(Palette) reuse
// entries cyclically.
var Palette = []string{
	"#ef4444", "#f97316", "#f59e0b", "#eab308", "#84cc16",
	"#22c55e", "#10b981", "#14b8a6", "#06b6d4", "#0ea5e9",
	"#3b82f6", "#6366f1", "#8b5cf6", "#a855f7", "#d946ef",
	"#ec4899", "#f43f5e", "#fb7185", "#fb923c", "#fbbf24",
}

// Neutral is used for clubs that have no colour assigned yet.
const Neutral = "#6b7280"

// Entry is one club/colour assignment.
type Entry struct {
	Club  string
	Color string
}

// Map assigns colours to clubs in first-seen order. Entries are never
// reassigned or removed, so a club keeps its colour after being deselected.
//
// Colours depend on insertion order, not on club names: a persisted Map must
// be restored with Seed rather than rebuilt, or colours drift between sessions.
type Map struct {
	palette []string
	order   []string
	colors  map[string]string
}

// New returns an empty Map over palette (Palette when nil).
func New(palette []string) *Map {
	if len(palette) == 0 {
		palette = Palette
	}
	return &Map{
		palette: palette,
		colors:  make(map[string]string),
	}
}

// Seed returns a Map pre-populated with persisted entries, in order.
// Duplicate clubs keep their first colour.
func Seed(palette []string, entries []Entry) *Map {
	m := New(palette)
	for _, e := range entries {
		if e.Club == "" || e.Color == "" {
			continue
		}
		if _, ok := m.colors[e.Club]; ok {
			continue
		}
		m.order = append(m.order, e.Club)
		m.colors[e.Club] = e.Color
	}
	return m
}

// Assign returns the club's colour, assigning palette[size % len] first if
// the club has none yet. The second result reports whether the map changed.
func (m *Map) Assign(club string) (string, bool) {
	if c, ok := m.colors[club]; ok {
		return c, false
	}
	c := m.palette[len(m.order)%len(m.palette)]
	m.order = append(m.order, club)
	m.colors[club] = c
	return c, true
}

// ColorFor is Assign without the change flag.
func (m *Map) ColorFor(club string) string {
	c, _ := m.Assign(club)
	return c
}

// Lookup returns the assigned colour without assigning one.
func (m *Map) Lookup(club string) (string, bool) {
	c, ok := m.colors[club]
	return c, ok
}

// LookupOr returns the assigned colour or fallback.
func (m *Map) LookupOr(club, fallback string) string {
	if c, ok := m.colors[club]; ok {
		return c
	}
	return fallback
}

func (m *Map) Len() int {
	return len(m.order)
}

// Entries returns assignments in insertion order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, club := range m.order {
		out = append(out, Entry{Club: club, Color: m.colors[club]})
	}
	return out
}

// MarshalJSON encodes the map as an ordered array of [club, color] pairs.
func (m *Map) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, 0, len(m.order))
	for _, e := range m.Entries() {
		pairs = append(pairs, [2]string{e.Club, e.Color})
	}
	return json.Marshal(pairs)
}

// DecodeEntries parses the persisted [[club, color], ...] form.
// A JSON object form {"club": "color"} written by older builds is accepted
// too; having no order of its own, it is read in club-name order.
func DecodeEntries(data []byte) ([]Entry, error) {
	var pairs [][]string
	if err := json.Unmarshal(data, &pairs); err == nil {
		out := make([]Entry, 0, len(pairs))
		for i, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("colour entry %d: expected [club, color], got %d items", i, len(p))
			}
			out = append(out, Entry{Club: p[0], Color: p[1]})
		}
		return out, nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode colour map: %w", err)
	}
	out := make([]Entry, 0, len(obj))
	for club, color := range obj {
		out = append(out, Entry{Club: club, Color: color})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Club < out[j].Club })
	return out, nil
}
