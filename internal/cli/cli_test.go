package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/app"
)

var now = time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC)

const eventsJSON = `[
  {"eventName":"Track Night","eventDate":"2025-07-01T00:00:00Z","clubName":"Brunswick","eventUrl":"https://entryboss.cc/races/1"},
  {"eventName":"BMX State Round","eventDate":"2025-07-05T00:00:00Z","clubName":"Eastern"},
  {"eventName":"Mountain Bike Enduro","eventDate":"2025-07-05T00:00:00Z","clubName":"Colac"},
  {"eventName":"Criterium","eventDate":"2025-07-12T00:00:00Z","clubName":"Eastern","eventUrl":"https://entryboss.cc/races/4"}
]`

const clubsJSON = `[
  {"clubName":"Brunswick","lastSeen":"2025-06-30T12:09:22Z"},
  {"clubName":"Colac","lastSeen":"2025-07-01T08:00:00Z"},
  {"clubName":"Eastern"}
]`

type harness struct {
	dir    string
	opened []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.json"), []byte(eventsJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clubs.json"), []byte(clubsJSON), 0o644))
	cfg := "events_url: " + filepath.Join(dir, "events.json") + "\n" +
		"clubs_url: " + filepath.Join(dir, "clubs.json") + "\n" +
		"store:\n  driver: file\n  path: prefs.json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600))
	return &harness{dir: dir}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := h.runEnv(t, args...)
	return out, err
}

func (h *harness) runEnv(t *testing.T, args ...string) (string, *env, error) {
	t.Helper()
	e := &env{
		now: func() time.Time { return now },
		opener: app.OpenerFunc(func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		}),
	}
	cmd := newRoot(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(h.dir, "config.yaml")}, args...))
	err := e.execute(context.Background(), cmd)
	return out.String(), e, err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestListShowsAllEventsOnFirstRun(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "list")

	assert.Contains(t, out, "Upcoming events")
	assert.Contains(t, out, "Tip: pick your clubs")
	assert.Contains(t, out, "1. Track Night")
	assert.Contains(t, out, "https://entryboss.cc/races/1")
	assert.Contains(t, out, "Criterium")
	assert.NotContains(t, out, "Filters:")
}

func TestSelectPersistsBetweenRuns(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "select", "eastern")
	assert.Contains(t, out, "Selected Eastern (#")

	out = h.mustRun(t, "list")
	assert.Contains(t, out, "Filters: Eastern")
	assert.Contains(t, out, "Criterium")
	assert.NotContains(t, out, "Track Night")
	assert.NotContains(t, out, "Tip:")

	out = h.mustRun(t, "clubs")
	assert.Contains(t, out, "* Eastern")

	out = h.mustRun(t, "deselect", "Eastern")
	assert.Contains(t, out, "Deselected Eastern")
	assert.Contains(t, h.mustRun(t, "list"), "Track Night")

	_, err := h.run(t, "deselect", "Eastern")
	assert.ErrorContains(t, err, "not selected")
}

func TestSelectUnknownClub(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "select", "Nowhere")
	assert.ErrorContains(t, err, `unknown club "Nowhere"`)

	_, err = h.run(t, "select", "Eas")
	assert.ErrorContains(t, err, `did you mean "Eastern"`)
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "select", "Colac", "Brunswick")
	assert.Contains(t, h.mustRun(t, "list"), "Filters: Brunswick, Colac")

	assert.Contains(t, h.mustRun(t, "clear"), "Club selection cleared.")
	assert.NotContains(t, h.mustRun(t, "list"), "Filters:")
}

func TestHide(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun(t, "hide", "bmx"), "BMX events hidden.")
	assert.Contains(t, h.mustRun(t, "hide", "mtb", "on"), "MTB events hidden.")

	out := h.mustRun(t, "list")
	assert.Contains(t, out, "Filters: no BMX, no MTB")
	assert.NotContains(t, out, "BMX State Round")
	assert.NotContains(t, out, "Mountain Bike Enduro")

	assert.Contains(t, h.mustRun(t, "hide", "bmx", "off"), "BMX events shown.")
	assert.Contains(t, h.mustRun(t, "list"), "BMX State Round")

	_, err := h.run(t, "hide", "road")
	assert.Error(t, err)
	_, err = h.run(t, "hide", "bmx", "maybe")
	assert.Error(t, err)
}

func TestCalendarDoesNotChangeStoredView(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "calendar", "--week", "--date", "2025-07-05")
	assert.Contains(t, out, "29 Jun - 5 Jul")
	assert.Contains(t, out, "BMX State Round")

	out = h.mustRun(t, "calendar", "--date", "2025-07-10", "--select", "2025-07-12")
	assert.Contains(t, out, "July 2025")
	assert.Contains(t, out, "Criterium")

	assert.Contains(t, h.mustRun(t), "Upcoming events")

	_, err := h.run(t, "calendar", "--date", "tomorrow")
	assert.Error(t, err)
	_, err = h.run(t, "calendar", "--week", "--month")
	assert.Error(t, err)
}

func TestNavigationPersistsAnchor(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "view", "calendar")

	assert.Contains(t, h.mustRun(t), "July 2025")
	assert.Contains(t, h.mustRun(t, "next"), "August 2025")
	assert.Contains(t, h.mustRun(t, "next"), "September 2025")
	assert.Contains(t, h.mustRun(t), "September 2025")
	assert.Contains(t, h.mustRun(t, "prev"), "August 2025")
	assert.Contains(t, h.mustRun(t, "today"), "July 2025")

	h.mustRun(t, "mode", "week")
	assert.Contains(t, h.mustRun(t), "29 Jun - 5 Jul")
	assert.Contains(t, h.mustRun(t, "next"), "6 Jul - 12 Jul")

	_, err := h.run(t, "mode", "year")
	assert.Error(t, err)
	_, err = h.run(t, "view", "grid")
	assert.Error(t, err)
}

func TestNarrowWidthShowsList(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "view", "calendar")

	assert.Contains(t, h.mustRun(t, "--width", "375"), "Upcoming events")
	assert.Contains(t, h.mustRun(t, "--width", "1280"), "July 2025")
}

func TestOpen(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "open", "1")
	assert.Contains(t, out, "Opened Track Night")
	assert.Equal(t, []string{"https://entryboss.cc/races/1"}, h.opened)

	_, err := h.run(t, "open", "2")
	assert.ErrorIs(t, err, app.ErrNoURL)

	_, err = h.run(t, "open", "9")
	assert.ErrorContains(t, err, "no event 9")

	_, err = h.run(t, "open", "zero")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "select", "Colac")

	out := h.mustRun(t, "stats")
	assert.Regexp(t, `Events:\s+4`, out)
	assert.Regexp(t, `Clubs:\s+3`, out)
	assert.Regexp(t, `Shown:\s+1`, out)
	assert.Regexp(t, `Selected clubs:\s+1`, out)
	assert.Contains(t, out, "2025-07-01T08:00:00Z")
}

func TestClubsSearch(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "clubs", "col")
	assert.Contains(t, out, "Colac")
	assert.NotContains(t, out, "Eastern")

	assert.Contains(t, h.mustRun(t, "clubs", "zzz"), "No clubs found.")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "select", "Eastern")

	out := h.mustRun(t, "export")
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "Criterium")
	assert.NotContains(t, out, "Track Night")

	path := filepath.Join(h.dir, "all.ics")
	h.mustRun(t, "export", "--all", "-o", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Track Night")
}

func TestDismiss(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun(t, "list"), "Tip:")
	h.mustRun(t, "dismiss")
	assert.NotContains(t, h.mustRun(t, "list"), "Tip:")
}

func TestMigrateImportsLegacyCookies(t *testing.T) {
	h := newHarness(t)
	cookies := filepath.Join(h.dir, "cookies.txt")
	require.NoError(t, os.WriteFile(cookies,
		[]byte("Cookie: selectedClubs=%5B%22Colac%22%5D; currentView=list\n"), 0o600))

	out := h.mustRun(t, "migrate", "--cookies", cookies)
	assert.Contains(t, out, "Migrated preferences from schema version 0 to 2.")
	assert.Contains(t, h.mustRun(t, "list"), "Filters: Colac")

	out = h.mustRun(t, "migrate")
	assert.Contains(t, out, "up to date (schema version 2)")
}

func TestMemoryStoreFlag(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "--store", "memory", "select", "Colac")
	assert.NotContains(t, h.mustRun(t, "list"), "Filters:")

	_, err := h.run(t, "--store", "redis", "list")
	assert.Error(t, err)
}

func TestMissingEventsSourceFallsBack(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.dir, "events.json")))
	require.NoError(t, os.Remove(filepath.Join(h.dir, "clubs.json")))

	out := h.mustRun(t, "list")
	assert.Contains(t, out, "Demo mode")
}

func TestFirstRunWithoutConfigShowsSampleEvents(t *testing.T) {
	h := &harness{dir: filepath.Join(t.TempDir(), "racecal")}

	out := h.mustRun(t, "list")
	assert.Contains(t, out, "Demo mode")
	assert.FileExists(t, filepath.Join(h.dir, "config.yaml"))
}

func TestStoreClosedWhenCommandFails(t *testing.T) {
	h := newHarness(t)

	_, e, err := h.runEnv(t, "--store", "sqlite:"+filepath.Join(h.dir, "prefs.db"), "open", "9")
	require.Error(t, err)
	require.NotNil(t, e.st)
	assert.True(t, e.closed)

	_, _, getErr := e.st.Get(context.Background(), "selectedClubs")
	assert.Error(t, getErr)
}
