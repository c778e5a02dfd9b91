package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/app"
	"racecal/internal/config"
	"racecal/internal/loader"
	"racecal/internal/model"
	"racecal/internal/store"
)

var now = time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC)

func dataset() loader.Result {
	return loader.Result{
		Events: []model.Event{
			{EventName: "Track Night", EventDate: "2025-07-01T00:00:00Z", ClubName: "Brunswick", EventURL: "https://entryboss.cc/races/1"},
			{EventName: "BMX State Round", EventDate: "2025-07-05T00:00:00Z", ClubName: "Eastern"},
			{EventName: "MTB Enduro", EventDate: "2025-07-05T00:00:00Z", ClubName: "Colac"},
			{EventName: "Criterium", EventDate: "2025-07-12T00:00:00Z", ClubName: "Eastern"},
		},
		Clubs:    []model.Club{{ClubName: "Brunswick"}, {ClubName: "Colac"}, {ClubName: "Eastern"}},
		LoadedAt: now,
	}
}

type fixture struct {
	srv *Server
	app *app.App
	st  *store.MemoryStore
}

func newFixture(t *testing.T, cfg *config.Config, install bool) fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	st := store.NewMemoryStore()
	a := app.New(st, app.Options{Now: func() time.Time { return now }, Opener: app.OpenerFunc(func(string) error { return nil })})
	require.NoError(t, a.Restore(context.Background()))
	if install {
		require.NoError(t, a.Install(context.Background(), dataset()))
	}
	srv, err := NewServer(cfg, a, func(ctx context.Context) error {
		return a.Install(ctx, dataset())
	})
	require.NoError(t, err)
	return fixture{srv: srv, app: a, st: st}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, false)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNotLoaded(t *testing.T) {
	f := newFixture(t, nil, false)

	rec := f.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be loaded")

	rec = f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshFailureIsReported(t *testing.T) {
	cfg := config.DefaultConfig()
	a := app.New(store.NewMemoryStore(), app.Options{Now: func() time.Time { return now }})
	srv, err := NewServer(cfg, a, func(context.Context) error { return errors.New("load events: upstream down") })
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream down")
}

func TestEventsFilterOverrides(t *testing.T) {
	f := newFixture(t, nil, true)

	rec := f.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[eventsResponse](t, rec)
	assert.Len(t, resp.Events, 4)
	assert.Equal(t, 4, resp.Total)

	rec = f.do(t, http.MethodGet, "/api/events?club=Eastern&hideBMX=true", "")
	resp = decode[eventsResponse](t, rec)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Criterium", resp.Events[0].EventName)

	// Overrides are not persisted.
	assert.Empty(t, f.app.Filter().SelectedClubs)
	assert.False(t, f.app.Filter().HideBMX)
}

func TestClubs(t *testing.T) {
	f := newFixture(t, nil, true)
	require.NoError(t, f.app.AddClub(context.Background(), "Eastern"))

	rec := f.do(t, http.MethodGet, "/api/clubs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Clubs   []clubDTO `json:"clubs"`
		Derived bool      `json:"derived"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clubs, 3)
	assert.True(t, resp.Clubs[2].Selected)
	assert.Equal(t, "#6b7280", resp.Clubs[0].Color)

	rec = f.do(t, http.MethodGet, "/api/clubs?q=s", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clubs, 1)
	assert.Equal(t, "Brunswick", resp.Clubs[0].ClubName)
}

func TestCalendar(t *testing.T) {
	f := newFixture(t, nil, true)

	rec := f.do(t, http.MethodGet, "/api/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[calendarResponse](t, rec)
	assert.Equal(t, "July 2025", resp.Title)
	assert.Len(t, resp.Cells, 42)
	assert.Equal(t, "2025-06-29", resp.First)
	assert.Equal(t, "2025-08-09", resp.Last)
	assert.Equal(t, 4, resp.Count)

	rec = f.do(t, http.MethodGet, "/api/calendar?granularity=week&date=2025-07-10", "")
	resp = decode[calendarResponse](t, rec)
	assert.Equal(t, "6 Jul - 12 Jul", resp.Title)
	assert.Len(t, resp.Cells, 7)
	assert.Equal(t, 1, resp.Count)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/calendar?granularity=day", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/calendar?date=tomorrow", "").Code)
}

func TestList(t *testing.T) {
	f := newFixture(t, nil, true)

	rec := f.do(t, http.MethodGet, "/api/list", "")
	var resp struct {
		Groups []model.DayGroup `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 3)
	assert.Equal(t, "2025-07-01", resp.Groups[0].DateKey)

	rec = f.do(t, http.MethodGet, "/api/list?upcoming=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "2025-07-05", resp.Groups[0].DateKey)
}

func TestStateActions(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/api/state", "")
	st := decode[stateResponse](t, rec)
	assert.Equal(t, model.ModeList, st.Mode)
	assert.True(t, st.Onboarding)

	steps := []string{
		`{"action":"toggleClub","club":"Eastern"}`,
		`{"action":"hideMTB","value":"true"}`,
		`{"action":"mode","value":"calendar"}`,
		`{"action":"granularity","value":"week"}`,
		`{"action":"navigate","value":"1"}`,
		`{"action":"select","value":"2025-07-12"}`,
		`{"action":"dismissOnboarding"}`,
	}
	for _, body := range steps {
		rec = f.do(t, http.MethodPost, "/api/state", body)
		require.Equal(t, http.StatusOK, rec.Code, body)
	}
	st = decode[stateResponse](t, rec)
	assert.Equal(t, []string{"Eastern"}, st.SelectedClubs)
	assert.True(t, st.HideMTB)
	assert.Equal(t, model.ModeCalendar, st.Mode)
	assert.Equal(t, model.GranularityWeek, st.Granularity)
	assert.Equal(t, "2025-07-10", st.Anchor)
	require.NotNil(t, st.SelectedDate)
	assert.Equal(t, "2025-07-12", *st.SelectedDate)
	assert.False(t, st.Onboarding)
	require.Len(t, st.ClubColors, 1)
	assert.Equal(t, "Eastern", st.ClubColors[0][0])

	raw, _, err := f.st.Get(ctx, store.KeyCalendarMode)
	require.NoError(t, err)
	assert.Equal(t, "week", raw)

	// Swipe left advances one week; a short swipe does nothing.
	rec = f.do(t, http.MethodPost, "/api/state", `{"action":"swipe","dx":-120,"dy":10}`)
	st = decode[stateResponse](t, rec)
	assert.Equal(t, "2025-07-17", st.Anchor)
	rec = f.do(t, http.MethodPost, "/api/state", `{"action":"swipe","dx":-20,"dy":0}`)
	st = decode[stateResponse](t, rec)
	assert.Equal(t, "2025-07-17", st.Anchor)
}

func TestStateActionErrors(t *testing.T) {
	f := newFixture(t, nil, true)

	for _, body := range []string{
		`{"action":"mode","value":"grid"}`,
		`{"action":"navigate","value":"2"}`,
		`{"action":"hideBMX","value":"maybe"}`,
		`{"action":"select","value":"soon"}`,
		`{"action":"fly"}`,
		`{"action":"toggleClub","club":""}`,
		`{"action":"toggleClub","club":"   "}`,
		`{"action":"addClub"}`,
		`not json`,
	} {
		rec := f.do(t, http.MethodPost, "/api/state", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, f.app.Filter().SelectedClubs)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, true)
	rec := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[app.Stats](t, rec)
	assert.Equal(t, 4, s.Events)
	assert.Equal(t, 3, s.Clubs)
}

func TestICS(t *testing.T) {
	f := newFixture(t, nil, true)
	rec := f.do(t, http.MethodGet, "/calendar.ics?club=Eastern", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Criterium")
	assert.NotContains(t, body, "Track Night")
}

func TestIndexHTML(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	require.NoError(t, f.app.SetMode(ctx, model.ModeCalendar))

	rec := f.do(t, http.MethodGet, "/?width=1280", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "July 2025")
	assert.Contains(t, body, `class="grid"`)

	rec = f.do(t, http.MethodGet, "/?width=375", "")
	body = rec.Body.String()
	assert.NotContains(t, body, `class="grid"`)
	assert.Contains(t, body, "Tuesday, 1 July 2025")
}

func TestFormAction(t *testing.T) {
	f := newFixture(t, nil, true)

	form := url.Values{"action": {"addClub"}, "club": {"Colac"}}
	req := httptest.NewRequest(http.MethodPost, "/?width=500", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?width=500", rec.Header().Get("Location"))
	assert.True(t, f.app.Filter().Selected("Colac"))
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	f := newFixture(t, cfg, true)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/events", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSSColor(t *testing.T) {
	assert.Equal(t, "#3b82f6", string(cssColor("#3b82f6")))
	assert.Equal(t, "#6b7280", string(cssColor("red;background:url(x)")))
}
