package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"racecal/internal/app"
	"racecal/internal/calendar"
	"racecal/internal/colors"
	"racecal/internal/config"
	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/render"
	"racecal/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

// RefreshFunc reloads the dataset into the App.
type RefreshFunc func(ctx context.Context) error

// Server provides the HTML page and the JSON API over an app.App.
type Server struct {
	cfg     *config.Config
	app     *app.App
	refresh RefreshFunc
	router  chi.Router
	page    *template.Template

	// lastErr is the most recent refresh failure, shown until a refresh
	// succeeds.
	errMu   sync.RWMutex
	lastErr error
}

// NewServer constructs a new Server. refresh may be nil.
func NewServer(cfg *config.Config, a *app.App, refresh RefreshFunc) (*Server, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"css": cssColor,
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		cfg:     cfg,
		app:     a,
		refresh: refresh,
		page:    tmpl,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Refresh runs the refresh function and records its outcome.
func (s *Server) Refresh(ctx context.Context) error {
	if s.refresh == nil {
		return nil
	}
	err := s.refresh(ctx)
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
	return err
}

func (s *Server) loadError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/clubs", s.handleClubs)
		r.Get("/calendar", s.handleCalendar)
		r.Get("/list", s.handleList)
		r.Get("/page", s.handlePage)
		r.Get("/state", s.handleState)
		r.Post("/state", s.handleAction)
		r.Get("/stats", s.handleStats)
		r.Post("/refresh", s.handleRefresh)
	})

	r.Get("/calendar.ics", s.handleICS)
	r.Get("/", s.handleIndex)
	r.Post("/", s.handleForm)

	return r
}

// requestLogger logs each request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="racecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves until ctx is canceled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ready writes 503 and returns false while no dataset is installed.
func (s *Server) ready(w http.ResponseWriter) bool {
	if s.app.Loaded() {
		return true
	}
	msg := "event data not loaded"
	if err := s.loadError(); err != nil {
		msg = err.Error()
	}
	writeError(w, http.StatusServiceUnavailable, msg)
	return false
}

// filterFromQuery starts from the stored filter and applies the club,
// hideBMX and hideMTB query overrides. Nothing is persisted.
func (s *Server) filterFromQuery(r *http.Request) model.FilterState {
	q := r.URL.Query()
	f := s.app.Filter()
	if clubs, ok := q["club"]; ok {
		f = model.NewFilterState(nonEmpty(clubs)...)
		f.HideBMX, f.HideMTB = s.app.Filter().HideBMX, s.app.Filter().HideMTB
	}
	if v := q.Get("hideBMX"); v != "" {
		f.HideBMX = parseBoolDefault(v, f.HideBMX)
	}
	if v := q.Get("hideMTB"); v != "" {
		f.HideMTB = parseBoolDefault(v, f.HideMTB)
	}
	return f
}

type eventsResponse struct {
	Events     []render.EventView `json:"events"`
	Total      int                `json:"total"`
	IsFallback bool               `json:"isFallback"`
}

// handleEvents returns the filtered events.
//
// GET /api/events?club=A&club=B&hideBMX=true&hideMTB=false
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	events := s.app.FilteredBy(s.filterFromQuery(r))
	out := make([]render.EventView, len(events))
	for i, ev := range events {
		out[i] = render.EventView{Event: ev, Color: s.app.ColorFor(ev.ClubName)}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:     out,
		Total:      len(s.app.Events()),
		IsFallback: s.app.Status().IsFallback,
	})
}

type clubDTO struct {
	model.Club
	Color    string `json:"color"`
	Selected bool   `json:"selected"`
}

// handleClubs lists clubs; ?q= searches unselected clubs like the picker.
func (s *Server) handleClubs(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	clubs := s.app.Clubs()
	if q := r.URL.Query().Get("q"); q != "" {
		clubs = s.app.SearchClubs(q)
	}
	f := s.app.Filter()
	out := make([]clubDTO, len(clubs))
	for i, c := range clubs {
		out[i] = clubDTO{Club: c, Color: s.app.ColorFor(c.ClubName), Selected: f.Selected(c.ClubName)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clubs": out, "derived": s.app.Status().ClubsDerived})
}

type calendarResponse struct {
	Title       string            `json:"title"`
	Granularity model.Granularity `json:"granularity"`
	First       string            `json:"first"`
	Last        string            `json:"last"`
	Count       int               `json:"count"`
	Cells       []model.DayCell   `json:"cells"`
}

// handleCalendar returns the grid around a date without moving the stored
// view.
//
// GET /api/calendar?granularity=month|week&date=2025-07-05
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	q := r.URL.Query()
	st := s.app.View()
	if g := model.Granularity(q.Get("granularity")); g != "" {
		if !g.Valid() {
			writeError(w, http.StatusBadRequest, "granularity must be month or week")
			return
		}
		st.Granularity = g
	}
	if d := q.Get("date"); d != "" {
		t, err := model.ParseDateKey(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		st.Anchor = t
	}

	cells := s.app.Grid(st.Granularity, st.Anchor, s.filterFromQuery(r))
	first, last := calendar.Range(cells)
	writeJSON(w, http.StatusOK, calendarResponse{
		Title:       calendar.Title(st),
		Granularity: st.Granularity,
		First:       first,
		Last:        last,
		Count:       calendar.Count(cells),
		Cells:       cells,
	})
}

// handleList returns the filtered events grouped by day.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	groups := calendar.GroupByDate(s.app.FilteredBy(s.filterFromQuery(r)))
	if r.URL.Query().Get("upcoming") != "" {
		groups = calendar.Upcoming(groups, model.KeyOf(s.app.Now()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// handlePage returns the full render model for ?width=.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	p, err := s.app.Snapshot(r.Context(), s.viewport(r))
	if err != nil {
		appLog.Error("snapshot failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build page")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type stateResponse struct {
	SelectedClubs []string          `json:"selectedClubs"`
	HideBMX       bool              `json:"hideBMXEvents"`
	HideMTB       bool              `json:"hideMTBEvents"`
	Mode          model.Mode        `json:"currentView"`
	Granularity   model.Granularity `json:"calendarMode"`
	Anchor        string            `json:"anchorDate"`
	SelectedDate  *string           `json:"selectedDate"`
	ClubColors    [][2]string       `json:"clubColors"`
	Onboarding    bool              `json:"isFirstTime"`
	IsFallback    bool              `json:"isFallback"`
	ClubsDerived  bool              `json:"clubsDerived"`
	FromCache     bool              `json:"fromCache"`
	Warnings      []string          `json:"warnings,omitempty"`
	LoadedAt      time.Time         `json:"loadedAt"`
}

func (s *Server) state() stateResponse {
	f := s.app.Filter()
	v := s.app.View()
	st := s.app.Status()

	resp := stateResponse{
		SelectedClubs: f.SortedClubs(),
		HideBMX:       f.HideBMX,
		HideMTB:       f.HideMTB,
		Mode:          v.Mode,
		Granularity:   v.Granularity,
		Anchor:        model.KeyOf(v.Anchor),
		SelectedDate:  v.SelectedDate,
		Onboarding:    s.app.OnboardingDue(),
		IsFallback:    st.IsFallback,
		ClubsDerived:  st.ClubsDerived,
		FromCache:     st.FromCache,
		LoadedAt:      st.LoadedAt,
	}
	for _, e := range s.app.Colors() {
		resp.ClubColors = append(resp.ClubColors, [2]string{e.Club, e.Color})
	}
	for _, w := range st.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// action is a state mutation posted by the API or the HTML forms.
type action struct {
	Action string  `json:"action"`
	Club   string  `json:"club,omitempty"`
	Value  string  `json:"value,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
}

var errBadAction = errors.New("bad action")

func badAction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadAction, fmt.Sprintf(format, args...))
}

func (s *Server) apply(ctx context.Context, act action) error {
	a := s.app
	switch act.Action {
	case "toggleClub", "addClub":
		club := strings.TrimSpace(act.Club)
		if club == "" {
			return badAction("club is required")
		}
		if act.Action == "toggleClub" {
			return a.ToggleClub(ctx, club)
		}
		return a.AddClub(ctx, club)
	case "removeClub":
		return a.RemoveClub(ctx, act.Club)
	case "clearClubs":
		return a.ClearClubs(ctx)
	case "hideBMX", "hideMTB":
		v, err := strconv.ParseBool(act.Value)
		if err != nil {
			return badAction("value must be true or false")
		}
		if act.Action == "hideBMX" {
			return a.SetHideBMX(ctx, v)
		}
		return a.SetHideMTB(ctx, v)
	case "mode":
		m := model.Mode(act.Value)
		if !m.Valid() {
			return badAction("mode must be list or calendar")
		}
		return a.SetMode(ctx, m)
	case "granularity":
		g := model.Granularity(act.Value)
		if !g.Valid() {
			return badAction("granularity must be month or week")
		}
		return a.SetGranularity(ctx, g)
	case "navigate":
		dir, err := strconv.Atoi(act.Value)
		if err != nil {
			return badAction("value must be -1 or 1")
		}
		if err := a.Navigate(ctx, dir); err != nil {
			return badAction("%v", err)
		}
		return nil
	case "swipe":
		if dir := view.Swipe(act.DX, act.DY); dir != 0 {
			return a.Navigate(ctx, dir)
		}
		return nil
	case "today":
		return a.Today(ctx)
	case "goto":
		if err := a.GoTo(ctx, act.Value); err != nil {
			return badAction("%v", err)
		}
		return nil
	case "select":
		if err := a.SelectDate(act.Value); err != nil {
			return badAction("%v", err)
		}
		return nil
	case "dismissOnboarding":
		return a.DismissOnboarding(ctx)
	default:
		return badAction("unknown action %q", act.Action)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var act action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&act); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.apply(r.Context(), act); err != nil {
		if errors.Is(err, errBadAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("state action failed", err, "action", act.Action)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.app.Stats())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Refresh(r.Context()); err != nil {
		appLog.Error("refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.app.Stats())
}

// handleICS exports the filtered events as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="racecal.ics"`)
	if err := ics.Export(w, s.app.FilteredBy(s.filterFromQuery(r)), s.cfg.CalendarName, s.app.Now()); err != nil {
		appLog.Error("ics export failed", err)
	}
}

type indexData struct {
	Page  render.Page
	Clubs []model.Club
	Width int
	Error string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Width: s.viewport(r).Width}
	if !s.app.Loaded() {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		data.Page.Title = "Events unavailable"
		data.Error = "Event data could not be loaded."
		if err := s.loadError(); err != nil {
			data.Error = err.Error()
		}
		s.execute(w, data)
		return
	}

	p, err := s.app.Snapshot(r.Context(), s.viewport(r))
	if err != nil {
		appLog.Error("snapshot failed", err)
		http.Error(w, "failed to build page", http.StatusInternalServerError)
		return
	}
	data.Page = p
	f := s.app.Filter()
	for _, c := range s.app.Clubs() {
		if !f.Selected(c.ClubName) {
			data.Clubs = append(data.Clubs, c)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.execute(w, data)
}

func (s *Server) execute(w http.ResponseWriter, data indexData) {
	if err := s.page.Execute(w, data); err != nil {
		appLog.Error("template render failed", err)
	}
}

// handleForm applies a form-posted action and redirects back to the page.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	act := action{
		Action: r.PostForm.Get("action"),
		Club:   r.PostForm.Get("club"),
		Value:  r.PostForm.Get("value"),
	}
	if err := s.apply(r.Context(), act); err != nil {
		if errors.Is(err, errBadAction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appLog.Error("form action failed", err, "action", act.Action)
		http.Error(w, "failed to save preferences", http.StatusInternalServerError)
		return
	}
	target := "/"
	if wd := parseIntDefault(r.URL.Query().Get("width"), 0); wd > 0 {
		target += "?width=" + strconv.Itoa(wd)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) viewport(r *http.Request) render.Viewport {
	return render.Viewport{
		Width:      parseIntDefault(r.URL.Query().Get("width"), 0),
		Breakpoint: s.cfg.MobileBreakpoint,
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

// cssColor passes palette colours into style attributes.
func cssColor(c string) template.CSS {
	if !hexColor.MatchString(c) {
		c = colors.Neutral
	}
	return template.CSS(c)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBoolDefault(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
