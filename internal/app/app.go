// Package app owns racecal's mutable state: the loaded dataset, the user's
// filter and view, and the club colours. Every mutation persists its own
// preference key.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"racecal/internal/calendar"
	"racecal/internal/colors"
	"racecal/internal/filter"
	"racecal/internal/loader"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/prefs"
	"racecal/internal/render"
	"racecal/internal/store"
	"racecal/internal/view"
)

// ErrNoURL is returned by OpenEvent for events without a link.
var ErrNoURL = errors.New("event has no URL")

// ErrEmptyClub is returned when a club mutation names no club.
var ErrEmptyClub = errors.New("club name is empty")

// Options configures an App.
type Options struct {
	Now    func() time.Time
	Opener Opener
	// Legacy is the cookie-era preference source imported on first Restore.
	Legacy store.Source
	// PersistAnchor keeps the navigated period across runs, for the CLI.
	PersistAnchor bool
	// Breakpoint overrides render.MobileBreakpoint.
	Breakpoint int
}

// App is safe for concurrent use.
type App struct {
	mu sync.RWMutex

	prefs         *prefs.Prefs
	now           func() time.Time
	opener        Opener
	legacy        store.Source
	persistAnchor bool
	breakpoint    int
	restored      bool
	installed     bool

	events []model.Event
	clubs  []model.Club
	result loader.Result

	filter         model.FilterState
	view           model.ViewState
	colors         *colors.Map
	onboardingSeen bool
}

func New(st store.Store, opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Opener == nil {
		opts.Opener = BrowserOpener{}
	}
	return &App{
		prefs:         prefs.New(st),
		now:           opts.Now,
		opener:        opts.Opener,
		legacy:        opts.Legacy,
		persistAnchor: opts.PersistAnchor,
		breakpoint:    opts.Breakpoint,
		filter:        model.NewFilterState(),
		view:          model.DefaultViewState(opts.Now()),
		colors:        colors.New(nil),
	}
}

// Restore migrates older preference layouts and loads the persisted state.
// Only the first call has an effect.
func (a *App) Restore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.restored {
		return nil
	}

	if _, err := store.Migrate(ctx, a.prefs.Store(), store.Defaults(a.legacy)...); err != nil {
		return fmt.Errorf("migrate preferences: %w", err)
	}

	a.filter = a.prefs.LoadFilter(ctx)
	a.view = a.prefs.LoadView(ctx, model.DefaultViewState(a.now()))
	if a.persistAnchor {
		if t, ok := a.prefs.LoadAnchor(ctx); ok {
			a.view.Anchor = t
		}
	}
	a.colors = a.prefs.LoadColors(ctx)
	a.onboardingSeen = a.prefs.OnboardingSeen(ctx)
	a.restored = true

	appLog.Debug("preferences restored",
		"selected_clubs", len(a.filter.SelectedClubs),
		"mode", a.view.Mode,
		"granularity", a.view.Granularity,
		"colors", a.colors.Len(),
	)
	return nil
}

// Install replaces the dataset with a loader result and gives every
// selected club a colour.
func (a *App) Install(ctx context.Context, res loader.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events = res.Events
	a.clubs = res.Clubs
	a.result = res
	a.result.Events, a.result.Clubs = nil, nil
	a.installed = true

	return a.assignLocked(ctx, a.filter.SortedClubs()...)
}

// assignLocked gives each club a colour and saves the map when it changed.
func (a *App) assignLocked(ctx context.Context, clubs ...string) error {
	changed := false
	for _, c := range clubs {
		if _, ok := a.colors.Assign(c); ok {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return a.prefs.SaveColors(ctx, a.colors)
}

func (a *App) saveFilterLocked(ctx context.Context, f model.FilterState) error {
	if err := a.prefs.SaveSelectedClubs(ctx, f); err != nil {
		return err
	}
	a.filter = f
	return nil
}

// ToggleClub selects club when unselected and deselects it otherwise. The
// check and the change happen under one lock.
func (a *App) ToggleClub(ctx context.Context, club string) error {
	if club == "" {
		return ErrEmptyClub
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filter.Selected(club) {
		return a.removeLocked(ctx, club)
	}
	return a.addLocked(ctx, club)
}

// AddClub selects club and assigns its colour.
func (a *App) AddClub(ctx context.Context, club string) error {
	if club == "" {
		return ErrEmptyClub
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addLocked(ctx, club)
}

func (a *App) addLocked(ctx context.Context, club string) error {
	f := a.filter.Clone()
	f.SelectedClubs[club] = struct{}{}
	if err := a.saveFilterLocked(ctx, f); err != nil {
		return err
	}
	return a.assignLocked(ctx, club)
}

// RemoveClub deselects club. Its colour is kept.
func (a *App) RemoveClub(ctx context.Context, club string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeLocked(ctx, club)
}

func (a *App) removeLocked(ctx context.Context, club string) error {
	f := a.filter.Clone()
	delete(f.SelectedClubs, club)
	return a.saveFilterLocked(ctx, f)
}

// ClearClubs empties the selection, which disables club filtering.
func (a *App) ClearClubs(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.filter.Clone()
	f.SelectedClubs = map[string]struct{}{}
	return a.saveFilterLocked(ctx, f)
}

func (a *App) SetHideBMX(ctx context.Context, v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.prefs.SaveHideBMX(ctx, v); err != nil {
		return err
	}
	a.filter.HideBMX = v
	return nil
}

func (a *App) SetHideMTB(ctx context.Context, v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.prefs.SaveHideMTB(ctx, v); err != nil {
		return err
	}
	a.filter.HideMTB = v
	return nil
}

// SetMode switches between list and calendar. The request is stored even on
// mobile viewports, where rendering shows the list regardless.
func (a *App) SetMode(ctx context.Context, m model.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.prefs.SaveMode(ctx, m); err != nil {
		return err
	}
	a.view = view.SetMode(a.view, m)
	return nil
}

func (a *App) SetGranularity(ctx context.Context, g model.Granularity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.prefs.SaveGranularity(ctx, g); err != nil {
		return err
	}
	a.view = view.SetGranularity(a.view, g)
	return nil
}

// Navigate moves the anchor one period back (-1) or forward (+1).
func (a *App) Navigate(ctx context.Context, dir int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next, err := view.NavigatePeriod(a.view, dir)
	if err != nil {
		return err
	}
	return a.setAnchorLocked(ctx, next)
}

// Today moves the anchor to the current date.
func (a *App) Today(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setAnchorLocked(ctx, view.Today(a.view, a.now()))
}

// GoTo moves the anchor to the date of key.
func (a *App) GoTo(ctx context.Context, key string) error {
	t, err := model.ParseDateKey(key)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.view
	s.Anchor = t
	return a.setAnchorLocked(ctx, s)
}

func (a *App) setAnchorLocked(ctx context.Context, s model.ViewState) error {
	if a.persistAnchor {
		if err := a.prefs.SaveAnchor(ctx, s.Anchor); err != nil {
			return err
		}
	}
	a.view = s
	return nil
}

// SelectDate selects the day with the given key, or clears the selection
// when that day is already selected. An empty key clears it.
func (a *App) SelectDate(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if key == "" {
		a.view = view.ClearSelection(a.view)
		return nil
	}
	if _, err := model.ParseDateKey(key); err != nil {
		return err
	}
	a.view = view.SelectDate(a.view, key)
	return nil
}

func (a *App) DismissOnboarding(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.prefs.MarkOnboardingSeen(ctx); err != nil {
		return err
	}
	a.onboardingSeen = true
	return nil
}

// Filter returns a copy of the current filter.
func (a *App) Filter() model.FilterState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filter.Clone()
}

func (a *App) View() model.ViewState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view
}

func (a *App) Events() []model.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

func (a *App) Clubs() []model.Club {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clubs
}

// Status is the last installed loader result without its data.
func (a *App) Status() loader.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.result
}

// Loaded reports whether a dataset has been installed.
func (a *App) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.installed
}

func (a *App) OnboardingDue() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return prefs.FirstTime(a.onboardingSeen, a.filter)
}

// ColorFor returns the club's colour without assigning one.
func (a *App) ColorFor(club string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.colors.LookupOr(club, colors.Neutral)
}

// Colors returns the colour assignments in insertion order.
func (a *App) Colors() []colors.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.colors.Entries()
}

// Filtered applies the current filter to the dataset.
func (a *App) Filtered() []model.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return filter.Apply(a.events, a.filter)
}

// FilteredBy applies f instead of the stored filter.
func (a *App) FilteredBy(f model.FilterState) []model.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return filter.Apply(a.events, f)
}

// Month is the grid for the anchor's month.
func (a *App) Month() [calendar.MonthCells]model.DayCell {
	a.mu.RLock()
	defer a.mu.RUnlock()
	anchor := a.view.Anchor
	return calendar.MonthGrid(anchor.Year(), anchor.Month(), filter.Apply(a.events, a.filter), a.now())
}

// Week is the grid for the anchor's week.
func (a *App) Week() [calendar.WeekCells]model.DayCell {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return calendar.WeekGrid(calendar.WeekStart(a.view.Anchor), filter.Apply(a.events, a.filter), a.now())
}

// Grid builds the cells for the period containing anchor without moving
// the stored view.
func (a *App) Grid(g model.Granularity, anchor time.Time, f model.FilterState) []model.DayCell {
	events := a.FilteredBy(f)
	if g == model.GranularityWeek {
		cells := calendar.WeekGrid(calendar.WeekStart(anchor), events, a.now())
		return cells[:]
	}
	cells := calendar.MonthGrid(anchor.Year(), anchor.Month(), events, a.now())
	return cells[:]
}

func (a *App) Now() time.Time { return a.now() }

func (a *App) Groups() []model.DayGroup {
	return calendar.GroupByDate(a.Filtered())
}

// SearchClubs finds unselected clubs whose name contains query.
func (a *App) SearchClubs(query string) []model.Club {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return filter.SearchClubs(a.clubs, query, a.filter.Selected)
}

// Snapshot builds the page for vp. Clubs of displayed events get colours
// on first display, as with selection.
func (a *App) Snapshot(ctx context.Context, vp render.Viewport) (render.Page, error) {
	return a.SnapshotFor(ctx, vp, nil)
}

// SnapshotFor is Snapshot with the stored view adjusted by edit, for
// one-off displays that must not change the stored view.
func (a *App) SnapshotFor(ctx context.Context, vp render.Viewport, edit func(model.ViewState) model.ViewState) (render.Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.view
	if edit != nil {
		s = edit(s)
	}

	events := filter.Apply(a.events, a.filter)
	clubs := make([]string, 0, len(events))
	for _, ev := range events {
		clubs = append(clubs, ev.ClubName)
	}
	if err := a.assignLocked(ctx, clubs...); err != nil {
		return render.Page{}, err
	}

	if vp.Breakpoint <= 0 {
		vp.Breakpoint = a.breakpoint
	}
	return render.Build(render.Input{
		View:       s,
		Viewport:   vp,
		Filter:     a.filter,
		Events:     events,
		Clubs:      a.clubs,
		Colors:     a.colors,
		Today:      a.now(),
		Onboarding: prefs.FirstTime(a.onboardingSeen, a.filter),
		IsFallback: a.result.IsFallback,
		Warnings:   a.result.Warnings,
	}), nil
}

// Stats summarises the loaded dataset.
type Stats struct {
	Events        int       `json:"events"`
	Clubs         int       `json:"clubs"`
	Filtered      int       `json:"filtered"`
	SelectedClubs int       `json:"selectedClubs"`
	LastUpdated   string    `json:"lastUpdated,omitempty"`
	LoadedAt      time.Time `json:"loadedAt"`
	IsFallback    bool      `json:"isFallback"`
}

// Stats reports counts and the most recent club lastSeen timestamp.
func (a *App) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{
		Events:        len(a.events),
		Clubs:         len(a.clubs),
		Filtered:      len(filter.Apply(a.events, a.filter)),
		SelectedClubs: len(a.filter.SelectedClubs),
		LoadedAt:      a.result.LoadedAt,
		IsFallback:    a.result.IsFallback,
	}
	var newest time.Time
	for _, c := range a.clubs {
		t, err := time.Parse(time.RFC3339, c.LastSeen)
		if err != nil {
			continue
		}
		if t.After(newest) {
			newest = t
		}
	}
	if !newest.IsZero() {
		s.LastUpdated = newest.UTC().Format(time.RFC3339)
	}
	return s
}

// OpenEvent opens the event's registration page.
func (a *App) OpenEvent(ctx context.Context, ev model.Event) error {
	if ev.EventURL == "" {
		return fmt.Errorf("open %q: %w", ev.EventName, ErrNoURL)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	appLog.Info("opening event", "event", ev.EventName, "url", ev.EventURL)
	return a.opener.Open(ev.EventURL)
}
