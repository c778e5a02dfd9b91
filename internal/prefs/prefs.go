package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"racecal/internal/colors"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/store"
)

// Prefs reads and writes user preferences as individual store keys.
// Every Save method writes only its own key.
type Prefs struct {
	st store.Store
}

func New(st store.Store) *Prefs {
	return &Prefs{st: st}
}

func (p *Prefs) Store() store.Store { return p.st }

// get returns the raw value, logging and hiding read errors so that a broken
// store degrades to defaults.
func (p *Prefs) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := p.st.Get(ctx, key)
	if err != nil {
		appLog.Error("read preference failed", err, "key", key)
		return "", false
	}
	return v, ok
}

func (p *Prefs) getBool(ctx context.Context, key string) bool {
	raw, ok := p.get(ctx, key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		appLog.Error("ignoring invalid preference", err, "key", key, "value", raw)
		return false
	}
	return b
}

func (p *Prefs) setBool(ctx context.Context, key string, v bool) error {
	if err := p.st.Set(ctx, key, strconv.FormatBool(v)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// LoadFilter reads the club selection and the BMX/MTB flags.
func (p *Prefs) LoadFilter(ctx context.Context) model.FilterState {
	f := model.NewFilterState()
	if raw, ok := p.get(ctx, store.KeySelectedClubs); ok && raw != "" {
		var clubs []string
		if err := json.Unmarshal([]byte(raw), &clubs); err != nil {
			appLog.Error("ignoring invalid preference", err, "key", store.KeySelectedClubs)
		} else {
			f = model.NewFilterState(clubs...)
		}
	}
	f.HideBMX = p.getBool(ctx, store.KeyHideBMX)
	f.HideMTB = p.getBool(ctx, store.KeyHideMTB)
	return f
}

// SaveSelectedClubs writes the selection as a sorted JSON array.
func (p *Prefs) SaveSelectedClubs(ctx context.Context, f model.FilterState) error {
	data, err := json.Marshal(f.SortedClubs())
	if err != nil {
		return err
	}
	if err := p.st.Set(ctx, store.KeySelectedClubs, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", store.KeySelectedClubs, err)
	}
	return nil
}

func (p *Prefs) SaveHideBMX(ctx context.Context, v bool) error {
	return p.setBool(ctx, store.KeyHideBMX, v)
}

func (p *Prefs) SaveHideMTB(ctx context.Context, v bool) error {
	return p.setBool(ctx, store.KeyHideMTB, v)
}

// LoadView returns the persisted mode and granularity on top of def.
// Anchor and selection are never persisted.
func (p *Prefs) LoadView(ctx context.Context, def model.ViewState) model.ViewState {
	s := def
	if raw, ok := p.get(ctx, store.KeyCurrentView); ok {
		if m := model.Mode(raw); m.Valid() {
			s.Mode = m
		} else {
			appLog.Info("ignoring unknown view mode", "value", raw)
		}
	}
	if raw, ok := p.get(ctx, store.KeyCalendarMode); ok {
		if g := model.Granularity(raw); g.Valid() {
			s.Granularity = g
		} else {
			appLog.Info("ignoring unknown calendar mode", "value", raw)
		}
	}
	return s
}

func (p *Prefs) SaveMode(ctx context.Context, m model.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid view mode %q", m)
	}
	if err := p.st.Set(ctx, store.KeyCurrentView, string(m)); err != nil {
		return fmt.Errorf("save %s: %w", store.KeyCurrentView, err)
	}
	return nil
}

func (p *Prefs) SaveGranularity(ctx context.Context, g model.Granularity) error {
	if !g.Valid() {
		return fmt.Errorf("invalid calendar mode %q", g)
	}
	if err := p.st.Set(ctx, store.KeyCalendarMode, string(g)); err != nil {
		return fmt.Errorf("save %s: %w", store.KeyCalendarMode, err)
	}
	return nil
}

// LoadColors restores the colour map in its persisted insertion order.
func (p *Prefs) LoadColors(ctx context.Context) *colors.Map {
	raw, ok := p.get(ctx, store.KeyClubColors)
	if !ok || raw == "" {
		return colors.New(nil)
	}
	entries, err := colors.DecodeEntries([]byte(raw))
	if err != nil {
		appLog.Error("ignoring invalid preference", err, "key", store.KeyClubColors)
		return colors.New(nil)
	}
	return colors.Seed(nil, entries)
}

func (p *Prefs) SaveColors(ctx context.Context, m *colors.Map) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := p.st.Set(ctx, store.KeyClubColors, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", store.KeyClubColors, err)
	}
	return nil
}

// LoadAnchor returns the persisted navigation anchor, if any.
func (p *Prefs) LoadAnchor(ctx context.Context) (time.Time, bool) {
	raw, ok := p.get(ctx, store.KeyAnchor)
	if !ok {
		return time.Time{}, false
	}
	t, err := model.ParseDateKey(raw)
	if err != nil {
		appLog.Error("ignoring invalid preference", err, "key", store.KeyAnchor, "value", raw)
		return time.Time{}, false
	}
	return t, true
}

func (p *Prefs) SaveAnchor(ctx context.Context, t time.Time) error {
	if err := p.st.Set(ctx, store.KeyAnchor, model.KeyOf(t)); err != nil {
		return fmt.Errorf("save %s: %w", store.KeyAnchor, err)
	}
	return nil
}

func (p *Prefs) OnboardingSeen(ctx context.Context) bool {
	return p.getBool(ctx, store.KeyOnboardingSeen)
}

func (p *Prefs) MarkOnboardingSeen(ctx context.Context) error {
	return p.setBool(ctx, store.KeyOnboardingSeen, true)
}

// FirstTime reports whether the onboarding prompt is due: it has never been
// dismissed and no club is selected.
func FirstTime(seen bool, f model.FilterState) bool {
	return !seen && len(f.SelectedClubs) == 0
}
