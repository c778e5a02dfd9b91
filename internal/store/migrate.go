package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	appLog "racecal/internal/log"
)

// Persisted preference keys.
const (
	KeySelectedClubs  = "selectedClubs"
	KeyCurrentView    = "currentView"
	KeyCalendarMode   = "calendarMode"
	KeyClubColors     = "clubColors"
	KeyHideBMX        = "hideBMXEvents"
	KeyHideMTB        = "hideMTBEvents"
	KeyOnboardingSeen = "hasSeenOnboarding"

	// KeyAnchor keeps the CLI's navigated period between invocations.
	KeyAnchor = "racecal.anchor"

	// KeySchemaVersion records the last applied Migration.
	KeySchemaVersion = "racecal.schemaVersion"
	// KeyBetaBlob is the single-blob layout used by the beta client.
	KeyBetaBlob = "betaAppState"
)

// Migration is a one-time data migration between persisted layouts.
type Migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, dst Store) error
}

// SchemaVersion returns the recorded data version, 0 when unset.
func SchemaVersion(ctx context.Context, s Source) (int, error) {
	raw, ok, err := s.Get(ctx, KeySchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", KeySchemaVersion, raw, err)
	}
	return v, nil
}

// Migrate applies every migration newer than the recorded version, in
// version order, recording the version after each one. It returns the number
// of migrations applied.
func Migrate(ctx context.Context, dst Store, migrations ...Migration) (int, error) {
	current, err := SchemaVersion(ctx, dst)
	if err != nil {
		return 0, err
	}

	ordered := append([]Migration(nil), migrations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	applied := 0
	for _, m := range ordered {
		if m.Version <= current {
			continue
		}
		if err := m.Apply(ctx, dst); err != nil {
			return applied, fmt.Errorf("data migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := dst.Set(ctx, KeySchemaVersion, strconv.Itoa(m.Version)); err != nil {
			return applied, fmt.Errorf("record data migration %d: %w", m.Version, err)
		}
		current = m.Version
		applied++
		appLog.Info("data migration applied", "version", m.Version, "name", m.Name)
	}
	return applied, nil
}

// Defaults returns the built-in migrations. legacy may be nil when no cookie
// header was supplied.
func Defaults(legacy Source) []Migration {
	return []Migration{LegacyCookies(legacy), BetaBlob()}
}

// setIfAbsent writes value unless key already holds one.
func setIfAbsent(ctx context.Context, dst Store, key, value string) (bool, error) {
	if _, ok, err := dst.Get(ctx, key); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := dst.Set(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// LegacyCookies copies preferences from the cookie-based client. Cookie
// values already use the current encodings.
func LegacyCookies(src Source) Migration {
	return Migration{
		Version: 1,
		Name:    "legacy_cookies",
		Apply: func(ctx context.Context, dst Store) error {
			if src == nil {
				return nil
			}
			for _, key := range []string{KeySelectedClubs, KeyCurrentView, KeyClubColors, KeyOnboardingSeen} {
				v, ok, err := src.Get(ctx, key)
				if err != nil {
					return fmt.Errorf("read legacy %s: %w", key, err)
				}
				if !ok || v == "" {
					continue
				}
				copied, err := setIfAbsent(ctx, dst, key, v)
				if err != nil {
					return err
				}
				if copied {
					appLog.Debug("imported legacy cookie", "key", key)
				}
			}
			return nil
		},
	}
}

type betaState struct {
	SelectedClubs []string `json:"selectedClubs"`
	CurrentView   string   `json:"currentView"`
	CalendarMode  string   `json:"calendarMode"`
	HideBMXEvents *bool    `json:"hideBMXEvents"`
	HideMTBEvents *bool    `json:"hideMTBEvents"`
	IsFirstTime   *bool    `json:"isFirstTime"`
}

// BetaBlob splits the beta client's single JSON blob into individual keys and
// removes the blob. A blob that does not parse is dropped with an error log.
func BetaBlob() Migration {
	return Migration{
		Version: 2,
		Name:    "beta_blob",
		Apply: func(ctx context.Context, dst Store) error {
			raw, ok, err := dst.Get(ctx, KeyBetaBlob)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			var st betaState
			if err := json.Unmarshal([]byte(raw), &st); err != nil {
				appLog.Error("discarding unreadable beta state", err)
				return dst.Delete(ctx, KeyBetaBlob)
			}

			pairs := make([][2]string, 0, 6)
			if st.SelectedClubs != nil {
				b, err := json.Marshal(st.SelectedClubs)
				if err != nil {
					return err
				}
				pairs = append(pairs, [2]string{KeySelectedClubs, string(b)})
			}
			if st.CurrentView != "" {
				pairs = append(pairs, [2]string{KeyCurrentView, st.CurrentView})
			}
			if st.CalendarMode != "" {
				pairs = append(pairs, [2]string{KeyCalendarMode, st.CalendarMode})
			}
			if st.HideBMXEvents != nil {
				pairs = append(pairs, [2]string{KeyHideBMX, strconv.FormatBool(*st.HideBMXEvents)})
			}
			if st.HideMTBEvents != nil {
				pairs = append(pairs, [2]string{KeyHideMTB, strconv.FormatBool(*st.HideMTBEvents)})
			}
			if st.IsFirstTime != nil && !*st.IsFirstTime {
				pairs = append(pairs, [2]string{KeyOnboardingSeen, "true"})
			}

			for _, p := range pairs {
				if _, err := setIfAbsent(ctx, dst, p[0], p[1]); err != nil {
					return err
				}
			}
			return dst.Delete(ctx, KeyBetaBlob)
		},
	}
}
