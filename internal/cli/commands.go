package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"racecal/internal/config"
	"racecal/internal/ics"
	"racecal/internal/model"
	"racecal/internal/render"
	"racecal/internal/store"
)

func (e *env) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show filtered events grouped by date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := e.loadData(ctx); err != nil {
				return err
			}
			p, err := e.app.SnapshotFor(ctx, e.viewport(), func(s model.ViewState) model.ViewState {
				s.Mode = model.ModeList
				return s
			})
			if err != nil {
				return err
			}
			return render.WriteList(cmd.OutOrStdout(), p)
		},
	}
}

func (e *env) calendarCmd() *cobra.Command {
	var (
		week, month bool
		date, sel   string
	)
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the month or week grid",
		Long: `Show the month or week grid around the stored anchor date.
--date and --select change this display only; use next, prev and today to
move the stored anchor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var anchor time.Time
			if date != "" {
				t, err := model.ParseDateKey(date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				anchor = t
			}
			if sel != "" {
				if _, err := model.ParseDateKey(sel); err != nil {
					return fmt.Errorf("--select: %w", err)
				}
			}

			ctx := cmd.Context()
			if err := e.loadData(ctx); err != nil {
				return err
			}
			p, err := e.app.SnapshotFor(ctx, e.viewport(), func(s model.ViewState) model.ViewState {
				s.Mode = model.ModeCalendar
				switch {
				case week:
					s.Granularity = model.GranularityWeek
				case month:
					s.Granularity = model.GranularityMonth
				}
				if !anchor.IsZero() {
					s.Anchor = anchor
				}
				if sel != "" {
					s.SelectedDate = &sel
				}
				return s
			})
			if err != nil {
				return err
			}
			return render.Write(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().BoolVar(&week, "week", false, "show the week grid")
	cmd.Flags().BoolVar(&month, "month", false, "show the month grid")
	cmd.Flags().StringVar(&date, "date", "", "anchor date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sel, "select", "", "list the events of this day below the grid (YYYY-MM-DD)")
	cmd.MarkFlagsMutuallyExclusive("week", "month")
	return cmd
}

func (e *env) clubsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clubs [query]",
		Short: "List clubs, or search them by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.loadData(cmd.Context()); err != nil {
				return err
			}
			clubs := e.app.Clubs()
			if len(args) == 1 {
				clubs = e.app.SearchClubs(args[0])
			}
			out := cmd.OutOrStdout()
			if len(clubs) == 0 {
				fmt.Fprintln(out, "No clubs found.")
				return nil
			}
			f := e.app.Filter()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, c := range clubs {
				mark := " "
				if f.Selected(c.ClubName) {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s %s\t%s\t%s\n", mark, c.ClubName, e.app.ColorFor(c.ClubName), c.ClubURL)
			}
			return tw.Flush()
		},
	}
}

// resolveClub matches name case-insensitively against candidates.
func resolveClub(name string, candidates []string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

func clubNames(clubs []model.Club) []string {
	out := make([]string, len(clubs))
	for i, c := range clubs {
		out[i] = c.ClubName
	}
	return out
}

func (e *env) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <club>...",
		Short: "Add clubs to the selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.loadData(ctx); err != nil {
				return err
			}
			names := clubNames(e.app.Clubs())
			for _, arg := range args {
				club, ok := resolveClub(arg, names)
				if !ok {
					if hits := e.app.SearchClubs(arg); len(hits) > 0 {
						return fmt.Errorf("unknown club %q; did you mean %q?", arg, hits[0].ClubName)
					}
					return fmt.Errorf("unknown club %q", arg)
				}
				if err := e.app.AddClub(ctx, club); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", club, e.app.ColorFor(club))
			}
			return nil
		},
	}
}

func (e *env) deselectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deselect <club>...",
		Short: "Remove clubs from the selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			selected := e.app.Filter().SortedClubs()
			for _, arg := range args {
				club, ok := resolveClub(arg, selected)
				if !ok {
					return fmt.Errorf("club %q is not selected", arg)
				}
				if err := e.app.RemoveClub(ctx, club); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deselected %s\n", club)
			}
			return nil
		},
	}
}

func (e *env) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the club selection and show all clubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.app.ClearClubs(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Club selection cleared.")
			return nil
		},
	}
}

func (e *env) hideCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "hide <bmx|mtb> [on|off]",
		Short:     "Hide or show BMX or mountain bike events",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"bmx", "mtb"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on := true
			if len(args) == 2 {
				switch strings.ToLower(args[1]) {
				case "on":
				case "off":
					on = false
				default:
					v, err := strconv.ParseBool(args[1])
					if err != nil {
						return fmt.Errorf("expected on or off, got %q", args[1])
					}
					on = v
				}
			}

			ctx := cmd.Context()
			var (
				err   error
				label string
			)
			switch strings.ToLower(args[0]) {
			case "bmx":
				label = "BMX"
				err = e.app.SetHideBMX(ctx, on)
			case "mtb":
				label = "MTB"
				err = e.app.SetHideMTB(ctx, on)
			default:
				return fmt.Errorf("expected bmx or mtb, got %q", args[0])
			}
			if err != nil {
				return err
			}
			state := "shown"
			if on {
				state = "hidden"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s events %s.\n", label, state)
			return nil
		},
	}
}

func (e *env) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "view <list|calendar>",
		Short:     "Set the preferred view",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.ModeList), string(model.ModeCalendar)},
		RunE: func(cmd *cobra.Command, args []string) error {
			m := model.Mode(strings.ToLower(args[0]))
			if !m.Valid() {
				return fmt.Errorf("unknown view %q", args[0])
			}
			if err := e.app.SetMode(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "View set to %s.\n", m)
			return nil
		},
	}
}

func (e *env) modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mode <month|week>",
		Short:     "Set the calendar granularity",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.GranularityMonth), string(model.GranularityWeek)},
		RunE: func(cmd *cobra.Command, args []string) error {
			g := model.Granularity(strings.ToLower(args[0]))
			if !g.Valid() {
				return fmt.Errorf("unknown calendar mode %q", args[0])
			}
			if err := e.app.SetGranularity(cmd.Context(), g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Calendar mode set to %s.\n", g)
			return nil
		},
	}
}

// showCalendar prints the calendar at the stored anchor, whatever the
// preferred view.
func (e *env) showCalendar(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := e.loadData(ctx); err != nil {
		return err
	}
	p, err := e.app.SnapshotFor(ctx, e.viewport(), func(s model.ViewState) model.ViewState {
		s.Mode = model.ModeCalendar
		return s
	})
	if err != nil {
		return err
	}
	return render.Write(cmd.OutOrStdout(), p)
}

func (e *env) navCmd(use, short string, dir int) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.app.Navigate(cmd.Context(), dir); err != nil {
				return err
			}
			return e.showCalendar(cmd)
		},
	}
}

func (e *env) todayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Move the calendar back to the current period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.app.Today(cmd.Context()); err != nil {
				return err
			}
			return e.showCalendar(cmd)
		},
	}
}

func (e *env) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <n>",
		Short: "Open the registration page of event n from `racecal list`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("expected an event number, got %q", args[0])
			}
			ctx := cmd.Context()
			if err := e.loadData(ctx); err != nil {
				return err
			}
			p, err := e.app.SnapshotFor(ctx, e.viewport(), func(s model.ViewState) model.ViewState {
				s.Mode = model.ModeList
				return s
			})
			if err != nil {
				return err
			}
			events := p.Events()
			if n > len(events) {
				return fmt.Errorf("no event %d; the list has %d", n, len(events))
			}
			ev := events[n-1].Event
			if err := e.app.OpenEvent(ctx, ev); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened %s: %s\n", ev.EventName, ev.EventURL)
			return nil
		},
	}
}

func (e *env) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dataset counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.loadData(cmd.Context()); err != nil {
				return err
			}
			s := e.app.Stats()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Events:\t%d\n", s.Events)
			fmt.Fprintf(tw, "Clubs:\t%d\n", s.Clubs)
			fmt.Fprintf(tw, "Shown:\t%d\n", s.Filtered)
			fmt.Fprintf(tw, "Selected clubs:\t%d\n", s.SelectedClubs)
			if s.LastUpdated != "" {
				fmt.Fprintf(tw, "Last updated:\t%s\n", s.LastUpdated)
			}
			if s.IsFallback {
				fmt.Fprintln(tw, "Data:\tsample events (sources unreachable)")
			}
			return tw.Flush()
		},
	}
}

func (e *env) exportCmd() *cobra.Command {
	var (
		out string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered events as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.loadData(cmd.Context()); err != nil {
				return err
			}
			events := e.app.Filtered()
			if all {
				events = e.app.Events()
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				fh, err := os.Create(out)
				if err != nil {
					return err
				}
				defer fh.Close()
				w = fh
			}
			if err := ics.Export(w, events, e.cfg.CalendarName, e.now()); err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d events to %s\n", len(events), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "export every event, ignoring filters")
	return cmd
}

func (e *env) dismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss",
		Short: "Dismiss the first-run tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.app.DismissOnboarding(cmd.Context())
		},
	}
}

func (e *env) migrateCmd() *cobra.Command {
	var cookies string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply preference migrations and report the schema version",
		Long: `Apply pending preference migrations. --cookies imports preferences
from a saved browser Cookie header (the legacy cookie layout), overriding
legacy_cookies in the config file.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationManualRestore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cookies != "" {
				lc := config.LegacyCookiesConfig{File: cookies}
				if e.cfg.LegacyCookies != nil {
					lc.HashKey = e.cfg.LegacyCookies.HashKey
					lc.BlockKey = e.cfg.LegacyCookies.BlockKey
				}
				legacy, err := legacySource(&lc)
				if err != nil {
					return err
				}
				e.legacy = legacy
				e.app = e.newApp(true)
			}
			before, err := store.SchemaVersion(ctx, e.st)
			if err != nil {
				return err
			}
			if err := e.app.Restore(ctx); err != nil {
				return err
			}
			after, err := store.SchemaVersion(ctx, e.st)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if after == before {
				fmt.Fprintf(out, "Preferences are up to date (schema version %d).\n", after)
				return nil
			}
			fmt.Fprintf(out, "Migrated preferences from schema version %d to %d.\n", before, after)
			return nil
		},
	}
	cmd.Flags().StringVar(&cookies, "cookies", "", "file holding a browser Cookie header to import")
	return cmd
}
