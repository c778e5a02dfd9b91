// Package cli is the racecal command-line interface.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"racecal/internal/app"
	"racecal/internal/config"
	"racecal/internal/loader"
	appLog "racecal/internal/log"
	"racecal/internal/render"
	"racecal/internal/store"
)

// annotationManualRestore marks commands that restore preferences
// themselves.
const annotationManualRestore = "racecal/manual-restore"

// env carries flags and the per-invocation runtime shared by all commands.
type env struct {
	configPath string
	verbose    bool
	width      int
	storeSpec  string

	// Injected by tests.
	now    func() time.Time
	opener app.Opener
	client *http.Client

	cfg    *config.Config
	st     store.Store
	closed bool
	legacy store.Source
	app    *app.App
}

// Execute runs the command line in os.Args.
func Execute(ctx context.Context) error {
	e := &env{}
	return e.execute(ctx, newRoot(e))
}

// execute runs cmd and releases the store whether or not the command
// succeeded.
func (e *env) execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := e.teardown(); err == nil {
		err = cerr
	}
	return err
}

func newRoot(e *env) *cobra.Command {
	if e.now == nil {
		e.now = time.Now
	}

	root := &cobra.Command{
		Use:   "racecal",
		Short: "Browse cycling race events by club, as a list or a calendar",
		Long: `racecal loads a cycling race events collection and a clubs collection,
filters them by club and event type, and shows the result as a
chronological list or a month/week calendar. Preferences persist between
runs. "racecal serve" offers the same views over HTTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: e.setup,
		RunE:              e.runShow,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.configPath, "config", config.DefaultPath(), "config file path")
	pf.BoolVarP(&e.verbose, "verbose", "v", false, "verbose output")
	pf.IntVar(&e.width, "width", 0, "viewport width in pixels; below the mobile breakpoint calendars show as a list")
	pf.StringVar(&e.storeSpec, "store", "", "preference store: memory, file[:PATH] or sqlite[:PATH]")

	root.AddCommand(
		e.listCmd(),
		e.calendarCmd(),
		e.clubsCmd(),
		e.selectCmd(),
		e.deselectCmd(),
		e.clearCmd(),
		e.hideCmd(),
		e.viewCmd(),
		e.modeCmd(),
		e.navCmd("next", "Move the calendar forward one period", 1),
		e.navCmd("prev", "Move the calendar back one period", -1),
		e.todayCmd(),
		e.openCmd(),
		e.statsCmd(),
		e.exportCmd(),
		e.dismissCmd(),
		e.serveCmd(),
		e.snapshotCmd(),
		e.migrateCmd(),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyStoreSpec(cfg, e.storeSpec); err != nil {
		return err
	}
	e.cfg = cfg

	level := appLog.ParseLevel(cfg.LogLevel)
	if e.verbose {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	ctx := cmd.Context()
	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path})
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	e.st = st
	e.closed = false

	legacy, err := legacySource(cfg.LegacyCookies)
	if err != nil {
		return err
	}
	e.legacy = legacy
	e.app = e.newApp(true)

	if cmd.Annotations[annotationManualRestore] != "" {
		return nil
	}
	return e.app.Restore(ctx)
}

func (e *env) teardown() error {
	defer appLog.Sync()
	if e.st == nil || e.closed {
		return nil
	}
	e.closed = true
	return e.st.Close()
}

// newApp builds the App over the opened store. Only one-shot commands
// persist the anchor, so next and prev carry over between runs.
func (e *env) newApp(persistAnchor bool) *app.App {
	return app.New(e.st, app.Options{
		Now:           e.now,
		Opener:        e.opener,
		Legacy:        e.legacy,
		PersistAnchor: persistAnchor,
		Breakpoint:    e.cfg.MobileBreakpoint,
	})
}

// applyStoreSpec overrides the configured store with --store.
func applyStoreSpec(cfg *config.Config, spec string) error {
	if spec == "" {
		return nil
	}
	driver, path, _ := strings.Cut(spec, ":")
	switch driver {
	case store.DriverMemory, store.DriverFile, store.DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownDriver, driver)
	}
	if driver != cfg.Store.Driver && path == "" && driver != store.DriverMemory {
		return fmt.Errorf("--store %s needs a path, e.g. %s:prefs.db", driver, driver)
	}
	cfg.Store.Driver = driver
	if path != "" {
		cfg.Store.Path = path
	}
	return nil
}

// legacySource builds the cookie-era source from an exported Cookie header.
func legacySource(lc *config.LegacyCookiesConfig) (store.Source, error) {
	if lc == nil {
		return nil, nil
	}
	header := lc.Header
	if lc.File != "" {
		data, err := os.ReadFile(lc.File)
		if err != nil {
			return nil, fmt.Errorf("reading legacy cookies: %w", err)
		}
		header = string(data)
	}
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Cookie:"))
	if header == "" {
		return nil, nil
	}
	return store.ParseCookieHeader(header, store.NewCookieCodec(lc.HashKey, lc.BlockKey)), nil
}

func (e *env) loaderConfig() loader.Config {
	return loader.Config{
		EventsURL:    e.cfg.EventsURL,
		ClubsURL:     e.cfg.ClubsURL,
		Timeout:      e.cfg.Timeout(),
		CacheDir:     e.cfg.CacheDir,
		HorizonDays:  e.cfg.ICS.HorizonDays,
		BackfillDays: e.cfg.ICS.BackfillDays,
		Client:       e.client,
		Now:          e.now,
	}
}

// loadData fetches the collections and installs them into the App.
func (e *env) loadData(ctx context.Context) error {
	res, err := loader.New(e.loaderConfig()).Load(ctx)
	if err != nil {
		return err
	}
	return e.app.Install(ctx, res)
}

func (e *env) viewport() render.Viewport {
	return render.Viewport{Width: e.width, Breakpoint: e.cfg.MobileBreakpoint}
}

// runShow prints the stored view.
func (e *env) runShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := e.loadData(ctx); err != nil {
		return err
	}
	p, err := e.app.Snapshot(ctx, e.viewport())
	if err != nil {
		return err
	}
	return render.Write(cmd.OutOrStdout(), p)
}
