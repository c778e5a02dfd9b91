package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// DefaultTimeout bounds each resource request.
const DefaultTimeout = 10 * time.Second

// Config describes where events and clubs come from.
type Config struct {
	// EventsURL is an http(s) URL, file:// URL or local path. Resources
	// ending in .ics, or served as text/calendar, are read as iCalendar.
	EventsURL string
	// ClubsURL may be empty, in which case clubs are derived from events.
	ClubsURL string

	Timeout  time.Duration
	CacheDir string

	// HorizonDays and BackfillDays bound iCalendar recurrence expansion.
	HorizonDays  int
	BackfillDays int

	Client *http.Client
	Now    func() time.Time
}

// Result is a loaded dataset ready to be installed.
type Result struct {
	Events []model.Event
	Clubs  []model.Club

	// IsFallback is set when the built-in dataset was substituted.
	IsFallback bool
	// ClubsDerived is set when clubs came from the events' club names.
	ClubsDerived bool
	// FromCache is set when any resource was served from the disk cache.
	FromCache bool

	// Warnings are absorbed failures, surfaced as notices.
	Warnings []error
	LoadedAt time.Time
}

// Loader fetches the events and clubs collections.
type Loader struct {
	cfg Config
	f   *fetcher
}

func New(cfg Config) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{
		cfg: cfg,
		f: &fetcher{
			client:   cfg.Client,
			cacheDir: cfg.CacheDir,
			timeout:  cfg.Timeout,
		},
	}
}

type outcome struct {
	res fetched
	err error
}

// Load fetches both resources concurrently.
//
// An events failure is returned as an error, unless the clubs resource was
// unreachable too: then the fallback dataset is returned with IsFallback set
// and a nil error. A clubs failure is absorbed by deriving clubs from events.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	if l.cfg.EventsURL == "" {
		return Result{}, errors.New("events resource is not configured")
	}

	var (
		wg            sync.WaitGroup
		events, clubs outcome
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		events.res, events.err = l.f.fetch(ctx, l.cfg.EventsURL)
	}()
	if l.cfg.ClubsURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clubs.res, clubs.err = l.f.fetch(ctx, l.cfg.ClubsURL)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{LoadedAt: l.cfg.Now()}

	if events.err != nil {
		if IsUnreachable(events.err) && (l.cfg.ClubsURL == "" || IsUnreachable(clubs.err)) {
			appLog.Error("no data source reachable; using fallback dataset", events.err)
			fb := Fallback()
			fb.LoadedAt = res.LoadedAt
			fb.Warnings = []error{errors.Join(ErrTotalLoadFailure, events.err, clubs.err)}
			return fb, nil
		}
		return Result{}, fmt.Errorf("load events: %w", events.err)
	}
	if events.res.Stale != nil {
		res.Warnings = append(res.Warnings, fmt.Errorf("events served from cache: %w", events.res.Stale))
	}
	res.FromCache = events.res.FromCache

	evs, warns, err := l.decodeEvents(events.res)
	if err != nil {
		return Result{}, fmt.Errorf("load events: %w", err)
	}
	res.Events = evs
	res.Warnings = append(res.Warnings, warns...)

	switch {
	case l.cfg.ClubsURL == "":
		res.Clubs = model.DistinctClubs(res.Events)
		res.ClubsDerived = true
	case clubs.err != nil:
		appLog.Info("clubs unavailable; deriving from events", "err", clubs.err)
		res.Clubs = model.DistinctClubs(res.Events)
		res.ClubsDerived = true
		res.Warnings = append(res.Warnings, clubs.err)
	default:
		cl, err := decodeClubs(l.cfg.ClubsURL, clubs.res.Body)
		if err != nil {
			appLog.Info("clubs unreadable; deriving from events", "err", err)
			res.Clubs = model.DistinctClubs(res.Events)
			res.ClubsDerived = true
			res.Warnings = append(res.Warnings, err)
		} else {
			res.Clubs = cl
			res.FromCache = res.FromCache || clubs.res.FromCache
		}
	}

	appLog.Info("data loaded",
		"events", len(res.Events),
		"clubs", len(res.Clubs),
		"clubs_derived", res.ClubsDerived,
		"from_cache", res.FromCache,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// isICS reports whether a resource should be read as iCalendar.
func isICS(resource, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "text/calendar") {
		return true
	}
	p := resource
	if u, err := url.Parse(resource); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ".ics")
}

// decodeEvents parses the events body and drops events without a valid
// date, reporting each as a warning.
func (l *Loader) decodeEvents(f fetched) ([]model.Event, []error, error) {
	resource := redactURL(l.cfg.EventsURL)

	var raw []model.Event
	if isICS(l.cfg.EventsURL, f.ContentType) {
		parsed, err := ics.Parse(resource, f.Body)
		if err != nil {
			return nil, nil, &ParseError{Resource: resource, Err: err}
		}
		start, end := ics.Window(l.cfg.Now(), l.cfg.HorizonDays, l.cfg.BackfillDays)
		exp, err := ics.Expand(parsed, ics.ExpandConfig{
			RangeStart:  start,
			RangeEnd:    end,
			DefaultClub: feedName(l.cfg.EventsURL),
		})
		if err != nil {
			return nil, nil, &ParseError{Resource: resource, Err: err}
		}
		raw = exp.Events
	} else if err := json.Unmarshal(f.Body, &raw); err != nil {
		return nil, nil, &ParseError{Resource: resource, Err: err}
	}

	out := make([]model.Event, 0, len(raw))
	var warns []error
	for _, ev := range raw {
		if err := model.Valid(ev); err != nil {
			warns = append(warns, err)
			continue
		}
		out = append(out, ev)
	}
	if len(warns) > 0 {
		appLog.Info("dropped events with invalid dates", "count", len(warns))
	}
	return out, warns, nil
}

func decodeClubs(resource string, body []byte) ([]model.Club, error) {
	var clubs []model.Club
	if err := json.Unmarshal(body, &clubs); err != nil {
		return nil, &ParseError{Resource: redactURL(resource), Err: err}
	}
	out := clubs[:0]
	for _, c := range clubs {
		if strings.TrimSpace(c.ClubName) != "" {
			out = append(out, c)
		}
	}
	model.SortClubs(out)
	return out, nil
}

// feedName is the base name of a resource without extension, used as the
// club for iCalendar events that name none.
func feedName(resource string) string {
	p := resource
	if u, err := url.Parse(resource); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
