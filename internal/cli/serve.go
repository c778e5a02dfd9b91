package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"racecal/internal/capture"
	appLog "racecal/internal/log"
	"racecal/internal/schedule"
	"racecal/internal/web"
)

// restoreSession builds an App whose navigation lives only as long as the
// process, as in the browser.
func (e *env) restoreSession(ctx context.Context) error {
	e.app = e.newApp(false)
	return e.app.Restore(ctx)
}

func (e *env) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar and its JSON API over HTTP",
		Long: `Serve the web UI, the JSON API and an iCalendar feed. Data is loaded
at startup and refreshed on the configured cron schedule.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationManualRestore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if listen != "" {
				e.cfg.Listen = listen
			}
			if err := e.restoreSession(ctx); err != nil {
				return err
			}

			srv, err := web.NewServer(e.cfg, e.app, e.loadData)
			if err != nil {
				return err
			}
			if err := srv.Refresh(ctx); err != nil {
				appLog.Error("initial load failed; retrying on schedule", err)
			}

			sched, err := schedule.New(e.cfg.RefreshCron, 2*e.cfg.Timeout(), srv.Refresh)
			if err != nil {
				return err
			}
			sched.Start(ctx)
			appLog.Info("refresh scheduled", "spec", e.cfg.RefreshCron, "next", sched.Next().Format(time.RFC3339))

			return web.StartServer(ctx, e.cfg, srv)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func (e *env) snapshotCmd() *cobra.Command {
	var (
		out     string
		url     string
		height  int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the web page as a PNG with headless Chromium",
		Long: `Capture the web page as a PNG. Without --url the page is served
in-process on a loopback port. --width picks the viewport, so narrow widths
capture the mobile list layout.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationManualRestore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			target := url
			if target == "" {
				base, stop, err := e.serveLocal(ctx)
				if err != nil {
					return err
				}
				defer stop()
				target = base
			}

			err := capture.CapturePagePNG(ctx, capture.Options{
				URL:        target,
				OutputPath: out,
				Width:      e.width,
				Height:     height,
				Timeout:    timeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "racecal.png", "output PNG path")
	cmd.Flags().StringVar(&url, "url", "", "capture a running racecal server instead of serving in-process")
	cmd.Flags().IntVar(&height, "height", capture.DefaultHeight, "viewport height in pixels")
	cmd.Flags().DurationVar(&timeout, "timeout", capture.DefaultTimeoutSec*time.Second, "capture timeout")
	return cmd
}

// serveLocal loads data and serves the page on a loopback port without
// authentication. stop shuts the server down.
func (e *env) serveLocal(ctx context.Context) (string, func(), error) {
	if err := e.restoreSession(ctx); err != nil {
		return "", nil, err
	}
	if err := e.loadData(ctx); err != nil {
		return "", nil, err
	}

	local := *e.cfg
	local.BasicAuth = nil
	srv, err := web.NewServer(&local, e.app, nil)
	if err != nil {
		return "", nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("snapshot server stopped", err)
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}
	return "http://" + ln.Addr().String() + "/", stop, nil
}
