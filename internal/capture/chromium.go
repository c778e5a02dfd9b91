package capture

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters: a desktop viewport showing the calendar.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 900
	DefaultTimeoutSec = 30
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL is the racecal page, e.g. "http://127.0.0.1:8080/".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. Width is also
	// passed to the page as ?width= so mobile layouts can be captured.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// PageURL adds the viewport width to base as the ?width= override.
func PageURL(base string, width int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("capture: invalid URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("capture: URL %q must be http or https", base)
	}
	q := u.Query()
	q.Set("width", strconv.Itoa(width))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CapturePagePNG launches a headless Chromium instance via chromedp,
// navigates to the page, waits for `[data-ready="true"]` and writes a full
// page PNG screenshot.
func CapturePagePNG(parentCtx context.Context, opts Options) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	target, err := PageURL(opts.URL, opts.Width)
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(target),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Let the final paint settle.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	return nil
}
