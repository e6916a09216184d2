package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/go-querystring/query"
)

// DefaultSiteURL is the public quote-site deployment.
const DefaultSiteURL = "https://note-to-quote.vercel.app"

// renderTimeout caps one full browser session: navigation, the site's
// own relay fetch, and canvas generation.
const renderTimeout = 90 * time.Second

// SiteRenderer drives the note-to-quote web app in headless Chrome and
// captures the generated canvas as a PNG. Each capture runs in a fresh
// browser; the pipeline only ever renders one quote at a time.
type SiteRenderer struct {
	SiteURL string
	Logger  *slog.Logger

	// ExecPath overrides the browser binary, for containers that ship
	// chromium somewhere unusual.
	ExecPath string
}

type siteParams struct {
	Relay string `url:"r"`
}

func NewSiteRenderer(logger *slog.Logger, siteURL string) (*SiteRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	normalized, err := purell.NormalizeURLString(siteURL, purell.FlagsUsuallySafeGreedy)
	if err != nil {
		return nil, fmt.Errorf("invalid quote site URL: %w", err)
	}
	return &SiteRenderer{SiteURL: normalized, Logger: logger}, nil
}

// CaptureQuote renders eventID through the quote site and returns the
// PNG bytes of the resulting canvas. The site failing to load the event
// from relayHint surfaces as ErrSourceNotFound; anything else that goes
// wrong in the browser is a plain error.
func (r *SiteRenderer) CaptureQuote(ctx context.Context, eventID, relayHint string) ([]byte, error) {
	start := time.Now()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("hide-scrollbars", true),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, renderTimeout)
	defer cancelTimeout()

	// the site reports relay fetch failures only on the console; that
	// message is the one signal separating "event does not exist" from
	// a broken render
	var sourceMissing atomic.Bool
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		for _, arg := range e.Args {
			if strings.Contains(string(arg.Value), "Error fetching Nostr event") {
				sourceMissing.Store(true)
			}
		}
	})

	params, err := query.Values(siteParams{Relay: relayHint})
	if err != nil {
		return nil, err
	}
	pageURL := r.SiteURL + "/?" + params.Encode()
	r.Logger.Debug("rendering quote", "url", pageURL, "event", eventID)

	var dataURL string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("input", chromedp.ByQuery),
		chromedp.SendKeys("input", eventID, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		// give the site a moment to fail loudly before waiting on the canvas
		chromedp.Sleep(2*time.Second),
		chromedp.WaitVisible("canvas", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(canvasPNGScript, &dataURL),
	)
	renderDuration.Observe(time.Since(start).Seconds())

	if sourceMissing.Load() {
		renderCount.WithLabelValues("not_found").Inc()
		return nil, ErrSourceNotFound
	}
	if err != nil {
		renderCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("driving quote site: %w", err)
	}
	png, err := DecodeCanvasDataURL(dataURL)
	if err != nil {
		renderCount.WithLabelValues("error").Inc()
		return nil, err
	}
	renderCount.WithLabelValues("ok").Inc()
	r.Logger.Debug("captured quote image", "event", eventID, "bytes", len(png))
	return png, nil
}

const canvasPNGScript = `(() => {
	const canvas = document.querySelector('canvas.w-full') || document.querySelector('canvas');
	return canvas ? canvas.toDataURL('image/png') : '';
})()`

// DecodeCanvasDataURL unpacks the PNG payload of a canvas.toDataURL
// result.
func DecodeCanvasDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, "data:image/png") {
		return nil, fmt.Errorf("canvas returned no PNG data")
	}
	_, b64, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("canvas data URL has no payload")
	}
	png, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding canvas payload: %w", err)
	}
	return png, nil
}
