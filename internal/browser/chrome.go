package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/resilience"
)

// ChromeConfig configures the automated browser
type ChromeConfig struct {
	Headless bool
	StartURL string
	// ActionTimeout bounds each page operation
	ActionTimeout time.Duration
}

// ChromePage is a Page backed by a Chrome tab driven over the DevTools protocol.
// It also serves screenshots of the tab as a camera frame source.
type ChromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// LaunchChrome starts a browser and opens the start page, retrying with backoff
func LaunchChrome(ctx context.Context, cfg ChromeConfig, reconnect *resilience.ReconnectConfig, logger zerolog.Logger) (*ChromePage, error) {
	logger = logger.With().Str("component", "chrome").Logger()
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}

	var page *ChromePage
	err := resilience.Reconnect(ctx, logger, func(ctx context.Context) error {
		p, err := launchChrome(ctx, cfg, logger)
		if err != nil {
			return err
		}
		page = p
		return nil
	}, reconnect)
	if err != nil {
		return nil, err
	}

	logger.Info().Bool("headless", cfg.Headless).Str("url", cfg.StartURL).Msg("Browser launched")
	return page, nil
}

func launchChrome(ctx context.Context, cfg ChromeConfig, logger zerolog.Logger) (*ChromePage, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug().Msgf(format, args...)
	}))

	page := &ChromePage{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout: cfg.ActionTimeout,
		logger:  logger,
	}

	// The first Run allocates the browser and must not carry a deadline, or the
	// browser would be torn down when it expires.
	if err := chromedp.Run(tabCtx); err != nil {
		page.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if err := page.run(ctx, chromedp.Navigate(cfg.StartURL)); err != nil {
		page.cancel()
		return nil, fmt.Errorf("failed to open %s: %w", cfg.StartURL, err)
	}
	return page, nil
}

// Close shuts down the tab and the browser process
func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}

// Ping checks that the tab still answers
func (p *ChromePage) Ping(ctx context.Context) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(`true`, &ok))
}

func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) Back(ctx context.Context) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(`(() => { history.back(); return true; })()`, &ok))
}

func (p *ChromePage) Forward(ctx context.Context) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(`(() => { history.forward(); return true; })()`, &ok))
}

func (p *ChromePage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p *ChromePage) ViewportHeight(ctx context.Context) (float64, error) {
	var height float64
	if err := p.run(ctx, chromedp.Evaluate(`window.innerHeight`, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

func (p *ChromePage) ScrollBy(ctx context.Context, dy float64) error {
	script := fmt.Sprintf(`(() => { window.scrollBy({top: %s, left: 0, behavior: 'smooth'}); return true; })()`,
		strconv.FormatFloat(dy, 'f', -1, 64))
	var ok bool
	return p.run(ctx, chromedp.Evaluate(script, &ok))
}

// elementPrelude defines find and highlight helpers for element scripts.
// find returns the element or a status string.
const elementPrelude = `
const highlight = (el) => {
  const outline = el.style.outline, shadow = el.style.boxShadow;
  el.style.outline = '2px solid #00ffff';
  el.style.boxShadow = '0 0 15px rgba(0, 255, 255, 0.5)';
  setTimeout(() => { el.style.outline = outline; el.style.boxShadow = shadow; }, 1500);
};
const find = (sel) => {
  try { return document.querySelector(sel) || 'missing'; } catch (e) { return 'invalid'; }
};
`

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {%s
const el = find(%s);
if (typeof el === 'string') return el;
highlight(el);
el.click();
return 'ok';
})()`, elementPrelude, jsString(selector))
	return p.element(ctx, script)
}

func (p *ChromePage) SetValue(ctx context.Context, selector, text string) error {
	script := fmt.Sprintf(`(() => {%s
const el = find(%s);
if (typeof el === 'string') return el;
highlight(el);
el.focus();
el.value = %s;
el.dispatchEvent(new Event('input', { bubbles: true }));
return 'ok';
})()`, elementPrelude, jsString(selector), jsString(text))
	return p.element(ctx, script)
}

func (p *ChromePage) PressKey(ctx context.Context, key, selector string) error {
	script := fmt.Sprintf(`(() => {%s
const sel = %s, key = %s;
let el = document.body;
if (sel) {
  el = find(sel);
  if (typeof el === 'string') return el;
  highlight(el);
  el.focus();
}
el.dispatchEvent(new KeyboardEvent('keydown', { key, code: key, bubbles: true, cancelable: true, view: window }));
if (key === 'Enter' && el instanceof HTMLInputElement && el.form) el.form.requestSubmit();
return 'ok';
})()`, elementPrelude, jsString(selector), jsString(key))
	return p.element(ctx, script)
}

func (p *ChromePage) OpenTab(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := target.CreateTarget(url).Do(ctx)
		return err
	}))
}

// Frame captures the visible tab as an image
func (p *ChromePage) Frame(ctx context.Context) (image.Image, error) {
	var shot []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if len(shot) == 0 {
		return nil, nil
	}
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

func (p *ChromePage) element(ctx context.Context, script string) error {
	var status string
	if err := p.run(ctx, chromedp.Evaluate(script, &status)); err != nil {
		return err
	}
	return elementStatus(status)
}

func elementStatus(status string) error {
	switch status {
	case "ok":
		return nil
	case "missing":
		return ErrElementNotFound
	case "invalid":
		return ErrInvalidSelector
	default:
		return fmt.Errorf("unexpected page response %q", status)
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
