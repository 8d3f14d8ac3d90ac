package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrTimeout is returned when navigation or load exceeds PageTimeout.
var ErrTimeout = errors.New("browser: page timeout")

// Page is a fetched document.
type Page struct {
	URL  string
	HTML string
}

// Fetch opens pageURL in a fresh tab and returns the rendered document.
func (m *Manager) Fetch(ctx context.Context, pageURL string) (Page, error) {
	b, err := m.acquire()
	if err != nil {
		return Page{}, err
	}

	var page *rod.Page
	if m.cfg.DisableStealth {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return Page{}, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	if len(m.cfg.ResourceBlocking) > 0 {
		router := blockResources(page, m.cfg.ResourceBlocking)
		defer router.Stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.PageTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(pageURL); err != nil {
		return Page{}, navErr(navCtx, pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return Page{}, navErr(navCtx, pageURL, err)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return Page{}, navErr(navCtx, pageURL, err)
	}
	final := pageURL
	if info, err := p.Info(); err == nil {
		final = info.URL
	}
	return Page{URL: final, HTML: res.Value.Str()}, nil
}

func navErr(ctx context.Context, pageURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, pageURL)
	}
	return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
}
