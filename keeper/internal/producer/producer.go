// Package producer turns a queue target into a signal bundle: it fetches
// the profile page and runs ranked extraction strategies over it.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/profkeeper/keeper/internal/browser"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
	"github.com/hazyhaar/profkeeper/keeper/internal/signal"
)

// Failure reasons set on bundles. The lifecycle classifier maps both to
// Dead.
const (
	ReasonTimeout  = "Page timeout"
	ReasonNotFound = "Profile not found"
)

// Producer yields one bundle per target.
type Producer interface {
	Produce(ctx context.Context, target string) (signal.Bundle, error)
}

// Fetcher loads a rendered page. *browser.Manager implements it.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (browser.Page, error)
}

// Config configures a PageProducer.
type Config struct {
	// ProfileURL builds the page URL from a target; "{target}" is replaced
	// with the escaped target. Targets that already are URLs are used as is.
	ProfileURL string
	// SourceTag is copied onto every bundle.
	SourceTag string
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PageProducer fetches profile pages and extracts them with Rules.
type PageProducer struct {
	fetch Fetcher
	rules Rules
	cfg   Config
}

// New returns a PageProducer.
func New(f Fetcher, rules Rules, cfg Config) *PageProducer {
	cfg.defaults()
	return &PageProducer{fetch: f, rules: rules, cfg: cfg}
}

// URLFor resolves target to a page URL.
func (p *PageProducer) URLFor(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return strings.ReplaceAll(p.cfg.ProfileURL, "{target}", url.PathEscape(target))
}

// Produce fetches and parses target. A navigation timeout is not an
// error: it yields a bundle whose failure reason marks the profile dead.
func (p *PageProducer) Produce(ctx context.Context, target string) (signal.Bundle, error) {
	u := p.URLFor(target)
	page, err := p.fetch.Fetch(ctx, u)
	if errors.Is(err, browser.ErrTimeout) {
		p.cfg.Logger.Warn("producer: page timeout", "target", target, "url", u)
		b := p.seed(target, u)
		b.FailureReason = ReasonTimeout
		return b, nil
	}
	if err != nil {
		return signal.Bundle{}, fmt.Errorf("producer: fetch %s: %w", u, err)
	}

	b, err := p.Parse(page.URL, page.HTML)
	if err != nil {
		return signal.Bundle{}, err
	}
	for k, v := range p.seed(target, u).Fields {
		if record.IsBlank(b.Fields[k]) {
			b.Fields[k] = v
		}
	}
	return b, nil
}

// seed is the bundle known before fetching: the link, and the target as
// identity when numeric or as display name otherwise.
func (p *PageProducer) seed(target, pageURL string) signal.Bundle {
	fields := map[string]string{record.ColProfileLink: pageURL}
	target = strings.TrimSpace(target)
	switch {
	case isDigits(target):
		fields[record.ColID] = target
	case !strings.Contains(target, "/"):
		fields[record.ColName] = target
	}
	return signal.Bundle{Fields: fields, SourceTag: p.cfg.SourceTag, QueueRef: -1}
}

// Parse extracts a bundle from a rendered page.
func (p *PageProducer) Parse(pageURL, rawHTML string) (signal.Bundle, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return signal.Bundle{}, fmt.Errorf("producer: parse %s: %w", pageURL, err)
	}

	b := signal.Bundle{
		Fields:    make(map[string]string, len(p.rules.Fields)+1),
		SourceTag: p.cfg.SourceTag,
		QueueRef:  -1,
	}
	for col, ranked := range p.rules.Fields {
		if v, ok := firstOf(doc, ranked); ok {
			b.Fields[col] = v
		}
	}
	b.Fields[record.ColProfileLink] = pageURL

	if v, ok := firstOf(doc, p.rules.Label); ok {
		b.Label = v
	}
	b.Bio = extractBio(doc, p.rules.Bio, pageURL)

	text := strings.ToLower(textOf(doc))
	for _, phrase := range p.rules.NotFound {
		if strings.Contains(text, phrase) {
			b.FailureReason = ReasonNotFound
			break
		}
	}
	return b, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
