// Package feed walks the LinkedIn notifications view ordinal by ordinal.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/site"
	"github.com/ibeckermayer/engage4me/internal/types"
)

// rawItem represents the raw data extracted from a notification card
type rawItem struct {
	Missing bool   `json:"missing"`
	Text    string `json:"text"`
	URL     string `json:"url"`
}

// page is the slice of browser behavior the scanner depends on.
type page interface {
	Open(ctx context.Context, url string) error
	Count(ctx context.Context) (int, error)
	Item(ctx context.Context, ordinal int) (rawItem, error)
	ScrollToBottom(ctx context.Context) error
}

// Options configures a Scanner.
type Options struct {
	NotificationsURL string
	RelevancePrefix  string
	ElementTimeout   time.Duration
	// RenderWait bounds how long Probe waits for a lazily loaded ordinal,
	// once before and once after scrolling.
	RenderWait   time.Duration
	PollInterval time.Duration
}

// Scanner produces notification items in display order.
type Scanner struct {
	page page
	opts Options
	log  zerolog.Logger
}

// NewScanner returns a Scanner driving the given tab context.
func NewScanner(tabCtx context.Context, opts Options, log zerolog.Logger) *Scanner {
	return newScanner(&chromePage{tab: tabCtx, elementTimeout: opts.ElementTimeout}, opts, log)
}

func newScanner(p page, opts Options, log zerolog.Logger) *Scanner {
	if opts.RelevancePrefix == "" {
		opts.RelevancePrefix = DefaultRelevancePrefix
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Scanner{page: p, opts: opts, log: log}
}

// Open navigates to the notifications view. Called once per run.
func (s *Scanner) Open(ctx context.Context) error {
	if err := s.page.Open(ctx, s.opts.NotificationsURL); err != nil {
		return fmt.Errorf("failed to open notifications: %w", err)
	}
	s.log.Info().Str("url", s.opts.NotificationsURL).Msg("notifications opened")
	return nil
}

// ScrollToBottom asks the virtualized feed to render more items.
func (s *Scanner) ScrollToBottom(ctx context.Context) error {
	return s.page.ScrollToBottom(ctx)
}

// Probe locates the item at a 1-based ordinal. An ordinal past the rendered
// items is given a bounded wait, then a scroll to the bottom and another
// bounded wait, before it is reported NotYetRendered or Exhausted.
func (s *Scanner) Probe(ctx context.Context, ordinal int) (Result, error) {
	before, err := s.page.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count notifications: %w", err)
	}

	if ordinal > before {
		after, err := s.waitForCount(ctx, ordinal)
		if err != nil {
			return Result{}, err
		}
		if after < ordinal {
			if err := s.page.ScrollToBottom(ctx); err != nil {
				return Result{}, fmt.Errorf("scroll notifications: %w", err)
			}
			if after, err = s.waitForCount(ctx, ordinal); err != nil {
				return Result{}, err
			}
		}
		if st := classify(ordinal, before, after); st != Found {
			s.log.Debug().Int("ordinal", ordinal).Int("before", before).Int("after", after).Stringer("status", st).Msg("ordinal not rendered")
			return Result{Status: st}, nil
		}
	}

	item := types.NotificationItem{Index: ordinal}
	raw, err := s.page.Item(ctx, ordinal)
	switch {
	case err != nil:
		s.log.Debug().Err(err).Int("ordinal", ordinal).Msg("could not read notification, treating as not relevant")
	case raw.Missing:
		s.log.Debug().Int("ordinal", ordinal).Msg("notification vanished before it could be read")
	default:
		item.Text = raw.Text
		item.URL = raw.URL
	}
	item.Relevant = item.URL != "" && IsRelevant(item.Text, s.opts.RelevancePrefix)
	return Result{Status: Found, Item: item}, nil
}

// waitForCount polls the rendered count until it reaches ordinal or the
// render wait elapses, returning the last count seen.
func (s *Scanner) waitForCount(ctx context.Context, ordinal int) (int, error) {
	deadline := time.Now().Add(s.opts.RenderWait)
	for {
		n, err := s.page.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("count notifications: %w", err)
		}
		if n >= ordinal || !time.Now().Before(deadline) {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// chromePage implements page over a chromedp tab.
type chromePage struct {
	tab            context.Context
	elementTimeout time.Duration
}

func (p *chromePage) Open(ctx context.Context, url string) error {
	tctx, cancel := browser.Bind(ctx, p.tab, p.elementTimeout)
	defer cancel()

	return chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(site.NotificationList, chromedp.ByQuery),
	)
}

func (p *chromePage) Count(ctx context.Context) (int, error) {
	var n int
	err := p.run(ctx, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelectorAll(%q).length`, site.NotificationCard), &n))
	return n, err
}

func (p *chromePage) Item(ctx context.Context, ordinal int) (rawItem, error) {
	extractJS := fmt.Sprintf(`
		(function(i) {
			const el = document.querySelectorAll(%q)[i - 1];
			if (!el) return { missing: true, text: '', url: '' };
			const textEl = el.querySelector(%q) || el;
			const link = el.querySelector(%q);
			return {
				missing: false,
				text: (textEl.innerText || '').trim(),
				url: link ? link.href : ''
			};
		})(%d)
	`, site.NotificationCard, site.NotificationText, site.NotificationLink, ordinal)

	var raw rawItem
	err := p.run(ctx, chromedp.Evaluate(extractJS, &raw))
	return raw, err
}

func (p *chromePage) ScrollToBottom(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := browser.Bind(ctx, p.tab, p.elementTimeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}
