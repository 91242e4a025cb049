package engage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/site"
)

// ErrEmptyPost means there was no text to publish.
var ErrEmptyPost = errors.New("post text is empty")

// composerPage is the home feed with its share box, in its own tab.
type composerPage interface {
	// Open navigates to url and waits for the start-a-post entry.
	Open(ctx context.Context, url string) error
	StartPost(ctx context.Context) error
	TypePost(ctx context.Context, text string) error
	SubmitPost(ctx context.Context) error
	Close()
}

// Publisher writes new posts from the home feed's share box.
type Publisher struct {
	feedURL string
	pacer   *browser.Pacer
	log     zerolog.Logger

	newPage func() composerPage
}

// NewPublisher creates a Publisher that opens its tabs in sess. The session
// must already be signed in.
func NewPublisher(sess *browser.Session, feedURL string, opts Options, log zerolog.Logger) *Publisher {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	return &Publisher{
		feedURL: feedURL,
		pacer:   browser.NewPacer(opts.StepDelayMin, opts.StepDelayMax),
		log:     log,
		newPage: func() composerPage { return &chromeComposerPage{newTab(sess, opts.ElementTimeout)} },
	}
}

// Publish opens the composer, types text and submits it as a new post.
func (p *Publisher) Publish(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyPost
	}

	page := p.newPage()
	defer page.Close()

	if err := page.Open(ctx, p.feedURL); err != nil {
		return stepError("open feed", err)
	}
	if err := p.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := page.StartPost(ctx); err != nil {
		return stepError("start post", err)
	}
	if err := p.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := page.TypePost(ctx, text); err != nil {
		return stepError("type post", err)
	}
	if err := p.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := page.SubmitPost(ctx); err != nil {
		return stepError("submit post", err)
	}
	// Give the share dialog time to send before the tab closes.
	_ = p.pacer.Pause(ctx)

	p.log.Info().Int("chars", len(text)).Msg("post published")
	return nil
}

// chromeComposerPage implements composerPage over a chromedp tab.
type chromeComposerPage struct {
	*tab
}

func (p *chromeComposerPage) Open(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitVisible(site.StartPost, chromedp.ByQuery))
}

func (p *chromeComposerPage) StartPost(ctx context.Context) error {
	return p.run(ctx,
		chromedp.Click(site.StartPost, chromedp.ByQuery),
		chromedp.WaitVisible(site.PostComposer, chromedp.ByQuery),
	)
}

func (p *chromeComposerPage) TypePost(ctx context.Context, text string) error {
	return p.run(ctx,
		chromedp.Click(site.PostComposer, chromedp.ByQuery),
		chromedp.SendKeys(site.PostComposer, text, chromedp.ByQuery),
	)
}

func (p *chromeComposerPage) SubmitPost(ctx context.Context) error {
	return p.run(ctx,
		chromedp.WaitEnabled(site.PostSubmit, chromedp.ByQuery),
		chromedp.Click(site.PostSubmit, chromedp.ByQuery),
	)
}
