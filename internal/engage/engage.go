// Package engage likes and comments on posts and publishes new ones, each in
// its own tab.
package engage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/site"
)

var (
	// ErrPoolExhausted means no unused comment was available. Nothing was submitted.
	ErrPoolExhausted = errors.New("comment pool exhausted")
	// ErrElement means an expected element did not appear or could not be used.
	ErrElement = errors.New("element not actionable")
)

// CommentFunc yields the next comment to post, or false when none is left.
type CommentFunc func() (string, bool)

// Options configures an Engager.
type Options struct {
	ElementTimeout time.Duration
	StepDelayMin   time.Duration
	StepDelayMax   time.Duration
	ActionsPerHour int
}

// postPage is one post opened in its own tab.
type postPage interface {
	// Open navigates to url and waits for the like button.
	Open(ctx context.Context, url string) error
	Liked(ctx context.Context) (bool, error)
	Like(ctx context.Context) error
	OpenCommentBox(ctx context.Context) error
	TypeComment(ctx context.Context, text string) error
	SubmitComment(ctx context.Context) error
	// Close closes the tab.
	Close()
}

// Engager performs the like + comment sequence.
type Engager struct {
	opts    Options
	pacer   *browser.Pacer
	limiter *rate.Limiter
	log     zerolog.Logger

	newPage func() postPage
}

// New creates an Engager that opens its tabs in sess.
func New(sess *browser.Session, opts Options, log zerolog.Logger) *Engager {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	return &Engager{
		opts:    opts,
		pacer:   browser.NewPacer(opts.StepDelayMin, opts.StepDelayMax),
		limiter: newLimiter(opts.ActionsPerHour),
		log:     log,
		newPage: func() postPage { return &chromePostPage{newTab(sess, opts.ElementTimeout)} },
	}
}

// newLimiter allows perHour engagements per hour with a burst of one.
// A non-positive rate disables limiting.
func newLimiter(perHour int) *rate.Limiter {
	if perHour <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), 1)
}

// stepError wraps ErrElement with the name of the failing step.
func stepError(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrElement, step, err)
}

// Engage opens url in a new tab, likes the post unless it is already liked,
// and submits the comment returned by next. The tab is closed before Engage
// returns. The returned comment is the one actually submitted.
//
// Callers that can tell the pool is empty should not call Engage at all:
// when next returns false the post has already been liked.
func (e *Engager) Engage(ctx context.Context, url string, next CommentFunc) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	p := e.newPage()
	defer p.Close()

	log := e.log.With().Str("url", url).Logger()

	if err := p.Open(ctx, url); err != nil {
		return "", stepError("open post", err)
	}
	if err := e.pacer.Pause(ctx); err != nil {
		return "", err
	}

	liked, err := p.Liked(ctx)
	if err != nil {
		return "", stepError("read like state", err)
	}
	if liked {
		log.Debug().Msg("already liked")
	} else {
		if err := p.Like(ctx); err != nil {
			return "", stepError("like", err)
		}
		log.Debug().Msg("liked")
	}
	if err := e.pacer.Pause(ctx); err != nil {
		return "", err
	}

	comment, ok := next()
	if !ok {
		return "", ErrPoolExhausted
	}

	if err := p.OpenCommentBox(ctx); err != nil {
		return "", stepError("open comment box", err)
	}
	if err := e.pacer.Pause(ctx); err != nil {
		return "", err
	}

	if err := p.TypeComment(ctx, comment); err != nil {
		return "", stepError("type comment", err)
	}
	if err := e.pacer.Pause(ctx); err != nil {
		return "", err
	}

	if err := p.SubmitComment(ctx); err != nil {
		return "", stepError("submit comment", err)
	}
	// The comment is posted at this point; a cancelled pause must not hide that.
	_ = e.pacer.Pause(ctx)

	log.Info().Str("comment", comment).Msg("comment submitted")
	return comment, nil
}

// chromePostPage implements postPage over a chromedp tab.
type chromePostPage struct {
	*tab
}

func (p *chromePostPage) Open(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitVisible(site.LikeButton, chromedp.ByQuery))
}

func (p *chromePostPage) Liked(ctx context.Context) (bool, error) {
	var pressed string
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(
		`(document.querySelector(%q) || { getAttribute: () => '' }).getAttribute('aria-pressed') || ''`,
		site.LikeButton), &pressed))
	return pressed == "true", err
}

func (p *chromePostPage) Like(ctx context.Context) error {
	return p.run(ctx, chromedp.Click(site.LikeButton, chromedp.ByQuery))
}

func (p *chromePostPage) OpenCommentBox(ctx context.Context) error {
	return p.run(ctx,
		chromedp.Click(site.CommentButton, chromedp.ByQuery),
		chromedp.WaitVisible(site.CommentBox, chromedp.ByQuery),
	)
}

func (p *chromePostPage) TypeComment(ctx context.Context, text string) error {
	return p.run(ctx,
		chromedp.Click(site.CommentBox, chromedp.ByQuery),
		chromedp.SendKeys(site.CommentBox, text, chromedp.ByQuery),
	)
}

func (p *chromePostPage) SubmitComment(ctx context.Context) error {
	return p.run(ctx,
		chromedp.WaitEnabled(site.CommentSubmit, chromedp.ByQuery),
		chromedp.Click(site.CommentSubmit, chromedp.ByQuery),
	)
}

// tab is a browser tab whose actions are bounded by an element timeout.
type tab struct {
	ctx     context.Context
	close   context.CancelFunc
	timeout time.Duration
}

func newTab(sess *browser.Session, timeout time.Duration) *tab {
	ctx, cancel := sess.NewTab()
	return &tab{ctx: ctx, close: cancel, timeout: timeout}
}

func (t *tab) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := browser.Bind(ctx, t.ctx, t.timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// Close closes the tab.
func (t *tab) Close() { t.close() }
