package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/site"
)

// ErrLoginFailed means no authenticated session could be established.
// It is fatal for a run.
var ErrLoginFailed = errors.New("login failed")

// Credentials are submitted on the login form. When empty the operator is
// expected to type them into the visible browser.
type Credentials struct {
	Username string
	Password string
}

// Options configures the URLs and waits of the bootstrap.
type Options struct {
	LoginURL       string
	FeedURL        string
	ElementTimeout time.Duration
	ProbeTimeout   time.Duration
	LoginTimeout   time.Duration
	PollInterval   time.Duration
}

// Manager handles LinkedIn authentication
type Manager struct {
	cookieStore *CookieStore
	opts        Options
	log         zerolog.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, opts Options, log zerolog.Logger) *Manager {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 20 * time.Second
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Manager{cookieStore: cookieStore, opts: opts, log: log}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// loginPage is the slice of browser behavior the bootstrap depends on.
type loginPage interface {
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
	// Open navigates to url and waits for selector to be visible.
	Open(ctx context.Context, url, selector string) error
	Fill(ctx context.Context, creds Credentials) error
	SignedIn(ctx context.Context) (bool, error)
	Cookies(ctx context.Context) ([]*network.Cookie, error)
}

// Bootstrap leaves sess signed in. Persisted cookies are tried first unless
// forceFresh is set; when they are missing or the liveness probe fails an
// interactive login is performed and its cookies are persisted.
func (m *Manager) Bootstrap(ctx context.Context, sess *browser.Session, creds Credentials, forceFresh bool) error {
	return m.bootstrap(ctx, &chromePage{tab: sess.Context()}, creds, forceFresh)
}

func (m *Manager) bootstrap(ctx context.Context, p loginPage, creds Credentials, forceFresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch {
	case forceFresh:
		m.log.Info().Msg("fresh login forced, ignoring stored session")
	default:
		if ok := m.restore(ctx, p); ok {
			m.log.Info().Msg("restored stored session")
			return nil
		}
	}

	if err := m.interactiveLogin(ctx, p, creds); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, m.opts.ElementTimeout)
	cookies, err := p.Cookies(cctx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("could not read cookies after login, session will not be persisted")
		return nil
	}
	if err := m.cookieStore.Save(cookies); err != nil {
		m.log.Warn().Err(err).Str("path", m.cookieStore.Path()).Msg("could not persist session cookies")
		return nil
	}
	m.log.Info().Int("cookies", len(cookies)).Str("path", m.cookieStore.Path()).Msg("session cookies saved")
	return nil
}

// restore injects the stored cookies and probes an authenticated-only page.
func (m *Manager) restore(ctx context.Context, p loginPage) bool {
	cookies, err := m.cookieStore.SiteCookies()
	if err != nil {
		m.log.Info().Err(err).Msg("no stored session")
		return false
	}
	if len(cookies) == 0 {
		m.log.Info().Msg("stored session has no site cookies")
		return false
	}

	ictx, cancel := context.WithTimeout(ctx, m.opts.ElementTimeout)
	err = p.SetCookies(ictx, cookies)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to inject cookies")
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	err = p.Open(pctx, m.opts.FeedURL, site.AuthMarker)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("stored session failed liveness probe")
		return false
	}
	return true
}

// interactiveLogin fills the login form and waits, for a long time, for the
// signed-in marker so a second factor can be completed out of band.
func (m *Manager) interactiveLogin(ctx context.Context, p loginPage, creds Credentials) error {
	m.log.Info().Str("url", m.opts.LoginURL).Msg("opening login page")

	lctx, cancel := context.WithTimeout(ctx, m.opts.ElementTimeout)
	err := p.Open(lctx, m.opts.LoginURL, site.LoginUsername)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: failed to load login page: %v", ErrLoginFailed, err)
	}

	if creds.Username != "" && creds.Password != "" {
		lctx, cancel := context.WithTimeout(ctx, m.opts.ElementTimeout)
		err := p.Fill(lctx, creds)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: failed to submit credentials: %v", ErrLoginFailed, err)
		}
		m.log.Info().Msg("credentials submitted, waiting for sign-in (complete any verification in the browser)")
	} else {
		m.log.Warn().Msg("no credentials configured, sign in manually in the browser window")
	}

	if err := m.waitForLogin(ctx, p); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	m.log.Info().Msg("signed in")
	return nil
}

// waitForLogin polls until the signed-in marker is present. Each poll is
// bounded by the poll interval so a hung page cannot outlast LoginTimeout.
func (m *Manager) waitForLogin(ctx context.Context, p loginPage) error {
	timeout := time.After(m.opts.LoginTimeout)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("login timeout exceeded")
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, m.opts.PollInterval)
			present, err := p.SignedIn(pctx)
			cancel()
			if err != nil {
				continue
			}
			if present {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// chromePage implements loginPage over a chromedp tab.
type chromePage struct {
	tab context.Context
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := browser.Bind(ctx, p.tab, 0)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (p *chromePage) Open(ctx context.Context, url, selector string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	)
}

func (p *chromePage) Fill(ctx context.Context, creds Credentials) error {
	return p.run(ctx,
		chromedp.SendKeys(site.LoginUsername, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(site.LoginPassword, creds.Password, chromedp.ByQuery),
		chromedp.Click(site.LoginSubmit, chromedp.ByQuery),
	)
}

func (p *chromePage) SignedIn(ctx context.Context) (bool, error) {
	var present bool
	err := p.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q) !== null`, site.AuthMarker), &present),
	)
	return present, err
}

// Cookies gets all cookies from the browser
func (p *chromePage) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// SetCookies sets cookies in the browser context
func (p *chromePage) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				sc := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly)
				if c.SameSite != "" {
					sc = sc.WithSameSite(c.SameSite)
				}
				if c.Expires > 0 {
					exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
					sc = sc.WithExpires(&exp)
				}
				if err := sc.Do(ctx); err != nil {
					return fmt.Errorf("set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}
