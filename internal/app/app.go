package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/auth"
	chrome "github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/comments"
	"github.com/ibeckermayer/engage4me/internal/config"
	"github.com/ibeckermayer/engage4me/internal/engage"
	"github.com/ibeckermayer/engage4me/internal/feed"
	"github.com/ibeckermayer/engage4me/internal/ledger"
	"github.com/ibeckermayer/engage4me/internal/logging"
	"github.com/ibeckermayer/engage4me/internal/notifier"
	"github.com/ibeckermayer/engage4me/internal/processor"
	"github.com/ibeckermayer/engage4me/internal/report"
)

// App holds the application state.
type App struct {
	mu         sync.RWMutex
	config     *config.Config // replaced by ReloadConfig
	configPath string
	cacheDir   string
	log        zerolog.Logger
}

// New creates a new App instance.
func New(cfg *config.Config, configPath, cacheDir string, log zerolog.Logger) *App {
	return &App{
		config:     cfg,
		configPath: configPath,
		cacheDir:   cacheDir,
		log:        log,
	}
}

// LoadConfig reads the config at path, writing the defaults on first run,
// then applies the environment and resolves file paths.
func LoadConfig(path string, log zerolog.Logger) (*config.Config, error) {
	cfg, created, err := config.LoadOrInit(path)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("path", path).Msg("created default config")
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// ReloadConfig reloads the configuration from disk. The running config is
// kept if the new one does not load.
func (a *App) ReloadConfig() (*config.Config, error) {
	cfg, err := LoadConfig(a.configPath, a.log)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.config = cfg
	a.mu.Unlock()

	a.log.Info().Str("path", a.configPath).Msg("configuration reloaded")
	return cfg, nil
}

func (a *App) authManager(cfg *config.Config) *auth.Manager {
	return auth.NewManager(auth.NewCookieStore(cfg.Files.Cookies), auth.Options{
		LoginURL:       cfg.Site.LoginURL,
		FeedURL:        cfg.Site.FeedURL,
		ElementTimeout: cfg.Timing.ElementTimeout.Duration,
		ProbeTimeout:   cfg.Timing.ProbeTimeout.Duration,
		LoginTimeout:   cfg.Timing.LoginTimeout.Duration,
	}, logging.Component(a.log, "auth"))
}

// IsAuthenticated checks if LinkedIn session cookies are stored.
func (a *App) IsAuthenticated() bool {
	return a.authManager(a.Config()).IsAuthenticated()
}

// Login opens a browser and performs a fresh login, persisting the cookies.
func (a *App) Login(ctx context.Context) error {
	cfg := a.Config()
	sess, err := chrome.Launch(ctx, false, logging.Component(a.log, "browser"))
	if err != nil {
		return err
	}
	defer sess.Close()

	creds := auth.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password}
	return a.authManager(cfg).Bootstrap(ctx, sess, creds, true)
}

// Post signs in and publishes text as a new post from the home feed.
func (a *App) Post(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return engage.ErrEmptyPost
	}
	cfg := a.Config()
	sess, err := chrome.Launch(ctx, cfg.Browser.Headless, logging.Component(a.log, "browser"))
	if err != nil {
		return err
	}
	defer sess.Close()

	creds := auth.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password}
	if err := a.authManager(cfg).Bootstrap(ctx, sess, creds, cfg.Credentials.ForceLogin); err != nil {
		return err
	}

	pub := engage.NewPublisher(sess, cfg.Site.FeedURL, engage.Options{
		ElementTimeout: cfg.Timing.ElementTimeout.Duration,
		StepDelayMin:   cfg.Timing.StepDelayMin.Duration,
		StepDelayMax:   cfg.Timing.StepDelayMax.Duration,
	}, logging.Component(a.log, "publish"))
	return pub.Publish(ctx, text)
}

// Logout clears stored LinkedIn cookies.
func (a *App) Logout() error {
	cfg := a.Config()
	if err := a.authManager(cfg).Logout(); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	a.log.Info().Str("path", cfg.Files.Cookies).Msg("stored session cleared")
	return nil
}

// RunOnce performs one full run: bootstrap the session, walk the
// notifications feed and engage with every new relevant item. The report is
// returned, saved and emailed even when the run ends with an error, as long
// as the loop started.
func (a *App) RunOnce(ctx context.Context) (*report.Run, error) {
	cfg := a.Config()
	log := logging.Component(a.log, "app")

	pool, err := comments.Load(cfg.Files.Comments)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	log.Info().Int("comments", pool.Len()).Str("path", cfg.Files.Comments).Msg("comment pool loaded")

	store, err := ledger.Open(cfg.Files.LedgerDriver, cfg.Files.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	l := ledger.Load(ctx, store, logging.Component(a.log, "ledger"))
	defer func() {
		if err := l.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ledger")
		}
	}()

	sess, err := chrome.Launch(ctx, cfg.Browser.Headless, logging.Component(a.log, "browser"))
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	creds := auth.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password}
	if err := a.authManager(cfg).Bootstrap(ctx, sess, creds, cfg.Credentials.ForceLogin); err != nil {
		return nil, err
	}

	scanner := feed.NewScanner(sess.Context(), feed.Options{
		NotificationsURL: cfg.Site.NotificationsURL,
		RelevancePrefix:  cfg.Site.RelevancePrefix,
		ElementTimeout:   cfg.Timing.ElementTimeout.Duration,
		RenderWait:       cfg.Timing.RenderWait.Duration,
	}, logging.Component(a.log, "feed"))
	if err := scanner.Open(ctx); err != nil {
		return nil, err
	}

	engager := engage.New(sess, engage.Options{
		ElementTimeout: cfg.Timing.ElementTimeout.Duration,
		StepDelayMin:   cfg.Timing.StepDelayMin.Duration,
		StepDelayMax:   cfg.Timing.StepDelayMax.Duration,
		ActionsPerHour: cfg.Timing.ActionsPerHour,
	}, logging.Component(a.log, "engage"))

	proc := processor.New(scanner, engager, l, pool, processor.SystemClock{}, processor.Options{
		BreakInterval: cfg.Timing.BreakInterval.Duration,
		BreakDuration: cfg.Timing.BreakDuration.Duration,
		ScrollEvery:   cfg.Timing.ScrollEvery,
		MaxStalls:     cfg.Timing.MaxStalls,
	}, logging.Component(a.log, "processor"))

	run, runErr := proc.Run(ctx)
	a.publish(cfg, run)
	return run, runErr
}

// publish saves and emails the report as configured. Failures are logged.
func (a *App) publish(cfg *config.Config, run *report.Run) {
	log := logging.Component(a.log, "app")

	if cfg.Report.Save {
		if path, err := report.Save(a.cacheDir, run); err != nil {
			log.Warn().Err(err).Msg("failed to save run report")
		} else {
			log.Info().Str("path", path).Msg("run report saved")
		}
	}

	if cfg.Report.Email {
		n, err := notifier.NewFromConfig(cfg.Email)
		if err != nil {
			log.Warn().Err(err).Msg("email notifier not configured")
			return
		}
		if err := n.SendReport(run); err != nil {
			log.Warn().Err(err).Msg("failed to email run report")
			return
		}
		log.Info().Str("to", cfg.Email.ToAddr).Msg("run report emailed")
	}
}

// LedgerEntries returns every recorded engagement.
func (a *App) LedgerEntries(ctx context.Context) ([]ledger.Entry, error) {
	cfg := a.Config()
	store, err := ledger.Open(cfg.Files.LedgerDriver, cfg.Files.Ledger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx)
}

// RemainingComments returns the comments that can still be posted.
func (a *App) RemainingComments(ctx context.Context) ([]string, error) {
	cfg := a.Config()
	pool, err := comments.Load(cfg.Files.Comments)
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg.Files.LedgerDriver, cfg.Files.Ledger)
	if err != nil {
		return nil, err
	}
	l := ledger.Load(ctx, store, logging.Component(a.log, "ledger"))
	defer l.Close()
	return pool.Remaining(l.CommentUsed), nil
}

// ViewLastReport renders the most recent run report to HTML and opens it.
func (a *App) ViewLastReport() error {
	path, err := a.writeLastReportHTML()
	if err != nil {
		return err
	}
	a.log.Info().Str("path", path).Msg("opening run report")
	return browser.OpenFile(path)
}

func (a *App) writeLastReportHTML() (string, error) {
	run, _, err := report.Latest(a.cacheDir)
	if err != nil {
		return "", err
	}
	rendered, err := report.Render(run)
	if err != nil {
		return "", err
	}
	path := filepath.Join(a.cacheDir, report.RunsDir, "latest.html")
	if err := os.WriteFile(path, []byte(rendered.HTMLBody), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
