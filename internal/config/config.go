package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Ledger backends
const (
	LedgerCSV    = "csv"
	LedgerSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Log      LogConfig      `toml:"log"`
	Site     SiteConfig     `toml:"site"`
	Browser  BrowserConfig  `toml:"browser"`
	Files    FilesConfig    `toml:"files"`
	Timing   TimingConfig   `toml:"timing"`
	Schedule ScheduleConfig `toml:"schedule"`
	Report   ReportConfig   `toml:"report"`
	Email    EmailConfig    `toml:"email"`

	// Populated from the environment, never written to disk.
	Credentials Credentials `toml:"-"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type SiteConfig struct {
	LoginURL         string `toml:"login_url"`
	FeedURL          string `toml:"feed_url"`
	NotificationsURL string `toml:"notifications_url"`
	RelevancePrefix  string `toml:"relevance_prefix"`
}

type BrowserConfig struct {
	Headless bool `toml:"headless"`
}

type FilesConfig struct {
	Cookies      string `toml:"cookies"`
	Comments     string `toml:"comments"`
	Ledger       string `toml:"ledger"`
	LedgerDriver string `toml:"ledger_driver"`
}

type TimingConfig struct {
	ElementTimeout Duration `toml:"element_timeout"`
	ProbeTimeout   Duration `toml:"probe_timeout"`
	LoginTimeout   Duration `toml:"login_timeout"`
	RenderWait     Duration `toml:"render_wait"`
	StepDelayMin   Duration `toml:"step_delay_min"`
	StepDelayMax   Duration `toml:"step_delay_max"`
	BreakInterval  Duration `toml:"break_interval"`
	BreakDuration  Duration `toml:"break_duration"`
	ScrollEvery    int      `toml:"scroll_every"`
	MaxStalls      int      `toml:"max_stalls"`
	ActionsPerHour int      `toml:"actions_per_hour"`
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

type ReportConfig struct {
	Save  bool `toml:"save"`
	Email bool `toml:"email"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

// Credentials are the login secrets and the force-fresh switch.
type Credentials struct {
	Username   string
	Password   string
	ForceLogin bool
}

// Duration is a time.Duration that reads and writes as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// D wraps a time.Duration.
func D(v time.Duration) Duration { return Duration{v} }

// Default returns a Config with sensible defaults. File paths are left empty
// and resolved against ConfigDir by ResolvePaths.
func Default() *Config {
	return &Config{
		Version: 1,
		Log:     LogConfig{Level: "info"},
		Site: SiteConfig{
			LoginURL:         "https://www.linkedin.com/login",
			FeedURL:          "https://www.linkedin.com/feed/",
			NotificationsURL: "https://www.linkedin.com/notifications/",
			RelevancePrefix:  "New from",
		},
		Browser: BrowserConfig{Headless: false},
		Files: FilesConfig{
			LedgerDriver: LedgerCSV,
		},
		Timing: TimingConfig{
			ElementTimeout: D(10 * time.Second),
			ProbeTimeout:   D(20 * time.Second),
			LoginTimeout:   D(10 * time.Minute),
			RenderWait:     D(3 * time.Second),
			StepDelayMin:   D(1 * time.Second),
			StepDelayMax:   D(3 * time.Second),
			BreakInterval:  D(time.Hour),
			BreakDuration:  D(10 * time.Minute),
			ScrollEvery:    5,
			MaxStalls:      3,
			ActionsPerHour: 30,
		},
		Schedule: ScheduleConfig{
			Cron:     "0 */4 * * *",
			Timezone: "UTC",
		},
		Report: ReportConfig{Save: true},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
	}
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	t := c.Timing
	for name, d := range map[string]Duration{
		"timing.element_timeout": t.ElementTimeout,
		"timing.probe_timeout":   t.ProbeTimeout,
		"timing.login_timeout":   t.LoginTimeout,
		"timing.break_interval":  t.BreakInterval,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if t.BreakDuration.Duration < 0 || t.RenderWait.Duration < 0 {
		return fmt.Errorf("timing.break_duration and timing.render_wait must be >= 0")
	}
	if t.StepDelayMax.Duration < t.StepDelayMin.Duration {
		return fmt.Errorf("timing.step_delay_max must be >= timing.step_delay_min")
	}
	if t.ScrollEvery <= 0 {
		return fmt.Errorf("timing.scroll_every must be > 0")
	}
	if t.MaxStalls < 0 {
		return fmt.Errorf("timing.max_stalls must be >= 0")
	}
	switch c.Files.LedgerDriver {
	case LedgerCSV, LedgerSQLite:
	default:
		return fmt.Errorf("unknown files.ledger_driver: %q", c.Files.LedgerDriver)
	}
	if c.Site.RelevancePrefix == "" {
		return fmt.Errorf("site.relevance_prefix is required")
	}
	return nil
}

// ResolvePaths fills empty file paths with locations under ConfigDir.
func (c *Config) ResolvePaths() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if c.Files.Cookies == "" {
		c.Files.Cookies = filepath.Join(dir, "cookies.json")
	}
	if c.Files.Comments == "" {
		c.Files.Comments = filepath.Join(dir, "comments.txt")
	}
	if c.Files.Ledger == "" {
		name := "ledger.csv"
		if c.Files.LedgerDriver == LedgerSQLite {
			name = "ledger.db"
		}
		c.Files.Ledger = filepath.Join(dir, name)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "engage4me"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "engage4me"), nil
}

// ConfigPath returns the full path to the config file.
// ENGAGE4M_CONFIG overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv("ENGAGE4M_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile decodes the file at path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrInit reads the config at path. On first run, when the file does not
// exist, the defaults are written there and returned.
func LoadOrInit(path string) (*Config, bool, error) {
	cfg, err := LoadFile(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg = Default()
	if err := cfg.SaveFile(path); err != nil {
		return nil, false, fmt.Errorf("failed to write default config: %w", err)
	}
	return cfg, true, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
