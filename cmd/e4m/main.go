// Command e4m is the engage4me CLI for runs, session management and
// inspecting local state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	"github.com/ibeckermayer/engage4me/internal/app"
	chrome "github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/config"
	"github.com/ibeckermayer/engage4me/internal/logging"
	"github.com/ibeckermayer/engage4me/internal/report"
	"github.com/ibeckermayer/engage4me/internal/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = withApp(func(a *app.App) error {
			run, err := a.RunOnce(ctx)
			if run != nil {
				fmt.Print(report.Text(run))
			}
			return err
		})
	case "daemon":
		err = withApp(func(a *app.App) error {
			cfg := a.Config()
			if next, err := scheduler.NextRun(cfg.Schedule.Cron, cfg.Schedule.Timezone, time.Now()); err == nil {
				fmt.Printf("Next run: %s\n", next.Format(time.RFC1123))
			}
			return a.Daemon(ctx)
		})
	case "login":
		err = withApp(func(a *app.App) error { return a.Login(ctx) })
	case "post":
		if len(os.Args) < 3 {
			fmt.Println(`Usage: e4m post "<text>"`)
			os.Exit(1)
		}
		text := strings.Join(os.Args[2:], " ")
		err = withApp(func(a *app.App) error { return a.Post(ctx, text) })
	case "logout":
		err = withApp(func(a *app.App) error { return a.Logout() })
	case "status":
		err = withApp(func(a *app.App) error {
			fmt.Printf("Authenticated: %v\n", a.IsAuthenticated())
			return nil
		})
	case "ledger":
		err = withApp(func(a *app.App) error { return printLedger(ctx, a) })
	case "comments":
		err = withApp(func(a *app.App) error { return printComments(ctx, a) })
	case "report":
		err = withApp(func(a *app.App) error { return a.ViewLastReport() })
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: e4m open <config|cache|ledger>")
			os.Exit(1)
		}
		err = runOpen(os.Args[2])
	case "bot-test":
		err = runBotTest(ctx)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "e4m %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: e4m <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run           Process the notifications feed once")
	fmt.Println("  daemon        Run on the configured cron schedule")
	fmt.Println("  login         Sign in and store the session cookies")
	fmt.Println("  post <text>   Publish a new post")
	fmt.Println("  logout        Delete the stored session cookies")
	fmt.Println("  status        Show whether a session is stored")
	fmt.Println("  ledger        List recorded engagements")
	fmt.Println("  comments      List comments that have not been used yet")
	fmt.Println("  report        Open the last run report")
	fmt.Println("  open config   Open config file in default editor")
	fmt.Println("  open cache    Open cache directory in file explorer")
	fmt.Println("  open ledger   Open the ledger file")
	fmt.Println("  bot-test      Open bot.sannysoft.com to audit browser fingerprint")
}

func withApp(fn func(a *app.App) error) error {
	a, err := app.Setup()
	if err != nil {
		return err
	}
	return fn(a)
}

func printLedger(ctx context.Context, a *app.App) error {
	entries, err := a.LedgerEntries(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tURL\tCOMMENT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.URL, e.Comment)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func printComments(ctx context.Context, a *app.App) error {
	remaining, err := a.RemainingComments(ctx)
	if err != nil {
		return err
	}
	for _, c := range remaining {
		fmt.Println(c)
	}
	fmt.Fprintf(os.Stderr, "%d unused comments\n", len(remaining))
	return nil
}

func runBotTest(ctx context.Context) error {
	log := logging.New("info")
	log.Info().Msg("opening bot.sannysoft.com with stealth browser options...")

	sess, err := chrome.Launch(ctx, false, log) // non-headless so you can see it
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := chromedp.Run(sess.Context(),
		chromedp.Navigate("https://bot.sannysoft.com"),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	fmt.Println("Press Enter to close the browser...")
	fmt.Scanln()
	return nil
}

func runOpen(target string) error {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	case "ledger":
		var a *app.App
		if a, err = app.Setup(); err == nil {
			path = a.Config().Files.Ledger
		}
	default:
		return fmt.Errorf("unknown target: %s", target)
	}
	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}

	if err := browser.OpenFile(path); err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	return nil
}
