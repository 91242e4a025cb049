package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Session owns one Chrome process and its first tab. Every component of a run
// receives the Session explicitly instead of reaching for a global handle.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Launch starts Chrome with the stealth options and opens the main tab.
func Launch(ctx context.Context, headless bool, log zerolog.Logger) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, Options(headless)...)

	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			log.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Debug().Msgf(format, args...)
		}),
	)

	// The first Run actually starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info().Bool("headless", headless).Msg("browser started")
	return &Session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// Context returns the chromedp context of the main tab.
func (s *Session) Context() context.Context { return s.ctx }

// NewTab opens a new tab in the same browser. Calling the returned cancel
// closes the tab; the main tab is not affected.
func (s *Session) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(s.ctx)
}

// Close shuts the browser down.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.cancelTab()
	s.cancelAlloc()
}
