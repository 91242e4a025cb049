// Package processor runs the notification scan loop: probe an ordinal, filter,
// dedupe, engage, record, advance.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/browser"
	"github.com/ibeckermayer/engage4me/internal/comments"
	"github.com/ibeckermayer/engage4me/internal/engage"
	"github.com/ibeckermayer/engage4me/internal/feed"
	"github.com/ibeckermayer/engage4me/internal/ledger"
	"github.com/ibeckermayer/engage4me/internal/report"
	"github.com/ibeckermayer/engage4me/internal/types"
)

// Scanner yields feed items by ordinal.
type Scanner interface {
	Probe(ctx context.Context, ordinal int) (feed.Result, error)
	ScrollToBottom(ctx context.Context) error
}

// Engager likes and comments on one URL.
type Engager interface {
	Engage(ctx context.Context, url string, next engage.CommentFunc) (string, error)
}

// Ledger is the dedup and uniqueness record.
type Ledger interface {
	Processed(url string) bool
	CommentUsed(comment string) bool
	Record(ctx context.Context, e ledger.Entry) error
}

// Clock abstracts wall-clock time for the break timer.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	return browser.Sleep(ctx, d)
}

// Options tunes the loop.
type Options struct {
	// BreakInterval of wall-clock time triggers one BreakDuration pause.
	BreakInterval time.Duration
	BreakDuration time.Duration
	// ScrollEvery scrolls the feed to the bottom on every Nth tick. A tick is
	// one scan attempt, so stall retries count. Zero disables.
	ScrollEvery int
	// MaxStalls bounds consecutive NotYetRendered results for one ordinal.
	MaxStalls int
	// MaxConsecutiveErrors halts a run whose scanner keeps failing. Failures
	// while handling an item never halt the run.
	MaxConsecutiveErrors int
}

// Processor drives one run over the feed.
type Processor struct {
	scanner Scanner
	engager Engager
	ledger  Ledger
	pool    *comments.Pool
	clock   Clock
	opts    Options
	log     zerolog.Logger
}

// New creates a Processor. A nil clock means SystemClock.
func New(scanner Scanner, engager Engager, l Ledger, pool *comments.Pool, clock Clock, opts Options, log zerolog.Logger) *Processor {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.MaxStalls <= 0 {
		opts.MaxStalls = 3
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	return &Processor{
		scanner: scanner,
		engager: engager,
		ledger:  l,
		pool:    pool,
		clock:   clock,
		opts:    opts,
		log:     log,
	}
}

// runState is the per-run mutable state of the loop.
type runState struct {
	run       *report.Run
	lastBreak time.Time
	poolEmpty bool
}

// Run walks the feed from ordinal 1 until it is exhausted or ctx is done.
// The returned report is never nil. The error is non-nil only for ctx
// cancellation or a scanner that keeps failing.
func (p *Processor) Run(ctx context.Context) (*report.Run, error) {
	st := &runState{run: &report.Run{StartedAt: p.clock.Now()}}
	st.lastBreak = st.run.StartedAt
	defer func() { st.run.FinishedAt = p.clock.Now() }()

	ordinal := 1
	stalls := 0
	consecutiveErrs := 0

	for {
		if err := ctx.Err(); err != nil {
			return p.halt(st, report.HaltCancelled), err
		}
		if err := p.maybeBreak(ctx, st); err != nil {
			return p.halt(st, report.HaltCancelled), err
		}

		st.run.Ticks++
		if p.opts.ScrollEvery > 0 && st.run.Ticks%p.opts.ScrollEvery == 0 {
			if err := p.scanner.ScrollToBottom(ctx); err != nil {
				p.log.Warn().Err(err).Msg("periodic scroll failed")
			} else {
				st.run.Scrolls++
			}
		}

		res, err := p.probe(ctx, ordinal)
		if err != nil {
			if ctx.Err() != nil {
				return p.halt(st, report.HaltCancelled), ctx.Err()
			}
			p.log.Error().Err(err).Int("ordinal", ordinal).Msg("probe failed")
			st.run.AddError(ordinal, err)
			consecutiveErrs++
			if consecutiveErrs >= p.opts.MaxConsecutiveErrors {
				return p.halt(st, report.HaltError), fmt.Errorf("%d consecutive failures, last: %w", consecutiveErrs, err)
			}
			ordinal++
			continue
		}
		consecutiveErrs = 0

		switch res.Status {
		case feed.Exhausted:
			return p.halt(st, report.HaltExhausted), nil

		case feed.NotYetRendered:
			stalls++
			if stalls > p.opts.MaxStalls {
				p.log.Info().Int("ordinal", ordinal).Int("stalls", stalls-1).Msg("feed stopped growing before ordinal, treating as exhausted")
				return p.halt(st, report.HaltStalled), nil
			}
			p.log.Debug().Int("ordinal", ordinal).Int("stall", stalls).Msg("ordinal not rendered yet, retrying")
			continue
		}

		stalls = 0
		if err := p.handle(ctx, st, res.Item); err != nil {
			if ctx.Err() != nil {
				return p.halt(st, report.HaltCancelled), ctx.Err()
			}
			p.log.Error().Err(err).Int("ordinal", ordinal).Str("url", res.Item.URL).Msg("failed to handle notification")
			st.run.AddError(ordinal, err)
		}
		ordinal++
	}
}

func (p *Processor) halt(st *runState, reason string) *report.Run {
	st.run.HaltReason = reason
	p.log.Info().
		Str("reason", reason).
		Int("ticks", st.run.Ticks).
		Int("relevant", st.run.Relevant).
		Int("engaged", st.run.Engaged).
		Int("failed", st.run.Failed).
		Msg("run halted")
	return st.run
}

// maybeBreak pauses once when the break interval has elapsed since the run
// started or the last break ended.
func (p *Processor) maybeBreak(ctx context.Context, st *runState) error {
	if p.opts.BreakInterval <= 0 || p.clock.Now().Sub(st.lastBreak) < p.opts.BreakInterval {
		return nil
	}
	p.log.Info().Dur("duration", p.opts.BreakDuration).Msg("taking a break")
	if err := p.clock.Sleep(ctx, p.opts.BreakDuration); err != nil {
		return err
	}
	st.run.Breaks++
	st.lastBreak = p.clock.Now()
	return nil
}

// probe calls the scanner, converting a panic into an error.
func (p *Processor) probe(ctx context.Context, ordinal int) (res feed.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while probing: %v", r)
		}
	}()
	return p.scanner.Probe(ctx, ordinal)
}

// handle filters, dedupes and engages one item. Panics are returned as errors.
func (p *Processor) handle(ctx context.Context, st *runState, item types.NotificationItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling: %v", r)
		}
	}()

	if !item.Relevant {
		return nil
	}
	st.run.Relevant++
	log := p.log.With().Int("ordinal", item.Index).Str("url", item.URL).Logger()

	if p.ledger.Processed(item.URL) {
		st.run.AlreadyProcessed++
		log.Debug().Msg("already processed")
		return nil
	}
	if !st.poolEmpty && !p.pool.HasUnused(p.ledger.CommentUsed) {
		st.poolEmpty = true
		log.Warn().Msg("comment pool exhausted, remaining relevant items will be skipped")
	}
	if st.poolEmpty {
		st.run.SkippedNoComment++
		log.Warn().Msg("no unused comments left, skipping")
		return nil
	}

	comment, err := p.engager.Engage(ctx, item.URL, func() (string, bool) {
		return p.pool.Next(p.ledger.CommentUsed)
	})
	if errors.Is(err, engage.ErrPoolExhausted) {
		st.poolEmpty = true
		st.run.SkippedNoComment++
		log.Warn().Msg("comment pool exhausted, remaining relevant items will be skipped")
		return nil
	}
	if err != nil {
		return err
	}

	e := types.Engagement{URL: item.URL, Comment: comment, Timestamp: p.clock.Now()}
	if err := p.ledger.Record(ctx, ledger.Entry{URL: e.URL, Comment: e.Comment, Timestamp: e.Timestamp}); err != nil {
		log.Warn().Err(err).Msg("engagement not persisted, it will be retried on a later run")
	}
	st.run.AddEngagement(e)
	log.Info().Str("comment", comment).Msg("engaged")
	return nil
}
