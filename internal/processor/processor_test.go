package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/engage4me/internal/comments"
	"github.com/ibeckermayer/engage4me/internal/engage"
	"github.com/ibeckermayer/engage4me/internal/feed"
	"github.com/ibeckermayer/engage4me/internal/ledger"
	"github.com/ibeckermayer/engage4me/internal/report"
	"github.com/ibeckermayer/engage4me/internal/types"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type fakeScanner struct {
	clock *fakeClock
	step  time.Duration
	items []types.NotificationItem

	// stalls[ordinal] NotYetRendered results are returned before the item.
	stalls  map[int]int
	panicAt int
	err     error

	probes      []int
	scrollTicks int
}

func (s *fakeScanner) Probe(_ context.Context, ordinal int) (feed.Result, error) {
	s.probes = append(s.probes, ordinal)
	if s.clock != nil {
		s.clock.now = s.clock.now.Add(s.step)
	}
	if s.err != nil {
		return feed.Result{}, s.err
	}
	if ordinal == s.panicAt {
		panic("stale node")
	}
	if s.stalls[ordinal] > 0 {
		s.stalls[ordinal]--
		return feed.Result{Status: feed.NotYetRendered}, nil
	}
	if ordinal > len(s.items) {
		return feed.Result{Status: feed.Exhausted}, nil
	}
	return feed.Result{Status: feed.Found, Item: s.items[ordinal-1]}, nil
}

func (s *fakeScanner) ScrollToBottom(context.Context) error {
	s.scrollTicks++
	return nil
}

type fakeEngager struct {
	fail    map[string]error
	panicOn string
	onCall  func()

	calls    []string
	comments []string
}

func (e *fakeEngager) Engage(_ context.Context, url string, next engage.CommentFunc) (string, error) {
	e.calls = append(e.calls, url)
	if e.onCall != nil {
		e.onCall()
	}
	if url == e.panicOn {
		panic("nil node")
	}
	if err := e.fail[url]; err != nil {
		return "", err
	}
	c, ok := next()
	if !ok {
		return "", engage.ErrPoolExhausted
	}
	e.comments = append(e.comments, c)
	return c, nil
}

type memStore struct {
	entries   []ledger.Entry
	appendErr error
}

func (m *memStore) Load(context.Context) ([]ledger.Entry, error) {
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memStore) Append(_ context.Context, e ledger.Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Close() error { return nil }

// feedOf builds n items; the listed ordinals are relevant newsletter posts.
func feedOf(n int, relevant ...int) []types.NotificationItem {
	rel := make(map[int]bool)
	for _, r := range relevant {
		rel[r] = true
	}
	items := make([]types.NotificationItem, n)
	for i := range items {
		ord := i + 1
		items[i] = types.NotificationItem{Index: ord, URL: fmt.Sprintf("https://www.linkedin.com/pulse/post-%d", ord)}
		if rel[ord] {
			items[i].Text = "New from Acme Weekly"
			items[i].Relevant = true
		} else {
			items[i].Text = "Jane Doe liked your post"
		}
	}
	return items
}

type harness struct {
	clock   *fakeClock
	scanner *fakeScanner
	engager *fakeEngager
	store   *memStore
	ledger  *ledger.Ledger
	proc    *Processor
}

func newHarness(t *testing.T, items []types.NotificationItem, pool []string, store *memStore, opts Options) *harness {
	t.Helper()
	if store == nil {
		store = &memStore{}
	}
	clock := newFakeClock()
	h := &harness{
		clock:   clock,
		scanner: &fakeScanner{clock: clock, step: time.Second, items: items, stalls: map[int]int{}},
		engager: &fakeEngager{fail: map[string]error{}},
		store:   store,
	}
	h.ledger = ledger.Load(context.Background(), store, zerolog.Nop())
	h.proc = New(h.scanner, h.engager, h.ledger, comments.NewPool(pool), clock, opts, zerolog.Nop())
	return h
}

func TestRunEngagesRelevantItems(t *testing.T) {
	h := newHarness(t, feedOf(7, 2, 4, 6), []string{"c1", "c2", "c3"}, nil, Options{})

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.HaltReason != report.HaltExhausted {
		t.Errorf("halt = %q, want %q", run.HaltReason, report.HaltExhausted)
	}
	// Ordinals 1..7 plus the probe of 8 that finds the end.
	if len(h.scanner.probes) != 8 || h.scanner.probes[7] != 8 {
		t.Errorf("probes = %v, want 1..8", h.scanner.probes)
	}
	if run.Relevant != 3 || run.Engaged != 3 {
		t.Errorf("relevant = %d, engaged = %d, want 3, 3", run.Relevant, run.Engaged)
	}
	if len(h.store.entries) != 3 {
		t.Fatalf("ledger has %d entries, want 3", len(h.store.entries))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if h.store.entries[i].Comment != want {
			t.Errorf("entry %d comment = %q, want %q", i, h.store.entries[i].Comment, want)
		}
	}
	if run.FinishedAt.Before(run.StartedAt) || run.Duration() == 0 {
		t.Errorf("bad timing: %v to %v", run.StartedAt, run.FinishedAt)
	}
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	store := &memStore{}
	items := feedOf(5, 1, 3)

	first := newHarness(t, items, []string{"a", "b", "c", "d"}, store, Options{})
	if _, err := first.proc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := newHarness(t, items, []string{"a", "b", "c", "d"}, store, Options{})
	run, err := second.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(second.engager.calls) != 0 {
		t.Errorf("second run engaged %v", second.engager.calls)
	}
	if run.AlreadyProcessed != 2 || run.Engaged != 0 {
		t.Errorf("already processed = %d, engaged = %d", run.AlreadyProcessed, run.Engaged)
	}
	if len(store.entries) != 2 {
		t.Errorf("ledger has %d entries after two runs, want 2", len(store.entries))
	}
}

func TestRunPoolExhaustion(t *testing.T) {
	h := newHarness(t, feedOf(6, 1, 2, 3, 4), []string{"only one", "only two"}, nil, Options{})

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.Engaged != 2 {
		t.Errorf("engaged = %d, want 2", run.Engaged)
	}
	// Items three and four are skipped without opening the post, so the
	// third is neither liked nor commented on.
	if len(h.engager.calls) != 2 {
		t.Errorf("engager calls = %v, want 2", h.engager.calls)
	}
	for _, u := range h.engager.calls {
		if u == feedOf(3)[2].URL {
			t.Error("engager called for an item with no comment left")
		}
	}
	if run.SkippedNoComment != 2 {
		t.Errorf("skipped = %d, want 2", run.SkippedNoComment)
	}
	if h.ledger.Processed(feedOf(3)[2].URL) {
		t.Error("item without a comment was recorded")
	}
	if run.HaltReason != report.HaltExhausted {
		t.Errorf("halt = %q", run.HaltReason)
	}
}

func TestRunNeverReusesComment(t *testing.T) {
	store := &memStore{entries: []ledger.Entry{{URL: "https://old.example/x", Comment: "A"}}}
	h := newHarness(t, feedOf(2, 1, 2), []string{"A", "B", "C"}, store, Options{})

	if _, err := h.proc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.engager.comments; len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("comments = %v, want [B C]", got)
	}
	seen := map[string]bool{}
	for _, e := range store.entries {
		if seen[e.Comment] {
			t.Errorf("comment %q recorded twice", e.Comment)
		}
		seen[e.Comment] = true
	}
}

func TestRunBreakFiresOnce(t *testing.T) {
	h := newHarness(t, feedOf(90), nil, nil, Options{BreakInterval: time.Hour, BreakDuration: 10 * time.Minute})
	h.scanner.step = time.Minute

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.Breaks != 1 || len(h.clock.sleeps) != 1 || h.clock.sleeps[0] != 10*time.Minute {
		t.Errorf("breaks = %d, sleeps = %v, want one 10m break", run.Breaks, h.clock.sleeps)
	}
	if run.Ticks != 91 {
		t.Errorf("ticks = %d, want 91", run.Ticks)
	}
}

func TestRunNoBreakWithinInterval(t *testing.T) {
	h := newHarness(t, feedOf(30), nil, nil, Options{BreakInterval: time.Hour, BreakDuration: 10 * time.Minute})
	h.scanner.step = time.Minute

	run, _ := h.proc.Run(context.Background())
	if run.Breaks != 0 || len(h.clock.sleeps) != 0 {
		t.Errorf("unexpected break in a 31 minute run: %v", h.clock.sleeps)
	}
}

func TestRunScrollsEveryNthTick(t *testing.T) {
	h := newHarness(t, feedOf(12), nil, nil, Options{ScrollEvery: 5})

	run, _ := h.proc.Run(context.Background())
	// 13 ticks: scrolls on 5 and 10.
	if h.scanner.scrollTicks != 2 || run.Scrolls != 2 {
		t.Errorf("scrolls = %d (report %d), want 2", h.scanner.scrollTicks, run.Scrolls)
	}
}

func TestRunContainsErrors(t *testing.T) {
	items := feedOf(7, 2, 3, 4, 6)
	h := newHarness(t, items, []string{"x", "y", "z"}, nil, Options{})
	h.engager.fail[items[1].URL] = fmt.Errorf("%w: like: timeout", engage.ErrElement)
	h.engager.panicOn = items[2].URL
	h.scanner.panicAt = 5

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.Failed != 3 {
		t.Errorf("failed = %d, want 3 (%v)", run.Failed, run.Errors)
	}
	if run.Engaged != 2 {
		t.Errorf("engaged = %d, want 2", run.Engaged)
	}
	if !h.ledger.Processed(items[3].URL) || !h.ledger.Processed(items[5].URL) {
		t.Error("items after failures were not processed")
	}
	if h.ledger.Processed(items[1].URL) || h.ledger.Processed(items[2].URL) {
		t.Error("failed items were recorded")
	}
	if run.HaltReason != report.HaltExhausted {
		t.Errorf("halt = %q", run.HaltReason)
	}
}

func TestRunStallRetriesSameOrdinal(t *testing.T) {
	h := newHarness(t, feedOf(4, 3), []string{"c"}, nil, Options{MaxStalls: 3})
	h.scanner.stalls[3] = 2

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 3, 3, 3, 4, 5}
	if fmt.Sprint(h.scanner.probes) != fmt.Sprint(want) {
		t.Errorf("probes = %v, want %v", h.scanner.probes, want)
	}
	if run.Engaged != 1 {
		t.Errorf("engaged = %d, want 1", run.Engaged)
	}
}

func TestRunStallLimit(t *testing.T) {
	h := newHarness(t, feedOf(4), nil, nil, Options{MaxStalls: 2})
	h.scanner.stalls[2] = 100

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.HaltReason != report.HaltStalled {
		t.Errorf("halt = %q, want %q", run.HaltReason, report.HaltStalled)
	}
	// One probe of ordinal 1, then three of ordinal 2.
	if len(h.scanner.probes) != 4 {
		t.Errorf("probes = %v", h.scanner.probes)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, feedOf(10, 2, 5), []string{"a", "b"}, nil, Options{})
	h.engager.onCall = cancel

	run, err := h.proc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if run.HaltReason != report.HaltCancelled {
		t.Errorf("halt = %q", run.HaltReason)
	}
	if len(h.engager.calls) != 1 {
		t.Errorf("engager calls after cancel = %v", h.engager.calls)
	}
	if len(h.scanner.probes) != 2 {
		t.Errorf("probes after cancel = %v", h.scanner.probes)
	}
}

func TestRunLedgerWriteFailureStillDedupes(t *testing.T) {
	items := feedOf(3, 1, 3)
	items[2].URL = items[0].URL // same post surfaced twice
	store := &memStore{appendErr: errors.New("disk full")}
	h := newHarness(t, items, []string{"a", "b"}, store, Options{})

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.engager.calls) != 1 {
		t.Errorf("engaged the same URL %d times", len(h.engager.calls))
	}
	if run.Engaged != 1 || run.AlreadyProcessed != 1 {
		t.Errorf("engaged = %d, already processed = %d", run.Engaged, run.AlreadyProcessed)
	}
}

func TestRunHaltsOnRepeatedScannerFailures(t *testing.T) {
	h := newHarness(t, feedOf(50), nil, nil, Options{MaxConsecutiveErrors: 4})
	h.scanner.err = errors.New("target closed")

	run, err := h.proc.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if run.HaltReason != report.HaltError || run.Failed != 4 {
		t.Errorf("halt = %q, failed = %d", run.HaltReason, run.Failed)
	}
}

func TestRunScannerRecoveryResetsFailureCount(t *testing.T) {
	h := newHarness(t, feedOf(12), nil, nil, Options{MaxConsecutiveErrors: 3})
	h.scanner.panicAt = 4

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if run.Failed != 1 || run.HaltReason != report.HaltExhausted {
		t.Errorf("failed = %d, halt = %q", run.Failed, run.HaltReason)
	}
}

func TestRunEngageFailuresNeverHalt(t *testing.T) {
	relevant := make([]int, 15)
	for i := range relevant {
		relevant[i] = i + 1
	}
	items := feedOf(15, relevant...)
	h := newHarness(t, items, []string{"c1", "c2", "c3", "c4", "c5", "c6"}, nil, Options{})
	for _, it := range items[:12] {
		h.engager.fail[it.URL] = fmt.Errorf("%w: like: timeout", engage.ErrElement)
	}

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatalf("run halted: %v", err)
	}
	if run.HaltReason != report.HaltExhausted {
		t.Errorf("halt = %q, want %q", run.HaltReason, report.HaltExhausted)
	}
	if len(h.scanner.probes) != 16 {
		t.Errorf("probes = %v, want 1..16", h.scanner.probes)
	}
	if run.Failed != 12 || run.Engaged != 3 {
		t.Errorf("failed = %d, engaged = %d, want 12, 3", run.Failed, run.Engaged)
	}
	for _, it := range items[12:] {
		if !h.ledger.Processed(it.URL) {
			t.Errorf("%s not engaged after earlier failures", it.URL)
		}
	}
}

func TestRunScrollCountsStallRetries(t *testing.T) {
	h := newHarness(t, feedOf(3), nil, nil, Options{ScrollEvery: 3, MaxStalls: 3})
	h.scanner.stalls[2] = 2

	run, err := h.proc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Ticks: 1, 2, 2, 2, 3, 4. Scrolls before the 3rd and 6th.
	if run.Ticks != 6 || h.scanner.scrollTicks != 2 {
		t.Errorf("ticks = %d, scrolls = %d, want 6, 2", run.Ticks, h.scanner.scrollTicks)
	}
}
