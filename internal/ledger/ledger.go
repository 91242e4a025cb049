// Package ledger records which notification targets have already been engaged
// and which comments have already been posted, across runs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownDriver is returned by Open for an unsupported backend name.
var ErrUnknownDriver = errors.New("ledger: unknown driver")

// Entry is one persisted row: a URL acted on, the comment posted there, and when.
type Entry struct {
	URL       string
	Comment   string
	Timestamp time.Time
}

// Store is the durable, append-only backend of a Ledger.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open returns the Store for driver ("csv" or "sqlite") at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "csv":
		return NewCSVStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Ledger is the in-memory view of a Store: the set of processed URLs and the
// set of used comments, rebuilt from the store on every run.
type Ledger struct {
	store Store
	log   zerolog.Logger

	processed map[string]struct{}
	used      map[string]struct{}
	entries   int
}

// Load builds a Ledger from the store. A read failure is logged and the
// ledger starts empty; the run then may repeat work done earlier.
func Load(ctx context.Context, store Store, log zerolog.Logger) *Ledger {
	l := &Ledger{
		store:     store,
		log:       log,
		processed: make(map[string]struct{}),
		used:      make(map[string]struct{}),
	}

	entries, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not load ledger, starting empty")
		return l
	}
	for _, e := range entries {
		l.add(e)
	}
	log.Info().
		Int("entries", l.entries).
		Int("processed_urls", len(l.processed)).
		Int("used_comments", len(l.used)).
		Msg("ledger loaded")
	return l
}

func (l *Ledger) add(e Entry) bool {
	if _, ok := l.processed[e.URL]; ok {
		return false
	}
	l.processed[e.URL] = struct{}{}
	if e.Comment != "" {
		l.used[e.Comment] = struct{}{}
	}
	l.entries++
	return true
}

// Processed reports whether url has already been acted on. Matching is exact;
// URLs are not normalized.
func (l *Ledger) Processed(url string) bool {
	_, ok := l.processed[url]
	return ok
}

// CommentUsed reports whether comment has been posted in any recorded entry.
func (l *Ledger) CommentUsed(comment string) bool {
	_, ok := l.used[comment]
	return ok
}

// Len returns the number of distinct entries.
func (l *Ledger) Len() int { return l.entries }

// Record appends e after a confirmed submission. A URL already in the ledger
// is not written again. If the store write fails the in-memory sets are still
// updated so the rest of this run does not act on the URL twice.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if !l.add(e) {
		l.log.Debug().Str("url", e.URL).Msg("url already recorded")
		return nil
	}
	if err := l.store.Append(ctx, e); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
