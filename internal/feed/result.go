package feed

import "github.com/ibeckermayer/engage4me/internal/types"

// Status is the outcome of probing one ordinal of the feed.
type Status int

const (
	// Found means the item at the ordinal is rendered; Result.Item is set.
	Found Status = iota
	// NotYetRendered means more items appeared but not yet up to the ordinal.
	NotYetRendered
	// Exhausted means the feed did not grow after a scroll; there is no item
	// at the ordinal.
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotYetRendered:
		return "not_yet_rendered"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is what Probe returns for an ordinal.
type Result struct {
	Status Status
	Item   types.NotificationItem
}

// classify decides the outcome for ordinal given the rendered item count
// before and after the page was asked to load more.
func classify(ordinal, before, after int) Status {
	switch {
	case ordinal <= after:
		return Found
	case after > before:
		return NotYetRendered
	default:
		return Exhausted
	}
}
