package browser

import (
	"context"
	"time"
)

// Bind derives a context for running actions on tab. It is done when tab is,
// when ctx is cancelled, at ctx's deadline, or after timeout if that comes
// first. A non-positive timeout adds no bound of its own.
func Bind(ctx, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		if d := time.Now().Add(timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}

	var tctx context.Context
	var cancel context.CancelFunc
	if ok {
		tctx, cancel = context.WithDeadline(tab, deadline)
	} else {
		tctx, cancel = context.WithCancel(tab)
	}
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}
