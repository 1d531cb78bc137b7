package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/companion/internal/logging"
)

// Background runs fire-and-forget work detached from the request context.
// Work keeps the request's values but not its cancellation, and is bounded
// by its own timeout.
type Background struct {
	wg  sync.WaitGroup
	log logging.Logger
}

func NewBackground(log logging.Logger) *Background {
	return &Background{log: log.With("module", "background")}
}

// Go runs fn in a new goroutine. Panics are logged and swallowed.
func (b *Background) Go(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		bctx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			bctx, cancel = context.WithTimeout(bctx, timeout)
			defer cancel()
		}

		defer func() {
			if p := recover(); p != nil {
				b.log.Error(bctx, "background task panicked", "task", name, "panic", fmt.Sprint(p))
			}
		}()

		fn(bctx)
	}()
}

// Wait blocks until every started task has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}
