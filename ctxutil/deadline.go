package ctxutil

import (
	"context"
	"time"
)

// WithDelayedTimeout returns a context carrying parent's values that is canceled
// delay after parent is done, giving in-flight work a grace period.
func WithDelayedTimeout(parent context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	go func() {
		select {
		case <-parent.Done():
			time.AfterFunc(delay, cancel)
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
