package waitqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// WaitQueue serializes outbound page fetches, spacing consecutive sends by gap and
// allowing at most capacity sends per interval.
type WaitQueue struct {
	timer           *time.Timer
	intervalTicker  *time.Ticker
	intervalCounter atomic.Int32
	capacity        int32
	gap             time.Duration
	sendLock        *sync.Mutex
	cancelTicker    context.CancelFunc
	done            chan struct{}
}

func New(ctx context.Context, capacity int32, interval, gap time.Duration) *WaitQueue {
	ctx, cancel := context.WithCancel(ctx)
	wq := &WaitQueue{
		timer:           time.NewTimer(0),
		intervalTicker:  time.NewTicker(interval),
		intervalCounter: atomic.Int32{},
		capacity:        capacity,
		gap:             gap,
		sendLock:        &sync.Mutex{},
		cancelTicker:    cancel,
		done:            make(chan struct{}),
	}

	go wq.runTicker(ctx)
	return wq
}

func (w *WaitQueue) runTicker(ctx context.Context) {
	defer close(w.done)
	defer w.intervalTicker.Stop()
	for {
		select {
		case <-w.intervalTicker.C:
			w.intervalCounter.Store(0)
		case <-ctx.Done():
			return
		}
	}
}

func (w *WaitQueue) Close() {
	w.cancelTicker()
	<-w.done
}

func (w *WaitQueue) SendSingle(ctx context.Context, fn func() error) error {
	return w.SendMany(ctx, 1, fn)
}

func (w *WaitQueue) SendMany(ctx context.Context, n int32, fn func() error) error {
	if n > w.capacity {
		return ErrExceedsCapacity
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.timer.C:
	}
	defer w.timer.Reset(w.gap)

	for {
		err := w.trySend(fn, n)
		if nil == err {
			return nil
		}
		if !errors.Is(err, errIntervalCapReached) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.gap + 10*time.Millisecond):
		}
	}
}

var (
	ErrExceedsCapacity    = errors.New("requested sends exceed wait queue capacity")
	errIntervalCapReached = errors.New("wait queue interval capacity has reached, waiting for next interval")
)

func (w *WaitQueue) trySend(fn func() error, n int32) error {
	w.sendLock.Lock()
	defer w.sendLock.Unlock()

	if c := w.intervalCounter.Load(); w.capacity-c >= n {
		w.intervalCounter.Add(n)
		return fn()
	}
	return errIntervalCapReached
}
