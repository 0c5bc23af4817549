package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Trigger invokes the dispatcher once per interval. It owns no business
// logic. Start is idempotent; Stop waits for the loop to exit.
type Trigger struct {
	interval   time.Duration
	dispatcher *Dispatcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTrigger creates a new scheduler trigger.
func NewTrigger(interval time.Duration, dispatcher *Dispatcher) *Trigger {
	return &Trigger{
		interval:   interval,
		dispatcher: dispatcher,
	}
}

// Start launches the periodic dispatch loop. Calling Start on a running
// trigger is a no-op.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		slog.Info("scheduler trigger already running")
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})

	slog.Info("scheduler trigger started", "interval", t.interval)

	t.wg.Add(1)
	go t.run(ctx, t.stopCh)
}

// Stop halts the loop and waits for it to exit.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	slog.Info("scheduler trigger stopped")
}

func (t *Trigger) run(ctx context.Context, stopCh <-chan struct{}) {
	defer t.wg.Done()
	// The loop can exit through context cancellation without Stop ever being
	// called; clear the flag so Start works again. The stopCh comparison
	// keeps a stale loop from clobbering the state of a newer one.
	defer func() {
		t.mu.Lock()
		if t.stopCh == stopCh {
			t.running = false
		}
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := t.dispatcher.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					slog.Warn("previous dispatch run still in progress, skipping tick")
					continue
				}
				slog.Error("dispatch run failed", "error", err)
			}
		}
	}
}
