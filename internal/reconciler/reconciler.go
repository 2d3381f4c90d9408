// Package reconciler drives the periodic monitor loop: every interval it
// inspects each tracked script and lets the controller classify exits and
// apply the auto-restart policy.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Controller is the slice of the lifecycle controller the loop needs.
type Controller interface {
	TrackedIDs() []string
	HandleExit(ctx context.Context, id string, backoff time.Duration)
}

const (
	DefaultInterval = 5 * time.Second
	DefaultBackoff  = 5 * time.Second
)

// Reconciler runs the monitor loop until its context is cancelled.
type Reconciler struct {
	ctrl     Controller
	interval time.Duration
	backoff  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(ctrl Controller, interval, backoff time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	return &Reconciler{
		ctrl:     ctrl,
		interval: interval,
		backoff:  backoff,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. Subsequent calls are no-ops.
func (r *Reconciler) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.run(ctx)
	})
}

// Stop cancels the loop and waits for the current tick to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			close(r.done)
			return
		}
		r.cancel()
		<-r.done
	})
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("monitor tick panicked", "panic", rec)
		}
	}()
	for _, id := range r.ctrl.TrackedIDs() {
		if ctx.Err() != nil {
			return
		}
		r.ctrl.HandleExit(ctx, id, r.backoff)
	}
}
