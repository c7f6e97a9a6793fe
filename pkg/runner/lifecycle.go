package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDrainTimeout = errors.New("drain timeout")

// LifecycleRunner owns the process lifetime of an engine: banner, start hook,
// wait, bounded drain, stop hook. Shutdown happens once no matter how many
// times Stop is called or Run returns.
type LifecycleRunner struct {
	state   atomic.Int32
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	banner  io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
	halted bool

	shutdown sync.Once
	err      error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{hooks: hooks, drainer: drainer, timeout: timeout}
}

// SetBannerOutput enables the startup banner on w.
func (r *LifecycleRunner) SetBannerOutput(w io.Writer) { r.banner = w }

// Run starts the hooks and blocks until ctx ends or Stop is called, then
// drains and stops.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("runner already %s", r.State())
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	if r.halted {
		cancel()
	}
	r.mu.Unlock()

	PrintBanner(r.banner)
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(runCtx); err != nil {
			_ = r.finish()
			return err
		}
	}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	<-runCtx.Done()
	return r.finish()
}

// Stop ends a running lifecycle, or shuts down one that never ran.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	r.halted = true
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return r.finish()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) finish() error {
	r.shutdown.Do(func() {
		r.state.Store(int32(StateDraining))
		r.err = r.drain()
		if r.hooks.OnStop != nil {
			r.err = errors.Join(r.err, r.hooks.OnStop())
		}
		r.state.Store(int32(StateStopped))
	})
	return r.err
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain() }()
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrDrainTimeout
	}
}
