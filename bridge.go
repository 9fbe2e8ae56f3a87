// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncbridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultTimeout is the deadline applied by [Bridge.Run].
	DefaultTimeout = 300 * time.Second

	// DefaultStopTimeout bounds how long [Bridge.Close] waits for the loop
	// goroutine to exit.
	DefaultStopTimeout = time.Second
)

// Bridge lets ordinary goroutines dispatch work onto a single background
// [Loop] and block until it settles, with a bounded wait. The loop starts
// lazily on first dispatch, stops via [Bridge.Close], and restarts
// transparently on the next dispatch after a close. A garbage-collected
// Bridge cleans up its loop automatically, swallowing any error.
//
// Instances must be created with [New], and are safe for concurrent use.
type Bridge struct {
	// Prevent copying
	_ [0]func()

	// state is split from Bridge so the GC cleanup func does not retain the
	// Bridge itself.
	state *executorState

	defaultTimeout  time.Duration
	cancelOnTimeout bool
}

// executorState owns the background loop and the goroutine running it.
// Invariant: loop and done are both nil or both non-nil; transitions between
// those two configurations happen only under mu, and only one goroutine
// performs a start or stop at a time. The stop signal and join happen
// outside mu so start/stop never block dispatchers for long.
type executorState struct {
	mu          sync.Mutex
	loop        *Loop
	done        chan struct{}
	logger      *logiface.Logger[logiface.Event]
	stopTimeout time.Duration
}

// New creates a Bridge. No loop resources are acquired until the first
// dispatch.
func New(opts ...Option) (*Bridge, error) {
	cfg, err := resolveBridgeOptions(opts)
	if err != nil {
		return nil, err
	}

	st := &executorState{
		logger:      cfg.logger,
		stopTimeout: cfg.stopTimeout,
	}
	b := &Bridge{
		state:           st,
		defaultTimeout:  cfg.defaultTimeout,
		cancelOnTimeout: cfg.cancelOnTimeout,
	}

	runtime.AddCleanup(b, func(st *executorState) {
		// Best-effort teardown on collection; must never propagate.
		_ = st.stop()
	}, st)

	return b, nil
}

// Run dispatches work onto the background loop and blocks until it settles
// or [DefaultTimeout] elapses (configurable via [WithDefaultTimeout]). See
// [Bridge.RunContext] for the accepted work shapes and error semantics.
func (b *Bridge) Run(work any, args ...any) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.defaultTimeout)
	defer cancel()
	return b.RunContext(ctx, work, args...)
}

// RunContext dispatches work onto the background loop, starting it if
// necessary, and blocks until the work settles or ctx is done.
//
// work must be one of:
//   - an [Awaitable]: an already in-flight operation; args must be empty.
//   - a func whose single return type implements [Awaitable], optionally
//     taking *[Loop] as its first parameter (injected), with remaining
//     parameters bound from args by reflection. Variadic funcs are
//     supported. The func is invoked on the loop goroutine.
//
// Anything else, including funcs returning plain values, fails with
// [*UsageError] before the loop is started or anything is scheduled.
//
// Outcomes:
//   - the work resolves: its value is returned.
//   - the work rejects with an error: that error is returned unchanged, so
//     [errors.Is] and [errors.As] reach the original. Non-error rejection
//     values are wrapped in [*RejectionError].
//   - the work func panics: [*PanicError] wrapping the panic value is
//     returned; the loop survives.
//   - ctx's deadline elapses: [*TimeoutError] (wrapping
//     [context.DeadlineExceeded]) is returned. By default the work keeps
//     running on the loop and its eventual result is discarded; see
//     [WithCancelOnTimeout]. Plain cancellation returns ctx.Err() as-is.
//
// Concurrent calls are all valid; each gets its own pending result, and the
// single loop interleaves all outstanding work cooperatively.
func (b *Bridge) RunContext(ctx context.Context, work any, args ...any) (Result, error) {
	factory, err := prepareWork(work, args)
	if err != nil {
		return nil, err
	}

	loop, err := b.state.ensureStarted()
	if err != nil {
		return nil, err
	}

	if loop.isLoopGoroutine() {
		// Blocking here would deadlock the loop against itself.
		return nil, &UsageError{Message: `asyncbridge: RunContext called from the loop goroutine`}
	}

	type settled struct {
		p   Awaitable
		err error
	}
	pending := make(chan settled, 1)

	if err := loop.Submit(Task{Runnable: func() {
		// A panicking factory must still settle the handoff, or the caller
		// would block until the deadline.
		defer func() {
			if r := recover(); r != nil {
				pending <- settled{err: &PanicError{Value: r}}
			}
		}()
		p := factory(loop)
		if p == nil {
			pending <- settled{err: &UsageError{Message: `asyncbridge: work func returned a nil awaitable`}}
			return
		}
		pending <- settled{p: p}
	}}); err != nil {
		// The loop was shut down out-of-band between ensureStarted and here.
		return nil, err
	}

	var p Awaitable
	select {
	case s := <-pending:
		if s.err != nil {
			return nil, s.err
		}
		p = s.p
	case <-ctx.Done():
		return nil, b.expired(ctx, loop, nil)
	}

	select {
	case res := <-p.ToChannel():
		if p.State() == Rejected {
			if err, ok := res.(error); ok {
				return nil, err
			}
			return nil, &RejectionError{Value: res}
		}
		return res, nil
	case <-ctx.Done():
		return nil, b.expired(ctx, loop, p)
	}
}

// expired maps a done context to the caller-visible error, applying
// best-effort cancellation when configured.
func (b *Bridge) expired(ctx context.Context, loop *Loop, p Awaitable) error {
	err := ctx.Err()

	if b.cancelOnTimeout && p != nil {
		if r, ok := p.(interface{ Reject(error) }); ok {
			_ = loop.Submit(Task{Runnable: func() { r.Reject(err) }})
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Cause: err, Message: `asyncbridge: work did not settle before the deadline`}
	}
	return err
}

// Close stops the background loop, if running, and releases its goroutine.
// It is idempotent, safe to call before any dispatch, and never panics; a
// join that exceeds the stop timeout is reported via the returned error and
// the goroutine is abandoned rather than blocking shutdown indefinitely.
// A dispatch after Close transparently starts a fresh loop.
func (b *Bridge) Close() error {
	return b.state.stop()
}

// ensureStarted returns a running loop, starting one if needed. It only
// returns once the loop has observably begun running (or failed to).
func (st *executorState) ensureStarted() (*Loop, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.loop != nil {
		if s := st.loop.State(); s != StateTerminating && s != StateTerminated {
			return st.loop, nil
		}
		// The loop was shut down out-of-band; replace it.
		st.loop, st.done = nil, nil
	}

	loop, err := NewLoop(WithLogger(st.logger))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = loop.Run(context.Background())
	}()

	// Start barrier: never hand out a loop that is not yet pumping.
	select {
	case <-loop.Started():
	case <-done:
		return nil, fmt.Errorf(`asyncbridge: loop failed to start: %w`, runErr)
	}

	st.loop, st.done = loop, done
	return loop, nil
}

// stop halts the running loop, if any, and joins its goroutine with a
// bounded wait. Safe to call when nothing is running.
func (st *executorState) stop() error {
	st.mu.Lock()
	// Capture and clear under mu so concurrent calls immediately observe
	// "not running"; the actual stop happens outside the critical section.
	loop, done := st.loop, st.done
	st.loop, st.done = nil, nil
	st.mu.Unlock()

	if loop == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), st.stopTimeout)
	defer cancel()

	err := loop.Shutdown(ctx)
	if err == nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		st.logger.Warning().
			Err(err).
			Dur(`stop_timeout`, st.stopTimeout).
			Log(`abandoning loop goroutine`)
		return fmt.Errorf(`asyncbridge: stop loop: %w`, err)
	}

	return nil
}
