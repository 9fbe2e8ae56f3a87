// Package asyncbridge bridges synchronous call sites to a single-goroutine
// cooperative scheduler: ordinary goroutines dispatch work expressed against
// a [Loop] and block, with a bounded wait, until it settles.
//
// # Architecture
//
// A [Bridge] owns at most one background [Loop] at a time. The loop is one
// goroutine (locked to its OS thread) pumping an externally-fed task queue
// and a timer min-heap; all dispatched work executes there, interleaved in
// ready-queue order, never in parallel with itself. [Bridge.Run] and
// [Bridge.RunContext] validate the work, lazily start the loop, hand the
// work across, and block on the resulting [Awaitable] until it settles or
// the deadline elapses. [Bridge.Close] stops the loop with a bounded join;
// the next dispatch starts a fresh one.
//
// Work is either an in-flight [Awaitable] or a func producing one, built
// from the loop-side constructors: [Loop.NewPromise] (pending awaitable with
// resolve/reject), [Loop.Delay] (timer-backed), [Loop.Promisify] (run a Go
// func on its own goroutine, settle on the loop), [NewResolved], and
// [NewRejected].
//
// # Thread Safety
//
//   - [Bridge.Run], [Bridge.RunContext], and [Bridge.Close] are safe to call
//     from any goroutine, concurrently with each other.
//   - [Loop.Submit] and [Loop.ScheduleTimer] are safe to call from any
//     goroutine; task and timer callbacks always execute on the loop
//     goroutine.
//   - Awaitable settlement is single-shot; racing or repeated settles are
//     no-ops.
//
// # Timeouts
//
// The deadline bounds only the calling goroutine's wait. Work that outlives
// it keeps running on the loop and its eventual result is discarded
// (fire-and-abandon); [WithCancelOnTimeout] switches to best-effort
// cancellation instead. [DefaultTimeout] and [DefaultStopTimeout] are the
// only constants of external meaning.
//
// # Usage
//
//	bridge, err := asyncbridge.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bridge.Close()
//
//	res, err := bridge.Run(func(l *asyncbridge.Loop) asyncbridge.Awaitable {
//		p, resolve, _ := l.NewPromise()
//		l.ScheduleTimer(10*time.Millisecond, func() { resolve(42) })
//		return p
//	})
//	// res == 42
//
// # Error Types
//
//   - [*UsageError]: work is neither an awaitable nor a func producing one,
//     or arguments were mismatched. Detected before anything is scheduled.
//   - [*TimeoutError]: the bounded wait elapsed; wraps
//     [context.DeadlineExceeded].
//   - [*PanicError]: wraps panics recovered from promisified work.
//   - [*RejectionError]: carries non-error rejection values.
//   - [ErrLoopTerminated], [ErrLoopAlreadyRunning], [ErrReentrantRun],
//     [ErrGoexit]: loop lifecycle sentinels.
//
// All error types implement the standard [error] interface and, where they
// carry a cause, [errors.Unwrap].
package asyncbridge
