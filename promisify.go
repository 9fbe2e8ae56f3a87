package asyncbridge

import (
	"context"
)

// Promisify executes fn in a new goroutine and returns an [Awaitable]
// representing its result. The function receives ctx and may use ctx.Done()
// to observe cancellation; a ctx already cancelled at call time rejects
// without invoking fn.
//
// Settlement is marshalled onto the loop goroutine via [Loop.Submit], with
// direct settlement as a fallback during shutdown so the awaitable always
// settles. A panic rejects with [*PanicError]; an exit via runtime.Goexit
// rejects with [ErrGoexit]. In-flight goroutines are tracked so shutdown can
// wait briefly for them.
func (l *Loop) Promisify(ctx context.Context, fn func(ctx context.Context) (Result, error)) Awaitable {
	// promisifyMu makes the state check and the WaitGroup add atomic with
	// respect to shutdown's wait.
	l.promisifyMu.Lock()
	if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
		l.promisifyMu.Unlock()
		p := l.registry.newPromise()
		p.reject(ErrLoopTerminated)
		return p
	}

	p := l.registry.newPromise()

	l.promisifyWg.Add(1)
	l.promisifyMu.Unlock()

	settle := func(task func()) {
		if err := l.Submit(Task{Runnable: task}); err != nil {
			task()
		}
	}

	go func() {
		defer l.promisifyWg.Done()

		select {
		case <-ctx.Done():
			settle(func() { p.reject(ctx.Err()) })
			return
		default:
		}

		// completed distinguishes a normal return from runtime.Goexit.
		completed := false

		defer func() {
			if r := recover(); r != nil {
				panicErr := &PanicError{Value: r}
				settle(func() { p.reject(panicErr) })
			} else if !completed {
				settle(func() { p.reject(ErrGoexit) })
			}
		}()

		res, err := fn(ctx)
		completed = true

		if err != nil {
			settle(func() { p.reject(err) })
		} else {
			settle(func() { p.resolve(res) })
		}
	}()

	return p
}
