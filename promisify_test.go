package asyncbridge

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func awaitSettled(t *testing.T, p Awaitable) Result {
	t.Helper()
	select {
	case res := <-p.ToChannel():
		return res
	case <-time.After(time.Second * 5):
		t.Fatal(`awaitable did not settle`)
		return nil
	}
}

func TestLoop_Promisify_success(t *testing.T) {
	l := startLoop(t)

	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		return 2 + 3, nil
	})

	if res := awaitSettled(t, p); res != 5 {
		t.Errorf(`got %v`, res)
	}
	if s := p.State(); s != Resolved {
		t.Errorf(`expected Resolved, got %v`, s)
	}
}

func TestLoop_Promisify_error(t *testing.T) {
	l := startLoop(t)

	want := errors.New(`boom`)
	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		return nil, want
	})

	res := awaitSettled(t, p)
	if err, ok := res.(error); !ok || !errors.Is(err, want) {
		t.Errorf(`expected %v, got %v`, want, res)
	}
	if s := p.State(); s != Rejected {
		t.Errorf(`expected Rejected, got %v`, s)
	}
}

func TestLoop_Promisify_panic(t *testing.T) {
	l := startLoop(t)

	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		panic(`kaboom`)
	})

	res := awaitSettled(t, p)
	var panicErr *PanicError
	if err, ok := res.(error); !ok || !errors.As(err, &panicErr) {
		t.Fatalf(`expected *PanicError, got %v`, res)
	}
	if panicErr.Value != `kaboom` {
		t.Errorf(`got panic value %v`, panicErr.Value)
	}
}

func TestLoop_Promisify_panicWithError(t *testing.T) {
	l := startLoop(t)

	cause := errors.New(`wrapped cause`)
	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		panic(cause)
	})

	res := awaitSettled(t, p)
	if err, ok := res.(error); !ok || !errors.Is(err, cause) {
		t.Errorf(`PanicError should unwrap to the panic value, got %v`, res)
	}
}

func TestLoop_Promisify_goexit(t *testing.T) {
	l := startLoop(t)

	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		runtime.Goexit()
		return nil, nil
	})

	res := awaitSettled(t, p)
	if err, ok := res.(error); !ok || !errors.Is(err, ErrGoexit) {
		t.Errorf(`expected ErrGoexit, got %v`, res)
	}
}

func TestLoop_Promisify_cancelledContext(t *testing.T) {
	l := startLoop(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := l.Promisify(ctx, func(ctx context.Context) (Result, error) {
		t.Error(`fn should not run with a cancelled context`)
		return nil, nil
	})

	res := awaitSettled(t, p)
	if err, ok := res.(error); !ok || !errors.Is(err, context.Canceled) {
		t.Errorf(`expected context.Canceled, got %v`, res)
	}
}

func TestLoop_Promisify_terminatedLoop(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf(`NewLoop failed: %v`, err)
	}
	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatalf(`Shutdown failed: %v`, err)
	}

	p := l.Promisify(context.Background(), func(ctx context.Context) (Result, error) {
		t.Error(`fn should not run on a terminated loop`)
		return nil, nil
	})

	if s := p.State(); s != Rejected {
		t.Fatalf(`expected Rejected, got %v`, s)
	}
	if err, ok := p.Result().(error); !ok || !errors.Is(err, ErrLoopTerminated) {
		t.Errorf(`expected ErrLoopTerminated, got %v`, p.Result())
	}
}

func TestRegistry_scavenge(t *testing.T) {
	r := newRegistry()

	settled := r.newPromise()
	settled.resolve(nil)
	pending := r.newPromise()

	r.scavenge(100)

	r.mu.Lock()
	n := len(r.data)
	r.mu.Unlock()
	if n != 1 {
		t.Errorf(`expected only the pending promise to remain, have %d`, n)
	}
	if pending.State() != Pending {
		t.Error(`scavenge must not settle pending promises`)
	}
}

func TestRegistry_rejectAll(t *testing.T) {
	r := newRegistry()

	ps := make([]*promise, 4)
	for i := range ps {
		ps[i] = r.newPromise()
	}
	ps[0].resolve(`already settled`)

	r.rejectAll(ErrLoopTerminated)

	if ps[0].State() != Resolved {
		t.Error(`rejectAll must not overwrite settled promises`)
	}
	for _, p := range ps[1:] {
		if p.State() != Rejected {
			t.Error(`pending promise was not rejected`)
		}
	}

	r.mu.Lock()
	n := len(r.data)
	r.mu.Unlock()
	if n != 0 {
		t.Errorf(`registry not cleared, have %d`, n)
	}
}
