package asyncbridge

import (
	"sync"
	"time"
)

// Result represents the settled value of an [Awaitable].
// For fulfilled operations it holds the success value; for rejected
// operations it typically holds an error.
type Result = any

// PromiseState represents the lifecycle state of an [Awaitable].
// An awaitable starts [Pending] and transitions exactly once to either
// [Resolved] or [Rejected]; the transition is irreversible.
type PromiseState int

const (
	// Pending indicates the operation is still in progress.
	Pending PromiseState = iota
	// Resolved indicates the operation completed successfully with a value.
	Resolved
	// Rejected indicates the operation failed with a reason.
	Rejected
)

// Awaitable is a read-only view of a future result, safe to observe from any
// goroutine. It is the unit of work accepted by [Bridge.Run]: dispatched
// funcs must produce one.
type Awaitable interface {
	// State returns the current [PromiseState].
	State() PromiseState

	// Result returns the settled value, or nil while pending. A resolved
	// awaitable can legitimately have a nil result value.
	Result() Result

	// ToChannel returns a channel that receives the result when the
	// awaitable settles. The channel is buffered (capacity 1) and closed
	// after sending; if already settled it is returned pre-filled.
	ToChannel() <-chan Result
}

// promise is the concrete Awaitable. Settlement is single-shot: whichever of
// resolve/reject runs first wins, later calls are no-ops.
type promise struct {
	result      Result
	subscribers []chan Result
	state       PromiseState
	mu          sync.Mutex
}

var _ Awaitable = (*promise)(nil)

func (p *promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *promise) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *promise) ToChannel() <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Result, 1)
	if p.state != Pending {
		ch <- p.result
		close(ch)
		return ch
	}

	p.subscribers = append(p.subscribers, ch)
	return ch
}

func (p *promise) resolve(val Result) {
	p.settle(Resolved, val)
}

func (p *promise) reject(err error) {
	p.settle(Rejected, err)
}

// Reject settles the promise as failed. Exported via interface assertion so
// the dispatcher can apply best-effort cancellation, see
// [WithCancelOnTimeout].
func (p *promise) Reject(err error) {
	p.reject(err)
}

func (p *promise) settle(state PromiseState, val Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Pending {
		return
	}

	p.state = state
	p.result = val

	// Each subscriber channel has capacity 1 and receives exactly one send.
	for _, ch := range p.subscribers {
		ch <- p.result
		close(ch)
	}
	p.subscribers = nil
}

// NewResolved returns an already-settled awaitable holding val.
func NewResolved(val Result) Awaitable {
	return &promise{state: Resolved, result: val}
}

// NewRejected returns an already-settled awaitable rejected with err.
func NewRejected(err error) Awaitable {
	return &promise{state: Rejected, result: err}
}

// NewPromise returns a pending awaitable along with its resolve and reject
// functions. Both are safe to call from any goroutine; settlement is
// marshalled onto the loop goroutine, falling back to direct settlement if
// the loop has terminated. Repeated or racing settles are no-ops.
func (l *Loop) NewPromise() (Awaitable, func(Result), func(error)) {
	p := l.registry.newPromise()
	resolve := func(val Result) {
		if err := l.Submit(Task{Runnable: func() { p.resolve(val) }}); err != nil {
			p.resolve(val)
		}
	}
	reject := func(err error) {
		if submitErr := l.Submit(Task{Runnable: func() { p.reject(err) }}); submitErr != nil {
			p.reject(err)
		}
	}
	return p, resolve, reject
}

// Delay returns an awaitable that resolves with nil after d has elapsed on
// the loop's timer heap. If the loop has terminated it is rejected
// immediately with [ErrLoopTerminated].
func (l *Loop) Delay(d time.Duration) Awaitable {
	p := l.registry.newPromise()
	if err := l.ScheduleTimer(d, func() { p.resolve(nil) }); err != nil {
		p.reject(err)
	}
	return p
}
