package asyncbridge

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Task is a unit of work executed on the loop goroutine.
type Task struct {
	// Runnable is the function to execute. A nil Runnable is ignored.
	Runnable func()
}

// Loop is a single-goroutine cooperative scheduler. All submitted tasks and
// timer callbacks execute on one goroutine, interleaved in ready-queue order,
// never in parallel with each other. [Loop.Submit], [Loop.ScheduleTimer], and
// the promise constructors are safe to call from any goroutine.
//
// A Loop runs at most once: after termination it cannot be restarted, only
// replaced. [Bridge] manages that replacement automatically.
type Loop struct {
	// Prevent copying
	_ [0]func()

	registry *registry
	logger   *logiface.Logger[logiface.Event]

	state atomicState

	// External task queue, swapped against buf each drain.
	mu    sync.Mutex
	queue []Task
	buf   []Task

	// In-flight Submit counter for shutdown synchronization.
	inflight atomic.Int64

	// Timer heap, owned by the loop goroutine.
	timers timerHeap

	// wake is buffered with capacity 1; a queued token is a wake-up that has
	// not been observed yet, so redundant sends are dropped.
	wake chan struct{}

	// started closes once the loop has observably begun running.
	started chan struct{}

	// loopDone closes when the loop has fully terminated.
	loopDone chan struct{}

	// promisifyWg tracks in-flight Promisify goroutines.
	promisifyMu sync.Mutex
	promisifyWg sync.WaitGroup

	loopGoroutineID atomic.Uint64

	id uint64
}

// timerEntry is a scheduled callback.
type timerEntry struct {
	when time.Time
	fn   func()
}

// timerHeap is a min-heap of timer entries, earliest deadline first.
type timerHeap []timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

var loopIDCounter atomic.Uint64

// NewLoop creates a new loop in the Awake state. The loop does not process
// anything until [Loop.Run] is called.
func NewLoop(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Loop{
		id:       loopIDCounter.Add(1),
		registry: newRegistry(),
		logger:   cfg.logger,
		wake:     make(chan struct{}, 1),
		started:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}, nil
}

// Run runs the loop on the calling goroutine and blocks until it terminates,
// via [Loop.Shutdown] or ctx cancellation. To run in the background, use
// `go loop.Run(ctx)` and wait on [Loop.Started].
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopGoroutine() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	defer close(l.loopDone)
	close(l.started)

	l.logger.Trace().Int(`loop_id`, int(l.id)).Log(`loop started`)
	defer l.logger.Trace().Int(`loop_id`, int(l.id)).Log(`loop stopped`)

	for {
		if err := ctx.Err(); err != nil {
			l.beginTermination()
			l.terminate()
			return err
		}

		if l.state.Load() == StateTerminating {
			l.terminate()
			return nil
		}

		l.runTimers()
		ran := l.runTasks()
		l.registry.scavenge(32)
		if ran {
			continue
		}

		// Idle: sleep until woken, the next timer, or cancellation. The CAS
		// fails if a concurrent Shutdown moved us to Terminating.
		if !l.state.TryTransition(StateRunning, StateSleeping) {
			continue
		}
		if l.hasPending() {
			// A task raced in between the drain and the CAS.
			l.state.TryTransition(StateSleeping, StateRunning)
			continue
		}

		var idle *time.Timer
		var timerC <-chan time.Time
		if wait, ok := l.nextTimerWait(time.Now()); ok {
			idle = time.NewTimer(wait)
			timerC = idle.C
		}
		select {
		case <-l.wake:
		case <-timerC:
		case <-ctx.Done():
		}
		if idle != nil {
			idle.Stop()
		}
		l.state.TryTransition(StateSleeping, StateRunning)
	}
}

// Started returns a channel that closes once the loop has begun running, or
// once a never-started loop is shut down; check [Loop.State] to distinguish.
func (l *Loop) Started() <-chan struct{} {
	return l.started
}

// Done returns a channel that closes once the loop has fully terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Shutdown gracefully stops the loop: remaining queued tasks are drained,
// then all still-pending promises are rejected with [ErrLoopTerminated]. It
// blocks until termination completes or ctx expires, in which case the loop
// goroutine is left to finish on its own. Shutdown of an already-terminated
// (or never-started) loop is a no-op.
func (l *Loop) Shutdown(ctx context.Context) error {
	for {
		s := l.state.Load()
		if s == StateTerminated {
			return nil
		}
		if s == StateTerminating {
			break
		}
		if s == StateAwake {
			if l.state.TryTransition(StateAwake, StateTerminating) {
				// Never ran; there is no goroutine to join. The winning CAS
				// excludes Run, so closing started here cannot race it.
				l.state.Store(StateTerminated)
				l.registry.rejectAll(ErrLoopTerminated)
				close(l.started)
				close(l.loopDone)
				return nil
			}
			continue
		}
		if l.state.TryTransition(s, StateTerminating) {
			l.wakeUp()
			break
		}
	}

	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a task for execution on the loop goroutine. It is safe to
// call from any goroutine. Submissions are accepted during Terminating (the
// drain executes them) and rejected with [ErrLoopTerminated] only once the
// loop has fully stopped.
func (l *Loop) Submit(task Task) error {
	// The inflight counter must cover the window between the state check and
	// the push, so the terminating drain does not miss racing submissions.
	l.inflight.Add(1)
	defer l.inflight.Add(-1)

	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}

	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	if s := l.state.Load(); s == StateSleeping || s == StateTerminating {
		l.wakeUp()
	}

	return nil
}

// ScheduleTimer schedules fn to run on the loop goroutine after delay.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) error {
	when := time.Now().Add(delay)
	// The heap is owned by the loop goroutine; insertion goes through the
	// task queue rather than mutating it from the calling goroutine.
	return l.Submit(Task{Runnable: func() {
		heap.Push(&l.timers, timerEntry{when: when, fn: fn})
	}})
}

// wakeUp nudges a sleeping loop. The buffered channel self-deduplicates.
func (l *Loop) wakeUp() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// beginTermination moves any non-terminal state to Terminating.
func (l *Loop) beginTermination() {
	for {
		s := l.state.Load()
		if s == StateTerminating || s == StateTerminated {
			return
		}
		if l.state.TryTransition(s, StateTerminating) {
			return
		}
	}
}

// terminate performs the shutdown sequence on the loop goroutine.
func (l *Loop) terminate() {
	// Give in-flight Promisify goroutines a brief window to settle through
	// the queue rather than the direct fallback path.
	settled := make(chan struct{})
	go func() {
		l.promisifyWg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(100 * time.Millisecond):
	}

	// Terminated must be stored before the drain: submissions that checked
	// state earlier are caught below, later ones are rejected.
	l.state.Store(StateTerminated)

	// The drain needs several consecutive empty observations, since a racing
	// Submit may be between its state check and its push.
	empty := 0
	for empty < 3 {
		for l.inflight.Load() > 0 {
			runtime.Gosched()
		}
		if l.runTasks() {
			empty = 0
		} else {
			empty++
			runtime.Gosched()
		}
	}

	l.registry.rejectAll(ErrLoopTerminated)
}

// runTasks drains and executes the current task queue, reporting whether any
// tasks ran.
func (l *Loop) runTasks() bool {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	tasks := l.queue
	l.queue = l.buf[:0]
	l.buf = tasks[:0]
	l.mu.Unlock()

	for i := range tasks {
		l.execute(tasks[i].Runnable)
		tasks[i] = Task{}
	}
	return true
}

func (l *Loop) hasPending() bool {
	l.mu.Lock()
	n := len(l.queue)
	l.mu.Unlock()
	return n > 0
}

// runTimers executes all expired timer callbacks, earliest first.
func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		e := heap.Pop(&l.timers).(timerEntry)
		l.execute(e.fn)
	}
}

// nextTimerWait returns the duration until the earliest timer fires.
func (l *Loop) nextTimerWait(now time.Time) (time.Duration, bool) {
	if len(l.timers) == 0 {
		return 0, false
	}
	d := l.timers[0].when.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// execute runs fn with panic recovery; a panicking task never kills the loop.
func (l *Loop) execute(fn func()) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Int(`loop_id`, int(l.id)).
				Any(`panic`, r).
				Log(`task panicked`)
		}
	}()

	fn()
}

// isLoopGoroutine checks whether the caller is the loop goroutine.
func (l *Loop) isLoopGoroutine() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID parses the current goroutine's ID from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
