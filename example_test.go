package asyncbridge_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	asyncbridge "github.com/joeycumines/go-asyncbridge"
)

// Example_basicUsage demonstrates dispatching work onto the background loop
// and blocking for its result.
//
// This shows the fundamental pattern of:
// 1. Creating a bridge with New()
// 2. Dispatching a func that returns an Awaitable
// 3. Receiving the settled value synchronously
// 4. Closing the bridge when done
func Example_basicUsage() {
	bridge, err := asyncbridge.New()
	if err != nil {
		fmt.Printf("Failed to create bridge: %v\n", err)
		return
	}
	defer bridge.Close()

	// The loop starts lazily on the first dispatch. The *Loop parameter is
	// injected; the remaining parameters are bound from the extra arguments.
	result, err := bridge.Run(func(l *asyncbridge.Loop, a, b int) asyncbridge.Awaitable {
		p, resolve, _ := l.NewPromise()
		resolve(a + b)
		return p
	}, 19, 23)
	if err != nil {
		fmt.Printf("Run failed: %v\n", err)
		return
	}

	fmt.Printf("Result: %v\n", result)

	// Output:
	// Result: 42
}

// Example_promisify demonstrates bridging blocking work through Promisify.
//
// Promisify runs the func on its own goroutine and settles the awaitable on
// the loop, so slow or blocking calls never stall the loop itself.
func Example_promisify() {
	bridge, _ := asyncbridge.New()
	defer bridge.Close()

	result, err := bridge.Run(func(l *asyncbridge.Loop) asyncbridge.Awaitable {
		return l.Promisify(context.Background(), func(ctx context.Context) (asyncbridge.Result, error) {
			// Simulate a blocking call, e.g. file or network IO.
			time.Sleep(10 * time.Millisecond)
			return "fetched", nil
		})
	})
	if err != nil {
		fmt.Printf("Run failed: %v\n", err)
		return
	}

	fmt.Printf("Result: %v\n", result)

	// Output:
	// Result: fetched
}

// Example_errorPropagation demonstrates that rejection errors surface to the
// caller unchanged.
//
// The original error value is returned as-is, so errors.Is and errors.As
// work against sentinel errors defined far from the dispatch site.
func Example_errorPropagation() {
	bridge, _ := asyncbridge.New()
	defer bridge.Close()

	errNotFound := errors.New("not found")

	_, err := bridge.Run(func(l *asyncbridge.Loop) asyncbridge.Awaitable {
		p, _, reject := l.NewPromise()
		reject(errNotFound)
		return p
	})

	if errors.Is(err, errNotFound) {
		fmt.Println("Got the original error back")
	}

	// Output:
	// Got the original error back
}

// Example_timeout demonstrates the bounded wait.
//
// When the work does not settle in time the caller gets a *TimeoutError; by
// default the work itself keeps running on the loop and its eventual result
// is discarded.
func Example_timeout() {
	bridge, _ := asyncbridge.New()
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bridge.RunContext(ctx, func(l *asyncbridge.Loop) asyncbridge.Awaitable {
		return l.Delay(10 * time.Second)
	})

	var timeoutErr *asyncbridge.TimeoutError
	if errors.As(err, &timeoutErr) {
		fmt.Println("Timed out waiting for the work to settle")
	}

	// Output:
	// Timed out waiting for the work to settle
}

// Example_restart demonstrates that a closed bridge restarts transparently.
//
// Close stops the background loop; a later dispatch starts a fresh one.
func Example_restart() {
	bridge, _ := asyncbridge.New()

	result, _ := bridge.Run(asyncbridge.NewResolved("first"))
	fmt.Printf("Before close: %v\n", result)

	if err := bridge.Close(); err != nil {
		fmt.Printf("Close failed: %v\n", err)
		return
	}

	result, _ = bridge.Run(asyncbridge.NewResolved("second"))
	fmt.Printf("After close: %v\n", result)

	_ = bridge.Close()

	// Output:
	// Before close: first
	// After close: second
}
