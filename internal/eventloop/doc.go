// Package eventloop provides a cooperative, single-threaded scheduling
// core: timers, microtasks, cross-platform I/O polling, and a simple
// future/promise for marshaling goroutine results back onto the loop.
//
// # Architecture
//
// The event loop is built around a [Loop] core that manages task
// scheduling, timer processing, and I/O readiness notification.
// [Loop.Promisify] runs a function on its own goroutine and settles a
// [Promise] with its result on the loop goroutine, for bridging
// blocking calls (D-Bus, file I/O) into the cooperative model without
// blocking the loop itself.
//
// [AbortController]/[AbortSignal] follow the W3C DOM AbortController
// specification, giving callers one cancellation handle per logical
// in-flight operation. [EventTarget] similarly follows the DOM
// EventTarget/addEventListener/dispatchEvent shape, for small
// per-component observer registries.
//
// # Platform Support
//
// I/O polling is implemented using platform-native mechanisms:
//   - macOS: kqueue
//   - Linux: epoll
//   - Windows: IOCP (I/O Completion Ports)
//
// File descriptor operations ([Loop.RegisterFD], [Loop.UnregisterFD],
// [Loop.ModifyFD]) provide cross-platform I/O readiness notification.
//
// # Thread Safety
//
// The loop is designed for concurrent access:
//   - [Loop.Submit] and [Loop.SubmitInternal] are safe to call from any goroutine
//   - [Loop.ScheduleMicrotask] is lock-free (MPSC ring buffer)
//   - Timer and FD registration methods are thread-safe
//   - Promise resolution must occur on the loop goroutine (enforced automatically)
//
// # Execution Model
//
// The loop supports a dual-path execution model:
//   - Fast path (~50ns/task): channel-based scheduling for low-latency scenarios
//   - I/O path (~8-15µs): poll-based scheduling when I/O FDs are registered
//
// Task priority ordering within each tick:
//  1. Timer callbacks (earliest deadline first)
//  2. Internal queue tasks ([Loop.SubmitInternal])
//  3. External queue tasks ([Loop.Submit])
//  4. Microtasks (drained after each macrotask when strict ordering is enabled)
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	loop.Submit(eventloop.Task{Runnable: func() {
//	    loop.ScheduleTimer(100*time.Millisecond, func() {
//	        fmt.Println("Hello after 100ms")
//	        loop.Shutdown(context.Background())
//	    })
//	}})
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
//   - [AbortError]: for abort operations via [AbortController]
//   - [PanicError]: wraps recovered panics from [Loop.Promisify]
//
// All error types implement the standard [error] interface and
// [errors.Unwrap]/type-based matching via Is().
package eventloop
