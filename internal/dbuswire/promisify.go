package dbuswire

import (
	"context"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

// asyncCall runs fn on its own goroutine via loop.Promisify, so that
// loop.Shutdown waits (for at most 100ms) for in-flight blocking D-Bus
// calls to settle before the loop terminates, then marshals the outcome back onto loop
// and invokes done — unless signal has since been aborted, per spec.md
// §5's "logical in-flight call" cancellation semantics.
func asyncCall(loop *el.Loop, signal *el.AbortSignal, fn func() (any, error), done func(res any, err error)) {
	p := loop.Promisify(context.Background(), func(context.Context) (any, error) {
		return fn()
	})
	go func() {
		res := <-p.ToChannel()
		deliver(loop, signal, func() {
			if p.State() == el.Rejected {
				err, _ := res.(error)
				done(nil, err)
				return
			}
			done(res, nil)
		})
	}()
}
