package dbuswire

import (
	"errors"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

// ErrNameHasNoOwner is Transport-unavailable, per spec.md §7: the
// daemon's well-known name currently has no owner. Tiers treat this as
// Disabled, not Failed — no retry timer, since the name watch itself
// will fire again.
var ErrNameHasNoOwner = errors.New("dbuswire: bus name has no owner")

// ErrCallRejected is Call-rejected/absent-reply, per spec.md §7.
var ErrCallRejected = errors.New("dbuswire: call rejected")

// sessionFailureSentinel is requestSensor's documented failure value.
const sessionFailureSentinel = -1

// LoadPlugin asynchronously calls the manager's loadPlugin(name) and
// delivers the daemon's single boolean reply (or an error) to done on
// loop. Per spec.md §4.2, an absent reply is treated identically to a
// false reply by the caller.
func LoadPlugin(loop *el.Loop, conn Conn, name string, signal *el.AbortSignal, done func(ok bool, err error)) {
	obj := conn.Object("", ManagerObjectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ManagerInterface+".loadPlugin", callFlags, name)
		var ok bool
		err := call.Err
		if err == nil {
			err = call.Store(&ok)
		}
		return ok, err
	}, func(res any, err error) {
		ok, _ := res.(bool)
		done(ok, wrapErr(err))
	})
}

// RequestSensor asynchronously calls requestSensor(name, pid) and
// delivers the session id. A sentinel (-1) reply is reported as
// ErrSessionRejected-equivalent by the caller inspecting the returned
// id, per spec.md §6.1.
func RequestSensor(loop *el.Loop, conn Conn, name string, pid int32, signal *el.AbortSignal, done func(sessionID int32, err error)) {
	obj := conn.Object("", ManagerObjectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ManagerInterface+".requestSensor", callFlags, name, pid)
		var id int32
		err := call.Err
		if err == nil {
			err = call.Store(&id)
		}
		return id, err
	}, func(res any, err error) {
		id, _ := res.(int32)
		done(id, wrapErr(err))
	})
}

// ReleaseSensor asynchronously calls releaseSensor(name). Per spec.md
// §9's open question, a reply of false is tolerated: the caller still
// clears its session id locally regardless of done's reported ok/err.
func ReleaseSensor(loop *el.Loop, conn Conn, name string, signal *el.AbortSignal, done func(ok bool, err error)) {
	obj := conn.Object("", ManagerObjectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ManagerInterface+".releaseSensor", callFlags, name)
		var ok bool
		err := call.Err
		if err == nil {
			err = call.Store(&ok)
		}
		return ok, err
	}, func(res any, err error) {
		ok, _ := res.(bool)
		done(ok, wrapErr(err))
	})
}

// AvailableSensorPlugins asynchronously calls availableSensorPlugins()
// and delivers the returned plugin-name set.
func AvailableSensorPlugins(loop *el.Loop, conn Conn, signal *el.AbortSignal, done func(names []string, err error)) {
	obj := conn.Object("", ManagerObjectPath)
	asyncCall(loop, signal, func() (any, error) {
		call := obj.Call(ManagerInterface+".availableSensorPlugins", callFlags)
		var names []string
		err := call.Err
		if err == nil {
			err = call.Store(&names)
		}
		return names, err
	}, func(res any, err error) {
		names, _ := res.([]string)
		done(names, wrapErr(err))
	})
}

// IsSessionRejected reports whether a RequestSensor result represents
// the daemon's documented failure sentinel.
func IsSessionRejected(sessionID int32) bool {
	return sessionID == sessionFailureSentinel
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrCallRejected, err)
}

// deliver marshals fn onto loop, skipping it entirely if signal has
// since been aborted (spec.md §5 cancellation semantics: a completion
// callback whose handle was replaced discards its result untouched).
func deliver(loop *el.Loop, signal *el.AbortSignal, fn func()) {
	_ = loop.Submit(el.Task{Runnable: func() {
		if signal.Aborted() {
			return
		}
		fn()
	}})
}
