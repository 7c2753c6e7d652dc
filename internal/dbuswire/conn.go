// Package dbuswire implements the D-Bus control-plane surface of
// spec.md §6.1: the manager object's loadPlugin/requestSensor/
// releaseSensor/availableSensorPlugins, the per-sensor object's
// start/stop/setDataRate/setStandbyOverride, GetAll property retrieval,
// and the daemon's well-known name-owner watch.
//
// Every call follows the same shape: a blocking godbus call runs on its
// own goroutine, and the result is marshaled back onto the caller's
// event loop via loop.Submit before any tier state is touched (spec.md
// §5's single-threaded scheduling discipline). Cancellation is
// expressed with *eventloop.AbortSignal: a completion callback that
// observes its signal aborted discards the result without acting on
// it, exactly per spec.md §5's "logical in-flight call" semantics.
package dbuswire

import (
	"github.com/godbus/dbus/v5"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

// ManagerObjectPath is the D-Bus object path of the daemon's sensor
// manager object.
const ManagerObjectPath = "/SensorManager"

// ManagerInterface is the D-Bus interface implemented by the manager
// object.
const ManagerInterface = "local.SensorManager"

// callFlags: "no-auto-start" flag, default (unlimited) timeout, per
// spec.md §6.1.
const callFlags = dbus.FlagNoAutoStart

// BusObject is the minimal subset of dbus.BusObject this package
// depends on, narrowed to just the synchronous method call — the only
// operation every call in manager.go/sensorobj.go performs.
type BusObject interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Conn is the minimal subset of *dbus.Conn this package depends on,
// narrowed for testability (grounded on the pack's only D-Bus-consuming
// reference, which wraps *dbus.Conn behind a small interface of this
// shape rather than depending on the concrete type throughout).
type Conn interface {
	Object(dest string, path dbus.ObjectPath) BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// realConn adapts *dbus.Conn to Conn, narrowing the dbus.BusObject
// values its Object method returns down to BusObject.
type realConn struct {
	c *dbus.Conn
}

func (r realConn) Object(dest string, path dbus.ObjectPath) BusObject {
	return r.c.Object(dest, path)
}

func (r realConn) AddMatchSignal(options ...dbus.MatchOption) error {
	return r.c.AddMatchSignal(options...)
}

func (r realConn) RemoveMatchSignal(options ...dbus.MatchOption) error {
	return r.c.RemoveMatchSignal(options...)
}

func (r realConn) Signal(ch chan<- *dbus.Signal) { r.c.Signal(ch) }

func (r realConn) RemoveSignal(ch chan<- *dbus.Signal) { r.c.RemoveSignal(ch) }

func (r realConn) Close() error { return r.c.Close() }

// Dial returns the system-bus connection obtained from dbus.SystemBus,
// wrapped as a Conn. It blocks the calling goroutine until the
// connection is established or fails.
func Dial() (Conn, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return realConn{c: conn}, nil
}

// NameOwnerWatch watches a well-known bus name's owner, delivering every
// transition (including the initial state) onto loop via onChange.
// onChange receives the new owner, or "" if the name currently has no
// owner.
type NameOwnerWatch struct {
	conn Conn
	ch   chan *dbus.Signal
	done chan struct{}
}

// WatchNameOwner installs a NameOwnerChanged match for busName and
// starts delivering owner transitions to onChange on loop. It first
// queries the current owner synchronously-from-the-caller's-goroutine
// perspective (a blocking GetNameOwner call run on its own goroutine,
// same discipline as every other call in this package) so callers see
// an immediate, correct initial state instead of waiting for the next
// transition.
func WatchNameOwner(loop *el.Loop, conn Conn, busName string, signal *el.AbortSignal, onChange func(owner string)) (*NameOwnerWatch, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, busName),
	}
	if err := conn.AddMatchSignal(opts...); err != nil {
		return nil, err
	}

	w := &NameOwnerWatch{conn: conn, ch: make(chan *dbus.Signal, 16), done: make(chan struct{})}
	conn.Signal(w.ch)

	asyncCall(loop, signal, func() (any, error) {
		var owner string
		call := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus").Call("org.freedesktop.DBus.GetNameOwner", 0, busName)
		err := call.Err
		if err == nil {
			err = call.Store(&owner)
		}
		return owner, err
	}, func(res any, err error) {
		if err != nil {
			onChange("")
			return
		}
		owner, _ := res.(string)
		onChange(owner)
	})

	go func() {
		for {
			select {
			case sig, open := <-w.ch:
				if !open {
					return
				}
				if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
					continue
				}
				newOwner, _ := sig.Body[2].(string)
				_ = loop.Submit(el.Task{Runnable: func() {
					if signal.Aborted() {
						return
					}
					onChange(newOwner)
				}})
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close removes the match and stops delivering signals.
func (w *NameOwnerWatch) Close() {
	close(w.done)
	w.conn.RemoveSignal(w.ch)
	_ = w.conn.RemoveMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	)
}
