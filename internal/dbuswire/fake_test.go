package dbuswire

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"

	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
)

var errUnstubbedMethod = errors.New("dbuswire: no stub registered for method")

var errNameHasNoOwnerStub = errors.New("org.freedesktop.DBus.Error.NameHasNoOwner: no owner")

// fakeObject stubs one bus object's method calls by name.
type fakeObject struct {
	mu    sync.Mutex
	reply map[string]func(args []interface{}) (body []interface{}, err error)
}

func newFakeObject() *fakeObject {
	return &fakeObject{reply: map[string]func([]interface{}) ([]interface{}, error){}}
}

func (o *fakeObject) on(method string, fn func(args []interface{}) ([]interface{}, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reply[method] = fn
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.mu.Lock()
	fn := o.reply[method]
	o.mu.Unlock()
	if fn == nil {
		return &dbus.Call{Err: errUnstubbedMethod}
	}
	body, err := fn(args)
	return &dbus.Call{Err: err, Body: body}
}

// fakeConn is an in-memory Conn: one fakeObject per object path (the
// destination is ignored), no real signal delivery (tests exercise only
// WatchNameOwner's initial GetNameOwner query).
type fakeConn struct {
	mu      sync.Mutex
	objects map[dbus.ObjectPath]*fakeObject
}

func newFakeConn() *fakeConn {
	return &fakeConn{objects: map[dbus.ObjectPath]*fakeObject{}}
}

func (c *fakeConn) object(path dbus.ObjectPath) *fakeObject {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[path]
	if !ok {
		o = newFakeObject()
		c.objects[path] = o
	}
	return o
}

func (c *fakeConn) Object(dest string, path dbus.ObjectPath) BusObject {
	return c.object(path)
}

func (c *fakeConn) AddMatchSignal(options ...dbus.MatchOption) error    { return nil }
func (c *fakeConn) RemoveMatchSignal(options ...dbus.MatchOption) error { return nil }
func (c *fakeConn) Signal(ch chan<- *dbus.Signal)                      {}
func (c *fakeConn) RemoveSignal(ch chan<- *dbus.Signal)                {}
func (c *fakeConn) Close() error                                       { return nil }

var _ Conn = (*fakeConn)(nil)

// runLoop starts loop.Run in the background and returns a stop func.
func runLoop(loop *el.Loop) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(context.Background())
	}()
	return func() {
		_ = loop.Close()
		<-done
	}
}
