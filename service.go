package sensorfw

import (
	"context"
	"errors"
	"os"
	"sync"
	"weak"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
	"github.com/nemo-mobile/sensorfw-go/internal/obslog"
)

type serviceState int

const (
	serviceInitial serviceState = iota
	serviceDisabled
	serviceEnumerating
	serviceReady
	serviceFailed
	serviceFinal
)

// Service is spec.md §4.1's tier: the single observable fact "the daemon
// is reachable right now". It owns the event loop, the system-bus
// connection, and the daemon's well-known-name watch.
//
// Service is a process-wide weak singleton (spec.md §9): an instance
// exists while at least one caller holds a reference obtained from
// [AcquireService]; when the last reference is released, the slot
// clears and the next AcquireService call constructs afresh. This is
// implemented with a [weak.Pointer], the same primitive the event
// loop's own promise registry uses to track live promises without
// pinning them.
type Service struct {
	opts options

	loop       *el.Loop
	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	mu         sync.Mutex
	state      serviceState
	conn       dbuswire.Conn
	watch      *dbuswire.NameOwnerWatch
	names      map[string]struct{}
	enumSignal *el.AbortController
	retryEpoch int

	validHub changeHub
}

var (
	serviceMu       sync.Mutex
	serviceWeak     weak.Pointer[Service]
	serviceRefCount int
)

// AcquireService returns the process-wide Service, constructing it on
// first acquisition. opts are only consulted for the construction that
// creates the instance; later acquisitions while the singleton is alive
// share the existing configuration, per spec.md §9. The returned release
// function must be called exactly once; the underlying Service tears
// down (enters Final) when the last outstanding reference is released.
func AcquireService(opts ...Option) (*Service, func()) {
	serviceMu.Lock()
	defer serviceMu.Unlock()

	if svc := serviceWeak.Value(); svc != nil {
		serviceRefCount++
		return svc, serviceRelease(svc)
	}

	svc := newService(buildOptions(opts))
	serviceWeak = weak.Make(svc)
	serviceRefCount = 1
	svc.start()
	return svc, serviceRelease(svc)
}

func serviceRelease(svc *Service) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			serviceMu.Lock()
			serviceRefCount--
			last := serviceRefCount <= 0
			if last {
				serviceWeak = weak.Pointer[Service]{}
			}
			serviceMu.Unlock()
			if last {
				svc.teardown()
			}
		})
	}
}

func newService(opts options) *Service {
	return &Service{
		opts:     opts,
		names:    make(map[string]struct{}),
		validHub: newChangeHub("valid-changed"),
	}
}

// start initiates the loop goroutine and asynchronous bus acquisition.
// Bus-get failures are logged rather than returned to the caller; the
// Service then stays Disabled and no retry is scheduled.
func (s *Service) start() {
	loop, err := el.New()
	if err != nil {
		obslog.L().Err().Err(err).Log("sensorfw: failed to create event loop")
		return
	}
	s.loop = loop

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoop = cancel
	s.loopDone = make(chan struct{})
	go func() {
		defer close(s.loopDone)
		if err := loop.Run(ctx); err != nil {
			obslog.L().Err().Err(err).Log("sensorfw: event loop terminated with error")
		}
	}()

	_ = loop.Submit(el.Task{Runnable: s.dialBus})
}

// dialBusFunc is a package-level seam so tests can substitute a fake
// [dbuswire.Conn] instead of dialing the real system bus; production
// code never reassigns it.
var dialBusFunc = dbuswire.Dial

func (s *Service) dialBus() {
	s.mu.Lock()
	s.state = serviceDisabled
	s.mu.Unlock()

	conn, err := dialBusFunc()
	if err != nil {
		obslog.L().Warning().Err(err).Log("sensorfw: system bus unavailable")
		return
	}

	s.mu.Lock()
	s.conn = conn
	ctl := el.NewAbortController()
	s.enumSignal = ctl
	s.mu.Unlock()

	watch, err := dbuswire.WatchNameOwner(s.loop, conn, s.opts.busName, ctl.Signal(), s.onNameOwnerChange)
	if err != nil {
		obslog.L().Warning().Err(err).Log("sensorfw: failed to watch bus name owner")
		return
	}

	s.mu.Lock()
	s.watch = watch
	s.mu.Unlock()
}

func (s *Service) onNameOwnerChange(owner string) {
	s.mu.Lock()
	if s.state == serviceFinal {
		s.mu.Unlock()
		return
	}
	if owner == "" {
		wasValid := s.state == serviceReady
		s.state = serviceDisabled
		clear(s.names)
		s.mu.Unlock()
		obslog.L().Info().Err(ErrNameHasNoOwner).Log("sensorfw: daemon name lost, waiting for reappearance")
		if wasValid {
			s.validHub.notify()
		}
		return
	}
	s.state = serviceEnumerating
	s.mu.Unlock()
	s.enumerate()
}

func (s *Service) enumerate() {
	s.mu.Lock()
	if s.state != serviceEnumerating {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	signal := s.enumSignal.Signal()
	s.mu.Unlock()

	dbuswire.AvailableSensorPlugins(s.loop, conn, signal, func(plugins []string, err error) {
		s.onEnumerateComplete(plugins, err)
	})
}

func (s *Service) onEnumerateComplete(plugins []string, err error) {
	s.mu.Lock()
	if s.state != serviceEnumerating {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = serviceFailed
		epoch := s.retryEpoch
		s.mu.Unlock()
		obslog.L().Warning().Err(errors.Join(ErrCallRejected, err)).Log("sensorfw: availableSensorPlugins failed, retrying")
		s.scheduleRetry(epoch)
		return
	}

	names := make(map[string]struct{}, len(plugins))
	for _, n := range plugins {
		names[n] = struct{}{}
	}
	s.names = names
	s.state = serviceReady
	s.mu.Unlock()
	s.validHub.notify()
}

func (s *Service) scheduleRetry(epoch int) {
	_ = s.loop.ScheduleTimer(s.opts.retryDelay, func() {
		s.mu.Lock()
		if s.retryEpoch != epoch || s.state != serviceFailed {
			s.mu.Unlock()
			return
		}
		s.state = serviceEnumerating
		s.mu.Unlock()
		s.enumerate()
	})
}

// teardown moves Service to Final, cancelling any in-flight call and
// closing the bus connection and event loop. Reachable exactly once, by
// the release function returned from AcquireService when the last
// reference drops.
func (s *Service) teardown() {
	s.mu.Lock()
	s.state = serviceFinal
	s.retryEpoch++
	if s.enumSignal != nil {
		s.enumSignal.Abort("service teardown")
	}
	watch := s.watch
	conn := s.conn
	s.mu.Unlock()

	if s.loop != nil {
		if watch != nil {
			_ = s.loop.Submit(el.Task{Runnable: watch.Close})
		}
		if conn != nil {
			_ = s.loop.Submit(el.Task{Runnable: func() { _ = conn.Close() }})
		}
		_ = s.loop.Shutdown(context.Background())
		s.cancelLoop()
		<-s.loopDone
	}
}

// IsValid reports whether the daemon is currently reachable and its
// plugin list has been enumerated (state Ready).
func (s *Service) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == serviceReady
}

// Connection returns the shared system-bus connection, or nil unless the
// service is Ready or Enumerating. Holders must not close it.
func (s *Service) Connection() dbuswire.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != serviceReady && s.state != serviceEnumerating {
		return nil
	}
	return s.conn
}

// Loop returns the event loop this Service owns; Plugin/Sensor/Reporting
// submit their own tasks onto it rather than maintaining one each.
func (s *Service) Loop() *el.Loop {
	return s.loop
}

// HasPlugin reports whether name was present in the most recent
// availableSensorPlugins enumeration.
func (s *Service) HasPlugin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// AddValidChanged registers fn to run whenever IsValid's value may have
// changed; delivered synchronously on the event loop.
func (s *Service) AddValidChanged(fn func()) SubscriptionID {
	return s.validHub.add(fn)
}

// RemoveValidChanged unregisters a handler added via AddValidChanged.
func (s *Service) RemoveValidChanged(id SubscriptionID) {
	s.validHub.remove(id)
}

// pid is the process id sent with requestSensor, memoized so Sensor
// doesn't look it up per call.
var pid = os.Getpid()
