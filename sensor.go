package sensorfw

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/nemo-mobile/sensorfw-go/internal/dbuswire"
	el "github.com/nemo-mobile/sensorfw-go/internal/eventloop"
	"github.com/nemo-mobile/sensorfw-go/internal/obslog"
	"github.com/nemo-mobile/sensorfw-go/internal/wiresock"
)

type sensorState int

const (
	sensorInitial sensorState = iota
	sensorDisabled
	sensorSession
	sensorProperties
	sensorConnect
	sensorReady
	sensorFailed
	sensorFinal
)

// noSessionID is the sentinel meaning "no session currently held",
// matching the daemon's own requestSensor failure sentinel (spec.md
// §6.1, dbuswire.sessionFailureSentinel) rather than relying on the Go
// zero value: the daemon is not contractually forbidden from handing
// out session id 0.
const noSessionID int32 = -1

// Sensor is spec.md §4.3's tier: a session with the daemon for one
// SensorKind, its initial property set, and the sample-stream socket.
// Unlike Service/Plugin, Sensor is not a singleton — every [NewSensor]
// call creates an independent session, released by the required
// [Sensor.Close].
type Sensor struct {
	kind      SensorKind
	plugin    *Plugin
	relPlugin func()
	reporting *Reporting

	mu          sync.Mutex
	state       sensorState
	sessionID   int32
	props       map[string]dbus.Variant
	sock        *wiresock.Conn
	reading     Reading
	haveReading bool

	pendingCall *el.AbortController // Session/Properties/Connect in-flight call
	retryEpoch  int

	// discardLogSite memoizes the "is Info enabled" decision for the
	// per-frame discard log below, so the sample read loop doesn't pay
	// for a level check and logger load on every frame.
	discardLogSite obslog.SiteCache

	pluginValidSubID  SubscriptionID
	reportActiveSubID SubscriptionID

	validHub   changeHub
	activeHub  changeHub
	readingHub changeHub
}

// NewSensor creates a new session for kind, acquiring its own Plugin
// (and transitively Service) reference. Call [Sensor.Close] exactly
// once to release it.
func NewSensor(kind SensorKind, opts ...Option) *Sensor {
	plugin, relPlugin := AcquirePlugin(kind, opts...)
	s := &Sensor{
		kind:       kind,
		plugin:     plugin,
		relPlugin:  relPlugin,
		validHub:   newChangeHub("valid-changed"),
		activeHub:  newChangeHub("active-changed"),
		readingHub: newChangeHub("reading-changed"),
	}
	s.sessionID = noSessionID
	s.reporting = newReporting(s)
	s.reportActiveSubID = s.reporting.AddActiveChanged(func() { s.activeHub.notify() })
	s.pluginValidSubID = plugin.AddValidChanged(s.onPluginValidChanged)

	_ = s.loop().Submit(el.Task{Runnable: s.evaluate})
	return s
}

func (s *Sensor) loop() *el.Loop { return s.plugin.Service().Loop() }

// Kind returns the sensor kind this session targets.
func (s *Sensor) Kind() SensorKind { return s.kind }

// Name returns the daemon plugin name for this session's kind.
func (s *Sensor) Name() string { return s.kind.PluginName() }

// ObjectPath returns the per-sensor D-Bus object path.
func (s *Sensor) ObjectPath() string { return s.kind.ObjectPath() }

// InterfaceName returns the per-sensor D-Bus interface name.
func (s *Sensor) InterfaceName() string { return s.kind.InterfaceName() }

// SessionID returns the daemon-issued session id, or noSessionID (-1)
// before one has been acquired.
func (s *Sensor) SessionID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Reading returns the most recently decoded sample for this sensor and
// whether a sample has been received yet.
func (s *Sensor) Reading() (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.haveReading
}

// IsValid reports whether the session is fully established (state
// Ready).
func (s *Sensor) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sensorReady
}

// IsActive mirrors the child Reporting's active flag, per spec.md §4.3.
func (s *Sensor) IsActive() bool { return s.reporting.IsActive() }

func (s *Sensor) AddValidChanged(fn func()) SubscriptionID   { return s.validHub.add(fn) }
func (s *Sensor) RemoveValidChanged(id SubscriptionID)       { s.validHub.remove(id) }
func (s *Sensor) AddActiveChanged(fn func()) SubscriptionID  { return s.activeHub.add(fn) }
func (s *Sensor) RemoveActiveChanged(id SubscriptionID)      { s.activeHub.remove(id) }
func (s *Sensor) AddReadingChanged(fn func()) SubscriptionID { return s.readingHub.add(fn) }
func (s *Sensor) RemoveReadingChanged(id SubscriptionID)     { s.readingHub.remove(id) }

// Start requests the session be enabled; forwarded to the child
// Reporting's reconciliation.
func (s *Sensor) Start() { s.reporting.Start() }

// Stop requests the session be disabled.
func (s *Sensor) Stop() { s.reporting.Stop() }

// SetDataRate requests a sampling rate in Hz.
func (s *Sensor) SetDataRate(hz float64) { s.reporting.SetDataRate(hz) }

// SetAlwaysOn requests the stand-by override flag.
func (s *Sensor) SetAlwaysOn(on bool) { s.reporting.SetOverride(on) }

func (s *Sensor) onPluginValidChanged() {
	_ = s.loop().Submit(el.Task{Runnable: s.evaluate})
}

// evaluate runs the Disabled->Session->Properties->Connect->Ready state
// machine. Must run on the owning Service's event loop.
func (s *Sensor) evaluate() {
	s.mu.Lock()
	if s.state == sensorFinal {
		s.mu.Unlock()
		return
	}
	if !s.plugin.IsValid() {
		s.disableLocked()
		return
	}
	if s.state != sensorDisabled {
		s.mu.Unlock()
		return
	}
	s.state = sensorSession
	ctl := el.NewAbortController()
	s.pendingCall = ctl
	s.mu.Unlock()
	s.requestSession(ctl)
}

// disableLocked transitions to Disabled, releasing any session and
// closing the socket. s.mu must be held; it is released before return.
func (s *Sensor) disableLocked() {
	wasValid := s.state == sensorReady
	prevState := s.state
	s.state = sensorDisabled
	if s.pendingCall != nil {
		s.pendingCall.Abort("plugin invalid")
		s.pendingCall = nil
	}
	sock := s.sock
	s.sock = nil
	sessionID := s.sessionID
	s.sessionID = noSessionID
	s.haveReading = false
	s.mu.Unlock()

	if sock != nil {
		_ = s.loop().Submit(el.Task{Runnable: sock.Close})
	}
	if prevState != sensorInitial && prevState != sensorDisabled && sessionID != noSessionID {
		conn := s.plugin.Service().Connection()
		if conn != nil {
			dbuswire.ReleaseSensor(s.loop(), conn, s.Name(), el.NewAbortController().Signal(), func(ok bool, err error) {
				if err != nil || !ok {
					obslog.L().Warning().Str("sensor", s.Name()).Err(err).Log("sensorfw: releaseSensor rejected, session cleared locally regardless")
				}
			})
		}
	}
	if wasValid {
		s.validHub.notify()
	}
}

func (s *Sensor) requestSession(ctl *el.AbortController) {
	conn := s.plugin.Service().Connection()
	if conn == nil {
		return
	}
	dbuswire.RequestSensor(s.loop(), conn, s.Name(), int32(pid), ctl.Signal(), func(sessionID int32, err error) {
		s.onSessionComplete(sessionID, err)
	})
}

func (s *Sensor) onSessionComplete(sessionID int32, err error) {
	s.mu.Lock()
	if s.state != sensorSession {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.failLocked(err)
		return
	}
	if dbuswire.IsSessionRejected(sessionID) {
		s.failLocked(ErrSessionRejected)
		return
	}
	s.sessionID = sessionID
	s.state = sensorProperties
	ctl := el.NewAbortController()
	s.pendingCall = ctl
	s.mu.Unlock()
	s.fetchProperties(ctl)
}

func (s *Sensor) fetchProperties(ctl *el.AbortController) {
	conn := s.plugin.Service().Connection()
	if conn == nil {
		return
	}
	dbuswire.GetAll(s.loop(), conn, dbus.ObjectPath(s.ObjectPath()), s.InterfaceName(), ctl.Signal(), func(props map[string]dbus.Variant, err error) {
		s.onPropertiesComplete(props, err)
	})
}

func (s *Sensor) onPropertiesComplete(props map[string]dbus.Variant, err error) {
	s.mu.Lock()
	if s.state != sensorProperties {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.failLocked(err)
		return
	}
	s.props = props
	s.state = sensorConnect
	s.pendingCall = nil
	sessionID := s.sessionID
	s.mu.Unlock()
	s.connectSocket(sessionID)
}

func (s *Sensor) connectSocket(sessionID int32) {
	sampleSize := s.kind.SampleSize()
	sock := wiresock.Dial(s.loop(), s.plugin.Service().opts.socketPath, sampleSize, s.plugin.Service().opts.maxFrame,
		func() { s.onSocketConnected() },
		func(sample []byte) { s.onFrameSample(sample) },
		func(err error) { s.onSocketError(err) },
	)
	if err := sock.Connect(sessionID); err != nil {
		s.onSocketError(err)
		return
	}
	s.mu.Lock()
	s.sock = sock
	s.mu.Unlock()
}

func (s *Sensor) onSocketConnected() {
	s.mu.Lock()
	if s.state != sensorConnect {
		s.mu.Unlock()
		return
	}
	s.state = sensorReady
	s.mu.Unlock()
	s.validHub.notify()
}

func (s *Sensor) onSocketError(err error) {
	s.mu.Lock()
	if s.state != sensorConnect && s.state != sensorReady {
		s.mu.Unlock()
		return
	}
	s.sock = nil
	if errors.Is(err, wiresock.ErrProtocolViolation) {
		err = fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	obslog.L().Warning().Str("sensor", s.Name()).Err(err).Log("sensorfw: sample socket failed")
	s.failLocked(err)
}

func (s *Sensor) onFrameSample(sample []byte) {
	reading, err := decodeSample(s.kind, sample)
	if err != nil {
		obslog.L().Err().Str("sensor", s.Name()).Err(err).Log("sensorfw: sample decode failed")
		return
	}
	s.mu.Lock()
	if s.state != sensorReady {
		s.mu.Unlock()
		return
	}
	s.reading = Reading{Kind: s.kind, Sample: reading}
	s.haveReading = true
	active := s.reporting.IsActive()
	s.mu.Unlock()

	if active {
		s.readingHub.notify()
	} else if s.discardLogSite.Enabled(obslog.LevelInformational) {
		obslog.L().Info().Str("sensor", s.Name()).Log("sensorfw: sample discarded, reporting inactive")
	}
}

// failLocked transitions to Failed and schedules the uniform retry
// timer. s.mu must be held; it is released before return.
func (s *Sensor) failLocked(err error) {
	wasValid := s.state == sensorReady
	s.state = sensorFailed
	s.pendingCall = nil
	sock := s.sock
	s.sock = nil
	s.retryEpoch++
	epoch := s.retryEpoch
	s.mu.Unlock()

	if sock != nil {
		_ = s.loop().Submit(el.Task{Runnable: sock.Close})
	}
	if wasValid {
		s.validHub.notify()
	}
	obslog.L().Warning().Str("sensor", s.Name()).Err(err).Log("sensorfw: session failed, retrying")
	s.scheduleRetry(epoch)
}

func (s *Sensor) scheduleRetry(epoch int) {
	_ = s.loop().ScheduleTimer(s.plugin.Service().opts.retryDelay, func() {
		s.mu.Lock()
		if s.retryEpoch != epoch || s.state != sensorFailed {
			s.mu.Unlock()
			return
		}
		if !s.plugin.IsValid() {
			s.state = sensorDisabled
			s.mu.Unlock()
			return
		}
		s.state = sensorSession
		ctl := el.NewAbortController()
		s.pendingCall = ctl
		s.mu.Unlock()
		s.requestSession(ctl)
	})
}

// Close releases the session and all resources, synchronously. Safe to
// call from any goroutine; the actual teardown runs on the owning
// Service's event loop.
func (s *Sensor) Close() {
	s.mu.Lock()
	if s.state == sensorFinal {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	done := make(chan struct{})
	if err := s.loop().Submit(el.Task{Runnable: func() {
		s.teardown()
		close(done)
	}}); err != nil {
		s.teardown()
		return
	}
	<-done
}

func (s *Sensor) teardown() {
	s.mu.Lock()
	if s.state == sensorFinal {
		s.mu.Unlock()
		return
	}
	s.state = sensorFinal
	s.retryEpoch++
	if s.pendingCall != nil {
		s.pendingCall.Abort("sensor teardown")
	}
	sock := s.sock
	s.sock = nil
	sessionID := s.sessionID
	s.sessionID = noSessionID
	s.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	if sessionID != noSessionID {
		conn := s.plugin.Service().Connection()
		if conn != nil {
			dbuswire.ReleaseSensor(s.loop(), conn, s.Name(), el.NewAbortController().Signal(), func(ok bool, err error) {
				if err != nil || !ok {
					obslog.L().Warning().Str("sensor", s.Name()).Err(err).Log("sensorfw: releaseSensor rejected on teardown, session cleared locally regardless")
				}
			})
		}
	}

	s.reporting.teardown()
	s.plugin.RemoveValidChanged(s.pluginValidSubID)
	s.reporting.RemoveActiveChanged(s.reportActiveSubID)
	s.relPlugin()
}
